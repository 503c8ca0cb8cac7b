package rebuild

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/contentlib/internal/jobs/queue"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

const (
	ChannelTemporal = "temporal"
	ChannelQueue    = "job_queue"
)

// Scheduled describes where an admin rebuild request went.
type Scheduled struct {
	Channel string `json:"channel"`
	// Started is false when a rebuild was already running or queued.
	Started    bool       `json:"started"`
	WorkflowID string     `json:"workflow_id,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	JobID      *uuid.UUID `json:"job_id,omitempty"`
}

// Scheduler starts the rebuild workflow when Temporal is configured and
// enqueues a search_rebuild job otherwise.
type Scheduler struct {
	log       *logger.Logger
	temporal  temporalsdkclient.Client
	taskQueue string
	queue     queue.Service
}

func NewScheduler(log *logger.Logger, tc temporalsdkclient.Client, taskQueue string, q queue.Service) *Scheduler {
	return &Scheduler{log: log.With("component", "RebuildScheduler"), temporal: tc, taskQueue: taskQueue, queue: q}
}

func (s *Scheduler) Schedule(ctx context.Context, requestedBy string) (*Scheduled, error) {
	if s.temporal != nil {
		runID, started, _, err := Start(ctx, s.temporal, s.taskQueue, false)
		if err != nil {
			return nil, fmt.Errorf("start rebuild workflow: %w", err)
		}
		s.log.Info("Search rebuild requested", "channel", ChannelTemporal, "started", started, "requested_by", requestedBy)
		return &Scheduled{Channel: ChannelTemporal, Started: started, WorkflowID: WorkflowID, RunID: runID}, nil
	}
	if s.queue == nil {
		return nil, fmt.Errorf("no rebuild channel configured")
	}
	job, created, err := s.queue.EnqueueRebuild(dbctx.Context{Ctx: ctx}, requestedBy)
	if err != nil {
		return nil, fmt.Errorf("enqueue rebuild: %w", err)
	}
	out := &Scheduled{Channel: ChannelQueue, Started: created}
	if job != nil {
		out.JobID = &job.ID
	}
	s.log.Info("Search rebuild requested", "channel", ChannelQueue, "started", created, "requested_by", requestedBy)
	return out, nil
}
