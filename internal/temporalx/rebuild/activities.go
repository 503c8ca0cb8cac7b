package rebuild

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/contentlib/internal/modules/search"
	"github.com/yungbote/contentlib/internal/platform/errs"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

// Indexer is implemented by *search.Projector.
type Indexer interface {
	RebuildIndex(ctx context.Context) (*search.RebuildReport, error)
}

type Activities struct {
	Log     *logger.Logger
	Indexer Indexer

	// HeartbeatInterval defaults to 20s.
	HeartbeatInterval time.Duration
}

func (a *Activities) Rebuild(ctx context.Context) (Result, error) {
	if a == nil || a.Indexer == nil {
		return Result{}, temporal.NewNonRetryableApplicationError("rebuild activity not configured", "not_configured", nil)
	}
	log := a.Log
	if log == nil {
		log = logger.Nop()
	}
	info := activity.GetInfo(ctx)
	log = log.With("workflow_id", info.WorkflowExecution.ID, "attempt", info.Attempt)

	every := a.HeartbeatInterval
	if every <= 0 {
		every = 20 * time.Second
	}
	hbCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, "rebuilding")
			}
		}
	}()

	report, err := a.Indexer.RebuildIndex(ctx)
	stop()
	<-done

	if err != nil {
		if errors.Is(err, errs.ErrLockNotAcquired) {
			return Result{}, temporal.NewNonRetryableApplicationError(err.Error(), "lock_not_acquired", err)
		}
		log.Warn("Search index rebuild attempt failed", "error", err)
		return Result{}, fmt.Errorf("rebuild: %w", err)
	}
	log.Info("Search index rebuilt", "index", report.Index, "documents", report.Documents, "skipped", report.Skipped)
	return Result{
		Index:     report.Index,
		Contexts:  report.Contexts,
		Documents: report.Documents,
		Skipped:   report.Skipped,
		Duration:  report.Duration,
	}, nil
}
