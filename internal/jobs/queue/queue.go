// Package queue writes search-index work onto the job_run table. Request
// paths only enqueue; workers drain the table.
package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobsrepo "github.com/yungbote/contentlib/internal/data/repos/jobs"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/ctxutil"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

const (
	TypeSearchUpsertBlock = "search_upsert_block"
	TypeSearchDeleteBlock = "search_delete_block"
	TypeSearchUpdateTags  = "search_update_tags"
	TypeSearchRebuild     = "search_rebuild"

	EntityBlock = "block"
	EntityIndex = "search_index"
)

// IndexQueue is the narrow view used by authoring paths.
type IndexQueue interface {
	EnqueueUpsert(dbc dbctx.Context, usageKeys ...string) error
	EnqueueDelete(dbc dbctx.Context, usageKeys ...string) error
	EnqueueTagsUpdate(dbc dbctx.Context, usageKeys ...string) error
}

type Service interface {
	IndexQueue
	Enqueue(dbc dbctx.Context, requestedBy, jobType, entityType, entityID string, payload map[string]any) (*types.JobRun, error)
	// EnqueueRebuild returns false when a rebuild is already queued or running.
	EnqueueRebuild(dbc dbctx.Context, requestedBy string) (*types.JobRun, bool, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
}

type service struct {
	db   *gorm.DB
	log  *logger.Logger
	repo jobsrepo.JobRunRepo
}

func NewService(db *gorm.DB, baseLog *logger.Logger, repo jobsrepo.JobRunRepo) Service {
	return &service{
		db:   db,
		log:  baseLog.With("service", "JobQueue"),
		repo: repo,
	}
}

func (s *service) Enqueue(dbc dbctx.Context, requestedBy, jobType, entityType, entityID string, payload map[string]any) (*types.JobRun, error) {
	if strings.TrimSpace(jobType) == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := payload["trace_id"]; !ok {
				payload["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := payload["request_id"]; !ok {
				payload["request_id"] = td.RequestID
			}
		}
	}
	if requestedBy == "" {
		if rd := ctxutil.GetRequestData(dbc.Ctx); rd != nil {
			requestedBy = rd.UserID
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	now := time.Now()
	job := &types.JobRun{
		ID:          uuid.New(),
		RequestedBy: requestedBy,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      types.JobStatusQueued,
		Stage:       types.JobStatusQueued,
		Payload:     datatypes.JSON(raw),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(dbc, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Debug("Job enqueued", "job_id", job.ID, "job_type", jobType, "entity_id", entityID)
	return job, nil
}

func (s *service) enqueueBlocks(dbc dbctx.Context, jobType string, usageKeys []string) error {
	seen := map[string]bool{}
	for _, key := range usageKeys {
		key = strings.TrimSpace(key)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		exists, err := s.repo.ExistsQueued(dbc, jobType, EntityBlock, key)
		if err != nil {
			return fmt.Errorf("check queued %s: %w", jobType, err)
		}
		if exists {
			continue
		}
		if _, err := s.Enqueue(dbc, "", jobType, EntityBlock, key, map[string]any{"usage_key": key}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) EnqueueUpsert(dbc dbctx.Context, usageKeys ...string) error {
	return s.enqueueBlocks(dbc, TypeSearchUpsertBlock, usageKeys)
}

func (s *service) EnqueueDelete(dbc dbctx.Context, usageKeys ...string) error {
	return s.enqueueBlocks(dbc, TypeSearchDeleteBlock, usageKeys)
}

func (s *service) EnqueueTagsUpdate(dbc dbctx.Context, usageKeys ...string) error {
	return s.enqueueBlocks(dbc, TypeSearchUpdateTags, usageKeys)
}

func (s *service) EnqueueRebuild(dbc dbctx.Context, requestedBy string) (*types.JobRun, bool, error) {
	exists, err := s.repo.ExistsRunnable(dbc, TypeSearchRebuild, EntityIndex, "")
	if err != nil {
		return nil, false, fmt.Errorf("check rebuild: %w", err)
	}
	if exists {
		return nil, false, nil
	}
	job, err := s.Enqueue(dbc, requestedBy, TypeSearchRebuild, EntityIndex, "primary", nil)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (s *service) Get(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	rows, err := s.repo.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
