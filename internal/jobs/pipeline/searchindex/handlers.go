// Package searchindex runs the search-index job types against the projector.
package searchindex

import (
	"context"
	"fmt"

	"github.com/yungbote/contentlib/internal/jobs/queue"
	"github.com/yungbote/contentlib/internal/jobs/runtime"
	"github.com/yungbote/contentlib/internal/modules/search"
)

// Indexer is implemented by *search.Projector.
type Indexer interface {
	UpsertBlock(ctx context.Context, usageKey string) error
	DeleteBlock(ctx context.Context, usageKey string) error
	UpdateTags(ctx context.Context, usageKey string) error
	RebuildIndex(ctx context.Context) (*search.RebuildReport, error)
}

var _ Indexer = (*search.Projector)(nil)

// Handlers returns one handler per search job type.
func Handlers(ix Indexer) []runtime.Handler {
	return []runtime.Handler{
		&blockHandler{jobType: queue.TypeSearchUpsertBlock, run: ix.UpsertBlock},
		&blockHandler{jobType: queue.TypeSearchDeleteBlock, run: ix.DeleteBlock},
		&blockHandler{jobType: queue.TypeSearchUpdateTags, run: ix.UpdateTags},
		&rebuildHandler{ix: ix},
	}
}

type blockHandler struct {
	jobType string
	run     func(ctx context.Context, usageKey string) error
}

func (h *blockHandler) Type() string { return h.jobType }

func (h *blockHandler) Run(jc *runtime.Context) error {
	key := jc.PayloadString("usage_key")
	if key == "" {
		key = jc.Job.EntityID
	}
	if key == "" {
		return fmt.Errorf("%s: missing usage_key", h.jobType)
	}
	if err := h.run(jc.Ctx, key); err != nil {
		return err
	}
	jc.Succeed("done", map[string]any{"usage_key": key})
	return nil
}

type rebuildHandler struct {
	ix Indexer
}

func (h *rebuildHandler) Type() string { return queue.TypeSearchRebuild }

func (h *rebuildHandler) Run(jc *runtime.Context) error {
	jc.Progress("rebuilding")
	report, err := h.ix.RebuildIndex(jc.Ctx)
	if err != nil {
		return err
	}
	jc.Succeed("done", report)
	return nil
}
