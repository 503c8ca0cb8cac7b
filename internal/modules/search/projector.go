// Package search projects course and library blocks into the Meilisearch
// index and issues per-user tenant tokens for querying it.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	accessrepo "github.com/yungbote/contentlib/internal/data/repos/access"
	contentrepo "github.com/yungbote/contentlib/internal/data/repos/content"
	"github.com/yungbote/contentlib/internal/modules/library/store"
	"github.com/yungbote/contentlib/internal/observability"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/envutil"
	"github.com/yungbote/contentlib/internal/platform/locks"
	"github.com/yungbote/contentlib/internal/platform/logger"
	"github.com/yungbote/contentlib/internal/platform/meilisearch"
)

const (
	DefaultIndexName = "studio_content"

	rebuildLockPrefix = "search_rebuild:"
	tempIndexSuffix   = "_new"
	primaryKey        = "id"
	distinctAttribute = "usage_key"
	rebuildWorkers    = 4
)

// FilterableAttributes are the fields search requests and tenant tokens may
// filter on.
var FilterableAttributes = []string{"block_type", "context_key", "org", "tags", "type", "access_id"}

// Backend is the subset of the Meilisearch client the projector needs.
type Backend interface {
	CreateIndex(ctx context.Context, uid, primaryKey string) (*meilisearch.TaskInfo, error)
	IndexExists(ctx context.Context, uid string) (bool, error)
	DeleteIndex(ctx context.Context, uid string) (*meilisearch.TaskInfo, error)
	SwapIndexes(ctx context.Context, a, b string) (*meilisearch.TaskInfo, error)
	UpdateDistinctAttribute(ctx context.Context, uid, attribute string) (*meilisearch.TaskInfo, error)
	UpdateFilterableAttributes(ctx context.Context, uid string, attributes []string) (*meilisearch.TaskInfo, error)
	AddDocuments(ctx context.Context, uid string, docs []map[string]any) (*meilisearch.TaskInfo, error)
	UpdateDocuments(ctx context.Context, uid string, docs []map[string]any) (*meilisearch.TaskInfo, error)
	DeleteDocument(ctx context.Context, uid, docID string) (*meilisearch.TaskInfo, error)
	WaitForTask(ctx context.Context, info *meilisearch.TaskInfo) (*meilisearch.Task, error)
	GenerateTenantToken(ctx context.Context, rules meilisearch.SearchRules, expiresAt time.Time) (string, error)
}

var _ Backend = (*meilisearch.Client)(nil)

type Config struct {
	// IndexName is the fully prefixed primary index uid.
	IndexName        string
	LockTTL          time.Duration
	LockWait         time.Duration
	BatchSize        int
	BatchesPerSecond float64
	TokenTTL         time.Duration
	// PublicURL is handed to clients alongside tenant tokens.
	PublicURL string
}

// ConfigFromEnv reads SEARCH_* settings. prefix is the Meilisearch index
// prefix applied to the logical index name.
func ConfigFromEnv(prefix string) Config {
	return Config{
		IndexName:        prefix + envutil.String("SEARCH_INDEX_NAME", DefaultIndexName),
		LockTTL:          envutil.Seconds("SEARCH_REBUILD_LOCK_TTL_SECONDS", 300),
		LockWait:         envutil.Seconds("SEARCH_REBUILD_LOCK_WAIT_SECONDS", 0),
		BatchSize:        envutil.Int("SEARCH_REBUILD_BATCH_SIZE", 500),
		BatchesPerSecond: float64(envutil.Int("SEARCH_REBUILD_BATCHES_PER_SECOND", 10)),
		TokenTTL:         time.Duration(envutil.Int("SEARCH_TOKEN_TTL_HOURS", 24)) * time.Hour,
		PublicURL:        envutil.String("MEILISEARCH_PUBLIC_URL", envutil.String("MEILISEARCH_URL", "")),
	}
}

func (c Config) withDefaults() Config {
	if c.IndexName == "" {
		c.IndexName = DefaultIndexName
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 300 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.BatchesPerSecond <= 0 {
		c.BatchesPerSecond = 10
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.TokenTTL > MaxTokenTTL {
		c.TokenTTL = MaxTokenTTL
	}
	return c
}

type ProjectorDeps struct {
	Log     *logger.Logger
	Backend Backend
	Locker  locks.Locker
	Metrics *observability.Metrics

	Store        store.Store
	Courses      contentrepo.CourseRepo
	CourseBlocks contentrepo.CourseBlockRepo
	Definitions  contentrepo.DefinitionRepo
	SearchAccess accessrepo.SearchAccessRepo
	UserRoles    accessrepo.UserRoleRepo
	Tags         FacetSource
}

// Projector keeps the search index in step with the block store.
type Projector struct {
	log     *logger.Logger
	cfg     Config
	backend Backend
	locker  locks.Locker
	metrics *observability.Metrics
	builder *Builder
	deps    ProjectorDeps

	mu           sync.Mutex
	primaryReady bool
}

func NewProjector(deps ProjectorDeps, cfg Config) *Projector {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Locker == nil {
		deps.Locker = locks.NewLocalLocker()
	}
	return &Projector{
		log:     deps.Log.With("service", "SearchProjector"),
		cfg:     cfg.withDefaults(),
		backend: deps.Backend,
		locker:  deps.Locker,
		metrics: deps.Metrics,
		builder: NewBuilder(deps.Log, deps.Store, deps.Courses, deps.CourseBlocks, deps.Definitions, deps.SearchAccess, deps.Tags),
		deps:    deps,
	}
}

func (p *Projector) IndexName() string     { return p.cfg.IndexName }
func (p *Projector) tempIndexName() string { return p.cfg.IndexName + tempIndexSuffix }
func (p *Projector) lockName() string      { return rebuildLockPrefix + p.cfg.IndexName }

// RebuildReport summarizes one full rebuild.
type RebuildReport struct {
	Index     string        `json:"index"`
	Contexts  int           `json:"contexts"`
	Documents int64         `json:"documents"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// RebuildIndex rebuilds the whole index into a temporary index and swaps it
// in. Readers keep using the old primary until the swap. Incremental writes
// made while the rebuild runs go to both indexes. Fails with
// errs.ErrLockNotAcquired if another rebuild holds the lock.
func (p *Projector) RebuildIndex(ctx context.Context) (report *RebuildReport, err error) {
	if p.backend == nil {
		return nil, errNotConfigured
	}
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "search.RebuildIndex", attribute.String("index", p.cfg.IndexName))
	defer func() {
		observability.EndSpan(span, err)
		p.metrics.ObserveSearchIndexOp("rebuild", err)
		if err == nil {
			p.metrics.ObserveSearchRebuild(time.Since(start))
		}
	}()

	lease, err := locks.Acquire(ctx, p.locker, p.lockName(), p.cfg.LockTTL, p.cfg.LockWait)
	if err != nil {
		return nil, err
	}
	stopRefresh := p.keepLease(ctx, lease)
	defer func() {
		stopRefresh()
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			p.log.Warn("release rebuild lock failed", "error", rerr)
		}
	}()

	temp := p.tempIndexName()
	p.log.Info("Search rebuild started", "index", p.cfg.IndexName, "temp_index", temp)

	exists, err := p.backend.IndexExists(ctx, temp)
	if err != nil {
		return nil, fmt.Errorf("check temp index: %w", err)
	}
	if exists {
		if err := p.wait(ctx, "delete stale temp index", func() (*meilisearch.TaskInfo, error) { return p.backend.DeleteIndex(ctx, temp) }); err != nil {
			return nil, err
		}
	}
	if err := p.createConfigured(ctx, temp); err != nil {
		return nil, err
	}

	report = &RebuildReport{Index: p.cfg.IndexName}
	contexts, err := p.contextKeys(ctx)
	if err != nil {
		return nil, err
	}
	report.Contexts = len(contexts)

	limiter := rate.NewLimiter(rate.Limit(p.cfg.BatchesPerSecond), 1)
	var (
		docs    atomic.Int64
		skipped atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rebuildWorkers)
	for _, key := range contexts {
		key := key
		g.Go(func() error {
			built, err := p.builder.ContextDocuments(dbctx.Context{Ctx: gctx}, key)
			if err != nil {
				p.log.Warn("skip context during rebuild", "context_key", key, "error", err)
				skipped.Add(1)
				return nil
			}
			for i := 0; i < len(built); i += p.cfg.BatchSize {
				end := min(i+p.cfg.BatchSize, len(built))
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				batch := make([]map[string]any, 0, end-i)
				for _, d := range built[i:end] {
					batch = append(batch, d.Map())
				}
				if err := p.wait(gctx, "add documents", func() (*meilisearch.TaskInfo, error) { return p.backend.AddDocuments(gctx, temp, batch) }); err != nil {
					return fmt.Errorf("index %s: %w", key, err)
				}
				docs.Add(int64(len(batch)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := p.ensurePrimary(ctx); err != nil {
		return nil, err
	}
	if err := p.wait(ctx, "swap indexes", func() (*meilisearch.TaskInfo, error) { return p.backend.SwapIndexes(ctx, p.cfg.IndexName, temp) }); err != nil {
		return nil, err
	}
	if err := p.wait(ctx, "delete old index", func() (*meilisearch.TaskInfo, error) { return p.backend.DeleteIndex(ctx, temp) }); err != nil {
		p.log.Warn("delete old index after swap failed", "index", temp, "error", err)
	}

	report.Documents = docs.Load()
	report.Skipped = int(skipped.Load())
	report.Duration = time.Since(start)
	p.log.Info("Search rebuild finished",
		"index", p.cfg.IndexName,
		"contexts", report.Contexts,
		"documents", report.Documents,
		"skipped", report.Skipped,
		"duration", report.Duration.String(),
	)
	return report, nil
}

// keepLease refreshes the rebuild lease at a third of its TTL until stopped.
func (p *Projector) keepLease(ctx context.Context, lease *locks.Lease) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.cfg.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ok, err := lease.Refresh(ctx, p.cfg.LockTTL); err != nil || !ok {
					p.log.Warn("refresh rebuild lock failed", "ok", ok, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *Projector) contextKeys(ctx context.Context) ([]string, error) {
	dbc := dbctx.Context{Ctx: ctx}
	libs, err := p.deps.Store.ListLibraries(dbc)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	courses, err := p.deps.Courses.List(dbc)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	out := make([]string, 0, len(libs)+len(courses))
	for _, l := range libs {
		out = append(out, l.LibraryKey)
	}
	for _, c := range courses {
		out = append(out, c.CourseKey)
	}
	return out, nil
}

func (p *Projector) createConfigured(ctx context.Context, uid string) error {
	steps := []struct {
		what string
		call func() (*meilisearch.TaskInfo, error)
	}{
		{"create index " + uid, func() (*meilisearch.TaskInfo, error) { return p.backend.CreateIndex(ctx, uid, primaryKey) }},
		{"set distinct attribute", func() (*meilisearch.TaskInfo, error) {
			return p.backend.UpdateDistinctAttribute(ctx, uid, distinctAttribute)
		}},
		{"set filterable attributes", func() (*meilisearch.TaskInfo, error) {
			return p.backend.UpdateFilterableAttributes(ctx, uid, FilterableAttributes)
		}},
	}
	for _, s := range steps {
		if err := p.wait(ctx, s.what, s.call); err != nil {
			return err
		}
	}
	return nil
}

// ensurePrimary creates and configures the primary index once per process.
func (p *Projector) ensurePrimary(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.primaryReady {
		return nil
	}
	exists, err := p.backend.IndexExists(ctx, p.cfg.IndexName)
	if err != nil {
		return fmt.Errorf("check primary index: %w", err)
	}
	if !exists {
		if err := p.createConfigured(ctx, p.cfg.IndexName); err != nil {
			return err
		}
	}
	p.primaryReady = true
	return nil
}

// targets lists the indexes an incremental write goes to: the primary, plus
// the temporary index while a rebuild holds the lock.
func (p *Projector) targets(ctx context.Context) ([]string, error) {
	if err := p.ensurePrimary(ctx); err != nil {
		return nil, err
	}
	out := []string{p.cfg.IndexName}
	held, err := p.locker.Held(ctx, p.lockName())
	if err != nil {
		p.log.Warn("check rebuild lock failed; writing primary only", "error", err)
		return out, nil
	}
	if held {
		exists, err := p.backend.IndexExists(ctx, p.tempIndexName())
		if err == nil && exists {
			out = append(out, p.tempIndexName())
		}
	}
	return out, nil
}

// UpsertBlock re-projects a block and all blocks below it. A block that no
// longer exists is ignored.
func (p *Projector) UpsertBlock(ctx context.Context, usageKey string) (err error) {
	if p.backend == nil {
		return errNotConfigured
	}
	ctx, span := observability.StartSpan(ctx, "search.UpsertBlock", attribute.String("usage_key", usageKey))
	defer func() {
		observability.EndSpan(span, err)
		p.metrics.ObserveSearchIndexOp("upsert", err)
	}()

	built, err := p.builder.BlockDocuments(dbctx.Context{Ctx: ctx}, usageKey)
	if err != nil {
		return err
	}
	if len(built) == 0 {
		p.log.Debug("block not found; nothing to index", "usage_key", usageKey)
		return nil
	}
	batch := make([]map[string]any, 0, len(built))
	for _, d := range built {
		batch = append(batch, d.Map())
	}
	return p.writeAll(ctx, "upsert documents", func(uid string) (*meilisearch.TaskInfo, error) {
		return p.backend.AddDocuments(ctx, uid, batch)
	})
}

// DeleteBlock removes a block's document.
func (p *Projector) DeleteBlock(ctx context.Context, usageKey string) (err error) {
	if p.backend == nil {
		return errNotConfigured
	}
	ctx, span := observability.StartSpan(ctx, "search.DeleteBlock", attribute.String("usage_key", usageKey))
	defer func() {
		observability.EndSpan(span, err)
		p.metrics.ObserveSearchIndexOp("delete", err)
	}()
	id := DocumentID(usageKey)
	return p.writeAll(ctx, "delete document", func(uid string) (*meilisearch.TaskInfo, error) {
		return p.backend.DeleteDocument(ctx, uid, id)
	})
}

// UpdateTags rewrites only the tags field of a block's document.
func (p *Projector) UpdateTags(ctx context.Context, usageKey string) (err error) {
	if p.backend == nil {
		return errNotConfigured
	}
	ctx, span := observability.StartSpan(ctx, "search.UpdateTags", attribute.String("usage_key", usageKey))
	defer func() {
		observability.EndSpan(span, err)
		p.metrics.ObserveSearchIndexOp("update_tags", err)
	}()
	facets, err := p.builder.Facets(dbctx.Context{Ctx: ctx}, []string{usageKey})
	if err != nil {
		return err
	}
	patch := []map[string]any{TagsPatch(usageKey, facets[usageKey])}
	return p.writeAll(ctx, "update tags", func(uid string) (*meilisearch.TaskInfo, error) {
		return p.backend.UpdateDocuments(ctx, uid, patch)
	})
}

func (p *Projector) writeAll(ctx context.Context, what string, call func(uid string) (*meilisearch.TaskInfo, error)) error {
	uids, err := p.targets(ctx)
	if err != nil {
		return err
	}
	var errsOut []error
	for _, uid := range uids {
		uid := uid
		if err := p.wait(ctx, what, func() (*meilisearch.TaskInfo, error) { return call(uid) }); err != nil {
			errsOut = append(errsOut, fmt.Errorf("%s: %w", uid, err))
		}
	}
	return errors.Join(errsOut...)
}

func (p *Projector) wait(ctx context.Context, what string, call func() (*meilisearch.TaskInfo, error)) error {
	info, err := call()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if _, err := p.backend.WaitForTask(ctx, info); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
