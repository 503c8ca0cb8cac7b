// Package selection assigns each learner a persisted subset of an item-bank's
// children and reports changes to that subset as analytics events.
package selection

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/yungbote/contentlib/internal/analytics"
	dbpkg "github.com/yungbote/contentlib/internal/data/db"
	contentrepo "github.com/yungbote/contentlib/internal/data/repos/content"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/observability"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/errs"
	"github.com/yungbote/contentlib/internal/platform/locks"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

// LockNamespace is the advisory lock namespace for per-learner selections.
const LockNamespace = "itembank_selection"

const maxWriteAttempts = 3

var errStaleRevision = errors.New("selection revision changed")

// Input describes one item-bank as a learner sees it.
type Input struct {
	UserID   string
	ItemBank string
	Children []string
	MaxCount int
	Mode     string
}

type Result struct {
	Selected []string
	Change   Change
}

type Options struct {
	// Rand drives over-limit removal and random-mode sampling. Defaults to a
	// time-seeded source.
	Rand      *rand.Rand
	Publisher analytics.Publisher
	Metrics   *observability.Metrics
}

type Engine struct {
	db           *gorm.DB
	log          *logger.Logger
	selections   contentrepo.LearnerSelectionRepo
	courseBlocks contentrepo.CourseBlockRepo
	publisher    analytics.Publisher
	metrics      *observability.Metrics

	pairs  *locks.KeyedMutex
	flight singleflight.Group

	randMu sync.Mutex
	rnd    *rand.Rand
}

func New(db *gorm.DB, baseLog *logger.Logger, selections contentrepo.LearnerSelectionRepo, courseBlocks contentrepo.CourseBlockRepo, opts Options) *Engine {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	pub := opts.Publisher
	if pub == nil {
		pub = analytics.NewLogPublisher(baseLog)
	}
	return &Engine{
		db:           db,
		log:          baseLog.With("service", "SelectionEngine"),
		selections:   selections,
		courseBlocks: courseBlocks,
		publisher:    pub,
		metrics:      opts.Metrics,
		pairs:        locks.NewKeyedMutex(),
		rnd:          rnd,
	}
}

// Select reconciles and persists the learner's selection. Concurrent calls
// for the same learner and inputs share one computation; calls for the same
// learner are serialized in-process and across processes.
func (e *Engine) Select(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.ItemBank) == "" {
		return nil, fmt.Errorf("select: user and item-bank required: %w", errs.ErrInvalidArgument)
	}
	v, err, _ := e.flight.Do(flightKey(in), func() (interface{}, error) {
		unlock := e.pairs.Lock(pairKey(in.UserID, in.ItemBank))
		defer unlock()
		return e.selectLocked(ctx, in)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Current returns the stored selection restricted to children, without
// writing. It is the fallback when Select fails on a learner request.
func (e *Engine) Current(ctx context.Context, userID, itemBank string, children []string) ([]string, error) {
	row, err := e.selections.Get(dbctx.Context{Ctx: ctx}, userID, itemBank)
	if err != nil {
		return nil, err
	}
	pool := make(map[string]bool, len(children))
	for _, id := range children {
		pool[id] = true
	}
	var out []string
	for _, id := range contentrepo.DecodeSelected(row) {
		if pool[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// Clear empties the learner's selection so the next read assigns afresh.
func (e *Engine) Clear(ctx context.Context, userID, itemBank string) error {
	unlock := e.pairs.Lock(pairKey(userID, itemBank))
	defer unlock()
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := dbpkg.AdvisoryXactLock(tx, LockNamespace, pairKey(userID, itemBank)); err != nil {
			return err
		}
		row, err := e.selections.Get(dbc, userID, itemBank)
		if err != nil || row == nil {
			return err
		}
		ok, err := e.selections.CompareAndSwap(dbc, row.ID, row.Revision, nil)
		if err != nil {
			return err
		}
		if !ok {
			return errStaleRevision
		}
		return nil
	})
}

func (e *Engine) selectLocked(ctx context.Context, in Input) (*Result, error) {
	ctx, span := observability.StartSpan(ctx, "selection.Select",
		attribute.String("item_bank", in.ItemBank),
		attribute.Int("max_count", in.MaxCount),
	)
	var (
		change Change
		err    error
	)
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		change, err = e.persist(ctx, in)
		if err == nil {
			break
		}
		if !errors.Is(err, errStaleRevision) && !errors.Is(err, errs.ErrConflict) {
			break
		}
		e.log.Debug("selection write raced; retrying", "item_bank", in.ItemBank, "attempt", attempt)
	}
	observability.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("persist selection: %w", err)
	}
	if change.Changed() {
		e.emit(ctx, in, change)
	}
	return &Result{Selected: change.Selected, Change: change}, nil
}

func (e *Engine) persist(ctx context.Context, in Input) (Change, error) {
	var change Change
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := dbpkg.AdvisoryXactLock(tx, LockNamespace, pairKey(in.UserID, in.ItemBank)); err != nil {
			return err
		}
		row, err := e.selections.Get(dbc, in.UserID, in.ItemBank)
		if err != nil {
			return err
		}
		e.randMu.Lock()
		change = Plan(in.Children, in.MaxCount, in.Mode, contentrepo.DecodeSelected(row), e.rnd)
		e.randMu.Unlock()

		if row == nil {
			_, err := e.selections.Insert(dbc, in.UserID, in.ItemBank, change.Selected)
			return err
		}
		if !change.NeedsWrite() {
			return nil
		}
		ok, err := e.selections.CompareAndSwap(dbc, row.ID, row.Revision, change.Selected)
		if err != nil {
			return err
		}
		if !ok {
			return errStaleRevision
		}
		return nil
	})
	return change, err
}

// emit publishes the removed event before the assigned one. Failures are
// logged; the selection is already committed.
func (e *Engine) emit(ctx context.Context, in Input, change Change) {
	info := newBlockInfoCache(e.log, e.courseBlocks)
	base := func() map[string]any {
		result := make([]BlockInfo, 0, len(change.Selected))
		for _, id := range change.Selected {
			result = append(result, info.get(ctx, id))
		}
		return map[string]any{
			"location":       in.ItemBank,
			"max_count":      in.MaxCount,
			"previous_count": len(change.Previous),
			"result_count":   len(change.Selected),
			"result":         result,
		}
	}

	if removed := change.Removed(); len(removed) > 0 {
		payload := base()
		payload["removed"] = info.list(ctx, removed)
		payload["reason"] = change.RemovedReason()
		e.publish(ctx, analytics.EventContentRemoved, payload)
		e.metrics.ObserveSelectionEvent("removed", change.RemovedReason())
	}
	if len(change.Added) > 0 {
		payload := base()
		payload["added"] = info.list(ctx, change.Added)
		reason := change.AssignedReason()
		if reason != "" {
			payload["reason"] = reason
		}
		e.publish(ctx, analytics.EventContentAssigned, payload)
		e.metrics.ObserveSelectionEvent("assigned", reason)
	}
}

func (e *Engine) publish(ctx context.Context, name string, payload map[string]any) {
	if err := e.publisher.Publish(ctx, name, payload); err != nil {
		e.log.Warn("publish analytics event failed", "event", name, "item_bank", payload["location"], "error", err)
	}
}

func pairKey(userID, itemBank string) string {
	return userID + "|" + itemBank
}

func flightKey(in Input) string {
	return pairKey(in.UserID, in.ItemBank) + "|" + strconv.Itoa(in.MaxCount) + "|" + in.Mode + "|" + strings.Join(in.Children, ",")
}

// ModeOrDefault maps an empty mode to random.
func ModeOrDefault(mode string) string {
	if mode == types.ModeFirst {
		return types.ModeFirst
	}
	return types.ModeRandom
}
