// Package blocktypes maps block types to the optional capabilities the
// item-bank relies on.
package blocktypes

import (
	"context"
	"fmt"
	"sort"
	"sync"

	contentrepo "github.com/yungbote/contentlib/internal/data/repos/content"
	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
)

// ResetFunc clears one learner's state on a block.
type ResetFunc func(ctx context.Context, userID string, block *types.CourseBlock) error

type BlockType struct {
	Name string
	// Container blocks hold children; their content titles are their
	// descendants' titles.
	Container bool
	Scored    bool
	// Reset is nil for blocks without learner state to clear.
	Reset ResetFunc
}

type Registry struct {
	mu    sync.RWMutex
	types map[string]BlockType
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]BlockType)}
}

func (r *Registry) Register(bt BlockType) error {
	if bt.Name == "" {
		return fmt.Errorf("block type name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[bt.Name]; exists {
		return fmt.Errorf("block type already registered: %s", bt.Name)
	}
	r.types[bt.Name] = bt
	return nil
}

func (r *Registry) Get(name string) (BlockType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bt, ok := r.types[name]
	return bt, ok
}

// CanReset reports whether blocks of this type register a reset hook.
func (r *Registry) CanReset(name string) bool {
	bt, ok := r.Get(name)
	return ok && bt.Reset != nil
}

func (r *Registry) IsContainer(name string) bool {
	bt, ok := r.Get(name)
	return ok && bt.Container
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for n := range r.types {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Default registers the built-in block types. The problem reset hook drops
// the learner's stored answers and attempts.
func Default(states contentrepo.LearnerBlockStateRepo) *Registry {
	r := NewRegistry()
	for _, bt := range []BlockType{
		{Name: types.BlockTypeProblem, Scored: true, Reset: ResetProblem(states)},
		{Name: "html"},
		{Name: "video"},
		{Name: "vertical", Container: true},
		{Name: "sequential", Container: true},
		{Name: "chapter", Container: true},
		{Name: types.BlockTypeItemBank, Container: true},
	} {
		_ = r.Register(bt)
	}
	return r
}

func ResetProblem(states contentrepo.LearnerBlockStateRepo) ResetFunc {
	return func(ctx context.Context, userID string, block *types.CourseBlock) error {
		if states == nil {
			return nil
		}
		if _, err := states.Delete(dbctx.Context{Ctx: ctx}, userID, block.UsageKey); err != nil {
			return fmt.Errorf("reset problem %s: %w", block.UsageKey, err)
		}
		return nil
	}
}
