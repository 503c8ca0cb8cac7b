package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/contentlib/internal/platform/meilisearch"
)

type fakeIndex struct {
	docs       map[string]map[string]any
	distinct   string
	filterable []string
}

// fakeBackend is an in-memory index server whose tasks complete immediately.
type fakeBackend struct {
	mu      sync.Mutex
	indexes map[string]*fakeIndex
	swaps   [][2]string
	rules   meilisearch.SearchRules
	expires time.Time
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{indexes: map[string]*fakeIndex{}}
}

func (f *fakeBackend) task() *meilisearch.TaskInfo {
	return &meilisearch.TaskInfo{Status: meilisearch.TaskEnqueued}
}

func (f *fakeBackend) index(uid string) (*fakeIndex, error) {
	ix := f.indexes[uid]
	if ix == nil {
		return nil, fmt.Errorf("index %s not found", uid)
	}
	return ix, nil
}

func (f *fakeBackend) CreateIndex(_ context.Context, uid, _ string) (*meilisearch.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexes[uid] == nil {
		f.indexes[uid] = &fakeIndex{docs: map[string]map[string]any{}}
	}
	return f.task(), nil
}

func (f *fakeBackend) IndexExists(_ context.Context, uid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexes[uid] != nil, nil
}

func (f *fakeBackend) DeleteIndex(_ context.Context, uid string) (*meilisearch.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexes, uid)
	return f.task(), nil
}

func (f *fakeBackend) SwapIndexes(_ context.Context, a, b string) (*meilisearch.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexes[a], f.indexes[b] = f.indexes[b], f.indexes[a]
	f.swaps = append(f.swaps, [2]string{a, b})
	return f.task(), nil
}

func (f *fakeBackend) UpdateDistinctAttribute(_ context.Context, uid, attribute string) (*meilisearch.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ix, err := f.index(uid)
	if err != nil {
		return nil, err
	}
	ix.distinct = attribute
	return f.task(), nil
}

func (f *fakeBackend) UpdateFilterableAttributes(_ context.Context, uid string, attributes []string) (*meilisearch.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ix, err := f.index(uid)
	if err != nil {
		return nil, err
	}
	ix.filterable = append([]string(nil), attributes...)
	return f.task(), nil
}

func (f *fakeBackend) AddDocuments(_ context.Context, uid string, docs []map[string]any) (*meilisearch.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ix := f.indexes[uid]
	if ix == nil {
		ix = &fakeIndex{docs: map[string]map[string]any{}}
		f.indexes[uid] = ix
	}
	for _, d := range docs {
		ix.docs[d["id"].(string)] = d
	}
	return f.task(), nil
}

func (f *fakeBackend) UpdateDocuments(_ context.Context, uid string, docs []map[string]any) (*meilisearch.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ix, err := f.index(uid)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		id := d["id"].(string)
		cur := ix.docs[id]
		if cur == nil {
			cur = map[string]any{}
			ix.docs[id] = cur
		}
		for k, v := range d {
			cur[k] = v
		}
	}
	return f.task(), nil
}

func (f *fakeBackend) DeleteDocument(_ context.Context, uid, docID string) (*meilisearch.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ix, err := f.index(uid)
	if err != nil {
		return nil, err
	}
	delete(ix.docs, docID)
	return f.task(), nil
}

func (f *fakeBackend) WaitForTask(_ context.Context, info *meilisearch.TaskInfo) (*meilisearch.Task, error) {
	if info == nil {
		return nil, nil
	}
	return &meilisearch.Task{Status: meilisearch.TaskSucceeded}, nil
}

func (f *fakeBackend) GenerateTenantToken(_ context.Context, rules meilisearch.SearchRules, expiresAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = rules
	f.expires = expiresAt
	return "tenant-token", nil
}

func (f *fakeBackend) doc(uid, id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	ix := f.indexes[uid]
	if ix == nil {
		return nil
	}
	return ix.docs[id]
}

func (f *fakeBackend) docCount(uid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ix := f.indexes[uid]; ix != nil {
		return len(ix.docs)
	}
	return -1
}

var _ Backend = (*fakeBackend)(nil)
