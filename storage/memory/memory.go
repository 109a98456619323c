// Package memory is the simplest storage.Adapter: an in-process map, used
// for tests and for hosts that want the async/auto-fetch collection API
// (query-record state machine, refcounted subscriptions) without an
// actually-remote backend.
package memory

import (
	"context"
	"sync"

	"github.com/signaldb-go/signaldb/sderrors"
	"github.com/signaldb-go/signaldb/storage"
	"github.com/signaldb-go/signaldb/valueutil"
)

// Adapter is a storage.Adapter backed by a guarded map. It is safe for
// concurrent use by multiple goroutines, mirroring the concurrency
// guarantee every other reference adapter in this module makes.
type Adapter struct {
	mu      sync.RWMutex
	items   map[string]map[string]any
	indexes map[string]storage.IndexSpec
	setup   bool
}

// New creates an empty in-memory Adapter.
func New() *Adapter {
	return &Adapter{items: map[string]map[string]any{}, indexes: map[string]storage.IndexSpec{}}
}

func (a *Adapter) Setup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setup = true
	return nil
}

func (a *Adapter) Teardown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = map[string]map[string]any{}
	a.setup = false
	return nil
}

func (a *Adapter) ReadAll(ctx context.Context) ([]map[string]any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]map[string]any, 0, len(a.items))
	for _, item := range a.items {
		out = append(out, valueutil.CloneItem(item))
	}
	return out, nil
}

func (a *Adapter) ReadIDs(ctx context.Context, ids []string) ([]map[string]any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		if item, ok := a.items[id]; ok {
			out = append(out, valueutil.CloneItem(item))
		}
	}
	return out, nil
}

func (a *Adapter) ReadIndex(ctx context.Context, field string, value any) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []string
	for id, item := range a.items {
		v, ok := valueutil.Get(item, field)
		if !ok {
			v = nil
		}
		if valueutil.IsEqual(v, value) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (a *Adapter) CreateIndex(ctx context.Context, spec storage.IndexSpec) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.setup {
		return sderrors.NewStorageError("CreateIndex", sderrors.ErrIndexAfterSetup)
	}
	a.indexes[spec.Field] = spec
	return nil
}

func (a *Adapter) DropIndex(ctx context.Context, field string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.indexes, field)
	return nil
}

func (a *Adapter) Insert(ctx context.Context, item map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, _ := item["id"].(string)
	if _, exists := a.items[id]; exists {
		return sderrors.NewDuplicateIDError(id)
	}
	a.items[id] = valueutil.CloneItem(item)
	return nil
}

func (a *Adapter) Replace(ctx context.Context, id string, item map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items[id] = valueutil.CloneItem(item)
	return nil
}

func (a *Adapter) Remove(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.items, id)
	return nil
}

func (a *Adapter) RemoveAll(ctx context.Context, selectorDescription string, ids []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		delete(a.items, id)
	}
	return nil
}
