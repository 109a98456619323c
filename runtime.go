package signaldb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signaldb-go/signaldb/config"
	"github.com/signaldb-go/signaldb/storage"
)

// ErrDuplicateCollectionName is returned by Runtime.Register when name is
// already taken.
var ErrDuplicateCollectionName = errors.New("signaldb: collection name already registered")

// Runtime is the id-index of named collections a host embeds SignalDB
// with, plus the couple of process-wide knobs that don't belong on any
// one Collection: whether cursors default to per-field reactive tracking,
// and the nesting depth of an in-progress Runtime.Batch call. The
// package-level DefaultRuntime covers the common single-tenant case;
// multi-tenant hosts construct their own with NewRuntime and pass it to
// NewNamed/NewNamedAsync explicitly.
type Runtime struct {
	mu                   sync.Mutex
	collections          map[string]any
	defaultFieldTracking bool
	batchDepth           int
}

// RuntimeOption configures a Runtime at construction.
type RuntimeOption func(*Runtime)

// WithDefaultFieldTracking sets the runtime's field-tracking flag, read
// back through DefaultFieldTracking. Cursor does not consult it.
func WithDefaultFieldTracking(enabled bool) RuntimeOption {
	return func(rt *Runtime) { rt.defaultFieldTracking = enabled }
}

// NewRuntime builds an empty Runtime.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{collections: map[string]any{}}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// DefaultRuntime is a ready-made Runtime for single-tenant hosts.
// New/NewAsyncCollection/NewAutoFetchCollection register into no Runtime;
// a collection is registered only by the Runtime-scoped constructors
// below, into the Runtime passed to them.
var DefaultRuntime = NewRuntime()

// DefaultFieldTracking reports this runtime's field-tracking flag. Cursor
// does not read it; a host can use it to choose between Fetch and
// FetchTracked.
func (rt *Runtime) DefaultFieldTracking() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.defaultFieldTracking
}

// Register adds coll to the runtime's id-index under name. It is called
// by the Runtime-scoped constructors (NewNamed, NewNamedAsync,
// NewNamedAutoFetch); direct callers only need it when wiring an
// already-constructed collection into a second runtime.
func (rt *Runtime) Register(name string, coll any) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, exists := rt.collections[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCollectionName, name)
	}
	rt.collections[name] = coll
	return nil
}

// Lookup returns the collection registered under name, if any. The
// result is one of *Collection, *AsyncCollection or *AutoFetchCollection;
// callers type-assert to the shape they expect.
func (rt *Runtime) Lookup(name string) (any, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	coll, ok := rt.collections[name]
	return coll, ok
}

// Forget removes name from the runtime's id-index without touching the
// collection itself; useful when a host tears down a tenant's
// collections but wants to reuse the name.
func (rt *Runtime) Forget(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.collections, name)
}

// Names returns every currently registered collection name.
func (rt *Runtime) Names() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	names := make([]string, 0, len(rt.collections))
	for name := range rt.collections {
		names = append(names, name)
	}
	return names
}

// Batch runs fn with every registered *Collection's own Batch nested
// around it, so a mutation touching several named collections coalesces
// each collection's probe notifications into one flush per collection
// instead of one per mutation, the same guarantee Collection.Batch gives
// a single collection. AsyncCollection/AutoFetchCollection have no probe
// registry to coalesce and are left untouched.
func (rt *Runtime) Batch(fn func() error) error {
	rt.mu.Lock()
	rt.batchDepth++
	colls := make([]*Collection, 0, len(rt.collections))
	for _, c := range rt.collections {
		if coll, ok := c.(*Collection); ok {
			colls = append(colls, coll)
		}
	}
	rt.mu.Unlock()

	defer func() {
		rt.mu.Lock()
		rt.batchDepth--
		rt.mu.Unlock()
	}()

	return nestBatch(colls, fn)
}

// NewNamed builds a Collection exactly like New, then registers it on rt
// under name so later calls can find it with rt.Lookup(name).
func NewNamed(rt *Runtime, name string, opts ...config.Option) (*Collection, error) {
	coll := New(opts...)
	if err := rt.Register(name, coll); err != nil {
		return nil, err
	}
	return coll, nil
}

// NewNamedAsync builds an AsyncCollection exactly like NewAsyncCollection,
// then registers it on rt under name.
func NewNamedAsync(rt *Runtime, name string, adapter storage.Adapter, opts ...config.Option) (*AsyncCollection, error) {
	coll := NewAsyncCollection(adapter, opts...)
	if err := rt.Register(name, coll); err != nil {
		return nil, err
	}
	return coll, nil
}

// NewNamedAutoFetch builds an AutoFetchCollection exactly like
// NewAutoFetchCollection, then registers it on rt under name.
func NewNamedAutoFetch(rt *Runtime, name string, adapter storage.Adapter, fetch Fetcher, opts []config.Option, autoOpts ...AutoFetchOption) (*AutoFetchCollection, error) {
	coll := NewAutoFetchCollection(adapter, fetch, opts, autoOpts...)
	if err := rt.Register(name, coll); err != nil {
		return nil, err
	}
	return coll, nil
}

func nestBatch(colls []*Collection, fn func() error) error {
	if len(colls) == 0 {
		return fn()
	}
	var err error
	if batchErr := colls[0].Batch(func() error {
		err = nestBatch(colls[1:], fn)
		return err
	}); batchErr != nil && err == nil {
		err = batchErr
	}
	return err
}
