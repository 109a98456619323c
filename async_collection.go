package signaldb

import (
	"context"
	"fmt"
	"sync"

	"github.com/signaldb-go/signaldb/config"
	"github.com/signaldb-go/signaldb/index"
	"github.com/signaldb-go/signaldb/sderrors"
	"github.com/signaldb-go/signaldb/selector"
	"github.com/signaldb-go/signaldb/storage"
	"github.com/signaldb-go/signaldb/valueutil"
)

// QueryState is a QueryRecord's position in spec.md §4.8's state machine:
// active (running or re-running), complete (result current), or error
// (last execution failed; Err holds the cause).
type QueryState int

const (
	QueryActive QueryState = iota
	QueryComplete
	QueryError
)

func (s QueryState) String() string {
	switch s {
	case QueryActive:
		return "active"
	case QueryComplete:
		return "complete"
	case QueryError:
		return "error"
	default:
		return "unknown"
	}
}

// QueryRecord is one registered (selector, FindOptions) query against an
// AsyncCollection: its State/Items/Err reflect the last execution, and
// checkQueryUpdates re-executes it whenever a mutation touches a
// matching item.
type QueryRecord struct {
	sel  *selector.Selector
	opts FindOptions

	mu    sync.Mutex
	state QueryState
	err   error
	items []map[string]any
}

// Snapshot returns the record's current state, items and error together,
// so a caller never observes a torn read across the three.
func (r *QueryRecord) Snapshot() (QueryState, []map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.items, r.err
}

// AsyncCollection mirrors Collection's CRUD surface over a
// storage.Adapter instead of an in-process map, per spec.md §4.8: every
// query is registered in a per-selector QueryRecord that transitions
// active -> complete|error and re-executes whenever a mutation touches
// it, grounded on the teacher's nodestorage/v2.StorageImpl (CRUD through
// a driver) generalized from one versioned document type to arbitrary
// selector-matched documents.
type AsyncCollection struct {
	adapter storage.Adapter
	opts    config.CollectionOptions
	events  *eventBus

	mu      sync.Mutex
	queries map[string]*QueryRecord
}

// NewAsyncCollection builds an AsyncCollection over adapter. Call Setup
// before issuing any CRUD or Find call.
func NewAsyncCollection(adapter storage.Adapter, opts ...config.Option) *AsyncCollection {
	return &AsyncCollection{
		adapter: adapter,
		opts:    config.Apply(opts...),
		events:  newEventBus(),
		queries: map[string]*QueryRecord{},
	}
}

// Setup prepares the backend for use.
func (c *AsyncCollection) Setup(ctx context.Context) error { return c.adapter.Setup(ctx) }

// Teardown releases backend resources.
func (c *AsyncCollection) Teardown(ctx context.Context) error { return c.adapter.Teardown(ctx) }

// CreateIndex asks the backend to maintain an index on field. Must be
// called before Setup; see storage.Adapter.CreateIndex.
func (c *AsyncCollection) CreateIndex(ctx context.Context, field string, unique bool) error {
	return c.adapter.CreateIndex(ctx, storage.IndexSpec{Field: field, Unique: unique})
}

// On registers fn for this collection's added/changed/removed events.
func (c *AsyncCollection) On(kind EventKind, fn ListenerFunc) func() {
	return c.events.On(kind, fn)
}

// Insert stores item, generating its id if absent, and re-executes every
// registered query item's selector matches.
func (c *AsyncCollection) Insert(ctx context.Context, item map[string]any) (string, error) {
	cloned := valueutil.CloneItem(item)
	if cloned == nil {
		cloned = map[string]any{}
	}
	if c.opts.Transform != nil {
		cloned = c.opts.Transform(cloned)
	}
	id, ok := cloned[c.opts.PrimaryKey].(string)
	if !ok || id == "" {
		id = c.opts.IDGenerator.Generate()
		cloned[c.opts.PrimaryKey] = id
	}
	if err := c.adapter.Insert(ctx, cloned); err != nil {
		return "", sderrors.NewStorageError("Insert", err)
	}
	c.events.Emit(Event{Kind: EventAdded, Item: cloned})
	c.checkQueryUpdates(ctx, []map[string]any{cloned})
	return id, nil
}

// Replace overwrites the document at id with item.
func (c *AsyncCollection) Replace(ctx context.Context, id string, item map[string]any) error {
	cloned := valueutil.CloneItem(item)
	if cloned == nil {
		cloned = map[string]any{}
	}
	if c.opts.Transform != nil {
		cloned = c.opts.Transform(cloned)
	}
	cloned[c.opts.PrimaryKey] = id
	if err := c.adapter.Replace(ctx, id, cloned); err != nil {
		return sderrors.NewStorageError("Replace", err)
	}
	c.events.Emit(Event{Kind: EventChanged, Item: cloned})
	c.checkQueryUpdates(ctx, []map[string]any{cloned})
	return nil
}

// Remove deletes the document at id.
func (c *AsyncCollection) Remove(ctx context.Context, id string) error {
	if err := c.adapter.Remove(ctx, id); err != nil {
		return sderrors.NewStorageError("Remove", err)
	}
	removed := map[string]any{c.opts.PrimaryKey: id}
	c.events.Emit(Event{Kind: EventRemoved, Item: removed})
	c.checkQueryUpdates(ctx, []map[string]any{removed})
	return nil
}

// Find registers (or reuses) a QueryRecord for (sel, opts), executing it
// synchronously the first time or whenever it isn't already Complete,
// and returns the record. The caller reads the result via
// QueryRecord.Snapshot at any later point without re-executing.
func (c *AsyncCollection) Find(ctx context.Context, sel *selector.Selector, opts FindOptions) (*QueryRecord, error) {
	key := queryKey(sel, opts)

	c.mu.Lock()
	rec, exists := c.queries[key]
	if !exists {
		rec = &QueryRecord{sel: sel, opts: opts, state: QueryActive}
		c.queries[key] = rec
	}
	c.mu.Unlock()

	if state, _, _ := rec.Snapshot(); state == QueryComplete {
		return rec, nil
	}
	c.runQuery(ctx, rec)
	if _, _, err := rec.Snapshot(); err != nil {
		return rec, err
	}
	return rec, nil
}

func (c *AsyncCollection) runQuery(ctx context.Context, rec *QueryRecord) {
	rec.mu.Lock()
	rec.state = QueryActive
	sel, opts := rec.sel, rec.opts
	rec.mu.Unlock()

	items, err := c.execute(ctx, sel, opts)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err != nil {
		rec.state = QueryError
		rec.err = err
		return
	}
	rec.items = items
	rec.state = QueryComplete
	rec.err = nil
}

func (c *AsyncCollection) execute(ctx context.Context, sel *selector.Selector, opts FindOptions) ([]map[string]any, error) {
	if selector.IsEmpty(sel) {
		all, err := c.adapter.ReadAll(ctx)
		if err != nil {
			return nil, sderrors.NewStorageError("ReadAll", err)
		}
		return c.finish(all, opts), nil
	}

	if items, handled, err := c.planAndFetch(ctx, sel); handled {
		if err != nil {
			return nil, err
		}
		return c.finish(items, opts), nil
	}

	all, err := c.adapter.ReadAll(ctx)
	if err != nil {
		return nil, sderrors.NewStorageError("ReadAll", err)
	}
	var items []map[string]any
	for _, it := range all {
		if selector.Match(it, sel) {
			items = append(items, it)
		}
	}
	return c.finish(items, opts), nil
}

// planAndFetch tries an index-assisted plan using AsyncProvider (reading
// candidate id sets through storage.Adapter.ReadIndex); handled is false
// when the planner had no opinion, telling execute to fall back to a
// full ReadAll scan.
func (c *AsyncCollection) planAndFetch(ctx context.Context, sel *selector.Selector) (items []map[string]any, handled bool, err error) {
	fields := map[string]struct{}{}
	collectFields(sel, fields)
	if len(fields) == 0 {
		return nil, false, nil
	}

	providers := make([]index.Provider, 0, len(fields))
	for field := range fields {
		providers = append(providers, index.NewAsyncProvider(ctx, field, c.adapter))
	}
	planner, perr := index.NewPlanner(providers...)
	if perr != nil {
		return nil, false, nil
	}
	plan, perr := planner.Plan(sel, func() index.IDSet {
		all, _ := c.adapter.ReadAll(ctx)
		ids := make([]string, 0, len(all))
		for _, it := range all {
			if id, ok := it[c.opts.PrimaryKey].(string); ok {
				ids = append(ids, id)
			}
		}
		return index.NewIDSet(ids...)
	})
	if perr != nil || !plan.Matched {
		return nil, false, nil
	}

	fetched, ferr := c.adapter.ReadIDs(ctx, plan.IDs.Slice())
	if ferr != nil {
		return nil, true, sderrors.NewStorageError("ReadIDs", ferr)
	}
	for _, it := range fetched {
		if selector.Match(it, plan.Residual) {
			items = append(items, it)
		}
	}
	return items, true, nil
}

func (c *AsyncCollection) finish(items []map[string]any, opts FindOptions) []map[string]any {
	work := make([]map[string]any, len(items))
	copy(work, items)

	if len(opts.Sort) > 0 {
		cloned := make([]map[string]any, len(work))
		for i, it := range work {
			cloned[i] = valueutil.CloneItem(it)
		}
		work = cloned
		valueutil.SortItems(work, opts.Sort)
	}
	if opts.Skip > 0 {
		if opts.Skip >= len(work) {
			work = nil
		} else {
			work = work[opts.Skip:]
		}
	}
	if opts.Limit > 0 && len(work) > opts.Limit {
		work = work[:opts.Limit]
	}
	if opts.TransformAll != nil {
		work = opts.TransformAll(work)
	}

	out := make([]map[string]any, len(work))
	for i, it := range work {
		projected := it
		if len(opts.Fields) > 0 {
			projected = valueutil.Project(it, opts.Fields)
		} else {
			projected = valueutil.CloneItem(it)
		}
		if opts.Transform != nil {
			projected = opts.Transform(projected)
		}
		out[i] = projected
	}
	return out
}

// checkQueryUpdates re-executes every registered query whose selector
// matches at least one of changedItems, per spec.md §4.8's "on mutation
// touching selector -> active -> complete|error" transition.
func (c *AsyncCollection) checkQueryUpdates(ctx context.Context, changedItems []map[string]any) {
	c.mu.Lock()
	records := make([]*QueryRecord, 0, len(c.queries))
	for _, rec := range c.queries {
		records = append(records, rec)
	}
	c.mu.Unlock()

	for _, rec := range records {
		for _, item := range changedItems {
			if selector.IsEmpty(rec.sel) || selector.Match(item, rec.sel) {
				c.runQuery(ctx, rec)
				break
			}
		}
	}
}

// queryKey derives a registry key for (sel, opts). Two Find calls with
// structurally identical selectors and options land on the same
// QueryRecord; a FindOptions carrying a Transform/TransformAll func
// value is keyed by that func's pointer, so two logically-identical
// closures built separately register distinct records — acceptable,
// since the common case passes the same FindOptions value or leaves
// those fields nil.
func queryKey(sel *selector.Selector, opts FindOptions) string {
	return fmt.Sprintf("%#v|%#v", sel, opts)
}

func collectFields(sel *selector.Selector, out map[string]struct{}) {
	if sel == nil {
		return
	}
	for field := range sel.Flat {
		out[field] = struct{}{}
	}
	for _, child := range sel.And {
		collectFields(child, out)
	}
	for _, child := range sel.Or {
		collectFields(child, out)
	}
}
