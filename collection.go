// Package signaldb is SignalDB's synchronous in-memory collection core:
// CRUD, indexes, live queries via Cursor, and the reactive/persistence
// glue that binds them together. It plays the role the teacher's
// nodestorage/v2.StorageImpl plays for one versioned document type,
// generalized to an ordered collection of arbitrary documents with a
// MongoDB-subset query language instead of optimistic-concurrency
// document edits.
package signaldb

import (
	"sync"

	"github.com/signaldb-go/signaldb/config"
	"github.com/signaldb-go/signaldb/index"
	"github.com/signaldb-go/signaldb/modifier"
	"github.com/signaldb-go/signaldb/persistence"
	"github.com/signaldb-go/signaldb/reactivity"
	"github.com/signaldb-go/signaldb/sderrors"
	"github.com/signaldb-go/signaldb/selector"
	"github.com/signaldb-go/signaldb/valueutil"
)

// Collection is an in-memory, indexed, observable document store. The
// zero value is not usable; construct with New.
type Collection struct {
	opts config.CollectionOptions

	mu      sync.Mutex
	items   map[string]map[string]any
	order   []string
	indexes map[string]index.Provider
	disposed bool

	events *eventBus

	probesMu sync.Mutex
	probes   map[*probe]struct{}

	// fieldCursors holds every Cursor currently in field-tracking mode, so
	// a per-field change can be routed to just the signals whose fields
	// were actually read, instead of the whole-document signal every
	// other cursor uses.
	fieldCursors map[*Cursor]struct{}

	batchDepth    int
	batchNotified map[*probe]struct{}

	coordinator      *persistence.Coordinator
	pendingLifecycle []persistence.LifecycleFunc
}

type probe struct {
	sel    *selector.Selector
	signal reactivity.Signal
	// countOnly restricts this probe to EventAdded/EventRemoved, for
	// Cursor.Count's narrower dependency (spec.md §4.6: "count depends on
	// added|removed only").
	countOnly bool
}

// New creates an empty Collection configured by opts.
func New(opts ...config.Option) *Collection {
	return &Collection{
		opts:         config.Apply(opts...),
		items:        map[string]map[string]any{},
		indexes:      map[string]index.Provider{},
		events:       newEventBus(),
		probes:       map[*probe]struct{}{},
		fieldCursors: map[*Cursor]struct{}{},
	}
}

// bitmapMinIDs and bitmapMaxBucketRatio gate the cardinality-based
// representation switch in buildProviderLocked: a bitmap only pays for its
// extra interning overhead once the indexed set is large and the number of
// distinct values stays a small fraction of it (status flags, enum-shaped
// fields), per SPEC_FULL.md §4.4.
const (
	bitmapMinIDs        = 1000
	bitmapMaxBucketRatio = 20
)

// CreateIndex adds a field index, built from the collection's current
// items. The representation (MemoryProvider or, for a large low-cardinality
// field, BitmapProvider) is chosen from the built index's own Stats().
// Re-creating an index on a field that already has one replaces it.
func (c *Collection) CreateIndex(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.orderedItemsLocked()
	c.indexes[field] = c.buildProviderLocked(field, items)
}

func (c *Collection) buildProviderLocked(field string, items []map[string]any) index.Provider {
	mem := index.NewMemoryProvider(field)
	mem.Rebuild(items)
	stats := mem.Stats()
	if stats.IDs >= bitmapMinIDs && stats.Buckets > 0 && stats.Buckets <= stats.IDs/bitmapMaxBucketRatio {
		bm := index.NewBitmapProvider(field)
		bm.Rebuild(items)
		return bm
	}
	return mem
}

// AttachPersistence runs the startup protocol from spec.md §4.9 against
// adapter: register for external changes, load initial state (replacing
// memory wholesale for an {items} payload, or splicing for a {changes}
// payload), then wire every subsequent mutation into adapter.Save.
func (c *Collection) AttachPersistence(adapter persistence.Adapter) error {
	coord := persistence.New(adapter,
		func(p persistence.Payload) { c.applyLoad(p) },
		func(p persistence.Payload) { c.applyLoad(p) },
		nil,
	)
	c.mu.Lock()
	c.coordinator = coord
	pending := c.pendingLifecycle
	c.pendingLifecycle = nil
	c.mu.Unlock()
	for _, fn := range pending {
		if fn != nil {
			coord.OnLifecycle(fn)
		}
	}

	unsubAdd := c.events.On(EventAdded, func(ev Event) {
		c.persistSave(persistence.Changeset{Added: []map[string]any{ev.Item}})
	})
	unsubChg := c.events.On(EventChanged, func(ev Event) {
		c.persistSave(persistence.Changeset{Changed: []map[string]any{ev.Item}})
	})
	unsubRem := c.events.On(EventRemoved, func(ev Event) {
		id, _ := ev.Item[c.opts.PrimaryKey].(string)
		c.persistSave(persistence.Changeset{Removed: []string{id}})
	})
	_, _, _ = unsubAdd, unsubChg, unsubRem

	return coord.Start()
}

// OnPersistence registers fn for the attached coordinator's lifecycle
// stream (persistence.pullStarted, .received, .pullCompleted, .init,
// .transmitted, .pushCompleted, .error, per spec.md §4.9). Since
// AttachPersistence runs its startup protocol synchronously and can emit
// pullStarted/received/pullCompleted/init before returning, callers are
// expected to call OnPersistence first; a registration made before
// AttachPersistence is buffered and wired in ahead of that protocol
// running, so no event is missed.
func (c *Collection) OnPersistence(fn persistence.LifecycleFunc) (unsubscribe func()) {
	c.mu.Lock()
	coord := c.coordinator
	if coord == nil {
		idx := len(c.pendingLifecycle)
		c.pendingLifecycle = append(c.pendingLifecycle, fn)
		c.mu.Unlock()
		return func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if idx < len(c.pendingLifecycle) {
				c.pendingLifecycle[idx] = nil
			}
		}
	}
	c.mu.Unlock()
	return coord.OnLifecycle(fn)
}

func (c *Collection) persistSave(changes persistence.Changeset) {
	if c.coordinator == nil {
		return
	}
	c.mu.Lock()
	current := c.orderedItemsLocked()
	c.mu.Unlock()
	c.coordinator.Save(current, changes)
}

func (c *Collection) applyLoad(p persistence.Payload) {
	c.mu.Lock()
	if p.Items != nil {
		c.items = map[string]map[string]any{}
		c.order = nil
		for _, item := range p.Items {
			next := c.transformLocked(item)
			id, _ := next[c.opts.PrimaryKey].(string)
			c.items[id] = next
			c.order = append(c.order, id)
		}
		c.rebuildIndexesLocked()
	} else if p.Changes != nil {
		for _, item := range p.Changes.Added {
			next := c.transformLocked(item)
			id, _ := next[c.opts.PrimaryKey].(string)
			if _, exists := c.items[id]; !exists {
				c.items[id] = next
				c.order = append(c.order, id)
			}
		}
		for _, item := range p.Changes.Changed {
			next := c.transformLocked(item)
			id, _ := next[c.opts.PrimaryKey].(string)
			if _, exists := c.items[id]; exists {
				c.items[id] = next
			}
		}
		for _, id := range p.Changes.Removed {
			c.removeLocked(id)
		}
		c.rebuildIndexesLocked()
	}
	c.mu.Unlock()
	c.notifyAll()
}

func (c *Collection) transformLocked(item map[string]any) map[string]any {
	cloned := valueutil.CloneItem(item)
	if c.opts.Transform != nil {
		cloned = c.opts.Transform(cloned)
	}
	return cloned
}

func (c *Collection) rebuildIndexesLocked() {
	items := c.orderedItemsLocked()
	for field := range c.indexes {
		c.indexes[field] = c.buildProviderLocked(field, items)
	}
}

// Insert adds item to the collection, generating its id if absent.
func (c *Collection) Insert(item map[string]any) (string, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return "", sderrors.ErrDisposed
	}

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
	if _, exists := c.items[id]; exists {
		c.mu.Unlock()
		return "", sderrors.NewDuplicateIDError(id)
	}

	c.items[id] = cloned
	c.order = append(c.order, id)
	for _, prov := range c.indexes {
		v, _ := valueutil.Get(cloned, prov.Field())
		prov.Insert(id, v)
	}
	c.mu.Unlock()

	c.events.Emit(Event{Kind: EventAdded, Item: cloned})
	c.notifyMatching(cloned, EventAdded)
	c.notifyFieldCursors(cloned, allFieldNames(cloned))
	return id, nil
}

// allFieldNames returns item's top-level keys as a set, used when an
// insert/remove means every field a field-tracking cursor might be
// watching should be treated as touched.
func allFieldNames(item map[string]any) map[string]struct{} {
	out := make(map[string]struct{}, len(item))
	for k := range item {
		out[k] = struct{}{}
	}
	return out
}

// diffFieldNames returns the set of top-level field names that differ
// (by value or presence) between oldItem and newItem.
func diffFieldNames(oldItem, newItem map[string]any) map[string]struct{} {
	out := map[string]struct{}{}
	for k, v := range oldItem {
		nv, ok := newItem[k]
		if !ok || !valueutil.IsEqual(v, nv) {
			out[k] = struct{}{}
		}
	}
	for k, v := range newItem {
		ov, ok := oldItem[k]
		if !ok || !valueutil.IsEqual(v, ov) {
			out[k] = struct{}{}
		}
	}
	return out
}

// InsertMany inserts every item, stopping at the first failure; items
// already inserted remain inserted (spec.md does not require
// insertMany to be atomic, only that it be "a batch of inserts in a
// single batch operation").
func (c *Collection) InsertMany(items []map[string]any) ([]string, error) {
	var ids []string
	err := c.Batch(func() error {
		for _, item := range items {
			id, err := c.Insert(item)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

// FindOne returns the first item matching sel, equivalent to
// Find(sel, opts) with Limit forced to 1.
func (c *Collection) FindOne(sel *selector.Selector, opts FindOptions) (map[string]any, bool) {
	opts.Limit = 1
	items, err := c.Find(sel, opts).Fetch()
	if err != nil || len(items) == 0 {
		return nil, false
	}
	return items[0], true
}

// Find returns a lazy Cursor over sel; no work happens until the cursor
// is materialized via Fetch/ForEach/Map/Count/ObserveChanges.
func (c *Collection) Find(sel *selector.Selector, opts FindOptions) *Cursor {
	return &Cursor{coll: c, sel: sel, opts: opts}
}

// matchingItemsLocked must be called with c.mu held. It returns items
// matching sel in collection order, using the index planner when any
// registered provider can help.
func (c *Collection) matchingItemsLocked(sel *selector.Selector) ([]map[string]any, error) {
	if selector.IsEmpty(sel) {
		return c.orderedItemsLocked(), nil
	}

	providers := make([]index.Provider, 0, len(c.indexes))
	for _, p := range c.indexes {
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return c.scanLocked(sel), nil
	}

	planner, err := index.NewPlanner(providers...)
	if err != nil {
		return nil, err
	}
	plan, err := planner.Plan(sel, func() index.IDSet { return index.NewIDSet(c.order...) })
	if err != nil {
		return nil, err
	}
	if !plan.Matched {
		return c.scanLocked(sel), nil
	}

	out := make([]map[string]any, 0, len(plan.IDs))
	for _, id := range c.order {
		if _, ok := plan.IDs[id]; !ok {
			continue
		}
		item := c.items[id]
		if selector.Match(item, plan.Residual) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (c *Collection) scanLocked(sel *selector.Selector) []map[string]any {
	var out []map[string]any
	for _, id := range c.order {
		item := c.items[id]
		if selector.Match(item, sel) {
			out = append(out, item)
		}
	}
	return out
}

func (c *Collection) orderedItemsLocked() []map[string]any {
	out := make([]map[string]any, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// UpdateOne applies mod to the first item matched by sel, returning 1 if
// an item was updated (or, with Upsert, inserted) and 0 otherwise. A
// no-match is not an error.
func (c *Collection) UpdateOne(sel *selector.Selector, mod modifier.Modifier, opts UpdateOptions) (int, error) {
	return c.update(sel, mod, opts, true)
}

// UpdateMany applies mod to every item matched by sel, returning the
// count updated (or 1, from a single upsert insert, if none matched and
// Upsert is set).
func (c *Collection) UpdateMany(sel *selector.Selector, mod modifier.Modifier, opts UpdateOptions) (int, error) {
	return c.update(sel, mod, opts, false)
}

func (c *Collection) update(sel *selector.Selector, mod modifier.Modifier, opts UpdateOptions, onlyOne bool) (int, error) {
	if mod == nil {
		return 0, sderrors.ErrInvalidModifier
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return 0, sderrors.ErrDisposed
	}

	matches, err := c.matchingItemsLocked(sel)
	if err != nil {
		c.mu.Unlock()
		return 0, err
	}
	if onlyOne && len(matches) > 1 {
		matches = matches[:1]
	}

	if len(matches) == 0 {
		if !opts.Upsert {
			c.mu.Unlock()
			return 0, nil
		}
		base, err := modifier.Apply(map[string]any{}, mod, modifier.Options{IsUpsert: true})
		if err != nil {
			c.mu.Unlock()
			return 0, sderrors.ErrInvalidModifier
		}
		c.mu.Unlock()
		if _, err := c.Insert(base); err != nil {
			return 0, err
		}
		return 1, nil
	}

	type changedPair struct{ old, new map[string]any }
	var changed []changedPair

	for _, old := range matches {
		id, _ := old[c.opts.PrimaryKey].(string)
		next, err := modifier.Apply(old, mod, modifier.Options{})
		if err != nil {
			c.mu.Unlock()
			return 0, sderrors.ErrInvalidModifier
		}
		if c.opts.Transform != nil {
			next = c.opts.Transform(next)
		}
		newID, _ := next[c.opts.PrimaryKey].(string)
		if newID != id {
			if _, exists := c.items[newID]; exists {
				c.mu.Unlock()
				return 0, sderrors.NewDuplicateIDError(newID)
			}
			delete(c.items, id)
			c.items[newID] = next
			for i, oid := range c.order {
				if oid == id {
					c.order[i] = newID
					break
				}
			}
		} else {
			c.items[id] = next
		}
		for _, prov := range c.indexes {
			oldV, _ := valueutil.Get(old, prov.Field())
			newV, _ := valueutil.Get(next, prov.Field())
			prov.Update(newID, oldV, newV)
		}
		changed = append(changed, changedPair{old: old, new: next})
	}
	c.mu.Unlock()

	for _, pair := range changed {
		c.events.Emit(Event{Kind: EventChanged, Item: pair.new, OldItem: pair.old, Modifier: mod})
		c.notifyMatching(pair.old, EventChanged)
		c.notifyMatching(pair.new, EventChanged)
		fields := diffFieldNames(pair.old, pair.new)
		c.notifyFieldCursors(pair.old, fields)
		c.notifyFieldCursors(pair.new, fields)
	}
	return len(changed), nil
}

// ReplaceOne replaces the first item matched by sel with replacement,
// inheriting the matched item's id unless replacement specifies its own.
func (c *Collection) ReplaceOne(sel *selector.Selector, replacement map[string]any, opts UpdateOptions) (int, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return 0, sderrors.ErrDisposed
	}
	matches, err := c.matchingItemsLocked(sel)
	if err != nil {
		c.mu.Unlock()
		return 0, err
	}
	if len(matches) == 0 {
		c.mu.Unlock()
		if !opts.Upsert {
			return 0, nil
		}
		if _, err := c.Insert(replacement); err != nil {
			return 0, err
		}
		return 1, nil
	}

	old := matches[0]
	id, _ := old[c.opts.PrimaryKey].(string)
	next := valueutil.CloneItem(replacement)
	if next == nil {
		next = map[string]any{}
	}
	if c.opts.Transform != nil {
		next = c.opts.Transform(next)
	}
	newID, ok := next[c.opts.PrimaryKey].(string)
	if !ok || newID == "" {
		newID = id
		next[c.opts.PrimaryKey] = id
	}
	if newID != id {
		if _, exists := c.items[newID]; exists {
			c.mu.Unlock()
			return 0, sderrors.NewDuplicateIDError(newID)
		}
		delete(c.items, id)
		for i, oid := range c.order {
			if oid == id {
				c.order[i] = newID
				break
			}
		}
	}
	c.items[newID] = next
	for _, prov := range c.indexes {
		oldV, _ := valueutil.Get(old, prov.Field())
		newV, _ := valueutil.Get(next, prov.Field())
		prov.Update(newID, oldV, newV)
	}
	c.mu.Unlock()

	c.events.Emit(Event{Kind: EventChanged, Item: next, OldItem: old})
	c.notifyMatching(old, EventChanged)
	c.notifyMatching(next, EventChanged)
	fields := diffFieldNames(old, next)
	c.notifyFieldCursors(old, fields)
	c.notifyFieldCursors(next, fields)
	return 1, nil
}

// RemoveOne removes the first item matched by sel.
func (c *Collection) RemoveOne(sel *selector.Selector) (int, error) {
	return c.remove(sel, true)
}

// RemoveMany removes every item matched by sel.
func (c *Collection) RemoveMany(sel *selector.Selector) (int, error) {
	return c.remove(sel, false)
}

func (c *Collection) remove(sel *selector.Selector, onlyOne bool) (int, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return 0, sderrors.ErrDisposed
	}
	matches, err := c.matchingItemsLocked(sel)
	if err != nil {
		c.mu.Unlock()
		return 0, err
	}
	if onlyOne && len(matches) > 1 {
		matches = matches[:1]
	}
	for _, item := range matches {
		id, _ := item[c.opts.PrimaryKey].(string)
		c.removeLocked(id)
	}
	c.mu.Unlock()

	for _, item := range matches {
		c.events.Emit(Event{Kind: EventRemoved, Item: item})
		c.notifyMatching(item, EventRemoved)
		c.notifyFieldCursors(item, allFieldNames(item))
	}
	return len(matches), nil
}

func (c *Collection) removeLocked(id string) {
	item, ok := c.items[id]
	if !ok {
		return
	}
	delete(c.items, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	for _, prov := range c.indexes {
		v, _ := valueutil.Get(item, prov.Field())
		prov.Remove(id, v)
	}
}

// Batch defers cursor-replay coalescing (index rebuilds already happen
// per-mutation here, since MemoryProvider updates are O(1) deltas rather
// than full rebuilds) until fn returns: reactive Notify calls touched by
// mutations inside fn fire at most once per probe, instead of once per
// mutation.
func (c *Collection) Batch(fn func() error) error {
	c.probesMu.Lock()
	c.batchDepth++
	if c.batchDepth == 1 {
		c.batchNotified = map[*probe]struct{}{}
	}
	c.probesMu.Unlock()

	err := fn()

	c.probesMu.Lock()
	c.batchDepth--
	var toNotify []*probe
	if c.batchDepth == 0 {
		for p := range c.batchNotified {
			toNotify = append(toNotify, p)
		}
		c.batchNotified = nil
	}
	c.probesMu.Unlock()

	for _, p := range toNotify {
		p.signal.Notify()
	}
	return err
}

// Dispose releases the collection: subsequent operations fail with
// sderrors.ErrDisposed.
func (c *Collection) Dispose() error {
	c.mu.Lock()
	c.disposed = true
	c.items = map[string]map[string]any{}
	c.order = nil
	c.indexes = map[string]index.Provider{}
	c.mu.Unlock()

	if c.coordinator != nil {
		return c.coordinator.Stop()
	}
	return nil
}

// On registers fn for Collection-level events (added/changed/removed).
func (c *Collection) On(kind EventKind, fn ListenerFunc) (unsubscribe func()) {
	return c.events.On(kind, fn)
}

func (c *Collection) registerProbe(p *probe) {
	c.probesMu.Lock()
	defer c.probesMu.Unlock()
	c.probes[p] = struct{}{}
}

func (c *Collection) unregisterProbe(p *probe) {
	c.probesMu.Lock()
	defer c.probesMu.Unlock()
	delete(c.probes, p)
}

func (c *Collection) registerFieldCursor(cur *Cursor) {
	c.probesMu.Lock()
	defer c.probesMu.Unlock()
	c.fieldCursors[cur] = struct{}{}
}

func (c *Collection) unregisterFieldCursor(cur *Cursor) {
	c.probesMu.Lock()
	defer c.probesMu.Unlock()
	delete(c.fieldCursors, cur)
}

// notifyFieldCursors wakes only the field-level signals of registered
// field-tracking cursors whose selector matches item and whose tracked
// field is in changedFields. A cursor that has not yet read any field
// via its FieldAccessor has no signals to wake, matching Meteor
// Tracker-style lazy field dependencies.
func (c *Collection) notifyFieldCursors(item map[string]any, changedFields map[string]struct{}) {
	c.probesMu.Lock()
	cursors := make([]*Cursor, 0, len(c.fieldCursors))
	for cur := range c.fieldCursors {
		cursors = append(cursors, cur)
	}
	c.probesMu.Unlock()

	for _, cur := range cursors {
		if !selector.IsEmpty(cur.sel) && !selector.Match(item, cur.sel) {
			continue
		}
		cur.notifyFields(changedFields)
	}
}

func (c *Collection) notifyAll() {
	c.probesMu.Lock()
	probes := make([]*probe, 0, len(c.probes))
	for p := range c.probes {
		probes = append(probes, p)
	}
	c.probesMu.Unlock()
	for _, p := range probes {
		p.signal.Notify()
	}
}

// notifyMatching wakes every registered probe whose selector matches item
// and whose event-kind filter accepts kind. A cursor's probe is only
// meaningfully sensitive to items its own query would return, so an
// unrelated mutation never causes a spurious re-fetch; a count-only probe
// additionally ignores EventChanged entirely, per spec.md §4.6.
func (c *Collection) notifyMatching(item map[string]any, kind EventKind) {
	c.probesMu.Lock()
	var toNotify []*probe
	for p := range c.probes {
		if p.countOnly && kind == EventChanged {
			continue
		}
		if selector.IsEmpty(p.sel) || selector.Match(item, p.sel) {
			if c.batchDepth > 0 {
				c.batchNotified[p] = struct{}{}
				continue
			}
			toNotify = append(toNotify, p)
		}
	}
	c.probesMu.Unlock()
	for _, p := range toNotify {
		p.signal.Notify()
	}
}
