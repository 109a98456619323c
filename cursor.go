package signaldb

import (
	"sync"

	"github.com/signaldb-go/signaldb/observe"
	"github.com/signaldb-go/signaldb/reactivity"
	"github.com/signaldb-go/signaldb/selector"
	"github.com/signaldb-go/signaldb/valueutil"
)

// Cursor is a lazy, re-runnable query: no work happens until Fetch,
// ForEach, Map, Count, or ObserveChanges materializes it. Fetched inside
// a reactive computation (per the collection's config.CollectionOptions
// Reactivity adapter), it subscribes the caller to future writes that
// would change its result.
type Cursor struct {
	coll *Collection
	sel  *selector.Selector
	opts FindOptions

	mu           sync.Mutex
	probe        *probe
	fieldTracked bool
	fieldSignals map[string]reactivity.Signal
}

// Fetch runs the query and returns its (sorted, skipped, limited,
// projected, transformed) result. Called inside a reactive computation,
// it registers exactly one dependency on this cursor's match set, torn
// down automatically when the computation is disposed.
func (c *Cursor) Fetch() ([]map[string]any, error) {
	c.depend()

	items, err := c.fetchRaw()
	if err != nil {
		return nil, err
	}
	return c.pipeline(items), nil
}

// fetchRaw runs sel against the collection with no reactive side effects
// and no post-processing, used both by Fetch and by ObserveChanges'
// refresh path (which must not create a second subscription).
func (c *Cursor) fetchRaw() ([]map[string]any, error) {
	c.coll.mu.Lock()
	defer c.coll.mu.Unlock()
	return c.coll.matchingItemsLocked(c.sel)
}

func (c *Cursor) pipeline(items []map[string]any) []map[string]any {
	out := make([]map[string]any, len(items))
	copy(out, items)

	if len(c.opts.Sort) > 0 {
		cloned := make([]map[string]any, len(out))
		for i, it := range out {
			cloned[i] = valueutil.CloneItem(it)
		}
		out = cloned
		valueutil.SortItems(out, c.opts.Sort)
	}

	if c.opts.Skip > 0 {
		if c.opts.Skip >= len(out) {
			out = nil
		} else {
			out = out[c.opts.Skip:]
		}
	}
	if c.opts.Limit > 0 && len(out) > c.opts.Limit {
		out = out[:c.opts.Limit]
	}

	if c.opts.TransformAll != nil {
		out = c.opts.TransformAll(out)
	}

	final := make([]map[string]any, len(out))
	for i, item := range out {
		projected := item
		if len(c.opts.Fields) > 0 {
			projected = valueutil.Project(item, c.opts.Fields)
		} else {
			projected = valueutil.CloneItem(item)
		}
		if c.opts.Transform != nil {
			projected = c.opts.Transform(projected)
		}
		final[i] = projected
	}
	return final
}

// depend registers this cursor's reactive dependency, a no-op outside a
// reactive computation (IsInScope false) and a no-op in field-tracking
// mode, where dependencies are created lazily per field by FieldAccessor
// instead of once for the whole document set.
func (c *Cursor) depend() {
	adapter := c.coll.opts.Reactivity
	if adapter == nil || !adapter.IsInScope() {
		return
	}
	if c.opts.FieldTracking {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probe == nil {
		sig := adapter.Create()
		c.probe = &probe{sel: c.sel, signal: sig}
		c.coll.registerProbe(c.probe)
		adapter.OnDispose(func() { c.coll.unregisterProbe(c.probe) }, sig)
	} else {
		// A cursor that later calls Fetch needs the full-document wakeups
		// dependCount settled for; widen a count-only probe rather than
		// leave Fetch silently missing EventChanged notifications.
		c.probe.countOnly = false
	}
	c.probe.signal.Depend()
}

// FieldAccessor wraps one fetched item in field-tracking mode: Get lazily
// creates a per-field reactive signal on first access from within a
// computation, so the caller is only invalidated by writes to fields it
// actually read.
type FieldAccessor struct {
	item   map[string]any
	cursor *Cursor
}

// FetchTracked is Fetch's field-tracking counterpart: it requires
// FindOptions.FieldTracking and returns FieldAccessor wrappers instead of
// plain maps.
func (c *Cursor) FetchTracked() ([]FieldAccessor, error) {
	items, err := c.fetchRaw()
	if err != nil {
		return nil, err
	}
	plain := c.pipeline(items)

	c.mu.Lock()
	if !c.fieldTracked {
		c.fieldTracked = true
		c.fieldSignals = map[string]reactivity.Signal{}
		c.coll.registerFieldCursor(c)
		adapter := c.coll.opts.Reactivity
		if adapter != nil {
			adapter.OnDispose(func() { c.coll.unregisterFieldCursor(c) }, nil)
		}
	}
	c.mu.Unlock()

	out := make([]FieldAccessor, len(plain))
	for i, item := range plain {
		out[i] = FieldAccessor{item: item, cursor: c}
	}
	return out, nil
}

// Get returns item's value at field, and, inside a reactive computation,
// subscribes the caller to future changes of that field on items this
// cursor's selector matches.
func (f FieldAccessor) Get(field string) any {
	adapter := f.cursor.coll.opts.Reactivity
	if adapter != nil && adapter.IsInScope() {
		f.cursor.mu.Lock()
		sig, ok := f.cursor.fieldSignals[field]
		if !ok {
			sig = adapter.Create()
			f.cursor.fieldSignals[field] = sig
		}
		f.cursor.mu.Unlock()
		sig.Depend()
	}
	v, _ := valueutil.Get(f.item, field)
	return v
}

// Item returns the accessor's underlying document without tracking any
// dependency, for callers that need the whole item (e.g. to marshal it)
// rather than one field.
func (f FieldAccessor) Item() map[string]any { return f.item }

// notifyFields wakes every per-field signal this cursor has created for
// a field present in changed.
func (c *Cursor) notifyFields(changed map[string]struct{}) {
	c.mu.Lock()
	var toNotify []reactivity.Signal
	for field := range changed {
		if sig, ok := c.fieldSignals[field]; ok {
			toNotify = append(toNotify, sig)
		}
	}
	c.mu.Unlock()
	for _, sig := range toNotify {
		sig.Notify()
	}
}

// ForEach runs fn over each item in the cursor's result, stopping at the
// first error fn returns.
func (c *Cursor) ForEach(fn func(item map[string]any) error) error {
	items, err := c.Fetch()
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

// Map runs fn over each item in the cursor's result and returns the
// collected outputs.
func (c *Cursor) Map(fn func(item map[string]any) any) ([]any, error) {
	items, err := c.Fetch()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out, nil
}

// Count returns the number of items the cursor's selector matches, after
// Skip/Limit are applied, without requiring the caller to allocate the
// materialized item slice itself. Inside a reactive computation it
// depends only on items entering or leaving the match set (added/removed),
// not on in-place document changes, per spec.md §4.6.
func (c *Cursor) Count() (int, error) {
	c.dependCount()

	items, err := c.fetchRaw()
	if err != nil {
		return 0, err
	}
	return len(c.pipeline(items)), nil
}

// dependCount is Count's narrower counterpart to depend: it registers the
// same kind of probe, but flagged countOnly so notifyMatching skips it on
// EventChanged.
func (c *Cursor) dependCount() {
	adapter := c.coll.opts.Reactivity
	if adapter == nil || !adapter.IsInScope() {
		return
	}
	if c.opts.FieldTracking {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probe == nil {
		sig := adapter.Create()
		c.probe = &probe{sel: c.sel, signal: sig, countOnly: true}
		c.coll.registerProbe(c.probe)
		adapter.OnDispose(func() { c.coll.unregisterProbe(c.probe) }, sig)
	}
	c.probe.signal.Depend()
}

// Cleanup tears down this cursor's reactive subscriptions. Idempotent;
// safe to call even if Fetch/FetchTracked was never invoked.
func (c *Cursor) Cleanup() {
	c.mu.Lock()
	p := c.probe
	c.probe = nil
	tracked := c.fieldTracked
	c.fieldTracked = false
	c.fieldSignals = nil
	c.mu.Unlock()

	if p != nil {
		c.coll.unregisterProbe(p)
	}
	if tracked {
		c.coll.unregisterFieldCursor(c)
	}
}

// ChangeObserver streams ordered added/removed/changed/moved events for
// one cursor's live result set, independent of any reactive framework —
// built for hosts (e.g. a websocket transmitter) that want an event
// stream rather than Fetch-and-diff-yourself polling.
type ChangeObserver struct {
	cursor       *Cursor
	obs          *observe.Observer
	unsubscribes []func()
}

// ObserveChanges seeds an Observer with the cursor's current result and
// wires it to re-diff on every subsequent collection mutation. The
// returned ChangeObserver must be Stopped when no longer needed.
func (c *Cursor) ObserveChanges() (*ChangeObserver, error) {
	items, err := c.fetchRaw()
	if err != nil {
		return nil, err
	}

	obs := observe.New()
	obs.Seed(c.pipeline(items))

	co := &ChangeObserver{cursor: c, obs: obs}
	refresh := func(Event) {
		latest, err := c.fetchRaw()
		if err != nil {
			return
		}
		obs.Update(c.pipeline(latest))
	}
	co.unsubscribes = append(co.unsubscribes,
		c.coll.On(EventAdded, refresh),
		c.coll.On(EventChanged, refresh),
		c.coll.On(EventRemoved, refresh),
	)
	return co, nil
}

// OnAdded registers fn for items entering the result set, replaying one
// Added event per item already present unless skipInitial is true.
func (o *ChangeObserver) OnAdded(fn func(ev observe.Event), skipInitial bool) func() {
	return o.obs.AddListener(observe.Added, fn, observe.ListenOptions{SkipInitial: skipInitial})
}

// OnRemoved registers fn for items leaving the result set.
func (o *ChangeObserver) OnRemoved(fn func(ev observe.Event)) func() {
	return o.obs.AddListener(observe.Removed, fn, observe.ListenOptions{})
}

// OnChanged registers fn for items whose document changed in place.
func (o *ChangeObserver) OnChanged(fn func(ev observe.Event)) func() {
	return o.obs.AddListener(observe.Changed, fn, observe.ListenOptions{})
}

// OnChangedField registers fn for individual field changes within items
// already in the result set.
func (o *ChangeObserver) OnChangedField(fn func(ev observe.Event)) func() {
	return o.obs.AddListener(observe.ChangedField, fn, observe.ListenOptions{})
}

// OnMovedBefore registers fn for items whose ordinal position changed.
func (o *ChangeObserver) OnMovedBefore(fn func(ev observe.Event)) func() {
	return o.obs.AddListener(observe.MovedBefore, fn, observe.ListenOptions{})
}

// Stop unsubscribes from the underlying collection's events.
func (o *ChangeObserver) Stop() {
	for _, unsub := range o.unsubscribes {
		unsub()
	}
}
