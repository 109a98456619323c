package signaldb

import (
	"context"
	"sync"
	"time"

	"github.com/signaldb-go/signaldb/config"
	"github.com/signaldb-go/signaldb/selector"
	"github.com/signaldb-go/signaldb/storage"
)

// Fetcher retrieves documents for sel from a remote source beyond the
// configured storage.Adapter, used by AutoFetchCollection to hydrate a
// selector's results on first observation.
type Fetcher func(ctx context.Context, sel *selector.Selector) ([]map[string]any, error)

// MergeFunc resolves a conflict between a document already in storage
// and one an auto-fetch just retrieved for the same id, returning the
// document that should be written back.
type MergeFunc func(existing, incoming map[string]any) map[string]any

func defaultMerge(existing, incoming map[string]any) map[string]any { return incoming }

// AutoFetchCollection adds per-selector reference counting and delayed
// purge on top of AsyncCollection, per spec.md §4.8's "Auto-fetch
// variant": the first observer of a selector triggers a remote fetch,
// the last one scheduling a delayed purge of whatever that selector
// alone caused to be loaded. Grounded on the teacher's
// hot_data_watcher.go TTL/eviction-timer pattern, generalized from
// cache-entry expiry to auto-loaded-document purge.
type AutoFetchCollection struct {
	*AsyncCollection

	fetch      Fetcher
	merge      MergeFunc
	purgeDelay time.Duration

	mu          sync.Mutex
	refCounts   map[string]int
	loadedByKey map[string]map[string]struct{}
	idRefs      map[string]int
	autoLoaded  map[string]struct{}
	purgeTimers map[string]*time.Timer
}

// AutoFetchOption configures NewAutoFetchCollection.
type AutoFetchOption func(*AutoFetchCollection)

// WithMerge overrides the default "incoming wins" merge policy used when
// an auto-fetched document collides with one already in storage.
func WithMerge(fn MergeFunc) AutoFetchOption {
	return func(c *AutoFetchCollection) { c.merge = fn }
}

// WithPurgeDelay sets how long an unreferenced selector's auto-loaded
// documents wait before being purged. Zero purges immediately.
func WithPurgeDelay(d time.Duration) AutoFetchOption {
	return func(c *AutoFetchCollection) { c.purgeDelay = d }
}

// NewAutoFetchCollection builds an AutoFetchCollection over adapter,
// using fetch to hydrate selectors on first observation.
func NewAutoFetchCollection(adapter storage.Adapter, fetch Fetcher, opts []config.Option, autoOpts ...AutoFetchOption) *AutoFetchCollection {
	c := &AutoFetchCollection{
		AsyncCollection: NewAsyncCollection(adapter, opts...),
		fetch:           fetch,
		merge:           defaultMerge,
		refCounts:       map[string]int{},
		loadedByKey:     map[string]map[string]struct{}{},
		idRefs:          map[string]int{},
		autoLoaded:      map[string]struct{}{},
		purgeTimers:     map[string]*time.Timer{},
	}
	for _, opt := range autoOpts {
		opt(c)
	}
	return c
}

// RegisterQuery increments sel's reference count and, on a 0->1
// transition, fetches it remotely, upserting (merging) the results into
// storage and tracking them as auto-loaded. Always registers (or
// reuses) the underlying AsyncCollection query and returns its record.
func (c *AutoFetchCollection) RegisterQuery(ctx context.Context, sel *selector.Selector, opts FindOptions) (*QueryRecord, error) {
	key := queryKey(sel, opts)

	c.mu.Lock()
	if timer, ok := c.purgeTimers[key]; ok {
		timer.Stop()
		delete(c.purgeTimers, key)
	}
	c.refCounts[key]++
	first := c.refCounts[key] == 1
	c.mu.Unlock()

	if first && c.fetch != nil {
		if err := c.hydrate(ctx, key, sel); err != nil {
			return nil, err
		}
	}
	return c.AsyncCollection.Find(ctx, sel, opts)
}

func (c *AutoFetchCollection) hydrate(ctx context.Context, key string, sel *selector.Selector) error {
	remote, err := c.fetch(ctx, sel)
	if err != nil {
		return err
	}

	loaded := map[string]struct{}{}
	for _, doc := range remote {
		id, _ := doc[c.opts.PrimaryKey].(string)
		if id == "" {
			continue
		}
		existing, err := c.adapter.ReadIDs(ctx, []string{id})
		if err != nil {
			return err
		}
		merged := doc
		if len(existing) > 0 {
			merged = c.merge(existing[0], doc)
		}
		merged[c.opts.PrimaryKey] = id
		if len(existing) > 0 {
			if err := c.adapter.Replace(ctx, id, merged); err != nil {
				return err
			}
			c.events.Emit(Event{Kind: EventChanged, Item: merged})
		} else {
			if err := c.adapter.Insert(ctx, merged); err != nil {
				return err
			}
			c.events.Emit(Event{Kind: EventAdded, Item: merged})
		}
		loaded[id] = struct{}{}

		c.mu.Lock()
		c.autoLoaded[id] = struct{}{}
		c.idRefs[id]++
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.loadedByKey[key] = loaded
	c.mu.Unlock()

	c.checkQueryUpdates(ctx, remote)
	return nil
}

// UnregisterQuery decrements sel's reference count and, on a 1->0
// transition, schedules a purge of the documents this selector alone
// caused to be auto-loaded, after c.purgeDelay (immediately if zero).
func (c *AutoFetchCollection) UnregisterQuery(sel *selector.Selector, opts FindOptions) {
	key := queryKey(sel, opts)

	c.mu.Lock()
	c.refCounts[key]--
	shouldPurge := c.refCounts[key] <= 0
	if shouldPurge {
		delete(c.refCounts, key)
	}
	c.mu.Unlock()

	if !shouldPurge {
		return
	}

	if c.purgeDelay <= 0 {
		c.purge(context.Background(), key)
		return
	}

	c.mu.Lock()
	c.purgeTimers[key] = time.AfterFunc(c.purgeDelay, func() { c.purge(context.Background(), key) })
	c.mu.Unlock()
}

// purge removes every id that key alone was keeping auto-loaded, once
// its reference count reaches zero. CRUD-inserted items are never
// auto-loaded, so they're never touched here even if they also satisfy
// key's selector.
func (c *AutoFetchCollection) purge(ctx context.Context, key string) {
	c.mu.Lock()
	ids := c.loadedByKey[key]
	delete(c.loadedByKey, key)
	delete(c.purgeTimers, key)
	var toRemove []string
	for id := range ids {
		c.idRefs[id]--
		if c.idRefs[id] <= 0 {
			if _, auto := c.autoLoaded[id]; auto {
				toRemove = append(toRemove, id)
				delete(c.autoLoaded, id)
			}
			delete(c.idRefs, id)
		}
	}
	c.mu.Unlock()

	for _, id := range toRemove {
		if err := c.adapter.Remove(ctx, id); err != nil {
			continue
		}
		removed := map[string]any{c.opts.PrimaryKey: id}
		c.events.Emit(Event{Kind: EventRemoved, Item: removed})
		c.checkQueryUpdates(ctx, []map[string]any{removed})
	}
}

// RegisterRemoteChange returns a function the host calls whenever the
// remote source changes out-of-band; calling it re-executes every
// currently registered query.
func (c *AutoFetchCollection) RegisterRemoteChange() func(ctx context.Context) {
	return func(ctx context.Context) {
		c.mu.Lock()
		keys := make([]string, 0, len(c.refCounts))
		for k := range c.refCounts {
			keys = append(keys, k)
		}
		c.mu.Unlock()

		c.AsyncCollection.mu.Lock()
		records := make([]*QueryRecord, 0, len(keys))
		for _, k := range keys {
			if rec, ok := c.AsyncCollection.queries[k]; ok {
				records = append(records, rec)
			}
		}
		c.AsyncCollection.mu.Unlock()

		for _, rec := range records {
			c.AsyncCollection.runQuery(ctx, rec)
		}
	}
}
