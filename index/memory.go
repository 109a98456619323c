package index

import (
	"sync"

	"github.com/signaldb-go/signaldb/valueutil"
)

// MemoryProvider is the synchronous, in-process Provider: a
// serialize(value) -> set(id) map kept current by the delta hooks,
// guarded by an RWMutex so concurrent readers (cursors fetching inside a
// reactive scope) never race a mutator.
type MemoryProvider struct {
	field string
	mu    sync.RWMutex
	// buckets maps a serialized field value (or valueutil.NullKey) to the
	// set of ids currently holding that value.
	buckets map[string]IDSet
}

// NewMemoryProvider creates an empty MemoryProvider for field.
func NewMemoryProvider(field string) *MemoryProvider {
	return &MemoryProvider{field: field, buckets: map[string]IDSet{}}
}

func (p *MemoryProvider) Field() string  { return p.field }
func (p *MemoryProvider) IsAsync() bool  { return false }

// Stats reports the number of distinct bucket values and total indexed ids.
func (p *MemoryProvider) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := 0
	for _, set := range p.buckets {
		ids += len(set)
	}
	return Stats{Buckets: len(p.buckets), IDs: ids}
}

func (p *MemoryProvider) Insert(id string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := valueutil.Serialize(normalizeNil(value))
	p.addLocked(key, id)
}

func (p *MemoryProvider) Remove(id string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := valueutil.Serialize(normalizeNil(value))
	p.removeLocked(key, id)
}

func (p *MemoryProvider) Update(id string, oldValue, newValue any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	oldKey := valueutil.Serialize(normalizeNil(oldValue))
	newKey := valueutil.Serialize(normalizeNil(newValue))
	if oldKey == newKey {
		return
	}
	p.removeLocked(oldKey, id)
	p.addLocked(newKey, id)
}

func (p *MemoryProvider) Rebuild(items []map[string]any) {
	buckets := map[string]IDSet{}
	for _, item := range items {
		id, _ := item["id"].(string)
		v, present := fieldValue(item, p.field)
		key := bucketKey(v, present)
		if buckets[key] == nil {
			buckets[key] = IDSet{}
		}
		buckets[key][id] = struct{}{}
	}
	p.mu.Lock()
	p.buckets = buckets
	p.mu.Unlock()
}

func (p *MemoryProvider) addLocked(key, id string) {
	if p.buckets[key] == nil {
		p.buckets[key] = IDSet{}
	}
	p.buckets[key][id] = struct{}{}
}

func (p *MemoryProvider) removeLocked(key, id string) {
	if set, ok := p.buckets[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(p.buckets, key)
		}
	}
}

// normalizeNil maps a present-but-nil value onto the same bucket as an
// absent field, since valueutil.Serialize(nil) already yields NullKey —
// this helper exists purely for readability at call sites.
func normalizeNil(value any) any { return value }

// Query answers a flat constraint on this field. constraint is either a
// bare scalar (implicit $eq/membership) or an operator map, matching the
// shape selector.Flat stores its values as.
func (p *MemoryProvider) Query(constraint any) Result {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ops, isOps := asOperatorMap(constraint)
	if !isOps {
		return p.queryLocked("$eq", constraint)
	}

	// A flat constraint with several operators on the same field (e.g.
	// {"$gt": 1, "$lt": 10}) only lets the index help when a single
	// recognized operator is present alongside purely-informational
	// siblings like "$options"; mixed range operators fall through to the
	// matcher.
	for op, operand := range ops {
		if op == "$options" {
			continue
		}
		if len(nonOptionKeys(ops)) > 1 {
			return Result{Matched: false}
		}
		return p.queryLocked(op, operand)
	}
	return Result{Matched: false}
}

func nonOptionKeys(ops map[string]any) []string {
	out := make([]string, 0, len(ops))
	for k := range ops {
		if k != "$options" {
			out = append(out, k)
		}
	}
	return out
}

func (p *MemoryProvider) queryLocked(op string, operand any) Result {
	switch op {
	case "$eq":
		if operand == nil {
			return Result{Matched: true, Include: p.bucketOrEmpty(valueutil.NullKey), KeepSelector: true}
		}
		return Result{Matched: true, Include: p.bucketOrEmpty(valueutil.Serialize(operand))}
	case "$in":
		list, ok := operand.([]any)
		if !ok {
			return Result{Matched: false}
		}
		include := IDSet{}
		keepSelector := false
		for _, v := range list {
			if v == nil {
				keepSelector = true
				include = include.Union(p.bucketOrEmpty(valueutil.NullKey))
				continue
			}
			include = include.Union(p.bucketOrEmpty(valueutil.Serialize(v)))
		}
		return Result{Matched: true, Include: include, KeepSelector: keepSelector}
	case "$nin":
		list, ok := operand.([]any)
		if !ok {
			return Result{Matched: false}
		}
		exclude := IDSet{}
		for _, v := range list {
			key := valueutil.NullKey
			if v != nil {
				key = valueutil.Serialize(v)
			}
			exclude = exclude.Union(p.bucketOrEmpty(key))
		}
		return Result{Matched: true, IncludeAll: true, Exclude: exclude}
	case "$ne":
		key := valueutil.NullKey
		if operand != nil {
			key = valueutil.Serialize(operand)
		}
		return Result{Matched: true, IncludeAll: true, Exclude: p.bucketOrEmpty(key)}
	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return Result{Matched: false}
		}
		if want {
			return Result{Matched: true, IncludeAll: true, Exclude: p.bucketOrEmpty(valueutil.NullKey), KeepSelector: true}
		}
		return Result{Matched: true, Include: p.bucketOrEmpty(valueutil.NullKey), KeepSelector: true}
	default:
		return Result{Matched: false}
	}
}

func (p *MemoryProvider) bucketOrEmpty(key string) IDSet {
	if set, ok := p.buckets[key]; ok {
		out := make(IDSet, len(set))
		for id := range set {
			out[id] = struct{}{}
		}
		return out
	}
	return IDSet{}
}

// allIDs returns every id the provider currently indexes. The planner
// does not call it: it resolves Result.IncludeAll through the allIDs
// function passed to Planner.Plan.
func (p *MemoryProvider) allIDs() IDSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := IDSet{}
	for _, set := range p.buckets {
		for id := range set {
			out[id] = struct{}{}
		}
	}
	return out
}

func asOperatorMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return nil, false
		}
	}
	return m, true
}
