package index

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/signaldb-go/signaldb/valueutil"
)

// BitmapProvider is an alternate, denser Provider for low-cardinality,
// high-row-count fields (status flags, enum-shaped fields, boolean-like
// categories), backed by compressed roaring bitmaps instead of Go maps of
// struct{}. It implements the same Provider contract as MemoryProvider so
// the planner never needs to know which representation a field chose —
// Collection picks one per field based on Stats() after a rebuild.
//
// Roaring bitmaps index uint32 positions, not arbitrary ids, so
// BitmapProvider keeps a small id<->ordinal interner alongside the
// per-value bitmaps.
type BitmapProvider struct {
	field string
	mu    sync.RWMutex

	buckets map[string]*roaring.Bitmap
	idToOrd map[string]uint32
	ordToID []string
	free    []uint32
}

// NewBitmapProvider creates an empty BitmapProvider for field.
func NewBitmapProvider(field string) *BitmapProvider {
	return &BitmapProvider{
		field:   field,
		buckets: map[string]*roaring.Bitmap{},
		idToOrd: map[string]uint32{},
	}
}

func (p *BitmapProvider) Field() string { return p.field }
func (p *BitmapProvider) IsAsync() bool { return false }

// Stats reports the number of distinct bucket values and total indexed ids.
func (p *BitmapProvider) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := 0
	for _, bm := range p.buckets {
		ids += int(bm.GetCardinality())
	}
	return Stats{Buckets: len(p.buckets), IDs: ids}
}

func (p *BitmapProvider) ordFor(id string) uint32 {
	if ord, ok := p.idToOrd[id]; ok {
		return ord
	}
	var ord uint32
	if n := len(p.free); n > 0 {
		ord = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		ord = uint32(len(p.ordToID))
		p.ordToID = append(p.ordToID, "")
	}
	p.ordToID[ord] = id
	p.idToOrd[id] = ord
	return ord
}

func (p *BitmapProvider) releaseOrd(id string) {
	ord, ok := p.idToOrd[id]
	if !ok {
		return
	}
	stillUsed := false
	for _, bm := range p.buckets {
		if bm.Contains(ord) {
			stillUsed = true
			break
		}
	}
	if stillUsed {
		return
	}
	delete(p.idToOrd, id)
	p.ordToID[ord] = ""
	p.free = append(p.free, ord)
}

func (p *BitmapProvider) Insert(id string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := bucketKey(value, true)
	bm, ok := p.buckets[key]
	if !ok {
		bm = roaring.New()
		p.buckets[key] = bm
	}
	bm.Add(p.ordFor(id))
}

func (p *BitmapProvider) Remove(id string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := bucketKey(value, true)
	if bm, ok := p.buckets[key]; ok {
		if ord, ok := p.idToOrd[id]; ok {
			bm.Remove(ord)
			if bm.IsEmpty() {
				delete(p.buckets, key)
			}
		}
	}
	p.releaseOrd(id)
}

func (p *BitmapProvider) Update(id string, oldValue, newValue any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	oldKey := bucketKey(oldValue, true)
	newKey := bucketKey(newValue, true)
	if oldKey == newKey {
		return
	}
	ord := p.ordFor(id)
	if bm, ok := p.buckets[oldKey]; ok {
		bm.Remove(ord)
		if bm.IsEmpty() {
			delete(p.buckets, oldKey)
		}
	}
	bm, ok := p.buckets[newKey]
	if !ok {
		bm = roaring.New()
		p.buckets[newKey] = bm
	}
	bm.Add(ord)
}

func (p *BitmapProvider) Rebuild(items []map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buckets = map[string]*roaring.Bitmap{}
	p.idToOrd = map[string]uint32{}
	p.ordToID = nil
	p.free = nil
	for _, item := range items {
		id, _ := item["id"].(string)
		v, present := fieldValue(item, p.field)
		key := bucketKey(v, present)
		bm, ok := p.buckets[key]
		if !ok {
			bm = roaring.New()
			p.buckets[key] = bm
		}
		bm.Add(p.ordFor(id))
	}
}

func (p *BitmapProvider) Query(constraint any) Result {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ops, isOps := asOperatorMap(constraint)
	if !isOps {
		return p.idSetFor("$eq", constraint)
	}
	if len(nonOptionKeys(ops)) != 1 {
		return Result{Matched: false}
	}
	for op, operand := range ops {
		if op == "$options" {
			continue
		}
		return p.idSetFor(op, operand)
	}
	return Result{Matched: false}
}

func (p *BitmapProvider) idSetFor(op string, operand any) Result {
	switch op {
	case "$eq":
		key := valueutil.NullKey
		if operand != nil {
			key = valueutil.Serialize(operand)
		}
		return Result{Matched: true, Include: p.toIDSet(p.buckets[key]), KeepSelector: operand == nil}
	case "$in":
		list, ok := operand.([]any)
		if !ok {
			return Result{Matched: false}
		}
		union := roaring.New()
		keepSelector := false
		for _, v := range list {
			key := valueutil.NullKey
			if v != nil {
				key = valueutil.Serialize(v)
			} else {
				keepSelector = true
			}
			if bm, ok := p.buckets[key]; ok {
				union.Or(bm)
			}
		}
		return Result{Matched: true, Include: p.toIDSet(union), KeepSelector: keepSelector}
	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return Result{Matched: false}
		}
		if !want {
			return Result{Matched: true, Include: p.toIDSet(p.buckets[valueutil.NullKey]), KeepSelector: true}
		}
		return Result{Matched: true, IncludeAll: true, Exclude: p.toIDSet(p.buckets[valueutil.NullKey]), KeepSelector: true}
	default:
		return Result{Matched: false}
	}
}

func (p *BitmapProvider) toIDSet(bm *roaring.Bitmap) IDSet {
	out := IDSet{}
	if bm == nil {
		return out
	}
	it := bm.Iterator()
	for it.HasNext() {
		ord := it.Next()
		if int(ord) < len(p.ordToID) {
			if id := p.ordToID[ord]; id != "" {
				out[id] = struct{}{}
			}
		}
	}
	return out
}
