// Package observe implements SignalDB's live-query diffing: given the
// ordered result set of a query before and after a write, it computes the
// minimal set of added/removed/changed/moved events a cursor's observers
// need, the same role nodestorage/v2's WatchEvent/Diff plays for a single
// document, generalized to an ordered sequence (spec.md §4.5).
package observe

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/signaldb-go/signaldb/valueutil"
)

// EventKind identifies one of the six observation callbacks a cursor can
// register for.
type EventKind int

const (
	Added EventKind = iota
	Removed
	Changed
	ChangedField
	AddedBefore
	MovedBefore
)

// Event is one emitted observation. Which fields are populated depends on
// Kind: Before/BeforeID are only meaningful for AddedBefore/MovedBefore,
// Field/OldValue/NewValue only for ChangedField.
type Event struct {
	Kind EventKind

	ID   string
	Item map[string]any

	// OldItem is the prior state of the document, populated for Removed,
	// Changed and ChangedField.
	OldItem map[string]any

	// BeforeID is the id of the item the changed/added item now precedes
	// in the ordered result set, or "" if it is now last.
	BeforeID string

	Field    string
	OldValue any
	NewValue any

	// Patch is the RFC 7386 JSON Merge Patch from OldItem to Item, populated for
	// Changed events so a remote observer can apply the delta instead of
	// re-transmitting the whole document.
	Patch []byte
}

// ListenerFunc receives diff events as they are computed.
type ListenerFunc func(Event)

// ListenOptions configures AddListener.
type ListenOptions struct {
	// SkipInitial suppresses the synthetic Added events AddListener
	// would otherwise replay for a listener registered after the observer
	// already has results.
	SkipInitial bool
}

type listener struct {
	kind ListenerFunc
	opts ListenOptions
}

// Observer tracks one query's ordered result set and turns successive
// Update calls into events for registered listeners. It has no notion of
// storage or selectors — Collection feeds it the before/after item slices
// it already computed.
type Observer struct {
	current []map[string]any
	byID    map[string]int

	listeners map[EventKind][]*listener
}

// New creates an Observer with an empty current result set.
func New() *Observer {
	return &Observer{byID: map[string]int{}, listeners: map[EventKind][]*listener{}}
}

// AddListener registers fn for events of kind. The returned func
// unsubscribes it. If opts.SkipInitial is false and the observer already
// has a non-empty current set, Added (and, for ChangedField listeners,
// nothing — there is no "initial" changed-field event) events are
// replayed synchronously before AddListener returns.
func (o *Observer) AddListener(kind EventKind, fn ListenerFunc, opts ListenOptions) (unsubscribe func()) {
	l := &listener{kind: fn, opts: opts}
	o.listeners[kind] = append(o.listeners[kind], l)

	if kind == Added && !opts.SkipInitial {
		for i, item := range o.current {
			var before string
			if i+1 < len(o.current) {
				before, _ = o.current[i+1]["id"].(string)
			}
			id, _ := item["id"].(string)
			fn(Event{Kind: Added, ID: id, Item: item, BeforeID: before})
		}
	}

	return func() {
		list := o.listeners[kind]
		for i, existing := range list {
			if existing == l {
				o.listeners[kind] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

func (o *Observer) emit(kind EventKind, ev Event) {
	for _, l := range o.listeners[kind] {
		l.kind(ev)
	}
}

// Seed initializes the observer's current set without emitting any events,
// used the first time a cursor computes its result so the first real
// Update has a correct "oldItems" baseline.
func (o *Observer) Seed(items []map[string]any) {
	o.current = cloneSlice(items)
	o.byID = indexByID(o.current)
}

// Snapshot returns the observer's current ordered result set.
func (o *Observer) Snapshot() []map[string]any { return cloneSlice(o.current) }

// Update replaces the observer's tracked result set with newItems and
// emits the full diff to registered listeners, implementing spec.md §4.5:
//
//   - Removed: an id present in the old set but absent from the new one.
//   - Added / AddedBefore: an id present in the new set but absent from
//     the old one; AddedBefore additionally reports its new successor.
//   - Changed / ChangedField: an id present in both sets whose document
//     differs; ChangedField fires once per top-level field that changed,
//     in addition to one Changed event for the document as a whole.
//   - MovedBefore: an id present in both sets at a different ordinal
//     position, reported once even when both it and its content changed.
func (o *Observer) Update(newItems []map[string]any) {
	newItems = cloneSlice(newItems)
	newByID := indexByID(newItems)

	for id, oldIdx := range o.byID {
		if _, ok := newByID[id]; !ok {
			o.emit(Removed, Event{Kind: Removed, ID: id, OldItem: o.current[oldIdx]})
		}
	}

	for newIdx, item := range newItems {
		id, _ := item["id"].(string)
		oldIdx, existed := o.byID[id]

		var before string
		if newIdx+1 < len(newItems) {
			before, _ = newItems[newIdx+1]["id"].(string)
		}

		if !existed {
			o.emit(Added, Event{Kind: Added, ID: id, Item: item, BeforeID: before})
			o.emit(AddedBefore, Event{Kind: AddedBefore, ID: id, Item: item, BeforeID: before})
			continue
		}

		oldItem := o.current[oldIdx]
		if !valueutil.IsEqual(oldItem, item) {
			patch, _ := jsonpatch.CreateMergePatch(marshalLoose(oldItem), marshalLoose(item))
			o.emit(Changed, Event{Kind: Changed, ID: id, Item: item, OldItem: oldItem, Patch: patch})
			for _, ev := range fieldDiff(id, oldItem, item) {
				o.emit(ChangedField, ev)
			}
		}
		var oldBefore string
		if oldIdx+1 < len(o.current) {
			oldBefore, _ = o.current[oldIdx+1]["id"].(string)
		}
		if oldIdx != newIdx && oldBefore != before {
			o.emit(MovedBefore, Event{Kind: MovedBefore, ID: id, Item: item, BeforeID: before})
		}
	}

	o.current = newItems
	o.byID = newByID
}

func fieldDiff(id string, oldItem, newItem map[string]any) []Event {
	seen := make(map[string]struct{}, len(oldItem)+len(newItem))
	var events []Event
	for field, oldVal := range oldItem {
		seen[field] = struct{}{}
		newVal, present := newItem[field]
		if !present {
			events = append(events, Event{Kind: ChangedField, ID: id, Item: newItem, OldItem: oldItem, Field: field, OldValue: oldVal, NewValue: nil})
			continue
		}
		if !valueutil.IsEqual(oldVal, newVal) {
			events = append(events, Event{Kind: ChangedField, ID: id, Item: newItem, OldItem: oldItem, Field: field, OldValue: oldVal, NewValue: newVal})
		}
	}
	for field, newVal := range newItem {
		if _, ok := seen[field]; ok {
			continue
		}
		events = append(events, Event{Kind: ChangedField, ID: id, Item: newItem, OldItem: oldItem, Field: field, OldValue: nil, NewValue: newVal})
	}
	return events
}

func indexByID(items []map[string]any) map[string]int {
	out := make(map[string]int, len(items))
	for i, item := range items {
		if id, ok := item["id"].(string); ok {
			out[id] = i
		}
	}
	return out
}

func cloneSlice(items []map[string]any) []map[string]any {
	out := make([]map[string]any, len(items))
	for i, item := range items {
		out[i] = valueutil.CloneItem(item)
	}
	return out
}

// marshalLoose serializes a document for diffing purposes; jsonpatch only
// needs valid JSON bytes, and items are already plain-JSON-shaped maps.
func marshalLoose(item map[string]any) []byte {
	b, err := json.Marshal(item)
	if err != nil {
		return []byte("{}")
	}
	return b
}
