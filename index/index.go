// Package index implements field-scoped query acceleration: a Provider
// maps a field's values to candidate id sets and answers flat-selector
// queries with a superset of matching ids, and a Planner folds multiple
// providers across a full selector tree (spec.md §4.4).
package index

import (
	"github.com/signaldb-go/signaldb/valueutil"
)

// IDSet is a set of item ids, keyed by their Serialize()d form so that any
// comparable-after-serialization id type works uniformly.
type IDSet map[string]struct{}

// NewIDSet builds an IDSet from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Slice returns the set's members in unspecified order.
func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// Intersect returns the set intersection of s and other.
func (s IDSet) Intersect(other IDSet) IDSet {
	out := make(IDSet)
	small, big := s, other
	if len(other) < len(s) {
		small, big = other, s
	}
	for id := range small {
		if _, ok := big[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Union returns the set union of s and other.
func (s IDSet) Union(other IDSet) IDSet {
	out := make(IDSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Result is what Provider.Query returns for one flat constraint on one
// field.
type Result struct {
	// Matched is false when the provider has no opinion (field absent
	// from its index, or an operand shape it doesn't understand, e.g. a
	// raw regexp) — the planner leaves the matcher to re-check the field
	// from scratch in that case.
	Matched bool

	// Include lists candidate ids the field constraint allows, before
	// Exclude is applied. A nil Include means no ids unless IncludeAll is
	// set; $nin/$ne, which are naturally expressed as exclusions, set
	// IncludeAll and list their ids in Exclude.
	Include IDSet
	// IncludeAll, when true alongside a nil Include, means Include should
	// be read as "every id the index currently knows about" rather than
	// "no ids" — Go's zero value for IDSet (nil) is otherwise
	// indistinguishable from "empty".
	IncludeAll bool

	// Exclude lists ids the field constraint rules out, applied after
	// Include.
	Exclude IDSet

	// KeepSelector tells the planner not to strip this field from the
	// residual selector even though the index matched, because the index
	// answer is not by itself sufficient (null/$exists:false bucket
	// membership must still be re-verified by the matcher per spec.md
	// §9's "re-verify in the matcher before returning").
	KeepSelector bool
}

// Provider is the per-field query accelerator. Implementations keep a
// serialize(value) -> set(id) map current via the delta hooks and answer
// flat-selector queries against it.
type Provider interface {
	// Field is the document field this provider indexes.
	Field() string

	// Query answers a flat constraint on Field(), returning a superset
	// filter per spec.md §3's index invariant: an item the provider
	// excludes is never in the query's true result.
	Query(constraint any) Result

	// Insert records that id now has value at Field().
	Insert(id string, value any)
	// Remove forgets that id has value at Field().
	Remove(id string, value any)
	// Update moves id from oldValue to newValue in one step.
	Update(id string, oldValue, newValue any)
	// Rebuild discards all state and re-indexes items wholesale.
	Rebuild(items []map[string]any)

	// IsAsync reports whether Query may block on external storage. The
	// Planner refuses to combine sync and async providers in one call.
	IsAsync() bool

	// Stats reports this provider's current cardinality, used to pick a
	// representation for a field (see BitmapProvider). A provider with no
	// local cardinality knowledge (the async/remote backend) reports the
	// zero value.
	Stats() Stats
}

// Stats summarizes a Provider's current cardinality.
type Stats struct {
	// Buckets is the number of distinct values currently indexed.
	Buckets int
	// IDs is the total number of ids currently indexed, across all
	// buckets.
	IDs int
}

// fieldValue resolves item's value at field using valueutil, returning
// (nil, true) for a present-but-null field and (nil, false) for an absent
// one — both route to the same null bucket key in the index, per
// spec.md's "null key... represents both null and missing".
func fieldValue(item map[string]any, field string) (any, bool) {
	v, ok := valueutil.Get(item, field)
	return v, ok
}

// bucketKey returns the serialized bucket key for a field value, unifying
// missing and null under valueutil.NullKey.
func bucketKey(value any, present bool) string {
	if !present || value == nil {
		return valueutil.NullKey
	}
	return valueutil.Serialize(value)
}
