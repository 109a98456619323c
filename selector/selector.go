// Package selector implements the MongoDB-subset predicate language
// SignalDB queries are expressed in: a recursive tree of flat field
// constraints combined with $and/$or logic, evaluated by a matcher that
// is total over any item (it never panics — a structural mismatch simply
// evaluates to false).
//
// Selectors are built from plain Go values the way bson.M documents are,
// rather than from a bespoke builder API: a Selector's Flat map holds
// field constraints whose values are either bare scalars (implicit $eq)
// or an operator map keyed by operator name ("$gt", "$in", ...). This
// mirrors the wire shape MongoDB itself uses, matching every example in
// the pack that touches Mongo-style filters (bson.M{...}).
package selector

import "fmt"

// Selector is spec.md §3's recursive predicate tree. A single node can
// combine flat field constraints with nested $and/$or children, exactly
// as MongoDB's own filter documents do (e.g. {status: "open", $or: [...]})
// — this is why Selector is one struct rather than a sum type split
// across "flat" and "logic" shapes.
type Selector struct {
	// Flat is a conjunction of field constraints. Each value is either a
	// bare scalar/slice (shorthand for {"$eq": value}, with slice-valued
	// fields also matching element-wise) or an operator map such as
	// map[string]any{"$gt": 5, "$lt": 10}.
	Flat map[string]any

	// And is a conjunction of child selectors ($and).
	And []*Selector

	// Or is a disjunction of child selectors ($or). An empty/nil Or does
	// not restrict the match; at least one element matching is required
	// only when Or is non-empty.
	Or []*Selector
}

// F builds a flat-only Selector from field constraints.
func F(flat map[string]any) *Selector { return &Selector{Flat: flat} }

// And builds a Selector whose only constraint is the conjunction of
// children.
func And(children ...*Selector) *Selector { return &Selector{And: children} }

// Or builds a Selector whose only constraint is the disjunction of
// children.
func Or(children ...*Selector) *Selector { return &Selector{Or: children} }

// IsEmpty reports whether s matches spec.md's "empty selector" case: nil,
// or a node with no flat fields and no $and/$or children.
func IsEmpty(s *Selector) bool {
	return s == nil || (len(s.Flat) == 0 && len(s.And) == 0 && len(s.Or) == 0)
}

// String renders a Selector for diagnostics/logging.
func String(s *Selector) string {
	if IsEmpty(s) {
		return "{}"
	}
	return fmt.Sprintf("Selector(fields=%d,and=%d,or=%d)", len(s.Flat), len(s.And), len(s.Or))
}

// operatorMap reports whether v is itself an operator bundle (a
// map[string]any keyed entirely by "$"-prefixed operator names) as
// opposed to a bare document value that happens to be a map (which would
// be matched by deep equality instead).
func operatorMap(v any) (map[string]any, bool) {
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
