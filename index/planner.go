package index

import (
	"github.com/signaldb-go/signaldb/sderrors"
	"github.com/signaldb-go/signaldb/selector"
)

// PlanResult is the Planner's answer for one selector: either it has no
// opinion (Matched false, in which case the caller must scan every item),
// or it narrowed the candidate set to IDs and rewrote the selector down to
// Residual, the smaller predicate the matcher still needs to re-check.
type PlanResult struct {
	Matched  bool
	IDs      IDSet
	Residual *selector.Selector
}

// Planner folds a selector tree across a fixed set of field-scoped
// Providers, implementing spec.md §4.4's fold/$and/$or algorithm.
type Planner struct {
	byField map[string]Provider
	async   bool
}

// NewPlanner builds a Planner over providers. All providers must agree on
// IsAsync(); mixing a synchronous and an asynchronous provider is a fatal
// configuration error (spec.md §4.4, §7 MixedIndexModes).
func NewPlanner(providers ...Provider) (*Planner, error) {
	p := &Planner{byField: map[string]Provider{}}
	for i, prov := range providers {
		if i == 0 {
			p.async = prov.IsAsync()
		} else if prov.IsAsync() != p.async {
			return nil, sderrors.ErrMixedIndexModes
		}
		p.byField[prov.Field()] = prov
	}
	return p, nil
}

// IsAsync reports whether this planner's providers may block on storage.
func (p *Planner) IsAsync() bool { return p.async }

// Plan runs the full selector against the configured providers. allIDs
// supplies the universe of known ids, used to resolve a Result whose
// Include is "every id" (IncludeAll) when it is the left-most usable
// constraint with nothing yet to intersect against.
func (p *Planner) Plan(sel *selector.Selector, allIDs func() IDSet) (PlanResult, error) {
	if selector.IsEmpty(sel) {
		return PlanResult{Matched: false, IDs: IDSet{}, Residual: sel}, nil
	}
	return p.plan(sel, allIDs)
}

func (p *Planner) plan(sel *selector.Selector, allIDs func() IDSet) (PlanResult, error) {
	matched := false
	var ids IDSet
	residualFlat := map[string]any{}

	for field, constraint := range sel.Flat {
		prov, ok := p.byField[field]
		if !ok {
			residualFlat[field] = constraint
			continue
		}
		res := prov.Query(constraint)
		if !res.Matched {
			residualFlat[field] = constraint
			continue
		}
		fieldIDs := resolveResult(res, allIDs)
		if !matched {
			ids = fieldIDs
			matched = true
		} else {
			ids = ids.Intersect(fieldIDs)
		}
		if res.KeepSelector {
			residualFlat[field] = constraint
		}
	}

	residualAnd := make([]*selector.Selector, 0, len(sel.And))
	for _, child := range sel.And {
		childResult, err := p.plan(child, allIDs)
		if err != nil {
			return PlanResult{}, err
		}
		if childResult.Matched {
			if !matched {
				ids = childResult.IDs
				matched = true
			} else {
				ids = ids.Intersect(childResult.IDs)
			}
			if !selector.IsEmpty(childResult.Residual) {
				residualAnd = append(residualAnd, childResult.Residual)
			}
		} else {
			residualAnd = append(residualAnd, child)
		}
	}

	residualOr := sel.Or
	if len(sel.Or) > 0 {
		preOrMatched, preOrIDs := matched, ids
		orMatched := true
		orIDs := IDSet{}
		// optimizedOr re-verifies the same branch predicates the ids union
		// was built from. A branch the index fully resolved still needs its
		// *original* selector here, not a dropped/empty placeholder: ids is
		// a union across branches, so a candidate drawn from one branch's
		// bucket is not guaranteed to satisfy another branch at all, and an
		// always-true placeholder would let it slip through on re-check.
		optimizedOr := make([]*selector.Selector, 0, len(sel.Or))
		anyPartial := false
		for _, child := range sel.Or {
			childResult, err := p.plan(child, allIDs)
			if err != nil {
				return PlanResult{}, err
			}
			if !childResult.Matched {
				orMatched = false
				break
			}
			orIDs = orIDs.Union(childResult.IDs)
			if selector.IsEmpty(childResult.Residual) {
				optimizedOr = append(optimizedOr, child)
			} else {
				optimizedOr = append(optimizedOr, childResult.Residual)
				anyPartial = true
			}
		}
		if orMatched {
			if !matched {
				ids = orIDs
				matched = true
			} else {
				ids = ids.Intersect(orIDs)
			}
			if anyPartial {
				residualOr = optimizedOr
			} else {
				// Every branch was fully resolved by the index: any id in
				// the union genuinely satisfies at least one branch
				// exactly, so the matcher needs no further re-check.
				residualOr = nil
			}
		} else {
			// hasNonIndexField: revert to pre-$or state, keep the
			// original $or in the residual untouched.
			matched, ids = preOrMatched, preOrIDs
			residualOr = sel.Or
		}
	}

	residual := &selector.Selector{Flat: residualFlat, And: residualAnd, Or: residualOr}
	if !matched {
		return PlanResult{Matched: false, IDs: IDSet{}, Residual: sel}, nil
	}
	return PlanResult{Matched: true, IDs: ids, Residual: residual}, nil
}

func resolveResult(res Result, allIDs func() IDSet) IDSet {
	var base IDSet
	if res.IncludeAll {
		base = allIDs()
	} else {
		base = res.Include
		if base == nil {
			base = IDSet{}
		}
	}
	if len(res.Exclude) == 0 {
		return base
	}
	out := make(IDSet, len(base))
	for id := range base {
		if _, excluded := res.Exclude[id]; !excluded {
			out[id] = struct{}{}
		}
	}
	return out
}
