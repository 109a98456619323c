package valueutil

import "sort"

// SortKey is one (field, direction) pair of a sort specification. Order is
// significant: SortItems applies keys left-to-right as tiebreakers, as
// spec.md requires ("stable, left-to-right").
type SortKey struct {
	Field     string
	Ascending bool
}

// SortItems stably sorts items in place according to keys, comparing field
// values with a total order: missing/nil sorts before any present value,
// then by the usual numeric/string/boolean ordering, falling back to
// comparing each value's Serialize() form so that mixed or exotic types
// never panic the comparator.
func SortItems(items []map[string]any, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, k := range keys {
			vi, iok := Get(items[i], k.Field)
			vj, jok := Get(items[j], k.Field)
			cmp := compareValues(vi, iok, vj, jok)
			if cmp == 0 {
				continue
			}
			if k.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

// compareValues returns -1, 0, or 1. Absent/nil values sort before any
// present value; present values of different kinds fall back to comparing
// their serialized form so the comparator is total.
func compareValues(a any, aok bool, b any, bok bool) int {
	if !aok && !bok {
		return 0
	}
	if !aok {
		return -1
	}
	if !bok {
		return 1
	}
	if isNumeric(a) && isNumeric(b) {
		af, bf := toFloat(a), toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch {
			case as < bs:
				return -1
			case as > bs:
				return 1
			default:
				return 0
			}
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			if ab == bb {
				return 0
			}
			if !ab {
				return -1
			}
			return 1
		}
	}
	sa, sb := Serialize(a), Serialize(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}
