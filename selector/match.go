package selector

import (
	"math"
	"regexp"
	"strings"

	"github.com/signaldb-go/signaldb/valueutil"
)

// Where is the idiomatic Go stand-in for the original's string-evaluated
// $where: SignalDB has no embedded script evaluator, so $where's operand
// is a Go predicate instead of source text.
type Where func(item map[string]any) bool

// Match evaluates sel against item. Match is total: it never panics, and
// any structurally unexpected operand (wrong type, malformed regex
// operator pairing, unknown operator) simply makes that constraint
// evaluate to false rather than erroring, per spec.md §4.2.
func Match(item map[string]any, sel *Selector) bool {
	if sel == nil {
		return true
	}
	for field, constraint := range sel.Flat {
		value, present := fieldGet(item, field)
		if !matchConstraint(item, value, present, constraint) {
			return false
		}
	}
	for _, child := range sel.And {
		if !Match(item, child) {
			return false
		}
	}
	if len(sel.Or) > 0 {
		matched := false
		for _, child := range sel.Or {
			if Match(item, child) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func fieldGet(item map[string]any, field string) (any, bool) {
	if !strings.ContainsAny(field, ".[") {
		v, ok := item[field]
		return v, ok
	}
	return valueutil.Get(item, field)
}

// matchConstraint evaluates one field's constraint. value/present is the
// result of resolving the field path on item; constraint is either a bare
// scalar (implicit $eq/membership) or an operator map.
func matchConstraint(item map[string]any, value any, present bool, constraint any) bool {
	if re, ok := constraint.(*regexp.Regexp); ok {
		return matchRegex(value, re, nil)
	}
	ops, isOps := operatorMap(constraint)
	if !isOps {
		return matchEqOrMembership(value, present, constraint)
	}
	for op, operand := range ops {
		if !matchOperator(item, value, present, op, operand, ops) {
			return false
		}
	}
	return true
}

func matchOperator(item map[string]any, value any, present bool, op string, operand any, siblings map[string]any) bool {
	switch op {
	case "$eq":
		return matchEqOrMembership(value, present, operand)
	case "$gt":
		return present && compare(value, operand) > 0
	case "$gte":
		return present && compare(value, operand) >= 0
	case "$lt":
		return present && compare(value, operand) < 0
	case "$lte":
		return present && compare(value, operand) <= 0
	case "$in":
		list, ok := operand.([]any)
		if !ok {
			return false
		}
		for _, want := range list {
			if matchEqOrMembership(value, present, want) {
				return true
			}
		}
		return false
	case "$nin":
		list, ok := operand.([]any)
		if !ok {
			return false
		}
		for _, want := range list {
			if matchEqOrMembership(value, present, want) {
				return false
			}
		}
		return true
	case "$ne":
		return !matchEqOrMembership(value, present, operand)
	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return false
		}
		has := present && value != nil
		return has == want
	case "$not":
		return !matchConstraint(item, value, present, operand)
	case "$expr":
		fn, ok := operand.(func(map[string]any) bool)
		if !ok {
			return false
		}
		return fn(item)
	case "$mod":
		pair, ok := operand.([2]int64)
		if !ok {
			return false
		}
		n, ok := asInt64(value)
		if !ok || pair[0] == 0 {
			return false
		}
		return n%pair[0] == pair[1]
	case "$regex":
		return matchRegex(value, operand, siblings["$options"])
	case "$options":
		// Only meaningful paired with $regex, handled above.
		return true
	case "$all":
		want, ok := operand.([]any)
		if !ok {
			return false
		}
		arr, ok := value.([]any)
		if !ok {
			return false
		}
		for _, w := range want {
			found := false
			for _, e := range arr {
				if valueutil.IsEqual(e, w) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case "$elemMatch":
		child, ok := operand.(*Selector)
		if !ok {
			return false
		}
		arr, ok := value.([]any)
		if !ok {
			return false
		}
		for _, e := range arr {
			em, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if Match(em, child) {
				return true
			}
		}
		return false
	case "$size":
		n, ok := asInt(operand)
		if !ok {
			return false
		}
		arr, ok := value.([]any)
		if !ok {
			return false
		}
		return len(arr) == n
	case "$bitsAllClear":
		return matchBits(value, operand, func(v, mask int64) bool { return v&mask == 0 })
	case "$bitsAllSet":
		return matchBits(value, operand, func(v, mask int64) bool { return v&mask == mask })
	case "$bitsAnyClear":
		return matchBits(value, operand, func(v, mask int64) bool { return v&mask != mask })
	case "$bitsAnySet":
		return matchBits(value, operand, func(v, mask int64) bool { return v&mask != 0 })
	case "$jsonSchema":
		validator, ok := operand.(func(any) bool)
		if !ok {
			return false
		}
		return validator(value)
	case "$text":
		term, ok := operand.(string)
		if !ok {
			return false
		}
		return matchText(item, term)
	case "$where":
		fn, ok := operand.(Where)
		if !ok {
			return false
		}
		return fn(item)
	default:
		return false
	}
}

// matchEqOrMembership implements spec.md's "arrays match if any element
// matches" rule for implicit equality: if the stored value is an array and
// want is not, membership is tried before falling back to whole-array
// equality.
func matchEqOrMembership(value any, present bool, want any) bool {
	if want == nil {
		return !present || value == nil
	}
	if !present {
		return false
	}
	if valueutil.IsEqual(value, want) {
		return true
	}
	if arr, ok := value.([]any); ok {
		if _, wantIsArray := want.([]any); !wantIsArray {
			for _, e := range arr {
				if valueutil.IsEqual(e, want) {
					return true
				}
			}
		}
	}
	return false
}

func compare(a, b any) int {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	return 0
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	f, ok := asFloat(v)
	if !ok || math.Trunc(f) != f {
		return 0, false
	}
	return int64(f), true
}

func asInt(v any) (int, bool) {
	n, ok := asInt64(v)
	return int(n), ok
}

func matchRegex(value any, pattern any, options any) bool {
	var re *regexp.Regexp
	switch p := pattern.(type) {
	case *regexp.Regexp:
		re = p
	case string:
		flags := ""
		if opts, ok := options.(string); ok {
			if strings.Contains(opts, "i") {
				flags += "i"
			}
			if strings.Contains(opts, "s") {
				flags += "s"
			}
			if strings.Contains(opts, "m") {
				flags += "m"
			}
		}
		expr := p
		if flags != "" {
			expr = "(?" + flags + ")" + p
		}
		compiled, err := regexp.Compile(expr)
		if err != nil {
			return false
		}
		re = compiled
	default:
		return false
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	return re.MatchString(s)
}

func matchBits(value any, operand any, test func(v, mask int64) bool) bool {
	v, ok := asInt64(value)
	if !ok {
		return false
	}
	switch mask := operand.(type) {
	case int, int32, int64, float64:
		m, _ := asInt64(mask)
		return test(v, m)
	case []any:
		var m int64
		for _, pos := range mask {
			p, ok := asInt64(pos)
			if !ok {
				return false
			}
			m |= 1 << uint(p)
		}
		return test(v, m)
	}
	return false
}

// matchText is a reduced but spec-compliant $text: a case-insensitive
// substring match across every string-valued field in item. Full
// tokenized/ranked full-text search is out of budget (spec.md's Non-goal
// bounds growth of the operator set, not the depth of an already-listed
// operator).
func matchText(item map[string]any, term string) bool {
	term = strings.ToLower(term)
	for _, v := range item {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}
