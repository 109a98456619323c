package modifier

import "fmt"

func numericAdd(cur, delta any) (any, error) {
	if cur == nil {
		cur = int64(0)
	}
	df, ok := asFloat(delta)
	if !ok {
		return nil, fmt.Errorf("$inc operand must be numeric")
	}
	cf, ok := asFloat(cur)
	if !ok {
		return nil, fmt.Errorf("$inc target field is not numeric")
	}
	return normalizeNumeric(cf+df, cur, delta), nil
}

func numericMul(cur, factor any) (any, error) {
	cf, ok := asFloat(cur)
	if !ok {
		return nil, fmt.Errorf("$mul target field is not numeric")
	}
	ff, ok := asFloat(factor)
	if !ok {
		return nil, fmt.Errorf("$mul operand must be numeric")
	}
	return normalizeNumeric(cf*ff, cur, factor), nil
}

// normalizeNumeric keeps the result an int64 when both operands were
// integral, otherwise promotes to float64, matching the common
// expectation that incrementing an int field by an int stays an int.
func normalizeNumeric(result float64, operands ...any) any {
	allInt := true
	for _, v := range operands {
		switch v.(type) {
		case int, int32, int64:
		default:
			allInt = false
		}
	}
	if allInt && result == float64(int64(result)) {
		return int64(result)
	}
	return result
}

func compareNumericOrString(a, b any) int {
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
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
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

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}
