package valueutil

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"
)

// NullKey is the distinguished sentinel Serialize returns for nil values.
// It is also the key index providers use to bucket missing/null fields
// (see index.Provider), so it is exported rather than left package-local.
const NullKey = "\x00null\x00"

// Serialize produces the canonical string key used by index buckets and by
// equality-sensitive comparisons. Strings pass through unchanged, numbers
// and booleans render in a fixed canonical form, time.Time renders as
// ISO-8601 (UTC), nil renders as the distinguished NullKey, and everything
// else falls back to canonical JSON.
func Serialize(v any) string {
	switch val := v.(type) {
	case nil:
		return NullKey
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int:
		return fmt.Sprintf("%d", val)
	case int32:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float32:
		return formatFloat(float64(val))
	case float64:
		return formatFloat(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		b, err := json.Marshal(canonicalize(v))
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// canonicalize recursively sorts map keys so that json.Marshal produces a
// stable byte sequence for structurally-equal documents, regardless of
// the original key insertion order.
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			out = append(out, k, canonicalize(val[k]))
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return val
	}
}

// DeepClone returns a structural copy of v. Plain maps, slices, time.Time,
// and *regexp.Regexp are cloned; function values, which cannot be
// meaningfully cloned, cause DeepClone to panic, matching spec.md's "fails
// on callable values"; any other value is returned as is, without a copy
// being made. Mutators call DeepClone
// on trusted, already-validated item data, so a panic here indicates a
// host bug, not user input.
func DeepClone(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = DeepClone(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = DeepClone(e)
		}
		return out
	case time.Time:
		return val
	case *regexp.Regexp:
		if val == nil {
			return val
		}
		return regexp.MustCompile(val.String())
	case string, bool, int, int32, int64, float32, float64:
		return val
	default:
		if isFunc(v) {
			panic(fmt.Sprintf("valueutil: cannot deep-clone callable value of type %T", v))
		}
		return v
	}
}

// CloneItem is DeepClone specialized to the map[string]any item shape used
// throughout the collection and modifier engine.
func CloneItem(item map[string]any) map[string]any {
	cloned := DeepClone(item)
	m, _ := cloned.(map[string]any)
	return m
}

// IsEqual performs structural equality: maps are compared key-by-key
// regardless of insertion order, slices element-by-element and
// order-sensitive, and scalar numeric types compare by value rather than
// by Go type (1 == int64(1) == float64(1)).
func IsEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !IsEqual(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !IsEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case *regexp.Regexp:
		bv, ok := b.(*regexp.Regexp)
		return ok && av != nil && bv != nil && av.String() == bv.String()
	case nil:
		return b == nil
	default:
		if isNumeric(a) && isNumeric(b) {
			return toFloat(a) == toFloat(b)
		}
		return a == b
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case float64:
		return val
	}
	return 0
}
