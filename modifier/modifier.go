// Package modifier applies MongoDB-subset update operators to produce a
// new item from an old one, matching spec.md §3/§4.3: the input is never
// mutated, and the result is built on a deep clone.
package modifier

import (
	"fmt"
	"time"

	"github.com/signaldb-go/signaldb/valueutil"
)

// Modifier is a mapping of update operators to field deltas, e.g.
// map[string]any{"$set": map[string]any{"name": "Jay"}}.
type Modifier map[string]any

// Options controls Apply's handling of upsert-only operators.
type Options struct {
	// IsUpsert, when true, keeps $setOnInsert; otherwise Apply strips it,
	// per spec.md's "stripped from non-upsert updates" rule.
	IsUpsert bool
}

// Apply clones item, applies mod's operators in a fixed, deterministic
// order, and returns the result. item is never mutated. An unknown
// top-level key that isn't an operator (doesn't start with "$") is
// rejected: spec.md's Modifier is operator-only, so a bare field name at
// the top level is a caller error, not an implicit $set.
func Apply(item map[string]any, mod Modifier, opts Options) (map[string]any, error) {
	if mod == nil {
		return nil, fmt.Errorf("modifier: nil modifier")
	}
	out := valueutil.CloneItem(item)
	if out == nil {
		out = map[string]any{}
	}

	for _, op := range operatorOrder {
		delta, ok := mod[op]
		if !ok {
			continue
		}
		if op == "$setOnInsert" && !opts.IsUpsert {
			continue
		}
		fields, ok := delta.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("modifier: %s requires an object operand", op)
		}
		applier, ok := operators[op]
		if !ok {
			return nil, fmt.Errorf("modifier: unsupported operator %s", op)
		}
		if err := applier(out, fields); err != nil {
			return nil, fmt.Errorf("modifier: %s: %w", op, err)
		}
	}

	for op := range mod {
		if _, known := operators[op]; !known {
			return nil, fmt.Errorf("modifier: unknown operator %s", op)
		}
	}

	return out, nil
}

// operatorOrder fixes the application order so that, e.g., $rename always
// runs before $set would see the renamed-to field, matching the order
// MongoDB itself documents for applying a single update document.
var operatorOrder = []string{
	"$rename", "$unset", "$set", "$setOnInsert", "$inc", "$mul", "$min", "$max",
	"$currentDate", "$pop", "$pull", "$pullAll", "$push", "$addToSet",
}

type operatorFunc func(item map[string]any, fields map[string]any) error

var operators = map[string]operatorFunc{
	"$set":          applySet,
	"$unset":        applyUnset,
	"$inc":          applyInc,
	"$mul":          applyMul,
	"$min":          applyMin,
	"$max":          applyMax,
	"$rename":       applyRename,
	"$currentDate":  applyCurrentDate,
	"$push":         applyPush,
	"$pull":         applyPull,
	"$pullAll":      applyPullAll,
	"$pop":          applyPop,
	"$addToSet":     applyAddToSet,
	"$setOnInsert":  applySet,
}

func applySet(item map[string]any, fields map[string]any) error {
	for path, v := range fields {
		if err := valueutil.Set(item, path, v); err != nil {
			return err
		}
	}
	return nil
}

func applyUnset(item map[string]any, fields map[string]any) error {
	for path := range fields {
		if err := valueutil.Unset(item, path); err != nil {
			return err
		}
	}
	return nil
}

func applyInc(item map[string]any, fields map[string]any) error {
	for path, delta := range fields {
		cur, _ := valueutil.Get(item, path)
		next, err := numericAdd(cur, delta)
		if err != nil {
			return err
		}
		if err := valueutil.Set(item, path, next); err != nil {
			return err
		}
	}
	return nil
}

func applyMul(item map[string]any, fields map[string]any) error {
	for path, factor := range fields {
		cur, ok := valueutil.Get(item, path)
		if !ok || cur == nil {
			cur = int64(0)
		}
		next, err := numericMul(cur, factor)
		if err != nil {
			return err
		}
		if err := valueutil.Set(item, path, next); err != nil {
			return err
		}
	}
	return nil
}

func applyMin(item map[string]any, fields map[string]any) error {
	for path, candidate := range fields {
		cur, ok := valueutil.Get(item, path)
		if !ok || compareNumericOrString(candidate, cur) < 0 {
			if err := valueutil.Set(item, path, candidate); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyMax(item map[string]any, fields map[string]any) error {
	for path, candidate := range fields {
		cur, ok := valueutil.Get(item, path)
		if !ok || compareNumericOrString(candidate, cur) > 0 {
			if err := valueutil.Set(item, path, candidate); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyRename(item map[string]any, fields map[string]any) error {
	for from, toAny := range fields {
		to, ok := toAny.(string)
		if !ok {
			return fmt.Errorf("$rename target for %q must be a string", from)
		}
		v, ok := valueutil.Get(item, from)
		if !ok {
			continue
		}
		if err := valueutil.Unset(item, from); err != nil {
			return err
		}
		if err := valueutil.Set(item, to, v); err != nil {
			return err
		}
	}
	return nil
}

func applyCurrentDate(item map[string]any, fields map[string]any) error {
	now := time.Now().UTC()
	for path, spec := range fields {
		value := any(now)
		if m, ok := spec.(map[string]any); ok {
			if typ, _ := m["$type"].(string); typ == "timestamp" {
				value = now.Unix()
			}
		}
		if err := valueutil.Set(item, path, value); err != nil {
			return err
		}
	}
	return nil
}

func applyPush(item map[string]any, fields map[string]any) error {
	for path, v := range fields {
		arr := getOrCreateArray(item, path)
		if spec, ok := v.(map[string]any); ok {
			if each, ok := spec["$each"].([]any); ok {
				arr = append(arr, each...)
				if err := valueutil.Set(item, path, arr); err != nil {
					return err
				}
				continue
			}
		}
		arr = append(arr, v)
		if err := valueutil.Set(item, path, arr); err != nil {
			return err
		}
	}
	return nil
}

func applyPull(item map[string]any, fields map[string]any) error {
	for path, cond := range fields {
		arr, ok := valueutil.Get(item, path)
		if !ok {
			continue
		}
		slice, ok := arr.([]any)
		if !ok {
			continue
		}
		out := make([]any, 0, len(slice))
		for _, e := range slice {
			if valueutil.IsEqual(e, cond) {
				continue
			}
			out = append(out, e)
		}
		if err := valueutil.Set(item, path, out); err != nil {
			return err
		}
	}
	return nil
}

func applyPullAll(item map[string]any, fields map[string]any) error {
	for path, removeAny := range fields {
		remove, ok := removeAny.([]any)
		if !ok {
			continue
		}
		arr, ok := valueutil.Get(item, path)
		if !ok {
			continue
		}
		slice, ok := arr.([]any)
		if !ok {
			continue
		}
		out := make([]any, 0, len(slice))
		for _, e := range slice {
			skip := false
			for _, r := range remove {
				if valueutil.IsEqual(e, r) {
					skip = true
					break
				}
			}
			if !skip {
				out = append(out, e)
			}
		}
		if err := valueutil.Set(item, path, out); err != nil {
			return err
		}
	}
	return nil
}

func applyPop(item map[string]any, fields map[string]any) error {
	for path, dirAny := range fields {
		arr, ok := valueutil.Get(item, path)
		if !ok {
			continue
		}
		slice, ok := arr.([]any)
		if !ok || len(slice) == 0 {
			continue
		}
		dir, _ := asInt(dirAny)
		if dir < 0 {
			slice = slice[1:]
		} else {
			slice = slice[:len(slice)-1]
		}
		if err := valueutil.Set(item, path, slice); err != nil {
			return err
		}
	}
	return nil
}

func applyAddToSet(item map[string]any, fields map[string]any) error {
	for path, v := range fields {
		arr := getOrCreateArray(item, path)
		var toAdd []any
		if spec, ok := v.(map[string]any); ok {
			if each, ok := spec["$each"].([]any); ok {
				toAdd = each
			} else {
				toAdd = []any{v}
			}
		} else {
			toAdd = []any{v}
		}
		for _, candidate := range toAdd {
			found := false
			for _, e := range arr {
				if valueutil.IsEqual(e, candidate) {
					found = true
					break
				}
			}
			if !found {
				arr = append(arr, candidate)
			}
		}
		if err := valueutil.Set(item, path, arr); err != nil {
			return err
		}
	}
	return nil
}

func getOrCreateArray(item map[string]any, path string) []any {
	v, ok := valueutil.Get(item, path)
	if !ok || v == nil {
		return []any{}
	}
	arr, ok := v.([]any)
	if !ok {
		return []any{}
	}
	return append([]any{}, arr...)
}
