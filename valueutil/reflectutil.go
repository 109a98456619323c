package valueutil

import "reflect"

// isFunc reports whether v is a function value, the one Go shape DeepClone
// cannot meaningfully copy.
func isFunc(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.IsValid() && rv.Kind() == reflect.Func
}
