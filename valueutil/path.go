// Package valueutil provides the scalar plumbing the rest of SignalDB is
// built on: value serialization, deep cloning, dot/bracket path access,
// structural equality, stable multi-key sorting, and field projection.
//
// Every exported function here is total over its documented input shape.
// ParsePath, Set and Unset reject malformed paths (leading/trailing dots,
// empty segments, ".[") with an error; Get returns no error and reports a
// malformed path as not found.
package valueutil

import (
	"fmt"
	"strconv"
	"strings"
)

// PathSegment is one step of a parsed field path: either a map key or a
// slice index.
type PathSegment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path is a parsed dot/bracket field path, e.g. "a.b[0].c" parses to
// [{Key:"a"}, {Key:"b"}, {Index:0, IsIndex:true}, {Key:"c"}].
type Path []PathSegment

// ParsePath parses a dot/bracket path into segments. It rejects the
// malformed shapes spec.md calls out explicitly: a leading or trailing
// dot, an empty segment (e.g. "a..b"), and a dot immediately before a
// bracket (e.g. "a.[0]").
func ParsePath(path string) (Path, error) {
	if path == "" {
		return nil, fmt.Errorf("valueutil: empty path")
	}
	if strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") {
		return nil, fmt.Errorf("valueutil: path %q has a leading or trailing dot", path)
	}
	if strings.Contains(path, ".[") {
		return nil, fmt.Errorf("valueutil: path %q has a dot immediately before '['", path)
	}

	var segs Path
	var cur strings.Builder
	flushKey := func() error {
		if cur.Len() == 0 {
			return fmt.Errorf("valueutil: path %q has an empty segment", path)
		}
		segs = append(segs, PathSegment{Key: cur.String()})
		cur.Reset()
		return nil
	}

	i := 0
	for i < len(path) {
		c := path[i]
		switch c {
		case '.':
			if err := flushKey(); err != nil {
				return nil, err
			}
			i++
		case '[':
			if cur.Len() > 0 {
				if err := flushKey(); err != nil {
					return nil, err
				}
			}
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("valueutil: path %q has an unterminated '['", path)
			}
			idxStr := path[i+1 : i+end]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, fmt.Errorf("valueutil: path %q has a non-integer index %q", path, idxStr)
			}
			segs = append(segs, PathSegment{Index: idx, IsIndex: true})
			i += end + 1
			if i < len(path) && path[i] == '.' {
				i++
			}
		default:
			cur.WriteByte(c)
			i++
		}
	}
	if cur.Len() > 0 {
		if err := flushKey(); err != nil {
			return nil, err
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("valueutil: path %q has no segments", path)
	}
	return segs, nil
}

// String renders the path back in dot/bracket form.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
	}
	return b.String()
}

// Get reads the value at path from root. The second return is false if any
// intermediate container is absent, nil, or not indexable the way the
// segment requires (e.g. indexing into a map with a slice index) — Get
// never errors, it reports "not found" instead, since the matcher and
// cursor need a total read.
func Get(root any, path string) (any, bool) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	return GetPath(root, segs)
}

// GetPath is Get with a pre-parsed Path, letting hot callers (the matcher,
// the index providers) skip re-parsing the same field path per item.
func GetPath(root any, segs Path) (any, bool) {
	cur := root
	for _, seg := range segs {
		if cur == nil {
			return nil, false
		}
		if seg.IsIndex {
			slice, ok := toSlice(cur)
			if !ok || seg.Index < 0 || seg.Index >= len(slice) {
				return nil, false
			}
			cur = slice[seg.Index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg.Key]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// Set writes value at path within root, creating intermediate maps as
// needed. Set refuses to grow slices (spec.md scopes path writes to
// modifier operators, which have their own array-growth semantics); if an
// intermediate segment indexes past the end of an existing slice, Set
// returns an error.
func Set(root map[string]any, path string, value any) error {
	segs, err := ParsePath(path)
	if err != nil {
		return err
	}
	return SetPath(root, segs, value)
}

// SetPath is Set with a pre-parsed Path.
func SetPath(root map[string]any, segs Path, value any) error {
	if len(segs) == 0 {
		return fmt.Errorf("valueutil: empty path")
	}
	cur := any(root)
	for i, seg := range segs {
		last := i == len(segs)-1
		if seg.IsIndex {
			slice, ok := toSlice(cur)
			if !ok {
				return fmt.Errorf("valueutil: cannot index non-array at %q", Path(segs[:i+1]).String())
			}
			if seg.Index < 0 || seg.Index >= len(slice) {
				return fmt.Errorf("valueutil: index %d out of range at %q", seg.Index, Path(segs[:i+1]).String())
			}
			if last {
				slice[seg.Index] = value
				return nil
			}
			cur = slice[seg.Index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return fmt.Errorf("valueutil: cannot set field on non-object at %q", Path(segs[:i+1]).String())
		}
		if last {
			m[seg.Key] = value
			return nil
		}
		next, exists := m[seg.Key]
		if !exists || next == nil {
			next = map[string]any{}
			m[seg.Key] = next
		}
		cur = next
	}
	return nil
}

// Unset removes the field named by the final path segment, if present. It
// is a no-op if any intermediate segment is absent.
func Unset(root map[string]any, path string) error {
	segs, err := ParsePath(path)
	if err != nil {
		return err
	}
	if len(segs) == 1 {
		if segs[0].IsIndex {
			return fmt.Errorf("valueutil: cannot unset an array index")
		}
		delete(root, segs[0].Key)
		return nil
	}
	parent, ok := GetPath(root, segs[:len(segs)-1])
	if !ok {
		return nil
	}
	last := segs[len(segs)-1]
	if last.IsIndex {
		return nil
	}
	if m, ok := parent.(map[string]any); ok {
		delete(m, last.Key)
	}
	return nil
}
