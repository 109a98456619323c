package valueutil

// Fields is a projection spec: field name to 0 (exclude) or 1 (include).
type Fields map[string]int

// Project applies fields to item per spec.md's rules: a fields map that
// only contains 0s excludes those fields (all-exclude mode); a fields map
// that contains any 1 retains only the included entries (any-include
// mode — mixed 0/1 entries are treated as include-mode, per spec.md "mixed
// modes retain only include entries"); "id" is implicitly included unless
// explicitly excluded with {id: 0}.
func Project(item map[string]any, fields Fields) map[string]any {
	if len(fields) == 0 {
		return CloneItem(item)
	}

	includeMode := false
	for _, v := range fields {
		if v == 1 {
			includeMode = true
			break
		}
	}

	out := map[string]any{}
	if includeMode {
		idMode, idListed := fields["id"]
		idExcluded := idListed && idMode == 0
		for field, mode := range fields {
			if mode != 1 {
				continue
			}
			if v, ok := Get(item, field); ok {
				_ = SetPath(out, Path{{Key: field}}, v)
			}
		}
		if !idExcluded {
			if v, ok := item["id"]; ok {
				out["id"] = v
			}
		}
		return out
	}

	// All-exclude mode: start from a full clone and delete excluded fields.
	out = CloneItem(item)
	for field, mode := range fields {
		if mode == 0 {
			delete(out, field)
		}
	}
	return out
}
