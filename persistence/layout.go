package persistence

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch"
)

// DiffChanges computes the Changeset from oldItems to newItems, keyed by
// id: ids only in newItems are Added, ids only in oldItems are Removed,
// and ids in both are Changed when the RFC 7386 JSON Merge Patch between
// the two versions is non-empty. It serves adapters that persist the
// "{changes}" wire layout
// instead of a full "{items}" snapshot — mirroring the teacher's
// Diff.JSONPatch field in nodestorage/v2/storage.go, generalized from one
// document to a whole collection's worth.
func DiffChanges(oldItems, newItems []map[string]any) (Changeset, error) {
	oldByID := indexByID(oldItems)
	newByID := indexByID(newItems)

	cs := Changeset{}
	for id, newItem := range newByID {
		oldItem, existed := oldByID[id]
		if !existed {
			cs.Added = append(cs.Added, newItem)
			continue
		}
		patch, err := fieldPatch(oldItem, newItem)
		if err != nil {
			return Changeset{}, err
		}
		if len(patch) > 2 { // "{}" means no diff
			cs.Changed = append(cs.Changed, newItem)
		}
	}
	for id := range oldByID {
		if _, ok := newByID[id]; !ok {
			cs.Removed = append(cs.Removed, id)
		}
	}
	return cs, nil
}

// fieldPatch returns the RFC 7386 JSON Merge Patch transforming oldItem
// into newItem.
func fieldPatch(oldItem, newItem map[string]any) ([]byte, error) {
	oldJSON, err := json.Marshal(oldItem)
	if err != nil {
		return nil, err
	}
	newJSON, err := json.Marshal(newItem)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.CreateMergePatch(oldJSON, newJSON)
	if err != nil {
		return nil, err
	}
	return patch, nil
}

func indexByID(items []map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(items))
	for _, item := range items {
		if id, ok := item["id"].(string); ok {
			out[id] = item
		}
	}
	return out
}
