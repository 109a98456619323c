package signaldb

import "github.com/signaldb-go/signaldb/valueutil"

// FindOptions controls a Cursor's post-match pipeline: sort, then skip,
// then limit, then project, exactly the order spec.md §4.6 names.
type FindOptions struct {
	Sort   []valueutil.SortKey
	Fields valueutil.Fields
	Skip   int
	Limit  int // 0 means unlimited

	// FieldTracking, when true, stops Fetch and Count from registering a
	// whole-result reactive dependency; per-field dependencies come from
	// the FieldAccessor wrappers FetchTracked returns. Fetch itself still
	// returns plain maps.
	FieldTracking bool

	// Transform is applied to each item individually after projection.
	Transform func(map[string]any) map[string]any
	// TransformAll is applied to the whole result slice before Transform,
	// letting a host batch-resolve associated data (solving the N+1
	// problem a per-item Transform would otherwise cause).
	TransformAll func([]map[string]any) []map[string]any
}

// UpdateOptions controls updateOne/updateMany/replaceOne's upsert
// behavior.
type UpdateOptions struct {
	Upsert bool
}
