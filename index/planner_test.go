package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldb-go/signaldb/selector"
)

func allIDsFrom(items []map[string]any) func() IDSet {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, _ := item["id"].(string)
		ids = append(ids, id)
	}
	return func() IDSet { return NewIDSet(ids...) }
}

func buildProviders(items []map[string]any, fields ...string) []Provider {
	providers := make([]Provider, 0, len(fields))
	for _, f := range fields {
		p := NewMemoryProvider(f)
		p.Rebuild(items)
		providers = append(providers, p)
	}
	return providers
}

func TestPlannerFlatFieldsNarrowAndStripResidual(t *testing.T) {
	items := []map[string]any{
		{"id": "1", "a": 1, "b": 2},
		{"id": "2", "a": 1, "b": 9},
		{"id": "3", "a": 9, "b": 2},
	}
	planner, err := NewPlanner(buildProviders(items, "a", "b")...)
	require.NoError(t, err)

	res, err := planner.Plan(selector.F(map[string]any{"a": 1, "b": 2}), allIDsFrom(items))
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, NewIDSet("1"), res.IDs)
	assert.True(t, selector.IsEmpty(res.Residual), "both fields indexed and exact, nothing left to re-check")
}

func TestPlannerAndFoldsChildrenAndKeepsUnindexedResidual(t *testing.T) {
	items := []map[string]any{
		{"id": "1", "a": 1, "c": 3},
		{"id": "2", "a": 1, "c": 99},
	}
	planner, err := NewPlanner(buildProviders(items, "a")...)
	require.NoError(t, err)

	sel := selector.And(selector.F(map[string]any{"a": 1}), selector.F(map[string]any{"c": 3}))
	res, err := planner.Plan(sel, allIDsFrom(items))
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, NewIDSet("1", "2"), res.IDs, "c is unindexed so the planner can't narrow on it")
	require.NotNil(t, res.Residual)
	assert.False(t, selector.IsEmpty(res.Residual))
	for _, item := range items {
		want := item["c"] == 3
		assert.Equal(t, want, selector.Match(item, res.Residual), "matcher must re-check the unindexed field")
	}
}

func TestPlannerOrUnionsBranchesAndResidualRejectsNonMembers(t *testing.T) {
	// Mirrors a reported soundness bug: indexes on a and b, query
	// Or=[{a:1}, {b:2,c:3}] with c unindexed. An item only reachable via
	// the b-branch's candidate set, but not actually satisfying either
	// original branch, must not survive the residual re-check.
	items := []map[string]any{
		{"id": "1", "a": 1, "b": 5, "c": 0},
		{"id": "2", "a": 0, "b": 2, "c": 3},
		{"id": "3", "a": 0, "b": 2, "c": 99},
	}
	planner, err := NewPlanner(buildProviders(items, "a", "b")...)
	require.NoError(t, err)

	sel := selector.Or(
		selector.F(map[string]any{"a": 1}),
		selector.F(map[string]any{"b": 2, "c": 3}),
	)
	res, err := planner.Plan(sel, allIDsFrom(items))
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, NewIDSet("1", "2", "3"), res.IDs, "the union of both branches' index candidates")

	for _, item := range items {
		id, _ := item["id"].(string)
		if _, ok := res.IDs[id]; !ok {
			continue
		}
		got := selector.Match(item, res.Residual)
		want := selector.Match(item, sel)
		assert.Equal(t, want, got, "residual re-check must agree with the full selector for id %s", id)
	}
	assert.True(t, selector.Match(items[1], res.Residual), "id 2 truly satisfies the b branch")
	assert.False(t, selector.Match(items[2], res.Residual), "id 3 is only a candidate via b's bucket, not a true match")
}

func TestPlannerOrAllBranchesExactDropsResidualEntirely(t *testing.T) {
	items := []map[string]any{
		{"id": "1", "a": 1, "b": 0},
		{"id": "2", "a": 0, "b": 2},
		{"id": "3", "a": 9, "b": 9},
	}
	planner, err := NewPlanner(buildProviders(items, "a", "b")...)
	require.NoError(t, err)

	sel := selector.Or(
		selector.F(map[string]any{"a": 1}),
		selector.F(map[string]any{"b": 2}),
	)
	res, err := planner.Plan(sel, allIDsFrom(items))
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, NewIDSet("1", "2"), res.IDs)
	assert.True(t, selector.IsEmpty(res.Residual), "every branch was indexed exactly; union membership alone is sufficient")
}

func TestPlannerOrWithNonIndexFieldRevertsToFullScanResidual(t *testing.T) {
	items := []map[string]any{
		{"id": "1", "a": 1, "z": "x"},
		{"id": "2", "a": 0, "z": "y"},
	}
	planner, err := NewPlanner(buildProviders(items, "a")...)
	require.NoError(t, err)

	// The second branch constrains only an unindexed field, so no provider
	// can answer it at all: hasNonIndexField reversion must discard any
	// partial $or narrowing and hand the whole original $or to the matcher.
	sel := selector.Or(
		selector.F(map[string]any{"a": 1}),
		selector.F(map[string]any{"z": "y"}),
	)
	res, err := planner.Plan(sel, allIDsFrom(items))
	require.NoError(t, err)
	assert.False(t, res.Matched, "no provider covers the whole $or, so the planner defers to a full scan")
	assert.Equal(t, sel, res.Residual)
}

func TestPlannerMixedFullyAndPartiallyCoveredOrBranches(t *testing.T) {
	items := []map[string]any{
		{"id": "1", "a": 1, "b": 2, "c": 3},
		{"id": "2", "a": 1, "b": 9, "c": 9},
		{"id": "3", "a": 0, "b": 2, "c": 3},
		{"id": "4", "a": 0, "b": 2, "c": 4},
	}
	planner, err := NewPlanner(buildProviders(items, "a", "b")...)
	require.NoError(t, err)

	// Branch 1 ({a:1}) is fully index-exact; branch 2 ({b:2,c:3}) is only
	// partially covered (c is unindexed), so the residual $or must mix an
	// original-selector branch with a partial-residual branch.
	sel := selector.Or(
		selector.F(map[string]any{"a": 1}),
		selector.F(map[string]any{"b": 2, "c": 3}),
	)
	res, err := planner.Plan(sel, allIDsFrom(items))
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, NewIDSet("1", "2", "3", "4"), res.IDs)

	for _, item := range items {
		id, _ := item["id"].(string)
		want := selector.Match(item, sel)
		got := selector.Match(item, res.Residual)
		assert.Equal(t, want, got, "residual disagreement for id %s", id)
	}
}

func TestPlannerEmptySelectorIsUnmatched(t *testing.T) {
	planner, err := NewPlanner(NewMemoryProvider("a"))
	require.NoError(t, err)

	res, err := planner.Plan(nil, func() IDSet { return IDSet{} })
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestNewPlannerRejectsMixedAsyncModes(t *testing.T) {
	sync := NewMemoryProvider("a")
	async := NewAsyncProvider(nil, "b", nil)
	_, err := NewPlanner(sync, async)
	assert.Error(t, err)
}
