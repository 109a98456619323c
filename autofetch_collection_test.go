package signaldb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldb-go/signaldb/config"
	"github.com/signaldb-go/signaldb/selector"
	"github.com/signaldb-go/signaldb/storage/memory"
)

func TestAutoFetchHydratesOnFirstRegister(t *testing.T) {
	ctx := context.Background()
	var fetchCalls int
	fetch := func(ctx context.Context, sel *selector.Selector) ([]map[string]any, error) {
		fetchCalls++
		return []map[string]any{{"id": "1", "name": "John"}}, nil
	}

	coll := NewAutoFetchCollection(memory.New(), fetch, []config.Option{})
	require.NoError(t, coll.Setup(ctx))

	sel := selector.F(map[string]any{"name": "John"})
	rec, err := coll.RegisterQuery(ctx, sel, FindOptions{})
	require.NoError(t, err)
	_, items, qerr := rec.Snapshot()
	require.NoError(t, qerr)
	require.Len(t, items, 1)
	assert.Equal(t, 1, fetchCalls)

	// A second registration of the same selector reuses the hydrated
	// documents rather than fetching remotely again.
	_, err = coll.RegisterQuery(ctx, sel, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, fetchCalls)
}

func TestAutoFetchPurgesAfterLastUnregisterButNotCRUDInserts(t *testing.T) {
	ctx := context.Background()
	fetch := func(ctx context.Context, sel *selector.Selector) ([]map[string]any, error) {
		return []map[string]any{{"id": "1", "name": "John"}}, nil
	}

	coll := NewAutoFetchCollection(memory.New(), fetch, []config.Option{}, WithPurgeDelay(0))
	require.NoError(t, coll.Setup(ctx))

	// A plain CRUD insert, never auto-loaded.
	_, err := coll.Insert(ctx, map[string]any{"id": "2", "name": "John"})
	require.NoError(t, err)

	sel := selector.F(map[string]any{"name": "John"})
	_, err = coll.RegisterQuery(ctx, sel, FindOptions{})
	require.NoError(t, err)

	coll.UnregisterQuery(sel, FindOptions{})

	rec, err := coll.AsyncCollection.Find(ctx, selector.F(map[string]any{}), FindOptions{})
	require.NoError(t, err)
	_, items, qerr := rec.Snapshot()
	require.NoError(t, qerr)
	require.Len(t, items, 1, "auto-loaded doc should be purged, CRUD-inserted doc kept")
	assert.Equal(t, "2", items[0]["id"])
}

func TestAutoFetchPurgeDelayPostponesRemoval(t *testing.T) {
	ctx := context.Background()
	fetch := func(ctx context.Context, sel *selector.Selector) ([]map[string]any, error) {
		return []map[string]any{{"id": "1", "name": "John"}}, nil
	}

	coll := NewAutoFetchCollection(memory.New(), fetch, []config.Option{}, WithPurgeDelay(50*time.Millisecond))
	require.NoError(t, coll.Setup(ctx))

	sel := selector.F(map[string]any{"name": "John"})
	_, err := coll.RegisterQuery(ctx, sel, FindOptions{})
	require.NoError(t, err)
	coll.UnregisterQuery(sel, FindOptions{})

	rec, err := coll.AsyncCollection.Find(ctx, selector.F(map[string]any{}), FindOptions{})
	require.NoError(t, err)
	_, items, _ := rec.Snapshot()
	assert.Len(t, items, 1, "document must still be present before the purge delay elapses")

	time.Sleep(100 * time.Millisecond)
	rec2, err := coll.AsyncCollection.Find(ctx, selector.F(map[string]any{}), FindOptions{})
	require.NoError(t, err)
	_, items2, _ := rec2.Snapshot()
	assert.Len(t, items2, 0, "document must be purged once the delay elapses")
}
