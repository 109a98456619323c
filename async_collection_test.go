package signaldb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldb-go/signaldb/selector"
	"github.com/signaldb-go/signaldb/storage"
	"github.com/signaldb-go/signaldb/storage/memory"
)

func TestAsyncCollectionInsertAndFind(t *testing.T) {
	ctx := context.Background()
	coll := NewAsyncCollection(memory.New())
	require.NoError(t, coll.Setup(ctx))

	_, err := coll.Insert(ctx, map[string]any{"id": "1", "name": "John"})
	require.NoError(t, err)
	_, err = coll.Insert(ctx, map[string]any{"id": "2", "name": "Jane"})
	require.NoError(t, err)

	rec, err := coll.Find(ctx, selector.F(map[string]any{"name": "John"}), FindOptions{})
	require.NoError(t, err)
	state, items, qerr := rec.Snapshot()
	require.NoError(t, qerr)
	assert.Equal(t, QueryComplete, state)
	require.Len(t, items, 1)
	assert.Equal(t, "John", items[0]["name"])
}

func TestAsyncCollectionQueryReexecutesOnMutation(t *testing.T) {
	ctx := context.Background()
	coll := NewAsyncCollection(memory.New())
	require.NoError(t, coll.Setup(ctx))

	_, err := coll.Insert(ctx, map[string]any{"id": "1", "name": "John"})
	require.NoError(t, err)

	rec, err := coll.Find(ctx, selector.F(map[string]any{"name": "John"}), FindOptions{})
	require.NoError(t, err)
	_, items, _ := rec.Snapshot()
	require.Len(t, items, 1)

	_, err = coll.Insert(ctx, map[string]any{"id": "2", "name": "John"})
	require.NoError(t, err)

	_, items, _ = rec.Snapshot()
	assert.Len(t, items, 2)
}

func TestAsyncCollectionUsesIndexAssistedPlan(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New()
	require.NoError(t, adapter.CreateIndex(ctx, storage.IndexSpec{Field: "name"}))

	coll := NewAsyncCollection(adapter)
	require.NoError(t, coll.Setup(ctx))

	_, err := coll.Insert(ctx, map[string]any{"id": "1", "name": "John"})
	require.NoError(t, err)
	_, err = coll.Insert(ctx, map[string]any{"id": "2", "name": "Jane"})
	require.NoError(t, err)

	rec, err := coll.Find(ctx, selector.F(map[string]any{"name": "John"}), FindOptions{})
	require.NoError(t, err)
	_, items, qerr := rec.Snapshot()
	require.NoError(t, qerr)
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0]["id"])
}
