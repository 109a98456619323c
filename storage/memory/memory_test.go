package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldb-go/signaldb/sderrors"
	"github.com/signaldb-go/signaldb/storage"
)

func TestAdapterInsertReadRemove(t *testing.T) {
	ctx := context.Background()
	a := New()
	require.NoError(t, a.Setup(ctx))

	require.NoError(t, a.Insert(ctx, map[string]any{"id": "1", "status": "open"}))
	require.NoError(t, a.Insert(ctx, map[string]any{"id": "2", "status": "closed"}))

	err := a.Insert(ctx, map[string]any{"id": "1", "status": "open"})
	var dup *sderrors.DuplicateIDError
	assert.ErrorAs(t, err, &dup)

	items, err := a.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, a.Remove(ctx, "1"))
	items, err = a.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestAdapterReadIndex(t *testing.T) {
	ctx := context.Background()
	a := New()
	require.NoError(t, a.CreateIndex(ctx, storage.IndexSpec{Field: "status"}))
	require.NoError(t, a.Setup(ctx))
	require.NoError(t, a.Insert(ctx, map[string]any{"id": "1", "status": "open"}))
	require.NoError(t, a.Insert(ctx, map[string]any{"id": "2", "status": "closed"}))

	ids, err := a.ReadIndex(ctx, "status", "open")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)
}

func TestCreateIndexAfterSetupRejected(t *testing.T) {
	ctx := context.Background()
	a := New()
	require.NoError(t, a.Setup(ctx))
	err := a.CreateIndex(ctx, storage.IndexSpec{Field: "status"})
	assert.ErrorIs(t, err, sderrors.ErrIndexAfterSetup)
}
