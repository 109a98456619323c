package signaldb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldb-go/signaldb/selector"
)

func TestRuntimeRegisterAndLookup(t *testing.T) {
	rt := NewRuntime()
	coll, err := NewNamed(rt, "users")
	require.NoError(t, err)

	found, ok := rt.Lookup("users")
	require.True(t, ok)
	assert.Same(t, coll, found)

	_, err = NewNamed(rt, "users")
	assert.True(t, errors.Is(err, ErrDuplicateCollectionName))
}

func TestRuntimeForgetAllowsReuseOfName(t *testing.T) {
	rt := NewRuntime()
	_, err := NewNamed(rt, "users")
	require.NoError(t, err)

	rt.Forget("users")
	_, err = NewNamed(rt, "users")
	require.NoError(t, err)
}

func TestRuntimeBatchCoalescesAcrossRegisteredCollections(t *testing.T) {
	rt := NewRuntime()
	a, err := NewNamed(rt, "a")
	require.NoError(t, err)
	b, err := NewNamed(rt, "b")
	require.NoError(t, err)

	var aNotified, bNotified int
	a.On(EventAdded, func(Event) { aNotified++ })
	b.On(EventAdded, func(Event) { bNotified++ })

	err = rt.Batch(func() error {
		if _, e := a.Insert(map[string]any{"id": "1"}); e != nil {
			return e
		}
		if _, e := b.Insert(map[string]any{"id": "1"}); e != nil {
			return e
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, aNotified)
	assert.Equal(t, 1, bNotified)

	_, err = a.Find(selector.F(map[string]any{}), FindOptions{}).Fetch()
	require.NoError(t, err)
}
