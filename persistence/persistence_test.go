package persistence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	mu      sync.Mutex
	loaded  Payload
	saves   []Changeset
	onChange func(Payload)
}

func (f *fakeAdapter) Register(onChange func(Payload)) error {
	f.onChange = onChange
	return nil
}

func (f *fakeAdapter) Load() (Payload, error) { return f.loaded, nil }

func (f *fakeAdapter) Save(current []map[string]any, changes Changeset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, changes)
	return nil
}

func (f *fakeAdapter) Unregister() error { return nil }

func TestCoordinatorStartLoadsInitialState(t *testing.T) {
	adapter := &fakeAdapter{loaded: Payload{Items: []map[string]any{{"id": "1"}}}}
	var loaded Payload
	c := New(adapter, func(p Payload) { loaded = p }, nil, nil)

	require.NoError(t, c.Start())
	assert.Len(t, loaded.Items, 1)
}

func TestCoordinatorSequentialSavesFlushSeparately(t *testing.T) {
	adapter := &fakeAdapter{}
	c := New(adapter, nil, nil, nil)

	c.Save([]map[string]any{{"id": "1"}}, Changeset{Added: []map[string]any{{"id": "1"}}})
	c.Save([]map[string]any{{"id": "1"}, {"id": "2"}}, Changeset{Added: []map[string]any{{"id": "2"}}})

	assert.Equal(t, int64(2), c.Metrics().TotalSaves())
	require.Len(t, adapter.saves, 2)
}

func TestCoordinatorOnChangeDelivered(t *testing.T) {
	adapter := &fakeAdapter{}
	var changed Payload
	c := New(adapter, nil, func(p Payload) { changed = p }, nil)
	require.NoError(t, c.Start())

	adapter.onChange(Payload{Items: []map[string]any{{"id": "external"}}})
	assert.Len(t, changed.Items, 1)
}

func TestDiffChanges(t *testing.T) {
	old := []map[string]any{{"id": "1", "x": 1}, {"id": "2", "x": 2}}
	next := []map[string]any{{"id": "1", "x": 99}, {"id": "3", "x": 3}}

	cs, err := DiffChanges(old, next)
	require.NoError(t, err)
	assert.Len(t, cs.Added, 1)
	assert.Len(t, cs.Changed, 1)
	assert.Equal(t, []string{"2"}, cs.Removed)
}
