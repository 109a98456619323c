package signaldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldb-go/signaldb/persistence"
)

// fakePersistenceAdapter is a minimal in-memory persistence.Adapter, just
// enough to exercise Collection.AttachPersistence's load-then-save
// protocol without a real backend.
type fakePersistenceAdapter struct {
	preload []map[string]any
	saves   []persistence.Changeset
	current [][]map[string]any
}

func (f *fakePersistenceAdapter) Register(onChange func(persistence.Payload)) error { return nil }

func (f *fakePersistenceAdapter) Load() (persistence.Payload, error) {
	return persistence.Payload{Items: f.preload}, nil
}

func (f *fakePersistenceAdapter) Save(current []map[string]any, changes persistence.Changeset) error {
	f.saves = append(f.saves, changes)
	f.current = append(f.current, current)
	return nil
}

func (f *fakePersistenceAdapter) Unregister() error { return nil }

// TestPersistencePreloadThenInsertIsTransmittedInOrder ports spec.md
// scenario 6: preloading one item, attaching persistence, then inserting
// a second item, the adapter observes both in insertion order, and the
// init/transmitted lifecycle events fire around those two steps.
func TestPersistencePreloadThenInsertIsTransmittedInOrder(t *testing.T) {
	adapter := &fakePersistenceAdapter{preload: []map[string]any{{"id": "1", "name": "John"}}}
	coll := New()

	var seen []persistence.LifecycleKind
	coll.OnPersistence(func(ev persistence.LifecycleEvent) { seen = append(seen, ev.Kind) })

	require.NoError(t, coll.AttachPersistence(adapter))
	require.Contains(t, seen, persistence.Init, "scenario 6 awaits persistence.init before inserting")

	_, insertErr := coll.Insert(map[string]any{"id": "2", "name": "Jane"})
	require.NoError(t, insertErr)
	require.Contains(t, seen, persistence.Transmitted, "scenario 6 awaits persistence.transmitted after inserting")

	require.NotEmpty(t, adapter.current)
	last := adapter.current[len(adapter.current)-1]
	require.Len(t, last, 2)
	assert.Equal(t, "1", last[0]["id"])
	assert.Equal(t, "2", last[1]["id"])

	require.NotEmpty(t, adapter.saves)
	lastChanges := adapter.saves[len(adapter.saves)-1]
	require.Len(t, lastChanges.Added, 1)
	assert.Equal(t, "2", lastChanges.Added[0]["id"])
}

// TestPersistenceLifecycleEventOrder asserts the startup protocol's event
// ordering: pullStarted before everything else, received/pullCompleted/init
// in that relative order once the preload has been applied.
func TestPersistenceLifecycleEventOrder(t *testing.T) {
	adapter := &fakePersistenceAdapter{}
	coll := New()

	var seen []persistence.LifecycleKind
	coll.OnPersistence(func(ev persistence.LifecycleEvent) { seen = append(seen, ev.Kind) })

	require.NoError(t, coll.AttachPersistence(adapter))

	require.Len(t, seen, 4)
	assert.Equal(t, persistence.PullStarted, seen[0])
	assert.Equal(t, persistence.Received, seen[1])
	assert.Equal(t, persistence.PullCompleted, seen[2])
	assert.Equal(t, persistence.Init, seen[3])
}
