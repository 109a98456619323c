package signaldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldb-go/signaldb/config"
	"github.com/signaldb-go/signaldb/modifier"
	"github.com/signaldb-go/signaldb/observe"
	"github.com/signaldb-go/signaldb/reactivity"
	"github.com/signaldb-go/signaldb/selector"
)

func TestCursorForEachAndMap(t *testing.T) {
	coll := New()
	_, err := coll.Insert(map[string]any{"id": "1", "n": 1})
	require.NoError(t, err)
	_, err = coll.Insert(map[string]any{"id": "2", "n": 2})
	require.NoError(t, err)

	var seen []int
	err = coll.Find(selector.F(map[string]any{}), FindOptions{}).ForEach(func(item map[string]any) error {
		n, _ := item["n"].(int)
		seen = append(seen, n)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, seen)

	doubled, err := coll.Find(selector.F(map[string]any{}), FindOptions{}).Map(func(item map[string]any) any {
		n, _ := item["n"].(int)
		return n * 2
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{2, 4}, doubled)
}

func TestFieldAccessorOnlyNotifiesOnTrackedFieldChange(t *testing.T) {
	coll := New(config.WithReactivity(reactivity.Channel{}))
	_, err := coll.Insert(map[string]any{"id": "1", "name": "John", "age": 30})
	require.NoError(t, err)

	var invalidations int
	comp := reactivity.NewComputation()
	run := func() {
		reactivity.Run(comp, func() {
			accessors, ferr := coll.Find(selector.F(map[string]any{}), FindOptions{FieldTracking: true}).FetchTracked()
			require.NoError(t, ferr)
			require.Len(t, accessors, 1)
			accessors[0].Get("name")
		})
	}
	run()

	_, err = coll.UpdateOne(selector.F(map[string]any{"id": "1"}), modifier.Modifier{"$set": map[string]any{"age": 31}}, UpdateOptions{})
	require.NoError(t, err)

	select {
	case <-comp.Invalidated():
		invalidations++
	default:
	}
	assert.Equal(t, 0, invalidations, "changing an untracked field must not invalidate")

	_, err = coll.UpdateOne(selector.F(map[string]any{"id": "1"}), modifier.Modifier{"$set": map[string]any{"name": "Jane"}}, UpdateOptions{})
	require.NoError(t, err)

	select {
	case <-comp.Invalidated():
		invalidations++
	default:
	}
	assert.Equal(t, 1, invalidations, "changing a tracked field must invalidate")
}

func TestChangeObserverEmitsAddedAndChanged(t *testing.T) {
	coll := New()
	_, err := coll.Insert(map[string]any{"id": "1", "name": "John"})
	require.NoError(t, err)

	obs, err := coll.Find(selector.F(map[string]any{}), FindOptions{}).ObserveChanges()
	require.NoError(t, err)
	defer obs.Stop()

	var added, changed int
	obs.OnAdded(func(ev observe.Event) { added++ }, true)
	obs.OnChanged(func(ev observe.Event) { changed++ })

	_, err = coll.Insert(map[string]any{"id": "2", "name": "Jane"})
	require.NoError(t, err)
	_, err = coll.UpdateOne(selector.F(map[string]any{"id": "1"}), modifier.Modifier{"$set": map[string]any{"name": "Jay"}}, UpdateOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, added)
	assert.Equal(t, 1, changed)
}
