package observe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id string, fields ...any) map[string]any {
	m := map[string]any{"id": id}
	for i := 0; i+1 < len(fields); i += 2 {
		key, _ := fields[i].(string)
		m[key] = fields[i+1]
	}
	return m
}

func TestObserverAddedAndRemoved(t *testing.T) {
	o := New()
	o.Seed(nil)

	var added, removed []string
	o.AddListener(Added, func(ev Event) { added = append(added, ev.ID) }, ListenOptions{})
	o.AddListener(Removed, func(ev Event) { removed = append(removed, ev.ID) }, ListenOptions{})

	o.Update([]map[string]any{item("a", "x", 1), item("b", "x", 2)})
	assert.Equal(t, []string{"a", "b"}, added)
	assert.Empty(t, removed)

	o.Update([]map[string]any{item("b", "x", 2)})
	assert.Equal(t, []string{"a"}, removed)
}

func TestObserverChangedAndChangedField(t *testing.T) {
	o := New()
	o.Seed([]map[string]any{item("a", "x", 1, "y", "hi")})

	var changed int
	var fields []string
	o.AddListener(Changed, func(ev Event) { changed++ }, ListenOptions{})
	o.AddListener(ChangedField, func(ev Event) { fields = append(fields, ev.Field) }, ListenOptions{})

	o.Update([]map[string]any{item("a", "x", 2, "y", "hi")})
	require.Equal(t, 1, changed)
	assert.Equal(t, []string{"x"}, fields)
}

func TestObserverMovedBefore(t *testing.T) {
	o := New()
	o.Seed([]map[string]any{item("a"), item("b")})

	var moved []string
	o.AddListener(MovedBefore, func(ev Event) { moved = append(moved, ev.ID) }, ListenOptions{})

	o.Update([]map[string]any{item("b"), item("a")})
	assert.ElementsMatch(t, []string{"a", "b"}, moved)
}

func TestAddListenerReplaysInitialAdded(t *testing.T) {
	o := New()
	o.Seed([]map[string]any{item("a"), item("b")})

	var seen []string
	o.AddListener(Added, func(ev Event) { seen = append(seen, ev.ID) }, ListenOptions{})
	assert.Equal(t, []string{"a", "b"}, seen)

	var seenSkip []string
	o.AddListener(Added, func(ev Event) { seenSkip = append(seenSkip, ev.ID) }, ListenOptions{SkipInitial: true})
	assert.Empty(t, seenSkip)
}

func TestUnsubscribe(t *testing.T) {
	o := New()
	o.Seed(nil)

	var count int
	unsub := o.AddListener(Added, func(ev Event) { count++ }, ListenOptions{})
	o.Update([]map[string]any{item("a")})
	require.Equal(t, 1, count)

	unsub()
	o.Update([]map[string]any{item("a"), item("b")})
	assert.Equal(t, 1, count)
}
