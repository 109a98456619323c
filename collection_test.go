package signaldb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signaldb-go/signaldb/config"
	"github.com/signaldb-go/signaldb/modifier"
	"github.com/signaldb-go/signaldb/reactivity"
	"github.com/signaldb-go/signaldb/sderrors"
	"github.com/signaldb-go/signaldb/selector"
)

func TestFindMatchesFlatSelector(t *testing.T) {
	coll := New()
	_, err := coll.Insert(map[string]any{"id": "1", "name": "John"})
	require.NoError(t, err)
	_, err = coll.Insert(map[string]any{"id": "2", "name": "Jane"})
	require.NoError(t, err)
	_, err = coll.Insert(map[string]any{"id": "3", "name": "John"})
	require.NoError(t, err)

	items, err := coll.Find(selector.F(map[string]any{"name": "John"}), FindOptions{}).Fetch()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0]["id"])
	assert.Equal(t, "3", items[1]["id"])
}

func TestUpdateManyRenamesMatchedItems(t *testing.T) {
	coll := New()
	for _, doc := range []map[string]any{
		{"id": "1", "name": "John"},
		{"id": "2", "name": "Jane"},
		{"id": "3", "name": "John"},
	} {
		_, err := coll.Insert(doc)
		require.NoError(t, err)
	}

	n, err := coll.UpdateMany(selector.F(map[string]any{"name": "John"}), modifier.Modifier{"$set": map[string]any{"name": "Jay"}}, UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err := coll.Find(selector.F(map[string]any{"name": "Jay"}), FindOptions{}).Fetch()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Jay", items[0]["name"])
	assert.Equal(t, "Jay", items[1]["name"])
}

func TestUpdateManyOnNoMatchReturnsZero(t *testing.T) {
	coll := New()
	n, err := coll.UpdateMany(selector.F(map[string]any{"name": "nobody"}), modifier.Modifier{"$set": map[string]any{"name": "x"}}, UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpdateOneSameIDDoesNotThrow(t *testing.T) {
	coll := New()
	_, err := coll.Insert(map[string]any{"id": "1", "name": "John"})
	require.NoError(t, err)

	n, err := coll.UpdateOne(selector.F(map[string]any{"id": "1"}), modifier.Modifier{"$set": map[string]any{"id": "1"}}, UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateOneRenameToExistingIDIsDuplicateID(t *testing.T) {
	coll := New()
	_, err := coll.Insert(map[string]any{"id": "1", "name": "John"})
	require.NoError(t, err)
	_, err = coll.Insert(map[string]any{"id": "2", "name": "Jane"})
	require.NoError(t, err)

	_, err = coll.UpdateOne(selector.F(map[string]any{"id": "1"}), modifier.Modifier{"$set": map[string]any{"id": "2"}}, UpdateOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sderrors.ErrDuplicateID))
	var dup *sderrors.DuplicateIDError
	assert.True(t, errors.As(err, &dup))
}

func TestFindWithSkipAndLimitOnArrayField(t *testing.T) {
	coll := New()
	_, err := coll.Insert(map[string]any{"id": "1", "tags": []any{"fruit", "red"}})
	require.NoError(t, err)
	_, err = coll.Insert(map[string]any{"id": "2", "tags": []any{"fruit", "green"}})
	require.NoError(t, err)
	_, err = coll.Insert(map[string]any{"id": "3", "tags": []any{"fruit", "red"}})
	require.NoError(t, err)

	redCount, err := coll.Find(selector.F(map[string]any{"tags": "red"}), FindOptions{}).Count()
	require.NoError(t, err)
	assert.Equal(t, 2, redCount)

	pageCount, err := coll.Find(selector.F(map[string]any{"tags": "fruit"}), FindOptions{Skip: 1, Limit: 1}).Count()
	require.NoError(t, err)
	assert.Equal(t, 1, pageCount)
}

// TestReactiveCountRerunsOnInsert ports spec.md scenario 5: observing
// find({name:'John'}).count() inside a reactive effect, the effect runs
// twice after an insert and the last observed value is 1.
func TestReactiveCountRerunsOnInsert(t *testing.T) {
	coll := New(config.WithReactivity(reactivity.Channel{}))

	var runs int
	var last int
	comp := reactivity.NewComputation()
	for {
		reactivity.Run(comp, func() {
			runs++
			n, err := coll.Find(selector.F(map[string]any{"name": "John"}), FindOptions{}).Count()
			require.NoError(t, err)
			last = n
		})

		if runs == 1 {
			_, err := coll.Insert(map[string]any{"id": "1", "name": "John"})
			require.NoError(t, err)
		}

		select {
		case <-comp.Invalidated():
			comp = reactivity.NewComputation()
			continue
		default:
		}
		break
	}

	assert.Equal(t, 2, runs)
	assert.Equal(t, 1, last)
}
