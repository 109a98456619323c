package modifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySetDoesNotMutateInput(t *testing.T) {
	item := map[string]any{"id": "1", "name": "John"}
	out, err := Apply(item, Modifier{"$set": map[string]any{"name": "Jay"}}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "Jay", out["name"])
	assert.Equal(t, "John", item["name"], "Apply must not mutate its input")
}

func TestApplyIncAndUnset(t *testing.T) {
	item := map[string]any{"score": 10, "temp": "x"}
	out, err := Apply(item, Modifier{"$inc": map[string]any{"score": 5}, "$unset": map[string]any{"temp": ""}}, Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(15), out["score"])
	_, exists := out["temp"]
	assert.False(t, exists)
}

func TestApplyPushAndAddToSet(t *testing.T) {
	item := map[string]any{"tags": []any{"a"}}
	out, err := Apply(item, Modifier{"$push": map[string]any{"tags": "b"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out["tags"])

	out2, err := Apply(out, Modifier{"$addToSet": map[string]any{"tags": "b"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out2["tags"], "addToSet on an existing member is a no-op")
}

func TestApplySetOnInsertStrippedUnlessUpsert(t *testing.T) {
	item := map[string]any{}
	mod := Modifier{"$setOnInsert": map[string]any{"createdBy": "system"}}

	out, err := Apply(item, mod, Options{IsUpsert: false})
	require.NoError(t, err)
	_, exists := out["createdBy"]
	assert.False(t, exists, "$setOnInsert must be stripped on a non-upsert update")

	out2, err := Apply(item, mod, Options{IsUpsert: true})
	require.NoError(t, err)
	assert.Equal(t, "system", out2["createdBy"])
}

func TestApplyRejectsNilModifier(t *testing.T) {
	_, err := Apply(map[string]any{}, nil, Options{})
	assert.Error(t, err)
}
