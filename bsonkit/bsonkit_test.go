package bsonkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestToItemConvertsNestedBSONShapes(t *testing.T) {
	oid := primitive.NewObjectID()
	doc := bson.M{
		"id": "1",
		"nested": bson.M{
			"tags": bson.A{"a", "b"},
			"ref":  oid,
		},
		"when": primitive.NewDateTimeFromTime(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
	}

	item := ToItemDoc(doc)

	assert.Equal(t, "1", item["id"])
	nested, ok := item["nested"].(map[string]any)
	requireOK(t, nested, ok)
	tags, ok := nested["tags"].([]any)
	requireOK(t, tags, ok)
	assert.Equal(t, []any{"a", "b"}, tags)
	assert.Equal(t, oid.Hex(), nested["ref"])

	when, ok := item["when"].(time.Time)
	requireOK(t, when, ok)
	assert.Equal(t, 2026, when.Year())
}

func TestToBSONConvertsTimeToDateTime(t *testing.T) {
	item := map[string]any{
		"id":   "1",
		"when": time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		"list": []any{map[string]any{"x": 1}},
	}

	doc := ToBSONDoc(item)

	_, ok := doc["when"].(primitive.DateTime)
	assert.True(t, ok)
	list, ok := doc["list"].(bson.A)
	requireOK(t, list, ok)
	inner, ok := list[0].(bson.M)
	requireOK(t, inner, ok)
	assert.Equal(t, 1, inner["x"])
}

func TestRoundTripPreservesTopLevelID(t *testing.T) {
	item := map[string]any{"id": "42", "name": "John"}
	roundTripped := ToItemDoc(ToBSONDoc(item))
	assert.Equal(t, "42", roundTripped["id"])
	assert.Equal(t, "John", roundTripped["name"])
}

func requireOK(t *testing.T, v any, ok bool) {
	t.Helper()
	require.True(t, ok, "unexpected type for %#v", v)
}
