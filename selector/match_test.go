package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchFlatEquality(t *testing.T) {
	item := map[string]any{"name": "John", "age": 30}
	assert.True(t, Match(item, F(map[string]any{"name": "John"})))
	assert.False(t, Match(item, F(map[string]any{"name": "Jane"})))
}

func TestMatchComparisonOperators(t *testing.T) {
	item := map[string]any{"age": 30}
	assert.True(t, Match(item, F(map[string]any{"age": map[string]any{"$gte": 30}})))
	assert.True(t, Match(item, F(map[string]any{"age": map[string]any{"$lt": 31}})))
	assert.False(t, Match(item, F(map[string]any{"age": map[string]any{"$gt": 30}})))
}

func TestMatchArrayMembershipAndIn(t *testing.T) {
	item := map[string]any{"tags": []any{"fruit", "red"}}
	assert.True(t, Match(item, F(map[string]any{"tags": "red"})))
	assert.False(t, Match(item, F(map[string]any{"tags": "blue"})))
	assert.True(t, Match(item, F(map[string]any{"tags": map[string]any{"$in": []any{"blue", "red"}}})))
}

func TestMatchExistsUnifiesNullAndMissing(t *testing.T) {
	item := map[string]any{"name": nil, "age": 30}
	assert.True(t, Match(item, F(map[string]any{"age": map[string]any{"$exists": true}})))
	assert.False(t, Match(item, F(map[string]any{"name": map[string]any{"$exists": true}})), "an explicit null is treated the same as a missing field")
	assert.True(t, Match(item, F(map[string]any{"name": map[string]any{"$exists": false}})))
	assert.True(t, Match(item, F(map[string]any{"missing": map[string]any{"$exists": false}})))
}

func TestMatchAndOrComposition(t *testing.T) {
	item := map[string]any{"name": "John", "age": 30}
	and := And(F(map[string]any{"name": "John"}), F(map[string]any{"age": 30}))
	assert.True(t, Match(item, and))

	or := Or(F(map[string]any{"name": "Jane"}), F(map[string]any{"age": 30}))
	assert.True(t, Match(item, or))

	orFalse := Or(F(map[string]any{"name": "Jane"}), F(map[string]any{"age": 99}))
	assert.False(t, Match(item, orFalse))
}

func TestMatchNilSelectorMatchesEverything(t *testing.T) {
	assert.True(t, Match(map[string]any{"a": 1}, nil))
}
