package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCollectionOptions(t *testing.T) {
	o := DefaultCollectionOptions()
	assert.Equal(t, "id", o.PrimaryKey)
	require.NotNil(t, o.IDGenerator)
	assert.NotEmpty(t, o.IDGenerator.Generate())
}

func TestApplyOptions(t *testing.T) {
	o := Apply(WithPrimaryKey("_id"), WithIDGenerator(UUIDGenerator{}))
	assert.Equal(t, "_id", o.PrimaryKey)
	assert.IsType(t, UUIDGenerator{}, o.IDGenerator)
}

func TestUUIDGeneratorProducesDistinctIDs(t *testing.T) {
	g := NewUUIDGenerator()
	a, b := g.Generate(), g.Generate()
	assert.NotEqual(t, a, b)
}

func TestSnowflakeGeneratorProducesDistinctIDs(t *testing.T) {
	g, err := NewSnowflakeGenerator(1)
	require.NoError(t, err)
	a, b := g.Generate(), g.Generate()
	assert.NotEqual(t, a, b)
}
