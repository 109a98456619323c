package config

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// UUIDGenerator produces RFC 4122 v4 ids, for hosts that want
// globally-unique keys instead of the default's shorter random hex ids.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string { return uuid.NewString() }

// NewUUIDGenerator returns a UUIDGenerator; a function rather than a bare
// value so it reads consistently with NewSnowflakeGenerator at call sites.
func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

// SnowflakeGenerator produces k-sortable, compact int64-derived ids using
// Twitter's snowflake scheme, for hosts that want insertion-ordered ids
// instead of random ones (e.g. for an index that benefits from
// locality-preserving keys).
type SnowflakeGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeGenerator builds a SnowflakeGenerator for the given node id
// (0-1023), used to disambiguate multiple processes generating ids
// concurrently.
func NewSnowflakeGenerator(nodeID int64) (*SnowflakeGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("signaldb: snowflake generator: %w", err)
	}
	return &SnowflakeGenerator{node: node}, nil
}

func (g *SnowflakeGenerator) Generate() string { return g.node.Generate().String() }
