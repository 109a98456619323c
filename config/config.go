// Package config holds the functional-option configuration surface for a
// Collection, in the style of the teacher's EditOption/WithMaxRetries
// family: an Option mutates a CollectionOptions built up from
// DefaultCollectionOptions.
package config

import (
	"github.com/signaldb-go/signaldb/reactivity"
	"github.com/signaldb-go/signaldb/valueutil"
)

// PrimaryKeyGenerator produces a new primary key for an inserted document
// that doesn't already specify one.
type PrimaryKeyGenerator interface {
	Generate() string
}

// CollectionOptions is a Collection's full configuration, assembled from
// DefaultCollectionOptions plus any Option values passed to New.
type CollectionOptions struct {
	// PrimaryKey is the field name treated as the document id. Defaults to
	// "id".
	PrimaryKey string

	// IDGenerator produces missing primary keys on insert. Defaults to a
	// RandomID-backed generator (valueutil.RandomID).
	IDGenerator PrimaryKeyGenerator

	// Reactivity is the Adapter Cursor uses for Depend/Notify bookkeeping.
	// Defaults to reactivity.None{}, which makes every reactive call a
	// no-op.
	Reactivity reactivity.Adapter

	// Transform is applied to every document as it enters the collection
	// (Insert, the result of an update's modifier, ReplaceOne's
	// replacement, and documents loaded through persistence), letting a
	// host normalize documents (e.g. parsing stored strings into richer Go
	// types) without touching the selector or index layers, which always
	// operate on the transformed shape. Documents read back out through a
	// Cursor are not passed through it again; FindOptions.Transform is the
	// read-side hook.
	Transform func(map[string]any) map[string]any
}

// DefaultCollectionOptions returns the baseline configuration every
// Collection starts from before Options are applied.
func DefaultCollectionOptions() CollectionOptions {
	return CollectionOptions{
		PrimaryKey: "id",
		IDGenerator: defaultGenerator{},
		Reactivity: reactivity.None{},
	}
}

type defaultGenerator struct{}

func (defaultGenerator) Generate() string { return valueutil.RandomID() }

// Option mutates a CollectionOptions being built up by New.
type Option func(*CollectionOptions)

// WithPrimaryKey overrides the field treated as a document's id.
//
// Example:
//
//	coll := signaldb.New(config.WithPrimaryKey("_id"))
func WithPrimaryKey(field string) Option {
	return func(o *CollectionOptions) { o.PrimaryKey = field }
}

// WithIDGenerator overrides the primary key generator used for inserts
// that don't specify their own id.
//
// Example:
//
//	coll := signaldb.New(config.WithIDGenerator(config.NewUUIDGenerator()))
func WithIDGenerator(gen PrimaryKeyGenerator) Option {
	return func(o *CollectionOptions) { o.IDGenerator = gen }
}

// WithReactivity installs a reactivity.Adapter, binding Cursor's
// Depend/Notify calls to a host reactive framework.
//
// Example:
//
//	coll := signaldb.New(config.WithReactivity(reactivity.Channel{}))
func WithReactivity(adapter reactivity.Adapter) Option {
	return func(o *CollectionOptions) { o.Reactivity = adapter }
}

// WithTransform installs a document transform function.
func WithTransform(fn func(map[string]any) map[string]any) Option {
	return func(o *CollectionOptions) { o.Transform = fn }
}

// Apply builds a CollectionOptions from DefaultCollectionOptions with opts
// applied in order.
func Apply(opts ...Option) CollectionOptions {
	o := DefaultCollectionOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
