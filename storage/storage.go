// Package storage defines the Adapter contract SignalDB's async/auto-fetch
// collection backends speak to an external store, and ships reference
// implementations over Mongo, Redis and Badger — the teacher's own
// nodestorage/v2 storage/cache layer generalized from "one document type
// with optimistic concurrency" down to "arbitrary JSON-shaped documents
// keyed by a string id", which is all the query/index/observe layers above
// this package need.
package storage

import "context"

// IndexSpec describes one field-level index a collection wants the
// backend to maintain, mirroring spec.md's CreateIndex(field, options).
type IndexSpec struct {
	Field  string
	Unique bool
}

// Adapter is the storage contract spec.md §6.2 describes: every method is
// context-aware and the async backend never assumes anything about the
// underlying store beyond what these methods promise.
type Adapter interface {
	// Setup prepares the backend for use (opening connections, creating
	// collections/buckets). Called once before any other method.
	Setup(ctx context.Context) error
	// Teardown releases backend resources. Called once, symmetric with
	// Setup.
	Teardown(ctx context.Context) error

	// ReadAll returns every document currently stored.
	ReadAll(ctx context.Context) ([]map[string]any, error)
	// ReadIDs returns only the documents named by ids, in no particular
	// order, silently omitting ids the backend does not have.
	ReadIDs(ctx context.Context, ids []string) ([]map[string]any, error)
	// ReadIndex returns the id set in field's index bucket matching value,
	// used by an AsyncProvider instead of scanning ReadAll.
	ReadIndex(ctx context.Context, field string, value any) ([]string, error)

	// CreateIndex and DropIndex are only valid before Setup has been
	// called by any collection using this adapter instance — adding an
	// index to a live backend is out of scope (spec.md Non-goals).
	CreateIndex(ctx context.Context, spec IndexSpec) error
	DropIndex(ctx context.Context, field string) error

	Insert(ctx context.Context, item map[string]any) error
	Replace(ctx context.Context, id string, item map[string]any) error
	Remove(ctx context.Context, id string) error
	RemoveAll(ctx context.Context, selectorDescription string, ids []string) error
}
