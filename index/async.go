package index

import (
	"context"

	"github.com/signaldb-go/signaldb/storage"
)

// AsyncProvider answers Query by reading through to a storage.Adapter's
// ReadIndex, for the async/auto-fetch backend where the index itself
// lives in the remote store rather than in process memory. It is
// constructed fresh per query execution (bound to that query's
// context), not kept warm across queries, since it holds no local
// state to keep warm: Insert/Remove/Update/Rebuild are no-ops, the
// backend being the source of truth.
type AsyncProvider struct {
	ctx     context.Context
	field   string
	adapter storage.Adapter
}

// NewAsyncProvider builds an AsyncProvider for field, reading through
// adapter using ctx for the lifetime of the query this provider serves.
func NewAsyncProvider(ctx context.Context, field string, adapter storage.Adapter) *AsyncProvider {
	return &AsyncProvider{ctx: ctx, field: field, adapter: adapter}
}

func (p *AsyncProvider) Field() string { return p.field }
func (p *AsyncProvider) IsAsync() bool { return true }

// Stats always reports the zero value: the remote store owns cardinality,
// and AsyncProvider is rebuilt fresh per query rather than kept warm, so it
// never participates in representation selection.
func (p *AsyncProvider) Stats() Stats { return Stats{} }

func (p *AsyncProvider) Insert(id string, value any)            {}
func (p *AsyncProvider) Remove(id string, value any)             {}
func (p *AsyncProvider) Update(id string, oldValue, newValue any) {}
func (p *AsyncProvider) Rebuild(items []map[string]any)          {}

// Query supports the same flat-constraint shapes as MemoryProvider for
// the common case ($eq and bare-scalar), reading the candidate id set
// through storage.Adapter.ReadIndex. Anything else (range operators,
// $in, $exists) is left to the matcher by reporting Matched: false,
// since ReadIndex's contract is a single (field, value) lookup.
func (p *AsyncProvider) Query(constraint any) Result {
	value := constraint
	if ops, ok := constraint.(map[string]any); ok {
		if len(ops) != 1 {
			return Result{Matched: false}
		}
		eq, has := ops["$eq"]
		if !has {
			return Result{Matched: false}
		}
		value = eq
	}

	ids, err := p.adapter.ReadIndex(p.ctx, p.field, value)
	if err != nil {
		return Result{Matched: false}
	}
	return Result{Matched: true, Include: NewIDSet(ids...)}
}
