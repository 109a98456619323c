// Package persistence implements SignalDB's sync-collection persistence
// protocol: a Coordinator registers one Adapter per collection, loads its
// initial state, and coalesces concurrent save requests into a single
// in-flight write, the same queue/flush-gate shape the teacher's
// eventsync.SyncServiceImpl uses to serialize client registration and
// broadcast under one mutex rather than per-client locks.
package persistence

import (
	"sync"

	"go.uber.org/zap"

	"github.com/signaldb-go/signaldb/sdlog"
)

// Changeset is the delta form of a Save call: a sparse description of
// what changed since the adapter's last Save, used by adapters that
// prefer to persist a diff (the "{changes}" wire layout) over a full
// snapshot (the "{items}" layout).
type Changeset struct {
	Added   []map[string]any
	Changed []map[string]any
	Removed []string
}

// Payload is what Load returns and what onChange delivers: either a full
// item list (Items non-nil) or a changeset (Changes non-nil), matching
// spec.md §6.4's two wire layouts. Exactly one of the two is populated.
type Payload struct {
	Items   []map[string]any
	Changes *Changeset
}

// Adapter is the persistence contract a sync Collection speaks to, per
// spec.md §6.3.
type Adapter interface {
	// Register installs onChange, called whenever the adapter observes an
	// externally-driven change (e.g. another process writing the same
	// file/remote store) that the collection did not itself cause.
	Register(onChange func(Payload)) error
	// Load returns the adapter's current persisted state.
	Load() (Payload, error)
	// Save persists current in full alongside changes, a hint adapters may
	// use to write only the delta. Save calls are coalesced by Coordinator
	// so only one is ever in flight per collection.
	Save(current []map[string]any, changes Changeset) error
	// Unregister releases the adapter's resources. Coordinator.Stop always
	// calls it; an adapter with nothing to release returns nil.
	Unregister() error
}

// LifecycleKind identifies one step of the persistence startup/save
// protocol, per spec.md §4.9's event stream.
type LifecycleKind int

const (
	// PullStarted fires once, before the adapter is even registered.
	PullStarted LifecycleKind = iota
	// Received fires once the initial load's payload (or an externally
	// driven change) has been applied to the collection.
	Received
	// PullCompleted fires right after Received; it exists as its own event
	// because spec.md's original protocol defers it to "next tick" so
	// requery observers settle before a loading-state signal toggles — a
	// distinction this single-threaded protocol collapses into the same
	// step without changing the relative order.
	PullCompleted
	// Init fires once, after the very first pull has completed and any
	// mutation that happened concurrently with it has been replayed into
	// the save queue.
	Init
	// Transmitted fires after each individual Save call to the adapter
	// settles successfully.
	Transmitted
	// PushCompleted fires once the save queue fully drains: no save is
	// running and nothing is pending a follow-up flush.
	PushCompleted
	// Error fires for any Register/Load/Save failure; the coordinator
	// remains usable afterward.
	Error
)

// LifecycleEvent is one step of the persistence protocol delivered to a
// Coordinator's lifecycle listeners. Err is only populated for Error.
type LifecycleEvent struct {
	Kind LifecycleKind
	Err  error
}

// LifecycleFunc receives Coordinator lifecycle events.
type LifecycleFunc func(LifecycleEvent)

// Metrics is a lightweight, lock-free counters struct (the teacher's
// benchmark_analysis.go/AccessTracker style of instrumentation, not a
// metrics framework — no pack example wires in a real metrics library) a
// Coordinator exposes about its save queue.
type Metrics struct {
	pending atomicCounter
	saves   atomicCounter
	errors  atomicCounter
}

func (m *Metrics) Pending() int64    { return m.pending.load() }
func (m *Metrics) TotalSaves() int64 { return m.saves.load() }
func (m *Metrics) TotalErrors() int64 { return m.errors.load() }

// Coordinator runs the five-step startup protocol from spec.md §4.9:
// register for external changes, load initial state, hand it to the
// collection, then accept Save requests, coalescing any Save received
// while one is already in flight into a single follow-up flush.
type Coordinator struct {
	adapter Adapter

	mu          sync.Mutex
	flushing    bool
	initialized bool
	pendingCurrent []map[string]any
	pendingChanges Changeset
	hasPending     bool
	lastErr        error

	metrics Metrics

	lifecycleMu sync.Mutex
	lifecycle   []*LifecycleFunc

	onLoad   func(Payload)
	onChange func(Payload)
	onError  func(error)
}

// New creates a Coordinator over adapter. onLoad is called once with the
// adapter's initial Load() result; onChange is called for every
// externally-driven change the adapter reports after that.
func New(adapter Adapter, onLoad func(Payload), onChange func(Payload), onError func(error)) *Coordinator {
	return &Coordinator{adapter: adapter, onLoad: onLoad, onChange: onChange, onError: onError}
}

// Start runs the five-step startup protocol: emit pullStarted, register for
// external changes, load initial state, replay any mutation that happened
// concurrently with the pull into the save queue, then emit
// received/pullCompleted/init. The pull gate (reusing the same flushing
// flag Save's coalescing uses) means any Save call made by a mutation
// while Start is still running is queued rather than flushed immediately,
// which is exactly the "replay before init" step.
func (c *Coordinator) Start() error {
	c.emitLifecycle(LifecycleEvent{Kind: PullStarted})

	c.mu.Lock()
	c.flushing = true
	c.mu.Unlock()

	if err := c.adapter.Register(func(p Payload) {
		// "drop the load if a save is in flight": an externally-driven
		// full-state payload arriving while a save is already running (or
		// the initial pull is still in progress) would stomp state the
		// collection hasn't transmitted yet.
		if p.Items != nil && c.SaveInFlight() {
			return
		}
		if c.onChange != nil {
			c.onChange(p)
		}
	}); err != nil {
		c.recordError(err)
		c.releasePullGate()
		return err
	}

	payload, err := c.adapter.Load()
	if err != nil {
		c.recordError(err)
		c.releasePullGate()
		return err
	}
	if c.onLoad != nil {
		c.onLoad(payload)
	}

	c.emitLifecycle(LifecycleEvent{Kind: Received})
	c.emitLifecycle(LifecycleEvent{Kind: PullCompleted})
	c.emitLifecycle(LifecycleEvent{Kind: Init})

	c.releasePullGate()
	return nil
}

// releasePullGate marks the coordinator initialized and drains whatever
// Save calls queued up while the pull gate was held, flushing them exactly
// as a normal coalesced save would.
func (c *Coordinator) releasePullGate() {
	c.mu.Lock()
	c.initialized = true
	if !c.hasPending {
		c.flushing = false
		c.mu.Unlock()
		return
	}
	current, changes := c.pendingCurrent, c.pendingChanges
	c.pendingCurrent, c.pendingChanges = nil, Changeset{}
	c.hasPending = false
	c.metrics.pending.store(0)
	c.mu.Unlock()
	c.flush(current, changes)
}

// Stop unregisters the adapter, if it supports it.
func (c *Coordinator) Stop() error {
	return c.adapter.Unregister()
}

// Metrics returns the coordinator's save-queue counters.
func (c *Coordinator) Metrics() *Metrics { return &c.metrics }

// SaveInFlight reports whether a Save is currently running or queued
// (including the startup pull gate, which holds the same flag so
// concurrent mutations replay rather than race the initial load).
func (c *Coordinator) SaveInFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushing
}

// OnLifecycle registers fn for every lifecycle event this coordinator
// emits. The returned func unsubscribes it.
func (c *Coordinator) OnLifecycle(fn LifecycleFunc) (unsubscribe func()) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	ptr := &fn
	c.lifecycle = append(c.lifecycle, ptr)
	return func() {
		c.lifecycleMu.Lock()
		defer c.lifecycleMu.Unlock()
		for i, existing := range c.lifecycle {
			if existing == ptr {
				c.lifecycle = append(c.lifecycle[:i], c.lifecycle[i+1:]...)
				return
			}
		}
	}
}

func (c *Coordinator) emitLifecycle(ev LifecycleEvent) {
	c.lifecycleMu.Lock()
	listeners := append([]*LifecycleFunc(nil), c.lifecycle...)
	c.lifecycleMu.Unlock()
	for _, fn := range listeners {
		(*fn)(ev)
	}
}

// Save requests a persist of current (with changes as the delta hint). If
// a save is already in flight (or the startup pull gate is still held),
// current replaces any previously queued snapshot (the latest full state
// always wins) but changes accumulate into the single pending Changeset,
// matching spec.md's "saveQueue = {added, modified, removed}" coalescing;
// Save returns immediately and the queued save runs as soon as the
// in-flight one completes, exactly once, even if Save was called many
// times meanwhile.
func (c *Coordinator) Save(current []map[string]any, changes Changeset) {
	c.mu.Lock()
	if c.flushing {
		c.pendingCurrent = current
		mergeChangeset(&c.pendingChanges, changes)
		c.hasPending = true
		c.metrics.pending.store(1)
		c.mu.Unlock()
		return
	}
	c.flushing = true
	c.mu.Unlock()

	c.flush(current, changes)
}

func (c *Coordinator) flush(current []map[string]any, changes Changeset) {
	for {
		err := c.adapter.Save(current, changes)
		c.metrics.saves.inc()
		if err != nil {
			c.recordError(err)
		} else {
			c.emitLifecycle(LifecycleEvent{Kind: Transmitted})
		}

		c.mu.Lock()
		if !c.hasPending {
			c.flushing = false
			c.mu.Unlock()
			c.emitLifecycle(LifecycleEvent{Kind: PushCompleted})
			return
		}
		current, changes = c.pendingCurrent, c.pendingChanges
		c.pendingCurrent, c.pendingChanges = nil, Changeset{}
		c.hasPending = false
		c.metrics.pending.store(0)
		c.mu.Unlock()
	}
}

// mergeChangeset appends src's deltas onto dst in place.
func mergeChangeset(dst *Changeset, src Changeset) {
	dst.Added = append(dst.Added, src.Added...)
	dst.Changed = append(dst.Changed, src.Changed...)
	dst.Removed = append(dst.Removed, src.Removed...)
}

func (c *Coordinator) recordError(err error) {
	c.metrics.errors.inc()
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	sdlog.Error("persistence save failed", zap.Error(err))
	c.emitLifecycle(LifecycleEvent{Kind: Error, Err: err})
	if c.onError != nil {
		c.onError(err)
	}
}
