package persistence

import "sync/atomic"

// atomicCounter is a tiny lock-free counter, kept on sync/atomic rather
// than a third-party metrics library per SPEC_FULL.md's standard-library
// justification for Coordinator.Metrics: no pack example wires in a real
// metrics framework, only ad hoc counters (the teacher's AccessTracker).
type atomicCounter struct{ v int64 }

func (c *atomicCounter) inc()          { atomic.AddInt64(&c.v, 1) }
func (c *atomicCounter) store(v int64) { atomic.StoreInt64(&c.v, v) }
func (c *atomicCounter) load() int64   { return atomic.LoadInt64(&c.v) }
