package reactivity

import "sync"

// currentComputation is the computation currently capturing dependencies,
// mirroring Tracker.currentComputation from the frameworks this package
// stands in for. SignalDB's core is single-threaded-cooperative (only the
// async backend and persistence coordinator suspend, and neither runs
// inside a reactive computation), so a single package-level pointer is
// sufficient rather than a full goroutine-local registry.
var currentComputation *Computation

// Computation is a reactive scope: while Run(comp, fn) executes fn, any
// Signal.Depend() call made on the Channel adapter registers comp as a
// dependent. A later Signal.Notify() schedules comp's Invalidated channel.
type Computation struct {
	mu          sync.Mutex
	stopped     bool
	onStop      []func()
	invalidated chan struct{}
}

// NewComputation creates a fresh, unstarted Computation.
func NewComputation() *Computation {
	return &Computation{invalidated: make(chan struct{}, 1)}
}

// Invalidated signals once (non-blocking send) every time a dependency
// this computation captured calls Notify. The host effect loop selects on
// it to know when to re-run Run with a fresh Computation.
func (c *Computation) Invalidated() <-chan struct{} { return c.invalidated }

// Stop tears the computation down: runs every registered cleanup exactly
// once, in registration order, and makes it inert for future Depend calls.
func (c *Computation) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cbs := c.onStop
	c.onStop = nil
	c.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func (c *Computation) addCleanup(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		cb()
		return
	}
	c.onStop = append(c.onStop, cb)
}

func (c *Computation) invalidate() {
	select {
	case c.invalidated <- struct{}{}:
	default:
	}
}

// Run executes fn with comp installed as the current computation, so any
// Signal created by Channel that is depended on during fn registers comp
// as a dependent. Run restores the prior computation (supporting nested
// scopes) before returning.
func Run(comp *Computation, fn func()) {
	prev := currentComputation
	currentComputation = comp
	defer func() { currentComputation = prev }()
	fn()
}

// Channel is the reference Adapter: a minimal, dependency-free reactive
// scope built on Go's own primitives (a package-level current-computation
// pointer plus buffered invalidation channels) rather than on any specific
// external reactive framework, since none exists in the pack to bind to.
type Channel struct{}

func (Channel) Create() Signal { return &channelSignal{} }

func (Channel) IsInScope() bool { return currentComputation != nil }

func (Channel) OnDispose(cb func(), sig Signal) {
	if currentComputation == nil {
		return
	}
	currentComputation.addCleanup(cb)
}

type channelSignal struct {
	mu         sync.Mutex
	dependents map[*Computation]struct{}
}

func (s *channelSignal) Depend() {
	comp := currentComputation
	if comp == nil {
		return
	}
	s.mu.Lock()
	if s.dependents == nil {
		s.dependents = map[*Computation]struct{}{}
	}
	if _, ok := s.dependents[comp]; !ok {
		s.dependents[comp] = struct{}{}
		s.mu.Unlock()
		comp.addCleanup(func() {
			s.mu.Lock()
			delete(s.dependents, comp)
			s.mu.Unlock()
		})
		return
	}
	s.mu.Unlock()
}

func (s *channelSignal) Notify() {
	s.mu.Lock()
	deps := make([]*Computation, 0, len(s.dependents))
	for c := range s.dependents {
		deps = append(deps, c)
	}
	s.mu.Unlock()
	for _, c := range deps {
		c.invalidate()
	}
}
