package reactivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelDependAndNotify(t *testing.T) {
	var ch Channel
	sig := ch.Create()

	comp := NewComputation()
	Run(comp, func() {
		sig.Depend()
	})

	select {
	case <-comp.Invalidated():
		t.Fatal("should not be invalidated yet")
	default:
	}

	sig.Notify()
	select {
	case <-comp.Invalidated():
	default:
		t.Fatal("expected invalidation after Notify")
	}
}

func TestChannelDisposeStopsCleanup(t *testing.T) {
	var ch Channel
	sig := ch.Create()

	comp := NewComputation()
	var disposed bool
	Run(comp, func() {
		sig.Depend()
		ch.OnDispose(func() { disposed = true }, sig)
	})

	require.False(t, disposed)
	comp.Stop()
	assert.True(t, disposed)

	sig.Notify()
}

func TestNoneAdapterNeverNotifies(t *testing.T) {
	var n None
	sig := n.Create()
	sig.Depend()
	sig.Notify()
	assert.True(t, n.IsInScope())
}

func TestIsInScope(t *testing.T) {
	var ch Channel
	assert.False(t, ch.IsInScope())
	Run(NewComputation(), func() {
		assert.True(t, ch.IsInScope())
	})
	assert.False(t, ch.IsInScope())
}
