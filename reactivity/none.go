package reactivity

// None is the zero-cost Adapter for hosts with no reactive scope at all:
// its Signal's Depend/Notify are no-ops and OnDispose never fires, so
// Cursor.Fetch works identically whether or not None is installed.
type None struct{ NoScopeCheck }

type noneSignal struct{}

func (noneSignal) Depend() {}
func (noneSignal) Notify() {}

func (None) Create() Signal                  { return noneSignal{} }
func (None) OnDispose(cb func(), sig Signal) {}
