package pipeline

import "sync/atomic"

// Guard admits at most one run at a time. A second caller is refused
// rather than queued.
type Guard struct {
	busy atomic.Bool
}

// TryAcquire claims the guard. The returned release func is idempotent.
func (g *Guard) TryAcquire() (release func(), ok bool) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, false
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.busy.Store(false)
		}
	}, true
}

// Busy reports whether a run holds the guard.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}
