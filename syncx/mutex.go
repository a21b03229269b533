package syncx

import "sync"

// Mutex is a thin alias over sync.Mutex, named for symmetry with Cond and
// to give fiber code a single import for its synchronization primitives
// (mirroring boost::fibers::mutex used throughout original_source).
type Mutex = sync.Mutex

// Cond is a thin alias over sync.Cond for the same reason; Go's sync.Cond
// already suspends the calling goroutine rather than spinning, which is
// the property the original's fiber-aware condition_variable provides.
type Cond = sync.Cond

// NewCond constructs a Cond guarded by l.
func NewCond(l sync.Locker) *Cond {
	return sync.NewCond(l)
}
