// File: reactor/loop.go
//
// The fiber-scheduling Reactor: a single driving goroutine running Post'ed
// closures from a nice-ordered ready queue, plus an explicit per-reactor
// Context slot. Spawned fibers are goroutines of their own that reach this
// queue only through Post/PostNice.
//
// Grounded on util/asio/io_context_pool.{h,cc} and util/asio/accept_server.cc
// (original_source) for the Post/AwaitOnAll contract, and on the teacher's
// internal/concurrency/eventloop.go for the run-loop/backoff shape. The
// platform EventReactor above is the advisory readiness poller that an
// AcceptServer may optionally register its listener fd with; the Go runtime
// netpoller already drives everyday socket I/O, so Reactor itself does not
// depend on EventReactor to make progress.
package reactor

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/momentics/corefiber/affinity"
	"github.com/momentics/corefiber/fiber"
)

// task is one unit of work queued on a Reactor: either a cross-goroutine
// Post or a fiber continuation, tagged with the nice level that orders it
// relative to other pending work on this Reactor.
type task struct {
	fn   func()
	nice fiber.NiceLevel
	seq  uint64
}

// Reactor is a single event loop: one driving goroutine, a nice-ordered
// ready queue, and an explicit per-reactor Context slot. All mutation of
// Reactor-owned state must happen inside a closure executed by that
// goroutine — either the Run loop itself, or a closure previously handed to
// Post/PostNice. This is an isolation invariant enforced by convention, not
// a runtime thread-id assertion (see DESIGN.md).
type Reactor struct {
	id  int
	cpu int // >=0 requests affinity pinning to this logical CPU; -1 disables it

	mu      sync.Mutex
	lanes   map[fiber.NiceLevel][]task
	order   []fiber.NiceLevel // ascending nice levels with pending work
	seq     uint64
	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	running atomic.Bool
	ctx     fiber.Context

	onPanic func(recovered any)
}

// LoopOption configures a Reactor at construction.
type LoopOption func(*Reactor)

// WithAffinity requests that the Reactor's driving goroutine be pinned to
// the given logical CPU via affinity.SetAffinity once Run starts. Pinning
// failures are non-fatal: the Reactor keeps running unpinned.
func WithAffinity(cpu int) LoopOption {
	return func(r *Reactor) { r.cpu = cpu }
}

// WithPanicHandler overrides the default fatal-on-panic policy for fibers
// run on this Reactor. The default policy re-panics after wrapping,
// matching "exceptions escaping a fiber are fatal" in the source material.
func WithPanicHandler(fn func(recovered any)) LoopOption {
	return func(r *Reactor) { r.onPanic = fn }
}

// NewLoop constructs a Reactor identified by id. Call Run in a dedicated
// goroutine to start it; Pool.Start does this for every member reactor.
func NewLoop(id int, opts ...LoopOption) *Reactor {
	r := &Reactor{
		id:      id,
		cpu:     -1,
		lanes:   make(map[fiber.NiceLevel][]task),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		ctx:     fiber.NewContext(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.onPanic == nil {
		r.onPanic = func(recovered any) {
			panic(fmt.Sprintf("reactor %d: fatal panic escaped fiber: %v", r.id, recovered))
		}
	}
	return r
}

// ID returns the Reactor's index within its owning Pool.
func (r *Reactor) ID() int { return r.id }

// Context returns this Reactor's per-reactor value slot. Only safe to read
// or mutate from inside a closure running on this Reactor.
func (r *Reactor) Context() fiber.Context { return r.ctx }

// Post enqueues fn to run on this Reactor's loop goroutine at the default
// nice level. Safe to call from any goroutine; ordering is FIFO relative to
// other Posts at the same nice level.
func (r *Reactor) Post(fn func()) {
	r.PostNice(fiber.DefaultNice, fn)
}

// PostNice enqueues fn at an explicit nice level. Work posted at
// fiber.BackgroundNice runs only once no work is queued at
// fiber.DefaultNice on the same Reactor.
func (r *Reactor) PostNice(nice fiber.NiceLevel, fn func()) {
	r.mu.Lock()
	r.seq++
	t := task{fn: fn, nice: nice, seq: r.seq}
	lane, ok := r.lanes[nice]
	r.lanes[nice] = append(lane, t)
	if !ok {
		r.insertOrder(nice)
	}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// insertOrder keeps r.order sorted ascending; called with r.mu held.
func (r *Reactor) insertOrder(nice fiber.NiceLevel) {
	i := 0
	for i < len(r.order) && r.order[i] < nice {
		i++
	}
	r.order = append(r.order, 0)
	copy(r.order[i+1:], r.order[i:])
	r.order[i] = nice
}

// next pops the single oldest task from the lowest nonempty nice lane.
// Called with r.mu held.
func (r *Reactor) next() (task, bool) {
	for len(r.order) > 0 {
		nice := r.order[0]
		lane := r.lanes[nice]
		if len(lane) == 0 {
			r.order = r.order[1:]
			delete(r.lanes, nice)
			continue
		}
		t := lane[0]
		r.lanes[nice] = lane[1:]
		if len(r.lanes[nice]) == 0 {
			r.order = r.order[1:]
			delete(r.lanes, nice)
		}
		return t, true
	}
	return task{}, false
}

// Spawn launches fn as a fiber: a goroutine that must route any access to
// this Reactor's state through Post/PostNice. Spawn itself just starts the
// goroutine; it does not wait for fn to return — detached fibers outlive
// the handle that spawned them.
func (r *Reactor) Spawn(fn func()) {
	go r.runFiber(fn)
}

// SpawnNice is like Spawn, but fn receives the intended nice level via
// fiber.Properties so it can post its own continuations at that level; the
// Reactor does not retroactively reorder an already-running goroutine.
func (r *Reactor) SpawnNice(nice fiber.NiceLevel, fn func(fiber.Properties)) {
	props := fiber.Properties{Nice: nice}
	go r.runFiber(func() { fn(props) })
}

func (r *Reactor) runFiber(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.onPanic(rec)
		}
	}()
	fn()
}

// Run drives the event loop until Stop is called. It must be invoked from
// a dedicated goroutine (typically by Pool.Start); only that goroutine is
// permitted to read r.ctx or execute queued tasks.
func (r *Reactor) Run() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	defer close(r.stopped)

	if r.cpu >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		_ = affinity.SetAffinity(r.cpu)
	}

	for {
		select {
		case <-r.stop:
			r.drain()
			return
		default:
		}

		r.mu.Lock()
		t, ok := r.next()
		r.mu.Unlock()
		if !ok {
			select {
			case <-r.wake:
			case <-r.stop:
				r.drain()
				return
			}
			continue
		}
		r.runTask(t)
	}
}

// drain runs any tasks still queued at Stop time so Post callers posted
// just before shutdown are not silently dropped, then returns.
func (r *Reactor) drain() {
	for {
		r.mu.Lock()
		t, ok := r.next()
		r.mu.Unlock()
		if !ok {
			return
		}
		r.runTask(t)
	}
}

func (r *Reactor) runTask(t task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.onPanic(rec)
		}
	}()
	t.fn()
}

// Stop signals the loop to exit after draining already-queued tasks and
// blocks until Run has returned.
func (r *Reactor) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.stopped
}

// Pending reports the number of queued tasks across all nice lanes, for
// diagnostics and tests.
func (r *Reactor) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, lane := range r.lanes {
		n += len(lane)
	}
	return n
}
