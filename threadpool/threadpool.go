// Package threadpool implements the FiberQueueThreadPool: a fixed set of
// named worker goroutines draining a bounded queue of blocking closures,
// used to offload work that would otherwise block a Reactor's single
// driving goroutine.
//
// Grounded on original_source/util/fibers/fiberqueue_threadpool.cc. The
// original's WorkerFunction treats any exception escaping f() as fatal
// (LOG(FATAL)); this module reproduces that policy by default but exposes
// WithPanicHandler for callers who would rather surface it as a result
// error (see DESIGN.md's Open Question decision).
package threadpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/momentics/corefiber/corelog"
	"github.com/momentics/corefiber/syncx"
)

type job struct {
	fn   func() (any, error)
	resp chan result
}

type result struct {
	val any
	err error
}

// Pool is a fixed-size set of named worker goroutines draining a bounded
// job queue.
type Pool struct {
	input   *syncx.Channel[job]
	names   []string
	wg      sync.WaitGroup
	log     corelog.Logger
	onPanic func(worker string, recovered any)
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithLogger attaches a Logger for lifecycle diagnostics.
func WithLogger(l corelog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// WithPanicHandler overrides the default fatal-on-panic policy. The
// handler runs on the worker goroutine that caught the panic; after it
// returns, the pending Await receives an error describing the panic and
// the worker resumes polling the queue.
func WithPanicHandler(fn func(worker string, recovered any)) Option {
	return func(p *Pool) { p.onPanic = fn }
}

// New constructs and starts a Pool of numWorkers goroutines, each pulling
// from a queue bounded at queueSize (0 leaves the queue unbounded, as
// syncx.NewChannel does). numWorkers <= 0 defaults to
// runtime.NumCPU(), mirroring the original's use of
// std::thread::hardware_concurrency() when num_threads == 0.
func New(numWorkers, queueSize int, opts ...Option) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	p := &Pool{
		input: syncx.NewChannel[job](queueSize),
		log:   corelog.NoOp{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.onPanic == nil {
		p.onPanic = func(worker string, recovered any) {
			panic(fmt.Sprintf("threadpool: fatal panic in %s: %v", worker, recovered))
		}
	}
	p.names = make([]string, numWorkers)
	for i := 0; i < numWorkers; i++ {
		name := fmt.Sprintf("sq_threadpool%d", i)
		p.names[i] = name
		p.wg.Add(1)
		go p.worker(name)
	}
	return p
}

func (p *Pool) worker(name string) {
	defer p.wg.Done()
	ctx := context.Background()
	for {
		j, err := p.input.Pop(ctx)
		if err != nil {
			corelog.Debugf(p.log, "threadpool", "%s exiting: %v", name, err)
			return
		}
		p.run(name, j)
	}
}

func (p *Pool) run(name string, j job) {
	defer func() {
		if rec := recover(); rec != nil {
			p.onPanic(name, rec)
			j.resp <- result{err: fmt.Errorf("threadpool: panic in %s: %v", name, rec)}
		}
	}()
	val, err := j.fn()
	j.resp <- result{val: val, err: err}
}

// Await submits fn to the pool and blocks until a worker has run it (or
// ctx is canceled first), returning fn's result.
func (p *Pool) Await(ctx context.Context, fn func() (any, error)) (any, error) {
	j := job{fn: fn, resp: make(chan result, 1)}
	if err := p.input.Push(ctx, j); err != nil {
		return nil, fmt.Errorf("threadpool: submit: %w", err)
	}
	select {
	case r := <-j.resp:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats reports the pool's worker names, mirroring the original's
// sq_threadpoolN naming used for operational diagnostics.
func (p *Pool) Stats() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Shutdown closes the input queue and waits for every worker to drain and
// exit.
func (p *Pool) Shutdown() {
	p.input.Close()
	p.wg.Wait()
}
