// File: reactor/pool.go
//
// Pool owns a fixed set of Reactors and hands them out round robin, mirroring
// IoContextPool::GetNextContext in the original implementation.
package reactor

import (
	"sync"
	"sync/atomic"
)

// Pool is a fixed-size set of Reactors, each driven by its own goroutine.
type Pool struct {
	reactors []*Reactor
	next     atomic.Uint64
	wg       sync.WaitGroup
}

// NewPool constructs a Pool of n Reactors. pin, when non-nil, is consulted
// per-index to request CPU affinity for that reactor's driving goroutine;
// pass nil to leave every reactor unpinned.
func NewPool(n int, pin func(index int) (cpu int, ok bool)) *Pool {
	if n <= 0 {
		panic("reactor: pool size must be positive")
	}
	p := &Pool{reactors: make([]*Reactor, n)}
	for i := 0; i < n; i++ {
		var opts []LoopOption
		if pin != nil {
			if cpu, ok := pin(i); ok {
				opts = append(opts, WithAffinity(cpu))
			}
		}
		p.reactors[i] = NewLoop(i, opts...)
	}
	return p
}

// Start launches every Reactor's Run loop in its own goroutine.
func (p *Pool) Start() {
	for _, r := range p.reactors {
		p.wg.Add(1)
		go func(r *Reactor) {
			defer p.wg.Done()
			r.Run()
		}(r)
	}
}

// Stop stops every Reactor and waits for their loops to exit.
func (p *Pool) Stop() {
	for _, r := range p.reactors {
		r.Stop()
	}
	p.wg.Wait()
}

// Size returns the number of reactors in the pool.
func (p *Pool) Size() int { return len(p.reactors) }

// Next returns the next Reactor in round-robin order across callers.
func (p *Pool) Next() *Reactor {
	i := p.next.Add(1) - 1
	return p.reactors[i%uint64(len(p.reactors))]
}

// At returns the Reactor at a fixed index, for callers that want sticky
// affinity to a particular reactor (e.g. "always bind listener N to
// reactor N mod pool size").
func (p *Pool) At(index int) *Reactor {
	return p.reactors[index%len(p.reactors)]
}

// AwaitOnAll posts fn to every Reactor in the pool and blocks until all
// invocations have completed, mirroring a pool-wide barrier used by
// shutdown and stats-collection paths.
func (p *Pool) AwaitOnAll(fn func(r *Reactor)) {
	var wg sync.WaitGroup
	wg.Add(len(p.reactors))
	for _, r := range p.reactors {
		r := r
		r.Post(func() {
			defer wg.Done()
			fn(r)
		})
	}
	wg.Wait()
}
