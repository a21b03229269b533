// Package syncx provides fiber-safe synchronization primitives: a bounded
// MPMC Channel[T], a one-shot Done event, and Mutex/Cond wrappers that
// suspend the calling goroutine instead of blocking an OS thread, so they
// compose cleanly with fibers spawned on a reactor.Reactor.
//
// Grounded on the "ChannelsAndSync" component and on fibers_ext::Done /
// boost::fibers::mutex usage throughout original_source/util/asio.
package syncx

import (
	"context"
	"fmt"
	"sync"

	"github.com/eapache/queue"
)

// ErrClosed is returned by Push/Pop once a Channel has been closed and, for
// Pop, drained.
var ErrClosed = fmt.Errorf("syncx: channel closed")

// Channel is a bounded, multi-producer multi-consumer FIFO queue. Zero
// value is not usable; construct with NewChannel.
type Channel[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	q        *queue.Queue
	capacity int
	closed   bool
}

// NewChannel constructs a Channel with the given bounded capacity. A
// capacity of 0 means unbounded (Push never blocks on space).
func NewChannel[T any](capacity int) *Channel[T] {
	c := &Channel[T]{q: queue.New(), capacity: capacity}
	c.notEmpty = sync.NewCond(&c.mu)
	c.notFull = sync.NewCond(&c.mu)
	return c
}

// Push enqueues v, blocking while the channel is full. It returns
// ErrClosed if the channel is closed before or during the wait.
func (c *Channel[T]) Push(ctx context.Context, v T) error {
	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if c.capacity == 0 || c.q.Length() < c.capacity {
			break
		}
		if !c.waitCtx(ctx, c.notFull) {
			c.mu.Unlock()
			return ctx.Err()
		}
	}
	c.q.Add(v)
	c.notEmpty.Signal()
	c.mu.Unlock()
	return nil
}

// Pop dequeues the oldest value, blocking while the channel is empty. It
// returns ErrClosed once the channel is closed and fully drained.
func (c *Channel[T]) Pop(ctx context.Context) (T, error) {
	c.mu.Lock()
	for c.q.Length() == 0 {
		if c.closed {
			c.mu.Unlock()
			var zero T
			return zero, ErrClosed
		}
		if !c.waitCtx(ctx, c.notEmpty) {
			c.mu.Unlock()
			var zero T
			return zero, ctx.Err()
		}
	}
	v := c.q.Remove().(T)
	c.notFull.Signal()
	c.mu.Unlock()
	return v, nil
}

// TryPop dequeues without blocking, reporting false if the channel is
// currently empty (and not yet closed) or closed-and-drained via err.
func (c *Channel[T]) TryPop() (v T, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.q.Length() == 0 {
		if c.closed {
			return v, false, ErrClosed
		}
		return v, false, nil
	}
	v = c.q.Remove().(T)
	c.notFull.Signal()
	return v, true, nil
}

// Close marks the channel closed; blocked Pushers see ErrClosed
// immediately, blocked Poppers drain remaining queued values first and
// then see ErrClosed.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.notEmpty.Broadcast()
		c.notFull.Broadcast()
	}
	c.mu.Unlock()
}

// Len returns the number of values currently queued.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Length()
}

// waitCtx blocks on cond until signaled or ctx is done, returning false in
// the latter case. sync.Cond has no context-aware wait, so a watcher
// goroutine translates ctx.Done() into a Broadcast.
func (c *Channel[T]) waitCtx(ctx context.Context, cond *sync.Cond) bool {
	if ctx.Err() != nil {
		return false
	}
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()
	cond.Wait()
	return ctx.Err() == nil
}
