package syncx

import "sync"

// Done is a one-shot, edge-triggered event, modeled on fibers_ext::Done
// from the original implementation. Notify is idempotent; Wait returns
// immediately for any caller arriving after the first Notify.
type Done struct {
	mu     sync.Mutex
	ch     chan struct{}
	closed bool
}

// NewDone returns a fresh, unnotified Done.
func NewDone() *Done {
	return &Done{ch: make(chan struct{})}
}

// Notify signals the event. Safe to call more than once; only the first
// call has any effect.
func (d *Done) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
}

// Wait blocks until Notify has been called at least once.
func (d *Done) Wait() {
	<-d.ch
}

// WaitChan exposes the underlying channel for use in a select alongside
// other events (e.g. a context's Done channel or a shutdown signal).
func (d *Done) WaitChan() <-chan struct{} {
	return d.ch
}

// Reset rearms the event for reuse, mirroring fibers_ext::Done::Reset used
// by ClientChannel between reconnect attempts. Reset must not race with a
// concurrent Wait/Notify; callers serialize Reset the same way the
// original serializes it — from the single fiber that owns the Done.
func (d *Done) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.ch = make(chan struct{})
		d.closed = false
	}
}
