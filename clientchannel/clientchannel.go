// Package clientchannel implements a reconnecting TCP client channel bound
// to a single reactor.Reactor: Connect blocks the caller until connected or
// timed out, and once connected, HandleErrorStatus drives a background
// reconnect fiber with the original implementation's exact backoff.
//
// Grounded on original_source/util/asio/client_channel.cc: the
// ResolveAndConnect backoff (100ms initial, +100ms per loop iteration,
// capped at 1s, 2ms safety margin before the deadline), the 30s
// reconnect-fiber deadline, and nice level 4 for the reconnect fiber are
// all taken from there.
package clientchannel

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/momentics/corefiber/corefiber"
	"github.com/momentics/corefiber/corelog"
	"github.com/momentics/corefiber/fiber"
	"github.com/momentics/corefiber/reactor"
)

// State is the ClientChannel's connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case ShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

const (
	initialBackoff  = 100 * time.Millisecond
	backoffStep     = 100 * time.Millisecond
	maxBackoff      = time.Second
	deadlineMargin  = 2 * time.Millisecond
	reconnectWindow = 30 * time.Second
)

// Channel is a single reconnecting TCP connection bound to one reactor.
type Channel struct {
	r       *reactor.Reactor
	target  string
	dialer  net.Dialer
	log     corelog.Logger

	mu              sync.Mutex
	state           State
	conn            net.Conn
	lastErr         error
	reconnectActive bool
	shdCond         *sync.Cond
}

// Option configures a Channel at construction.
type Option func(*Channel)

// WithLogger attaches a Logger for connect/reconnect diagnostics.
func WithLogger(l corelog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// New constructs a Channel bound to r that will dial target on Connect.
func New(r *reactor.Reactor, target string, opts ...Option) *Channel {
	c := &Channel{
		r:      r,
		target: target,
		log:    corelog.NoOp{},
	}
	c.shdCond = sync.NewCond(&c.mu)
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the Channel's current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Conn returns the live connection, or nil if not currently connected.
// Safe to call from any goroutine; the returned net.Conn itself is only
// safe for the usual net.Conn concurrency guarantees (one reader, one
// writer).
func (c *Channel) Conn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Connect blocks the caller until connected or timeout elapses, following
// ClientChannelImpl::Connect: the actual resolve/connect work runs in a
// fiber spawned on the owning Reactor. Channel state is guarded by c.mu,
// not confined to the Reactor's loop goroutine.
func (c *Channel) Connect(timeout time.Duration) error {
	c.mu.Lock()
	if c.state == ShuttingDown {
		c.mu.Unlock()
		return corefiber.New(corefiber.CodeAborted, "clientchannel: shutting down")
	}
	if c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	c.mu.Unlock()

	until := time.Now().Add(timeout)
	done := make(chan struct{})
	c.r.Spawn(func() {
		c.resolveAndConnect(until)
		close(done)
	})
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr != nil {
		return corefiber.Wrap(corefiber.CodeTransport, c.lastErr, "clientchannel: connect failed")
	}
	return nil
}

// resolveAndConnect is ResolveAndConnect: dial target with a per-attempt
// deadline, retrying with an increasing backoff until until is reached or
// Shutdown is requested.
func (c *Channel) resolveAndConnect(until time.Time) {
	sleepDur := initialBackoff

	for {
		c.mu.Lock()
		shuttingDown := c.state == ShuttingDown
		c.mu.Unlock()
		if shuttingDown || !time.Now().Before(until) {
			c.setResult(nil, corefiber.New(corefiber.CodeAborted, "clientchannel: connect aborted"))
			return
		}

		ctx, cancel := context.WithDeadline(context.Background(), until)
		corelog.Debugf(c.log, "clientchannel", "dialing %s", c.target)
		conn, err := c.dialer.DialContext(ctx, "tcp", c.target)
		cancel()
		if err == nil {
			c.setResult(conn, nil)
			corelog.Infof(c.log, "clientchannel", "connected to %s", c.target)
			return
		}

		now := time.Now()
		if now.Add(deadlineMargin).After(until) {
			c.setResult(nil, corefiber.New(corefiber.CodeAborted, "clientchannel: connect deadline exceeded"))
			return
		}

		sleepUntil := now.Add(sleepDur)
		if sleepUntil.After(until.Add(-deadlineMargin)) {
			sleepUntil = until.Add(-deadlineMargin)
		}
		time.Sleep(time.Until(sleepUntil))

		if sleepDur < maxBackoff {
			sleepDur += backoffStep
		}
	}
}

func (c *Channel) setResult(conn net.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.lastErr = err
	if err == nil {
		c.state = Connected
	} else if c.state != ShuttingDown {
		c.state = Disconnected
	}
}

// HandleErrorStatus is invoked by callers when an in-progress I/O
// operation on Conn() fails. It arms a background reconnect fiber unless
// one is already active or the Channel is shutting down, mirroring
// ClientChannelImpl::HandleErrorStatus.
func (c *Channel) HandleErrorStatus() {
	c.mu.Lock()
	if c.state == ShuttingDown || c.reconnectActive {
		c.mu.Unlock()
		return
	}
	c.reconnectActive = true
	c.state = Disconnected
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	corelog.Infof(c.log, "clientchannel", "connection to %s failed, reconnecting", c.target)
	c.r.SpawnNice(fiber.BackgroundNice, c.reconnectFiber)
}

// reconnectFiber is ReconnectFiber: resolve/connect with a 30s window, and
// if it fails without shutting down, arm itself again.
func (c *Channel) reconnectFiber(_ fiber.Properties) {
	c.resolveAndConnect(time.Now().Add(reconnectWindow))

	c.mu.Lock()
	shuttingDown := c.state == ShuttingDown
	failed := c.lastErr != nil
	c.mu.Unlock()

	if !shuttingDown && failed {
		c.r.SpawnNice(fiber.BackgroundNice, c.reconnectFiber)
		return
	}

	c.mu.Lock()
	c.reconnectActive = false
	if shuttingDown {
		c.shdCond.Broadcast()
	} else {
		corelog.Infof(c.log, "clientchannel", "%s reconnected", c.target)
	}
	c.mu.Unlock()
}

// Shutdown marks the Channel as shutting down, closes any live connection,
// and blocks until any in-flight reconnect fiber has observed the
// shutdown and exited, mirroring ClientChannelImpl::Shutdown.
func (c *Channel) Shutdown() {
	c.mu.Lock()
	if c.state == ShuttingDown {
		c.mu.Unlock()
		return
	}
	c.state = ShuttingDown
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	for c.reconnectActive {
		c.shdCond.Wait()
	}
	c.mu.Unlock()
}
