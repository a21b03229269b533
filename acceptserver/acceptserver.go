// Package acceptserver implements a reactor-driven TCP accept loop: bind
// with SO_REUSEADDR, run the accept loop as a fiber on
// a round-robin reactor.Pool member, hand each accepted connection to a
// per-connection handler fiber, and track live handlers so Shutdown can
// drain gracefully instead of abandoning in-flight connections.
//
// Grounded on original_source/util/asio/accept_server.cc (bind/listen
// constants, the accept-then-spawn-handler loop, SIGINT/SIGTERM→acceptor
// close, and the wait-for-empty-list drain), with the per-handler panic
// isolation adapted from server/server.go's Serve loop. Live handlers are
// tracked in a set keyed by handle.
package acceptserver

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/momentics/corefiber/corelog"
	"github.com/momentics/corefiber/reactor"
)

// maxBacklogPendingConnections mirrors kMaxBacklogPendingConnections in the
// original implementation. It appears in the startup log only; it is not
// passed to the socket, whose listen backlog is the one Go's net package
// picks for the platform.
const maxBacklogPendingConnections = 64

// Handler processes one accepted connection. Implementations own the
// connection's lifetime and must return when the connection closes or
// should be closed; the Server closes conn after Handle returns in either
// case.
type Handler interface {
	Handle(ctx context.Context, conn net.Conn)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn net.Conn)

func (f HandlerFunc) Handle(ctx context.Context, conn net.Conn) { f(ctx, conn) }

// Server binds a listener and drives the accept loop as a fiber on a
// reactor.Pool, tracking live connections for graceful drain.
type Server struct {
	pool    *reactor.Pool
	factory func() Handler
	log     corelog.Logger

	mu       sync.Mutex
	ln       *net.TCPListener
	handlers map[*handle]struct{}
	empty    *sync.Cond

	usePoller bool
	poller    reactor.EventReactor

	stopSignals chan os.Signal
	done        chan struct{}
	started     bool
}

// handle is one live accepted connection, tracked in Server.handlers the
// way the original links ConnectionHandler into ConnectionHandlerList.
type handle struct {
	conn net.Conn
}

// Option configures a Server at construction.
type Option func(*Server)

// WithLogger attaches a Logger for lifecycle diagnostics.
func WithLogger(l corelog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithReadinessPoller enables an optional accept-gating path: the
// listener's raw file descriptor is registered with a platform
// reactor.EventReactor (epoll on Linux, IOCP on Windows), and acceptLoop
// waits on it before calling Accept instead of relying solely on the Go
// runtime's own netpoller. Platforms without a reactor.EventReactor
// implementation log a warning and fall back to the plain accept loop.
func WithReadinessPoller() Option {
	return func(s *Server) { s.usePoller = true }
}

// New binds addr (SO_REUSEADDR; the listen backlog is Go's platform
// default, not maxBacklogPendingConnections) and returns a Server that will
// dispatch each accepted connection to a Handler built by factory. factory
// is called once per connection so a Handler may hold per-connection
// state.
func New(pool *reactor.Pool, addr string, factory func() Handler, opts ...Option) (*Server, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, err
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, &net.OpError{Op: "listen", Err: net.UnknownNetworkError("tcp")}
	}

	s := &Server{
		pool:     pool,
		factory:  factory,
		log:      corelog.NoOp{},
		ln:       tcpLn,
		handlers: make(map[*handle]struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.empty = sync.NewCond(&s.mu)

	if s.usePoller {
		if perr := s.enablePoller(); perr != nil {
			corelog.Warnf(s.log, "acceptserver", perr, "readiness poller unavailable, falling back to netpoller-driven accept")
		}
	}

	corelog.Infof(s.log, "acceptserver", "listening on %s (backlog=%d)", s.ln.Addr(), maxBacklogPendingConnections)
	return s, nil
}

// enablePoller registers the listener's raw file descriptor with a
// platform reactor.EventReactor so acceptLoop can gate Accept behind an
// explicit readiness wait.
func (s *Server) enablePoller() error {
	p, err := reactor.NewReactor()
	if err != nil {
		return err
	}
	rawConn, err := s.ln.SyscallConn()
	if err != nil {
		p.Close()
		return err
	}
	var regErr error
	if ctlErr := rawConn.Control(func(fd uintptr) {
		regErr = p.Register(fd, 0)
	}); ctlErr != nil {
		p.Close()
		return ctlErr
	}
	if regErr != nil {
		p.Close()
		return regErr
	}
	s.poller = p
	return nil
}

// Run launches the accept loop as a fiber on the next reactor in the pool
// and arms SIGINT/SIGTERM to close the listener, mirroring AcceptServer's
// constructor-time signal registration and Run's asio::post.
func (s *Server) Run() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.stopSignals = make(chan os.Signal, 1)
	signal.Notify(s.stopSignals, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-s.stopSignals; ok {
			s.ln.Close()
		}
	}()

	r := s.pool.Next()
	r.Spawn(s.acceptLoop)
}

func (s *Server) acceptLoop() {
	defer close(s.done)
	// events is reused across iterations; the epoll registration is
	// edge-triggered, so a burst of connections between two Wait calls is
	// observed as a single readiness edge and drained by one Accept.
	events := make([]reactor.Event, 1)
	for {
		if s.poller != nil {
			if _, err := s.poller.Wait(events); err != nil {
				corelog.Debugf(s.log, "acceptserver", "poller wait exiting: %v", err)
				break
			}
		}

		conn, err := s.ln.Accept()
		if err != nil {
			corelog.Debugf(s.log, "acceptserver", "accept loop exiting: %v", err)
			break
		}
		corelog.Debugf(s.log, "acceptserver", "accepted %s", conn.RemoteAddr())

		h := &handle{conn: conn}
		s.mu.Lock()
		s.handlers[h] = struct{}{}
		s.mu.Unlock()

		hr := s.pool.Next()
		hr.Spawn(func() { s.runHandler(h) })
	}

	s.mu.Lock()
	for h := range s.handlers {
		h.conn.Close()
	}
	for len(s.handlers) > 0 {
		s.empty.Wait()
	}
	s.mu.Unlock()

	corelog.Infof(s.log, "acceptserver", "stopped")
}

func (s *Server) runHandler(h *handle) {
	defer func() {
		if rec := recover(); rec != nil {
			corelog.Errorf(s.log, "acceptserver", nil, "handler panic on %s: %v", h.conn.RemoteAddr(), rec)
		}
		h.conn.Close()
		s.mu.Lock()
		delete(s.handlers, h)
		if len(s.handlers) == 0 {
			s.empty.Broadcast()
		}
		s.mu.Unlock()
	}()

	handler := s.factory()
	handler.Handle(context.Background(), h.conn)
}

// Shutdown closes the listener, stopping the accept loop. It does not
// block for in-flight connections to finish; call Wait for that.
func (s *Server) Shutdown() {
	s.ln.Close()
	if s.poller != nil {
		s.poller.Close()
	}
	if s.stopSignals != nil {
		signal.Stop(s.stopSignals)
		close(s.stopSignals)
	}
}

// Wait blocks until the accept loop has exited and every in-flight
// connection handler has returned, mirroring AcceptServer::Wait.
func (s *Server) Wait() {
	<-s.done
}

// ActiveConnections reports the number of currently tracked connections,
// for diagnostics and tests.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}
