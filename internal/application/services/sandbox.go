package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/reglet-dev/netgate/internal/application/ports"
	"github.com/reglet-dev/netgate/internal/domain/session"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

// ErrSandboxClosed is returned for calls submitted after Close.
var ErrSandboxClosed = errors.New("session closed")

// Sandbox holds everything one session owns: its manifest and neighbors, its
// socket engine, the resources layered on top of sockets (discovery agents),
// and its running calls.
type Sandbox struct {
	ctx       context.Context
	engine    ports.SocketEngine
	session   *session.Session
	logger    *slog.Logger
	resources map[values.SocketHandle]io.Closer
	calls     map[int64]*runningCall
	cancel    context.CancelFunc
	onClose   func()
	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
}

// NewSandbox creates a sandbox for sess using engine for its sockets.
func NewSandbox(sess *session.Session, engine ports.SocketEngine, logger *slog.Logger) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sandbox{
		ctx:       ctx,
		cancel:    cancel,
		session:   sess,
		engine:    engine,
		logger:    logger.With("session", sess.ID().String()),
		resources: make(map[values.SocketHandle]io.Closer),
		calls:     make(map[int64]*runningCall),
	}
}

// Session returns the session context
func (s *Sandbox) Session() *session.Session {
	return s.session
}

// Engine returns the session's socket engine
func (s *Sandbox) Engine() ports.SocketEngine {
	return s.engine
}

// Logger returns the session-scoped logger
func (s *Sandbox) Logger() *slog.Logger {
	return s.logger
}

// Attach registers a resource that owns the socket h.
func (s *Sandbox) Attach(h values.SocketHandle, c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[h] = c
}

// Resource returns the resource attached to h.
func (s *Sandbox) Resource(h values.SocketHandle) (io.Closer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.resources[h]
	return c, ok
}

// Detach removes and returns the resource attached to h.
func (s *Sandbox) Detach(h values.SocketHandle) (io.Closer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.resources[h]
	delete(s.resources, h)
	return c, ok
}

type runningCall struct {
	cancel context.CancelFunc
}

// begin registers a running call and returns its context. The returned
// function must be called when the call finishes.
func (s *Sandbox) begin(parent context.Context, id int64) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrSandboxClosed
	}

	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.ctx, cancel)
	rc := &runningCall{cancel: cancel}
	s.calls[id] = rc
	s.wg.Add(1)

	return ctx, func() {
		stop()
		cancel()
		s.mu.Lock()
		// a newer call may have reused the id
		if s.calls[id] == rc {
			delete(s.calls, id)
		}
		s.mu.Unlock()
		s.wg.Done()
	}, nil
}

// Cancel stops the running call with the given id. Cancellation is
// cooperative: the call observes it at its next wait.
func (s *Sandbox) Cancel(id int64) bool {
	s.mu.Lock()
	rc, ok := s.calls[id]
	s.mu.Unlock()
	if ok {
		rc.cancel()
	}
	return ok
}

// Running returns the number of calls in flight.
func (s *Sandbox) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Close cancels running calls and releases every resource and socket, then
// waits for the calls to return. Releasing first wakes calls blocked in an
// indefinite socket wait. It is safe to call more than once.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	errs := s.release()
	released := s.engine.CloseAll()

	s.wg.Wait()
	// resources and sockets opened by calls that were mid-flight
	errs = append(errs, s.release()...)
	released += s.engine.CloseAll()
	s.logger.Debug("session closed", "sockets_released", released)

	if s.onClose != nil {
		s.onClose()
	}
	return errors.Join(errs...)
}

func (s *Sandbox) release() []error {
	s.mu.Lock()
	resources := s.resources
	s.resources = make(map[values.SocketHandle]io.Closer)
	s.mu.Unlock()

	var errs []error
	for _, r := range resources {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
