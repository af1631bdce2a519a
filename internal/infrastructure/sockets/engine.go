// Package sockets implements the per-session socket engine: TCP clients and
// listeners, plain, broadcast and multicast UDP, all addressed through
// generation-checked handles.
package sockets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/application/ports"
	"github.com/reglet-dev/netgate/internal/domain/values"
	"golang.org/x/sys/unix"
)

const (
	// DefaultConnectTimeout bounds TCP connects when the caller gives none.
	DefaultConnectTimeout = 1000 * time.Millisecond
	// MaxUDPPayload is the largest IPv4 UDP payload and the default receive size.
	MaxUDPPayload = 65507

	// pollWindow is the wait used for zero timeouts. A deadline already in the
	// past would fail before the descriptor is even tried.
	pollWindow = time.Millisecond

	listenBacklog = 1
)

// record is one open socket. Exactly one of tcp, listener, udp is set.
type record struct {
	tcp      *net.TCPConn
	listener *net.TCPListener
	udp      *net.UDPConn
	kind     values.SocketKind
	role     values.SocketRole

	// recvMu serializes receives; it guards buf and the read deadline.
	recvMu sync.Mutex
	buf    []byte
}

func (r *record) close() error {
	switch {
	case r.tcp != nil:
		return r.tcp.Close()
	case r.listener != nil:
		return r.listener.Close()
	case r.udp != nil:
		return r.udp.Close()
	}
	return nil
}

func (r *record) rawConn() (syscall.RawConn, error) {
	switch {
	case r.tcp != nil:
		return r.tcp.SyscallConn()
	case r.listener != nil:
		return r.listener.SyscallConn()
	case r.udp != nil:
		return r.udp.SyscallConn()
	}
	return nil, apperrors.ErrInvalidHandle
}

// conn returns the stream or datagram connection data moves through.
func (r *record) conn() (net.Conn, error) {
	switch {
	case r.tcp != nil:
		return r.tcp, nil
	case r.udp != nil:
		return r.udp, nil
	}
	return nil, apperrors.NewProtocolError("operation requires a connected or datagram socket, got a listener", nil)
}

// Engine is the socket engine of one session.
type Engine struct {
	logger         *slog.Logger
	arena          arena
	connectTimeout time.Duration
	maxRecvSize    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithConnectTimeout sets the default TCP connect timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.connectTimeout = d
		}
	}
}

// WithMaxRecvSize sets the default and largest receive size. Values above
// MaxUDPPayload are ignored.
func WithMaxRecvSize(n int) Option {
	return func(e *Engine) {
		if n > 0 && n <= MaxUDPPayload {
			e.maxRecvSize = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an empty engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		connectTimeout: DefaultConnectTimeout,
		maxRecvSize:    MaxUDPPayload,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Factory creates engines sharing one set of options.
type Factory struct {
	opts []Option
}

// NewFactory creates a Factory.
func NewFactory(opts ...Option) *Factory {
	return &Factory{opts: opts}
}

// NewEngine implements ports.SocketEngineFactory.
func (f *Factory) NewEngine() ports.SocketEngine {
	return NewEngine(f.opts...)
}

var _ ports.SocketEngine = (*Engine)(nil)

// OpenTCPClient connects to host:port. A non-positive timeout uses the
// engine default.
func (e *Engine) OpenTCPClient(ctx context.Context, host string, port int, timeout time.Duration) (values.SocketHandle, error) {
	if err := checkPort(port); err != nil {
		return 0, err
	}
	if timeout <= 0 {
		timeout = e.connectTimeout
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		// the dialer closes the half-open descriptor itself
		return 0, apperrors.FromIO("connect", err)
	}

	h := e.arena.insert(&record{kind: values.SocketTCP, role: values.RoleClient, tcp: conn.(*net.TCPConn)})
	e.logger.Debug("tcp client opened", "handle", h, "remote", conn.RemoteAddr().String())
	return h, nil
}

// OpenTCPListener binds 0.0.0.0:port and listens with a backlog of one.
func (e *Engine) OpenTCPListener(port int, reuse bool) (values.SocketHandle, error) {
	if err := checkPort(port); err != nil {
		return 0, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return 0, apperrors.NewSocketError("socket", err)
	}
	unix.CloseOnExec(fd)

	if reuse {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			_ = unix.Close(fd)
			return 0, apperrors.NewSocketError("setsockopt reuseaddr", err)
		}
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		_ = unix.Close(fd)
		return 0, apperrors.NewSocketError("bind", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return 0, apperrors.NewSocketError("listen", err)
	}

	f := os.NewFile(uintptr(fd), "tcp-listener")
	ln, err := net.FileListener(f)
	// FileListener dups the descriptor
	_ = f.Close()
	if err != nil {
		return 0, apperrors.NewSocketError("listen", err)
	}

	h := e.arena.insert(&record{kind: values.SocketTCP, role: values.RoleListener, listener: ln.(*net.TCPListener)})
	e.logger.Debug("tcp listener opened", "handle", h, "port", port, "reuse", reuse)
	return h, nil
}

// Accept waits for one connection on a listener. On success the listener is
// closed and its slot now holds the accepted connection under a new handle.
func (e *Engine) Accept(h values.SocketHandle, timeout time.Duration) (values.SocketHandle, values.Endpoint, error) {
	rec, err := e.arena.get(h)
	if err != nil {
		return 0, values.Endpoint{}, err
	}
	if rec.listener == nil {
		return 0, values.Endpoint{}, apperrors.NewProtocolError("accept requires a listening socket", nil)
	}

	if err := rec.listener.SetDeadline(deadline(timeout)); err != nil {
		return 0, values.Endpoint{}, apperrors.FromIO("accept", err)
	}
	conn, err := rec.listener.AcceptTCP()
	if err != nil {
		return 0, values.Endpoint{}, apperrors.FromIO("accept", err)
	}

	accepted := &record{kind: values.SocketTCP, role: values.RoleAccepted, tcp: conn}
	next, old, err := e.arena.replace(h, accepted)
	if err != nil {
		// closed underneath us
		_ = conn.Close()
		return 0, values.Endpoint{}, err
	}
	_ = old.close()

	peer := endpointFromAddr(conn.RemoteAddr())
	e.logger.Debug("tcp connection accepted", "listener", h, "handle", next, "peer", peer.String())
	return next, peer, nil
}

// Send writes data to a connected socket.
func (e *Engine) Send(h values.SocketHandle, data []byte) (int, error) {
	rec, err := e.arena.get(h)
	if err != nil {
		return 0, err
	}
	conn, err := rec.conn()
	if err != nil {
		return 0, err
	}
	n, err := conn.Write(data)
	if err != nil {
		return n, apperrors.FromIO("send", err)
	}
	return n, nil
}

// Recv reads at most maxSize bytes. A non-positive maxSize uses the engine
// default; a larger one than the engine limit is a protocol error. For TCP an empty result means the peer closed the stream.
func (e *Engine) Recv(h values.SocketHandle, timeout time.Duration, maxSize int) ([]byte, error) {
	rec, err := e.arena.get(h)
	if err != nil {
		return nil, err
	}
	conn, err := rec.conn()
	if err != nil {
		return nil, err
	}

	rec.recvMu.Lock()
	defer rec.recvMu.Unlock()

	buf, err := e.buffer(rec, maxSize)
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(deadline(timeout)); err != nil {
		return nil, apperrors.FromIO("recv", err)
	}
	n, err := conn.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) && rec.tcp != nil {
			return []byte{}, nil
		}
		return nil, apperrors.FromIO("recv", err)
	}
	return clone(buf[:n]), nil
}

// buffer returns the record's reusable receive buffer sliced to the wanted
// size. The caller must hold rec.recvMu.
func (e *Engine) buffer(rec *record, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = e.maxRecvSize
	}
	if maxSize > e.maxRecvSize {
		return nil, apperrors.NewProtocolError("receive size "+strconv.Itoa(maxSize)+" exceeds limit "+strconv.Itoa(e.maxRecvSize), nil)
	}
	if cap(rec.buf) < maxSize {
		rec.buf = make([]byte, maxSize)
	}
	return rec.buf[:maxSize], nil
}

// Close releases the socket. The handle is invalid afterwards, including for
// a second Close.
func (e *Engine) Close(h values.SocketHandle) error {
	rec, err := e.arena.remove(h)
	if err != nil {
		return err
	}
	e.logger.Debug("socket closed", "handle", h)
	if err := rec.close(); err != nil {
		return apperrors.NewSocketError("close", err)
	}
	return nil
}

// CloseAll releases every socket of the engine.
func (e *Engine) CloseAll() int {
	recs := e.arena.drain()
	for _, rec := range recs {
		_ = rec.close()
	}
	if len(recs) > 0 {
		e.logger.Debug("sockets released", "count", len(recs))
	}
	return len(recs)
}

// Describe returns what the handle refers to.
func (e *Engine) Describe(h values.SocketHandle) (ports.SocketInfo, error) {
	rec, err := e.arena.get(h)
	if err != nil {
		return ports.SocketInfo{Handle: h}, err
	}
	return ports.SocketInfo{Kind: rec.kind, Role: rec.role, Handle: h, Open: true}, nil
}

// Handles lists every open handle.
func (e *Engine) Handles() []values.SocketHandle {
	return e.arena.handles()
}

func deadline(timeout time.Duration) time.Time {
	switch {
	case timeout < 0:
		return time.Time{}
	case timeout == 0:
		return time.Now().Add(pollWindow)
	default:
		return time.Now().Add(timeout)
	}
}

func checkPort(port int) error {
	if port < 0 || port > 65535 {
		return apperrors.NewProtocolError("port "+strconv.Itoa(port)+" out of range", nil)
	}
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
