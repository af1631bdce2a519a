// Package gateway carries calls over WebSocket. A connection is one session:
// the first frame holds the manifest, every later frame is a call request,
// and every response frame carries the request id and the final flag.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/reglet-dev/netgate/internal/application/dto"
	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/application/services"
	"github.com/reglet-dev/netgate/internal/domain/manifest"
	"github.com/reglet-dev/netgate/internal/version"
)

const (
	maxFrameSize = 1 << 20
	helloTimeout = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// Hello is the first client frame.
type Hello struct {
	Manifest manifest.SecurityManifest `json:"manifest" cbor:"manifest"`
}

// Welcome answers Hello. Error is set when the manifest was rejected, in which
// case the connection closes after it.
type Welcome struct {
	Error   *dto.ErrorDetail `json:"error,omitempty" cbor:"error,omitempty"`
	Session string           `json:"session,omitempty" cbor:"session,omitempty"`
	Version string           `json:"version" cbor:"version"`
}

// ConnMetrics observes gateway connections.
type ConnMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
	FrameRejected(reason string)
}

type nopConnMetrics struct{}

func (nopConnMetrics) ConnectionOpened()    {}
func (nopConnMetrics) ConnectionClosed()    {}
func (nopConnMetrics) FrameRejected(string) {}

// Config configures a Server.
type Config struct {
	// Codec is used when the client negotiates no subprotocol.
	Codec              string
	MaxFramesPerSecond float64
	Burst              int
	// CheckOrigin is passed to the upgrader; nil accepts same-origin only.
	CheckOrigin func(*http.Request) bool
}

// Server upgrades /exec requests and runs one session per connection.
type Server struct {
	sessions   *services.SessionService
	dispatcher *services.Dispatcher
	codecs     *codecs
	upgrader   websocket.Upgrader
	metrics    ConnMetrics
	logger     *slog.Logger
	cfg        Config
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics observes connections and rejected frames.
func WithMetrics(m ConnMetrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a gateway server.
func NewServer(sessions *services.SessionService, dispatcher *services.Dispatcher, cfg Config, opts ...Option) (*Server, error) {
	c, err := newCodecs()
	if err != nil {
		return nil, err
	}
	if _, err := c.pick("", cfg.Codec); err != nil {
		return nil, err
	}

	s := &Server{
		sessions:   sessions,
		dispatcher: dispatcher,
		codecs:     c,
		metrics:    nopConnMetrics{},
		logger:     slog.Default(),
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{SubprotocolCBOR, SubprotocolJSON},
			CheckOrigin:  cfg.CheckOrigin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns a mux serving /exec.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /exec", s)
	return mux
}

// ServeHTTP upgrades the request and serves the connection until either side
// closes it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	codec, err := s.codecs.pick(conn.Subprotocol(), s.cfg.Codec)
	if err != nil {
		s.logger.Error("no codec for connection", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	if err := s.serve(r.Context(), conn, codec); err != nil && !isClosed(err) {
		s.logger.Debug("connection ended", "error", err)
	}
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn, codec Codec) error {
	sb, err := s.handshake(conn, codec)
	if err != nil {
		return err
	}
	defer func() {
		_ = sb.Close()
	}()
	logger := sb.Logger()

	out := make(chan dto.CallResponse, services.DefaultResponseBuffer)
	g, gctx := errgroup.WithContext(ctx)
	// a blocked read does not observe gctx
	stop := context.AfterFunc(gctx, func() {
		_ = conn.Close()
	})
	defer stop()

	g.Go(func() error {
		for {
			select {
			case resp := <-out:
				if err := s.write(conn, codec, resp); err != nil {
					return err
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		send := func(resp dto.CallResponse) {
			select {
			case out <- resp:
			case <-gctx.Done():
			}
		}
		limiter := rate.NewLimiter(limit(s.cfg.MaxFramesPerSecond), max(s.cfg.Burst, 1))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return err
			}

			var req dto.CallRequest
			if err := codec.Unmarshal(data, &req); err != nil {
				s.metrics.FrameRejected("decode")
				send(rejected(0, apperrors.NewProtocolError("decode request frame", err)))
				continue
			}
			if !limiter.Allow() {
				s.metrics.FrameRejected("rate")
				logger.Info("frame rate exceeded", "call_id", req.ID, "call", req.Name())
				send(rejected(req.ID, apperrors.NewProtocolError("rate limit exceeded", nil)))
				continue
			}
			s.dispatcher.ExecFunc(gctx, sb, req, send)
		}
	})

	return g.Wait()
}

// handshake reads Hello and opens the session.
func (s *Server) handshake(conn *websocket.Conn, codec Codec) (*services.Sandbox, error) {
	if err := conn.SetReadDeadline(time.Now().Add(helloTimeout)); err != nil {
		return nil, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}

	var hello Hello
	if err := codec.Unmarshal(data, &hello); err != nil {
		err = apperrors.NewManifestError("decode hello frame", err)
		_ = s.write(conn, codec, Welcome{Error: apperrors.Detail(err), Version: version.Version})
		return nil, err
	}

	sb, err := s.sessions.Open(hello.Manifest)
	if err != nil {
		s.logger.Info("session rejected", "error", err)
		_ = s.write(conn, codec, Welcome{Error: apperrors.Detail(err), Version: version.Version})
		return nil, err
	}

	if err := s.write(conn, codec, Welcome{Session: sb.Session().ID().String(), Version: version.Version}); err != nil {
		_ = sb.Close()
		return nil, err
	}
	return sb, nil
}

func (s *Server) write(conn *websocket.Conn, codec Codec, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(codec.MessageType(), data)
}

func rejected(id int64, err error) dto.CallResponse {
	return dto.CallResponse{ID: id, Final: true, Error: apperrors.Detail(err)}
}

func limit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

func isClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, context.Canceled)
}
