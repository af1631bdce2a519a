package services

import (
	"log/slog"

	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/application/ports"
	"github.com/reglet-dev/netgate/internal/domain/manifest"
	"github.com/reglet-dev/netgate/internal/domain/session"
)

// SessionService turns a raw manifest into a ready sandbox.
type SessionService struct {
	engines ports.SocketEngineFactory
	metrics ports.Metrics
	logger  *slog.Logger
	options manifest.Options
}

// NewSessionService creates a session service. options carries the explicit
// policy for manifests without an api key.
func NewSessionService(engines ports.SocketEngineFactory, options manifest.Options, metrics ports.Metrics, logger *slog.Logger) *SessionService {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{engines: engines, options: options, metrics: metrics, logger: logger}
}

// Open parses raw and creates a sandbox for it. A manifest that fails to
// parse yields no sandbox at all.
func (s *SessionService) Open(raw manifest.SecurityManifest) (*Sandbox, error) {
	canonical, err := manifest.Parse(raw, s.options)
	if err != nil {
		return nil, apperrors.NewManifestError("parse manifest", err)
	}

	sb := NewSandbox(session.New(canonical), s.engines.NewEngine(), s.logger)
	sb.onClose = s.metrics.SessionClosed
	s.metrics.SessionOpened()

	sb.Logger().Info("session opened",
		"api", len(raw.API),
		"destinations", len(raw.Destinations),
		"placeholders", canonical.Placeholders())
	return sb, nil
}
