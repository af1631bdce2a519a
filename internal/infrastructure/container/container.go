// Package container provides dependency injection for the application.
package container

import (
	"fmt"
	"log/slog"

	"github.com/reglet-dev/netgate/internal/application/ports"
	"github.com/reglet-dev/netgate/internal/application/services"
	"github.com/reglet-dev/netgate/internal/infrastructure/config"
	"github.com/reglet-dev/netgate/internal/infrastructure/discovery"
	"github.com/reglet-dev/netgate/internal/infrastructure/gateway"
	"github.com/reglet-dev/netgate/internal/infrastructure/metrics"
	"github.com/reglet-dev/netgate/internal/infrastructure/protocols"
	"github.com/reglet-dev/netgate/internal/infrastructure/sockets"
	"github.com/reglet-dev/netgate/internal/infrastructure/system"
	"github.com/reglet-dev/netgate/internal/infrastructure/tools"
	"github.com/reglet-dev/netgate/internal/version"
)

// Container holds all application dependencies.
type Container struct {
	manifestLoader *config.ManifestLoader
	registry       *services.Registry
	dispatcher     *services.Dispatcher
	sessions       *services.SessionService
	gateway        *gateway.Server
	metrics        *metrics.Metrics
	systemCfg      *system.Config
	logger         *slog.Logger
}

// Options configure the container.
type Options struct {
	Logger *slog.Logger
	// Config is used as is when set; otherwise SystemConfigPath is loaded.
	Config           *system.Config
	SystemConfigPath string
	// MissingAPI overrides manifest.missing_api from the config file.
	MissingAPI string
}

// NewRegistry returns a registry holding every module.
func NewRegistry() *services.Registry {
	r := services.NewRegistry()
	services.RegisterSocketModule(r)
	services.RegisterSystemModule(r)
	discovery.Register(r)
	protocols.Register(r)
	tools.Register(r)
	return r
}

// New creates a new dependency injection container.
func New(opts Options) (*Container, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	systemCfg := opts.Config
	if systemCfg == nil {
		path := opts.SystemConfigPath
		if path == "" {
			path = system.DefaultPath()
		}
		loaded, err := system.NewConfigLoader().Load(path)
		if err != nil {
			return nil, err
		}
		systemCfg = loaded
	}
	if opts.MissingAPI != "" {
		systemCfg.Manifest.MissingAPI = opts.MissingAPI
	}
	if err := systemCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid system config: %w", err)
	}

	manifestOptions, err := systemCfg.ManifestOptions(version.Version)
	if err != nil {
		return nil, err
	}

	manifestLoader, err := config.NewManifestLoader()
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	engines := sockets.NewFactory(
		sockets.WithConnectTimeout(systemCfg.ConnectTimeout()),
		sockets.WithMaxRecvSize(systemCfg.Sockets.MaxRecvSize),
		sockets.WithLogger(opts.Logger),
	)

	registry := NewRegistry()
	dispatcher := services.NewDispatcher(registry,
		services.WithMetrics(m),
		services.WithResponseBuffer(systemCfg.Gateway.ResponseBuffer),
	)
	sessions := services.NewSessionService(engines, manifestOptions, m, opts.Logger)

	gw, err := gateway.NewServer(sessions, dispatcher, gateway.Config{
		Codec:              systemCfg.Gateway.Codec,
		MaxFramesPerSecond: systemCfg.Gateway.MaxFramesPerSecond,
		Burst:              systemCfg.Gateway.Burst,
	}, gateway.WithMetrics(m), gateway.WithLogger(opts.Logger))
	if err != nil {
		return nil, err
	}

	return &Container{
		manifestLoader: manifestLoader,
		registry:       registry,
		dispatcher:     dispatcher,
		sessions:       sessions,
		gateway:        gw,
		metrics:        m,
		systemCfg:      systemCfg,
		logger:         opts.Logger,
	}, nil
}

// Dispatcher returns the call dispatcher.
func (c *Container) Dispatcher() *services.Dispatcher {
	return c.dispatcher
}

// Sessions returns the session service.
func (c *Container) Sessions() *services.SessionService {
	return c.sessions
}

// ManifestLoader returns the manifest loader port.
func (c *Container) ManifestLoader() ports.ManifestLoader {
	return c.manifestLoader
}

// Gateway returns the WebSocket server.
func (c *Container) Gateway() *gateway.Server {
	return c.gateway
}

// Metrics returns the Prometheus metrics.
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

// SystemConfig returns the system configuration.
func (c *Container) SystemConfig() *system.Config {
	return c.systemCfg
}

// Logger returns the configured logger.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}
