// Package system provides infrastructure for host-level configuration
// loaded from ~/.netgate/config.yaml.
package system

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/reglet-dev/netgate/internal/domain/manifest"
)

// Codec names accepted by the gateway.
const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// Default values applied to zero fields.
const (
	DefaultGatewayListen      = "127.0.0.1:8765"
	DefaultFramesPerSecond    = 200
	DefaultBurst              = 50
	DefaultConnectTimeoutMs   = 1000
	DefaultMaxRecvSize        = 65507
	DefaultResponseBufferSize = 16
)

// Config represents the host configuration file.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Manifest ManifestConfig `yaml:"manifest"`
	Sockets  SocketsConfig  `yaml:"sockets"`
}

// GatewayConfig configures the WebSocket transport.
type GatewayConfig struct {
	Listen string `yaml:"listen"`
	// Codec is the default frame codec when a client negotiates none.
	Codec              string  `yaml:"codec"`
	MaxFramesPerSecond float64 `yaml:"max_frames_per_second"`
	Burst              int     `yaml:"burst"`
	ResponseBuffer     int     `yaml:"response_buffer"`
}

// MetricsConfig configures the Prometheus listener. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// ManifestConfig configures manifest parsing.
type ManifestConfig struct {
	// MissingAPI is "deny" or "allow". Left empty, manifests without an api
	// key are rejected.
	MissingAPI string `yaml:"missing_api"`
}

// SocketsConfig configures every session's socket engine.
type SocketsConfig struct {
	ConnectTimeoutMs int `yaml:"connect_timeout_ms"`
	MaxRecvSize      int `yaml:"max_recv_size"`
}

// ConfigLoader loads system configuration from disk.
type ConfigLoader struct{}

// NewConfigLoader creates a new system config loader.
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// DefaultPath returns ~/.netgate/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".netgate", "config.yaml")
	}
	return filepath.Join(home, ".netgate", "config.yaml")
}

// DefaultConfig returns a Config with safe defaults for all fields.
func DefaultConfig() *Config {
	cfg := &Config{Gateway: GatewayConfig{Codec: CodecJSON}}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Gateway.Listen == "" {
		c.Gateway.Listen = DefaultGatewayListen
	}
	if c.Gateway.Codec == "" {
		c.Gateway.Codec = CodecJSON
	}
	if c.Gateway.MaxFramesPerSecond == 0 {
		c.Gateway.MaxFramesPerSecond = DefaultFramesPerSecond
	}
	if c.Gateway.Burst == 0 {
		c.Gateway.Burst = DefaultBurst
	}
	if c.Gateway.ResponseBuffer == 0 {
		c.Gateway.ResponseBuffer = DefaultResponseBufferSize
	}
	if c.Sockets.ConnectTimeoutMs == 0 {
		c.Sockets.ConnectTimeoutMs = DefaultConnectTimeoutMs
	}
	if c.Sockets.MaxRecvSize == 0 {
		c.Sockets.MaxRecvSize = DefaultMaxRecvSize
	}
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Gateway.Codec != CodecJSON && c.Gateway.Codec != CodecCBOR {
		errs = append(errs, fmt.Errorf("gateway.codec must be %q or %q, got %q", CodecJSON, CodecCBOR, c.Gateway.Codec))
	}
	if c.Gateway.MaxFramesPerSecond < 0 {
		errs = append(errs, errors.New("gateway.max_frames_per_second must not be negative"))
	}
	if c.Gateway.Burst < 0 {
		errs = append(errs, errors.New("gateway.burst must not be negative"))
	}
	if c.Gateway.ResponseBuffer < 0 {
		errs = append(errs, errors.New("gateway.response_buffer must not be negative"))
	}
	if c.Sockets.ConnectTimeoutMs < 0 {
		errs = append(errs, errors.New("sockets.connect_timeout_ms must not be negative"))
	}
	if c.Sockets.MaxRecvSize < 0 || c.Sockets.MaxRecvSize > DefaultMaxRecvSize {
		errs = append(errs, fmt.Errorf("sockets.max_recv_size must be in 0..%d", DefaultMaxRecvSize))
	}
	if c.Manifest.MissingAPI != "" {
		if _, err := manifest.ParseMissingAPIPolicy(c.Manifest.MissingAPI); err != nil {
			errs = append(errs, fmt.Errorf("manifest.missing_api: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ManifestOptions returns the parse options for hostVersion.
func (c *Config) ManifestOptions(hostVersion string) (manifest.Options, error) {
	opts := manifest.Options{HostVersion: hostVersion}
	if c.Manifest.MissingAPI == "" {
		return opts, nil
	}
	policy, err := manifest.ParseMissingAPIPolicy(c.Manifest.MissingAPI)
	if err != nil {
		return manifest.Options{}, err
	}
	opts.MissingAPI = policy
	return opts, nil
}

// ConnectTimeout returns the TCP connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Sockets.ConnectTimeoutMs) * time.Millisecond
}

// Load loads the system configuration from the specified path.
// If the file does not exist, returns DefaultConfig().
func (l *ConfigLoader) Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	//nolint:gosec // G304: path is the user-provided config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid system config: %w", err)
	}

	return &config, nil
}
