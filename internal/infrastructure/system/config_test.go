package system

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/netgate/internal/domain/manifest"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigLoader_Load_FileNotExists(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfigLoader().Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, time.Second, cfg.ConnectTimeout())
	assert.Equal(t, DefaultMaxRecvSize, cfg.Sockets.MaxRecvSize)
	assert.Empty(t, cfg.Metrics.Listen)
}

func TestConfigLoader_Load_ValidConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
gateway:
  listen: 0.0.0.0:9000
  codec: cbor
  max_frames_per_second: 10
metrics:
  listen: 127.0.0.1:9100
manifest:
  missing_api: deny
sockets:
  connect_timeout_ms: 250
`)

	cfg, err := NewConfigLoader().Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Gateway.Listen)
	assert.Equal(t, CodecCBOR, cfg.Gateway.Codec)
	assert.InDelta(t, 10.0, cfg.Gateway.MaxFramesPerSecond, 0)
	assert.Equal(t, DefaultBurst, cfg.Gateway.Burst, "unset fields take defaults")
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectTimeout())

	opts, err := cfg.ManifestOptions("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, manifest.Options{MissingAPI: manifest.MissingAPIDeny, HostVersion: "1.2.3"}, opts)
}

func TestConfigLoader_Load_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "yaml", body: "gateway: [", message: "failed to parse"},
		{name: "codec", body: "gateway:\n  codec: xml\n", message: "gateway.codec"},
		{name: "recv size", body: "sockets:\n  max_recv_size: 70000\n", message: "sockets.max_recv_size"},
		{name: "policy", body: "manifest:\n  missing_api: maybe\n", message: "manifest.missing_api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewConfigLoader().Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestConfig_ManifestOptions_UnsetPolicy(t *testing.T) {
	t.Parallel()

	opts, err := DefaultConfig().ManifestOptions("dev")
	require.NoError(t, err)
	assert.Equal(t, manifest.MissingAPIUnspecified, opts.MissingAPI)
	assert.Equal(t, "dev", opts.HostVersion)
}
