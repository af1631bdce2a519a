package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/application/ports"
	"github.com/reglet-dev/netgate/internal/domain/manifest"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

type engineFactory struct{}

func (engineFactory) NewEngine() ports.SocketEngine { return &countingEngine{} }

type sessionCounter struct {
	ports.NopMetrics
	open int
}

func (c *sessionCounter) SessionOpened() { c.open++ }
func (c *sessionCounter) SessionClosed() { c.open-- }

func TestSessionService_Open(t *testing.T) {
	t.Parallel()

	metrics := &sessionCounter{}
	svc := NewSessionService(engineFactory{}, manifest.Options{}, metrics, nil)

	sb, err := svc.Open(manifest.SecurityManifest{API: []string{"socket"}, Destinations: []string{"{mdns}"}})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.open)
	assert.False(t, sb.Session().ID().IsZero())

	require.NoError(t, sb.Close())
	assert.Equal(t, 0, metrics.open)
}

func TestSessionService_OpenRejectsInvalidManifest(t *testing.T) {
	t.Parallel()

	svc := NewSessionService(engineFactory{}, manifest.Options{}, nil, nil)

	tests := []struct {
		name string
		raw  manifest.SecurityManifest
	}{
		{name: "unknown module", raw: manifest.SecurityManifest{API: []string{"fs.*"}}},
		{name: "bad port", raw: manifest.SecurityManifest{API: []string{}, Destinations: []string{"tcp://a:http"}}},
		{name: "missing api without policy", raw: manifest.SecurityManifest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb, err := svc.Open(tt.raw)
			require.Error(t, err)
			assert.Nil(t, sb)
			assert.Equal(t, values.ErrorInvalidManifest, apperrors.Detail(err).Type)
		})
	}
}
