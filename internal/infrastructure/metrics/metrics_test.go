package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/netgate/internal/domain/values"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := New()
	m.RecordDecision("api", true)
	m.RecordDecision("api", false)
	m.RecordDecision("destination", false)
	m.RecordCall("socket.tcp.send", "", 5*time.Millisecond)
	m.RecordCall("socket.tcp.send", values.ErrorTimeout, time.Second)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.FrameRejected("rate")

	assert.InDelta(t, 1, testutil.ToFloat64(m.Decisions.WithLabelValues("api", "false")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Decisions.WithLabelValues("destination", "false")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Calls.WithLabelValues("socket.tcp.send", "none")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Calls.WithLabelValues("socket.tcp.send", "timeout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SessionsActive), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.SessionsTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FramesRejected.WithLabelValues("rate")), 0)
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.RecordDecision("api", true)

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `netgate_permission_decisions_total{allowed="true",kind="api"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_Independent(t *testing.T) {
	t.Parallel()

	a, b := New(), New()
	a.SessionOpened()
	assert.InDelta(t, 0, testutil.ToFloat64(b.SessionsActive), 0)
}
