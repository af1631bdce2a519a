// Package metrics exports dispatcher and gateway activity as Prometheus
// metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reglet-dev/netgate/internal/application/ports"
	"github.com/reglet-dev/netgate/internal/domain/values"
)

const namespace = "netgate"

// Metrics holds all Prometheus metrics. It implements ports.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	Decisions    *prometheus.CounterVec
	Calls        *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec

	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	Connections    prometheus.Gauge
	FramesRejected *prometheus.CounterVec
}

var _ ports.Metrics = (*Metrics)(nil)

// New registers every metric on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "permission_decisions_total",
				Help:      "Permission checks by kind and outcome",
			},
			[]string{"kind", "allowed"},
		),
		Calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Completed calls by method and error type",
			},
			[]string{"call", "error_type"},
		),
		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Call duration in seconds",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30, 120},
			},
			[]string{"call"},
		),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open sessions",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions opened since start",
		}),

		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_connections",
			Help:      "Open gateway connections",
		}),
		FramesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_frames_rejected_total",
				Help:      "Gateway frames rejected before dispatch",
			},
			[]string{"reason"},
		),
	}
}

// RecordDecision counts one API or destination check.
func (m *Metrics) RecordDecision(kind string, allowed bool) {
	m.Decisions.WithLabelValues(kind, strconv.FormatBool(allowed)).Inc()
}

// RecordCall counts a completed call. Successful calls carry error_type "none".
func (m *Metrics) RecordCall(name string, errType values.ErrorType, elapsed time.Duration) {
	label := string(errType)
	if label == "" {
		label = "none"
	}
	m.Calls.WithLabelValues(name, label).Inc()
	m.CallDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) SessionOpened() {
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()
}

func (m *Metrics) ConnectionOpened() {
	m.Connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.Connections.Dec()
}

// FrameRejected counts a gateway frame dropped for reason.
func (m *Metrics) FrameRejected(reason string) {
	m.FramesRejected.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
