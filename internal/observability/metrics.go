// File: internal/observability/metrics.go
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes recorded by ObserveRequest.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeSessionLost = "session_lost"
)

// Metrics collects inspector request metrics on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	snapshotFailures *prometheus.CounterVec
	cachedElements   prometheus.Gauge
}

// NewMetrics creates the collectors under namespace and registers them, along
// with the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of inspector requests",
			},
			[]string{"op", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Inspector request duration in seconds, settle interval included",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"op"},
		),
		snapshotFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_failures_total",
				Help:      "Snapshot payloads that could not be retrieved",
			},
			[]string{"payload"}, // payload: source, screenshot
		),
		cachedElements: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_elements",
			Help:      "Number of elements in the session cache",
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.snapshotFailures,
		m.cachedElements,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest records one handled request.
func (m *Metrics) ObserveRequest(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(op, outcome).Inc()
	m.requestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SnapshotFailure records a snapshot payload that came back empty.
func (m *Metrics) SnapshotFailure(payload string) {
	if m == nil {
		return
	}
	m.snapshotFailures.WithLabelValues(payload).Inc()
}

// SetCachedElements reports the current cache size.
func (m *Metrics) SetCachedElements(n int) {
	if m == nil {
		return
	}
	m.cachedElements.Set(float64(n))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
