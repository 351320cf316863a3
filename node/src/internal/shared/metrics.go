package shared

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the server. Each instance owns its
// registry so several servers can live in one process (tests).
type Metrics struct {
	Registry *prometheus.Registry

	// Connection metrics
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter

	// Request metrics
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Storage metrics
	storeKeys        prometheus.Gauge
	snapshotWrites   *prometheus.CounterVec
	snapshotDuration prometheus.Histogram
}

// NewMetrics creates a new metrics instance. A nil *Metrics is valid and
// records nothing.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		connectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kvserver_connections_active",
				Help: "Number of client connections currently being served",
			},
		),
		connectionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kvserver_connections_total",
				Help: "Total number of accepted client connections",
			},
		),

		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvserver_requests_total",
				Help: "Total number of decoded requests",
			},
			[]string{"op", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kvserver_request_duration_seconds",
				Help:    "Time spent dispatching a request",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		storeKeys: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kvserver_store_keys",
				Help: "Number of keys in the store",
			},
		),
		snapshotWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvserver_snapshot_writes_total",
				Help: "Total number of snapshot writes",
			},
			[]string{"status"},
		),
		snapshotDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kvserver_snapshot_duration_seconds",
				Help:    "Time spent writing a full snapshot",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// ConnectionOpened records an accepted connection
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

// ConnectionClosed records a finished connection
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

// RecordRequest records one dispatched request
func (m *Metrics) RecordRequest(op, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestTotal.WithLabelValues(op, status).Inc()
	m.requestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSnapshot records one snapshot write
func (m *Metrics) RecordSnapshot(duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.snapshotWrites.WithLabelValues(status).Inc()
	m.snapshotDuration.Observe(duration.Seconds())
}

// SetStoreKeys updates the key count gauge
func (m *Metrics) SetStoreKeys(n int) {
	if m == nil {
		return
	}
	m.storeKeys.Set(float64(n))
}
