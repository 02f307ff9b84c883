package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ucla-readable/featherstitch/pkg/revision"
)

// revisionMetrics is the Prometheus implementation of revision.Metrics.
type revisionMetrics struct {
	flightsInflight prometheus.Gauge
	landingLatency  prometheus.Histogram
}

// NewRevisionMetrics creates a Prometheus-backed revision.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewRevisionMetrics() revision.Metrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &revisionMetrics{
		flightsInflight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "featherstitch_revision_flights_inflight",
			Help: "Blocks currently pinned awaiting a landing request.",
		}),
		landingLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "featherstitch_revision_landing_latency_seconds",
			Help:    "Time between InflightAck and the matching ProcessLandingRequests call.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *revisionMetrics) SetFlightsInflight(n int) { m.flightsInflight.Set(float64(n)) }
func (m *revisionMetrics) ObserveLandingLatency(d time.Duration) {
	m.landingLatency.Observe(d.Seconds())
}
