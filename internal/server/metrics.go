package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	registry *prometheus.Registry

	askRequests     *prometheus.CounterVec
	askDuration     prometheus.Histogram
	activeStreams   prometheus.Gauge
	indexGeneration prometheus.Gauge
}

// newMetrics builds a dedicated registry so tests can construct servers
// without duplicate-registration panics.
func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		askRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newspulse_ask_requests_total",
			Help: "Ask requests by outcome.",
		}, []string{"outcome"}),
		askDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "newspulse_ask_duration_seconds",
			Help:    "End-to-end ask latency including streaming.",
			Buckets: prometheus.DefBuckets,
		}),
		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "newspulse_active_streams",
			Help: "Streams currently open.",
		}),
		indexGeneration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "newspulse_index_generation",
			Help: "Generation of the live index snapshot.",
		}),
	}
}
