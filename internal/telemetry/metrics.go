package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks Telemetry Ingest activity.
type Metrics struct {
	SamplesIngestedTotal prometheus.Counter
	RateLimitedTotal     prometheus.Counter
	InsertErrorsTotal    prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SamplesIngestedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "samples_ingested_total",
			Help:      "Total number of telemetry samples successfully ingested",
		}),
		RateLimitedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "rate_limited_total",
			Help:      "Total number of ingest requests rejected by the rate limiter",
		}),
		InsertErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "insert_errors_total",
			Help:      "Total number of failed telemetry inserts",
		}),
	}
}

// unregisteredMetrics builds Metrics without touching the default
// registry, for callers (and tests) that pass a nil *Metrics and don't
// care about exposing these counters on /metrics.
func unregisteredMetrics() *Metrics {
	return &Metrics{
		SamplesIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "samples_ingested_total"}),
		RateLimitedTotal:     prometheus.NewCounter(prometheus.CounterOpts{Name: "rate_limited_total"}),
		InsertErrorsTotal:    prometheus.NewCounter(prometheus.CounterOpts{Name: "insert_errors_total"}),
	}
}
