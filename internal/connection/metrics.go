package connection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks Connection Manager activity.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	EventsTotal       *prometheus.CounterVec
	BroadcastDuration prometheus.Histogram
	ErrorsTotal       *prometheus.CounterVec
	HeartbeatTimeouts prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "active_total",
			Help:      "Current number of live transports attached to a session",
		}),

		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "events_total",
			Help:      "Total number of events broadcast, by type and source",
		}, []string{"type", "source"}),

		BroadcastDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "broadcast_duration_seconds",
			Help:      "Duration of per-twin broadcast operations",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "errors_total",
			Help:      "Total number of transport send errors, by reason",
		}, []string{"reason"}),

		HeartbeatTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "heartbeat_timeouts_total",
			Help:      "Total number of connections dropped for missing a heartbeat deadline",
		}),
	}
}

// unregisteredMetrics builds Metrics without touching the default
// registry, for callers (and tests) that pass a nil *Metrics.
func unregisteredMetrics() *Metrics {
	return &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{Name: "connections_active"}),
		EventsTotal:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "events_total"}, []string{"type", "source"}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "broadcast_duration_seconds"}),
		ErrorsTotal:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "errors_total"}, []string{"reason"}),
		HeartbeatTimeouts: prometheus.NewCounter(prometheus.CounterOpts{Name: "heartbeat_timeouts_total"}),
	}
}
