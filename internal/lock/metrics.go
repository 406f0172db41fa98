package lock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks Lock Manager activity.
type Metrics struct {
	AcquireTotal  *prometheus.CounterVec
	ReleaseTotal  *prometheus.CounterVec
	ConflictTotal prometheus.Counter
	ActiveLocks   prometheus.Gauge
	ReapedTotal   prometheus.Counter
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		AcquireTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "acquire_total",
			Help:      "Total number of lock acquire attempts, by result",
		}, []string{"result"}),

		ReleaseTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "release_total",
			Help:      "Total number of lock release attempts, by result",
		}, []string{"result"}),

		ConflictTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "conflict_total",
			Help:      "Total number of acquire attempts rejected for component overlap",
		}),

		ActiveLocks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "active_total",
			Help:      "Current number of active edit locks across all twins",
		}),

		ReapedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "reaped_total",
			Help:      "Total number of expired locks removed by the reaper",
		}),
	}
}

// unregisteredMetrics builds Metrics without touching the default
// registry, for callers (and tests) that pass a nil *Metrics.
func unregisteredMetrics() *Metrics {
	return &Metrics{
		AcquireTotal:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "acquire_total"}, []string{"result"}),
		ReleaseTotal:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "release_total"}, []string{"result"}),
		ConflictTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "conflict_total"}),
		ActiveLocks:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "active_total"}),
		ReapedTotal:   prometheus.NewCounter(prometheus.CounterOpts{Name: "reaped_total"}),
	}
}
