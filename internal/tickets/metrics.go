package tickets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks Ticket Engine activity.
type Metrics struct {
	SubmittedTotal  *prometheus.CounterVec
	DedupedTotal    prometheus.Counter
	DispatchedTotal prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SubmittedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tickets",
			Name:      "submitted_total",
			Help:      "Total number of maintenance tickets inserted, by priority",
		}, []string{"priority"}),

		DedupedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tickets",
			Name:      "deduped_total",
			Help:      "Total number of ticket submissions suppressed as duplicates",
		}),

		DispatchedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tickets",
			Name:      "dispatched_total",
			Help:      "Total number of tickets dispatched and acknowledged",
		}),
	}
}

// unregisteredMetrics builds Metrics without touching the default
// registry, for callers (and tests) that pass a nil *Metrics.
func unregisteredMetrics() *Metrics {
	return &Metrics{
		SubmittedTotal:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "submitted_total"}, []string{"priority"}),
		DedupedTotal:    prometheus.NewCounter(prometheus.CounterOpts{Name: "deduped_total"}),
		DispatchedTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "dispatched_total"}),
	}
}
