package anomaly

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments model training and scoring for the Anomaly Detector.
type Metrics struct {
	ModelsTrained   prometheus.Counter
	ScoresTotal     prometheus.Counter
	OutliersTotal   prometheus.Counter
	TrainingSkipped prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ModelsTrained: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "anomaly", Name: "models_trained_total",
			Help: "Number of per-node isolation forests trained.",
		}),
		ScoresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "anomaly", Name: "scores_total",
			Help: "Number of telemetry samples scored.",
		}),
		OutliersTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "anomaly", Name: "outliers_total",
			Help: "Number of samples classified as outliers.",
		}),
		TrainingSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "anomaly", Name: "training_skipped_total",
			Help: "Number of nodes skipped for training due to insufficient clean samples.",
		}),
	}
}

// unregisteredMetrics builds Metrics without touching the default
// registry, for callers (and tests) that pass a nil *Metrics.
func unregisteredMetrics() *Metrics {
	return &Metrics{
		ModelsTrained:   prometheus.NewCounter(prometheus.CounterOpts{Name: "models_trained_total"}),
		ScoresTotal:     prometheus.NewCounter(prometheus.CounterOpts{Name: "scores_total"}),
		OutliersTotal:   prometheus.NewCounter(prometheus.CounterOpts{Name: "outliers_total"}),
		TrainingSkipped: prometheus.NewCounter(prometheus.CounterOpts{Name: "training_skipped_total"}),
	}
}
