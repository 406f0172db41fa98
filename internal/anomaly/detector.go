// Package anomaly is the Anomaly Detector: a per-node isolation forest
// trained on recent clean telemetry, scored against each node's latest
// reading on every monitor tick.
package anomaly

import (
	"context"
	"errors"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/laces/genesis/internal/domain"
	"github.com/laces/genesis/internal/telemetry"
)

var ErrInsufficientSamples = errors.New("anomaly: insufficient clean samples to train")

// Config carries the training and scoring tunables from maintenance config.
type Config struct {
	Contamination      float64
	MinTrainingSamples int
	TrainingWindowDays int
}

const modelCacheSize = 512

// Detector owns one trained Forest per node, kept in an in-process LRU
// cache. Models are never persisted across restarts; a cold node simply
// retrains on its next tick.
type Detector struct {
	telemetry telemetry.Repository
	cfg       Config
	models    *lru.Cache[string, *Forest]
	logger    *slog.Logger
	metrics   *Metrics
}

func New(telemetryRepo telemetry.Repository, cfg Config, logger *slog.Logger, metrics *Metrics) (*Detector, error) {
	cache, err := lru.New[string, *Forest](modelCacheSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = unregisteredMetrics()
	}
	return &Detector{telemetry: telemetryRepo, cfg: cfg, models: cache, logger: logger, metrics: metrics}, nil
}

// Train fits a fresh forest for nodeID from its clean (no error_code)
// samples over the training window, and caches it. Returns
// ErrInsufficientSamples when fewer than MinTrainingSamples qualify.
func (d *Detector) Train(ctx context.Context, nodeID string) error {
	since := time.Now().Add(-time.Duration(d.cfg.TrainingWindowDays) * 24 * time.Hour)
	samples, err := d.telemetry.Window(ctx, nodeID, since, 5000)
	if err != nil {
		return err
	}

	points := make([][]float64, 0, len(samples))
	for _, s := range samples {
		if s.ErrorCode != nil {
			continue
		}
		points = append(points, featureVector(s))
	}

	if len(points) < d.cfg.MinTrainingSamples {
		d.metrics.TrainingSkipped.Inc()
		return ErrInsufficientSamples
	}

	forest := Fit(points, d.cfg.Contamination)
	d.models.Add(nodeID, forest)
	d.metrics.ModelsTrained.Inc()
	return nil
}

// Score evaluates sample against nodeID's cached model. Returns
// ok=false when no model has been trained yet for this node.
func (d *Detector) Score(nodeID string, sample domain.TelemetrySample) (score float64, outlier bool, ok bool) {
	forest, found := d.models.Get(nodeID)
	if !found {
		return 0, false, false
	}
	point := featureVector(sample)
	d.metrics.ScoresTotal.Inc()
	score = forest.Score(point)
	outlier = forest.IsOutlier(point)
	if outlier {
		d.metrics.OutliersTotal.Inc()
	}
	return score, outlier, true
}

// Tick fetches the latest sample for every online node, trains any node
// without a cached model, scores the rest, and returns a ticket for each
// sample classified as an outlier.
func (d *Detector) Tick(ctx context.Context) ([]domain.MaintenanceTicket, error) {
	latest, err := d.telemetry.LatestByOnlineNode(ctx)
	if err != nil {
		return nil, err
	}

	var tickets []domain.MaintenanceTicket
	for nodeID, sample := range latest {
		if _, found := d.models.Get(nodeID); !found {
			if err := d.Train(ctx, nodeID); err != nil {
				if !errors.Is(err, ErrInsufficientSamples) {
					d.logger.Error("anomaly: training failed", "node_id", nodeID, "error", err)
				}
				continue
			}
		}

		score, outlier, ok := d.Score(nodeID, sample)
		if !ok || !outlier {
			continue
		}

		tickets = append(tickets, ticketForAnomaly(nodeID, score, sample))
	}
	return tickets, nil
}

func featureVector(s domain.TelemetrySample) []float64 {
	return []float64{
		orZero(s.RPM),
		orZero(s.Torque),
		orZero(s.VibX),
		orZero(s.VibY),
		orZero(s.VibZ),
		orZero(s.Temperature),
		orZero(s.Power),
	}
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func ticketForAnomaly(nodeID string, score float64, sample domain.TelemetrySample) domain.MaintenanceTicket {
	diagnostic := domain.NewObject(map[string]domain.JSONValue{
		"anomaly_score": domain.NewNumber(score),
		"rpm":           domain.NewNumber(orZero(sample.RPM)),
		"temperature":   domain.NewNumber(orZero(sample.Temperature)),
	})
	return domain.MaintenanceTicket{
		NodeID:         nodeID,
		Title:          "Anomalous telemetry pattern detected",
		Description:    "The anomaly detector flagged this node's latest reading as an outlier against its trained baseline.",
		Priority:       domain.PriorityHigh,
		Status:         domain.TicketOpen,
		DiagnosticData: diagnostic,
		CreatedAt:      time.Now(),
	}
}
