package telemetry

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/laces/genesis/internal/apierrors"
	"github.com/laces/genesis/internal/domain"
)

// Config controls the Ingest service's rate limiting and batch ceiling.
type Config struct {
	BatchMaxSamples int
	RateLimitPerSec float64
	RateLimitBurst  int
	InsertTimeout   time.Duration
}

// Ingest is the Telemetry Ingest capability: validated, rate-limited
// single and batch insert into the time-series store.
type Ingest struct {
	repo    Repository
	limiter *rate.Limiter
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
}

func New(repo Repository, cfg Config, logger *slog.Logger, metrics *Metrics) *Ingest {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = unregisteredMetrics()
	}
	return &Ingest{
		repo:    repo,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		cfg:     cfg,
		logger:  logger.With("component", "telemetry_ingest"),
		metrics: metrics,
	}
}

// Single inserts one sample, subject to the rate limiter.
func (in *Ingest) Single(ctx context.Context, sample domain.TelemetrySample) error {
	if !in.limiter.Allow() {
		in.metrics.RateLimitedTotal.Inc()
		return apierrors.TransientError("telemetry ingest rate limit exceeded")
	}

	ctx, cancel := context.WithTimeout(ctx, in.cfg.InsertTimeout)
	defer cancel()

	if err := in.repo.Insert(ctx, sample); err != nil {
		in.metrics.InsertErrorsTotal.Inc()
		return err
	}
	in.metrics.SamplesIngestedTotal.Add(1)
	return nil
}

// Batch inserts up to BatchMaxSamples samples in one multi-row INSERT. A
// batch larger than the ceiling is rejected outright rather than silently
// truncated.
func (in *Ingest) Batch(ctx context.Context, samples []domain.TelemetrySample) (int, error) {
	if len(samples) > in.cfg.BatchMaxSamples {
		return 0, apierrors.ValidationError("batch exceeds maximum sample count")
	}
	if !in.limiter.AllowN(time.Now(), 1) {
		in.metrics.RateLimitedTotal.Inc()
		return 0, apierrors.TransientError("telemetry ingest rate limit exceeded")
	}

	ctx, cancel := context.WithTimeout(ctx, in.cfg.InsertTimeout)
	defer cancel()

	if err := in.repo.InsertBatch(ctx, samples); err != nil {
		in.metrics.InsertErrorsTotal.Inc()
		return 0, err
	}
	in.metrics.SamplesIngestedTotal.Add(float64(len(samples)))
	return len(samples), nil
}
