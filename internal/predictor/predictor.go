// Package predictor is the Failure Predictor: a short-term estimate off
// the same window the Health Assessor just computed, and an hourly
// trend-based estimate off a 7-day telemetry history.
package predictor

import (
	"context"
	"math"
	"time"

	"github.com/laces/genesis/internal/domain"
	"github.com/laces/genesis/internal/telemetry"
)

const trendMinSamples = 100

// Config carries the vibration critical threshold both modes are
// normalized against.
type Config struct {
	VibrationCritical float64
}

// ShortTermPrediction is produced inline with a Health Assessor run.
type ShortTermPrediction struct {
	NodeID          string
	HoursToFailure  float64
}

// TrendPrediction is produced by the hourly predictive loop.
type TrendPrediction struct {
	NodeID         string
	VibTrend       float64
	TempTrend      float64
	Current        float64
	HoursToFailure float64 // math.Inf(1) when per_day <= 0.01
	FailureProb    float64
	Critical       bool
}

type Predictor struct {
	telemetry telemetry.Repository
	cfg       Config
}

func New(telemetryRepo telemetry.Repository, cfg Config) *Predictor {
	return &Predictor{telemetry: telemetryRepo, cfg: cfg}
}

// ShortTerm predicts hours-to-failure from the mean vibration of an
// already-fetched sample window (the Health Assessor's window).
func (p *Predictor) ShortTerm(nodeID string, meanVibration float64) ShortTermPrediction {
	if meanVibration >= p.cfg.VibrationCritical {
		return ShortTermPrediction{NodeID: nodeID, HoursToFailure: 0}
	}
	hours := 720 * (1 - meanVibration/p.cfg.VibrationCritical)
	if hours < 0 {
		hours = 0
	}
	return ShortTermPrediction{NodeID: nodeID, HoursToFailure: hours}
}

// Trend fetches nodeID's last 7 days of telemetry and, if at least 100
// samples are available, computes the linear-slope trend prediction.
// Returns nil when there is not enough history.
func (p *Predictor) Trend(ctx context.Context, nodeID string) (*TrendPrediction, error) {
	samples, err := p.telemetry.Window(ctx, nodeID, time.Now().Add(-7*24*time.Hour), 10000)
	if err != nil {
		return nil, err
	}
	if len(samples) < trendMinSamples {
		return nil, nil
	}

	vibSeries := vibrationSeries(samples)
	tempSeries := fieldSeries(samples, func(s domain.TelemetrySample) *float64 { return s.Temperature })

	vibTrend := linearSlope(vibSeries)
	tempTrend := linearSlope(tempSeries)

	current := meanOfLastN(vibSeries, 10)
	perDay := vibTrend * 24

	pred := TrendPrediction{NodeID: nodeID, VibTrend: vibTrend, TempTrend: tempTrend, Current: current}

	if perDay > 0.01 {
		pred.HoursToFailure = (p.cfg.VibrationCritical - current) / (perDay / 24)
		pred.FailureProb = math.Min(1, current/p.cfg.VibrationCritical)
	} else {
		pred.HoursToFailure = math.Inf(1)
		pred.FailureProb = 0.1
	}
	pred.Critical = pred.FailureProb > 0.7

	return &pred, nil
}

// vibrationSeries returns samples in chronological order (oldest first),
// since Window returns newest-first.
func vibrationSeries(samples []domain.TelemetrySample) []float64 {
	out := make([]float64, 0, len(samples))
	for i := len(samples) - 1; i >= 0; i-- {
		if v, ok := samples[i].Vibration(); ok {
			out = append(out, v)
		}
	}
	return out
}

func fieldSeries(samples []domain.TelemetrySample, get func(domain.TelemetrySample) *float64) []float64 {
	out := make([]float64, 0, len(samples))
	for i := len(samples) - 1; i >= 0; i-- {
		if v := get(samples[i]); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// linearSlope fits y = a + b*x over x = 0..n-1 by ordinary least squares
// and returns b.
func linearSlope(y []float64) float64 {
	n := len(y)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (nf*sumXY - sumX*sumY) / denom
}

func meanOfLastN(series []float64, n int) float64 {
	if len(series) == 0 {
		return 0
	}
	if n > len(series) {
		n = len(series)
	}
	tail := series[len(series)-n:]
	var sum float64
	for _, v := range tail {
		sum += v
	}
	return sum / float64(len(tail))
}
