package predictor

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laces/genesis/internal/domain"
)

func f(v float64) *float64 { return &v }

func TestShortTerm_AtOrAboveCritical(t *testing.T) {
	p := New(nil, Config{VibrationCritical: 10})
	pred := p.ShortTerm("node1", 12)
	assert.Equal(t, 0.0, pred.HoursToFailure)
}

func TestShortTerm_BelowCritical(t *testing.T) {
	p := New(nil, Config{VibrationCritical: 10})
	pred := p.ShortTerm("node1", 5)
	assert.Equal(t, 360.0, pred.HoursToFailure)
}

type fakeTelemetryRepo struct {
	samples []domain.TelemetrySample
}

func (fr *fakeTelemetryRepo) Insert(context.Context, domain.TelemetrySample) error      { return nil }
func (fr *fakeTelemetryRepo) InsertBatch(context.Context, []domain.TelemetrySample) error { return nil }
func (fr *fakeTelemetryRepo) Window(context.Context, string, time.Time, int) ([]domain.TelemetrySample, error) {
	return fr.samples, nil
}
func (fr *fakeTelemetryRepo) LatestByOnlineNode(context.Context) (map[string]domain.TelemetrySample, error) {
	return nil, nil
}

func risingVibrationSamples(n int, start, step float64) []domain.TelemetrySample {
	out := make([]domain.TelemetrySample, n)
	// Window returns newest-first; index 0 is the most recent.
	for i := 0; i < n; i++ {
		v := start + step*float64(n-1-i)
		out[i] = domain.TelemetrySample{VibX: f(v), VibY: f(0), VibZ: f(0), Temperature: f(40)}
	}
	return out
}

func TestTrend_InsufficientSamplesReturnsNil(t *testing.T) {
	repo := &fakeTelemetryRepo{samples: risingVibrationSamples(50, 1, 0.01)}
	p := New(repo, Config{VibrationCritical: 10})

	pred, err := p.Trend(context.Background(), "node1")
	require.NoError(t, err)
	assert.Nil(t, pred)
}

func TestTrend_RisingVibrationPredictsFiniteHorizon(t *testing.T) {
	repo := &fakeTelemetryRepo{samples: risingVibrationSamples(200, 1, 0.05)}
	p := New(repo, Config{VibrationCritical: 10})

	pred, err := p.Trend(context.Background(), "node1")
	require.NoError(t, err)
	require.NotNil(t, pred)
	assert.False(t, math.IsInf(pred.HoursToFailure, 1))
	assert.True(t, pred.VibTrend > 0)
}

func TestTrend_FlatVibrationReturnsInfiniteHorizon(t *testing.T) {
	repo := &fakeTelemetryRepo{samples: risingVibrationSamples(200, 1, 0)}
	p := New(repo, Config{VibrationCritical: 10})

	pred, err := p.Trend(context.Background(), "node1")
	require.NoError(t, err)
	require.NotNil(t, pred)
	assert.True(t, math.IsInf(pred.HoursToFailure, 1))
	assert.InDelta(t, 0.1, pred.FailureProb, 0.0001)
}
