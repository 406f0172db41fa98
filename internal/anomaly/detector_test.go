package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laces/genesis/internal/domain"
)

func fp(v float64) *float64 { return &v }

type fakeTelemetryRepo struct {
	window []domain.TelemetrySample
	latest map[string]domain.TelemetrySample
}

func (fr *fakeTelemetryRepo) Insert(context.Context, domain.TelemetrySample) error      { return nil }
func (fr *fakeTelemetryRepo) InsertBatch(context.Context, []domain.TelemetrySample) error { return nil }
func (fr *fakeTelemetryRepo) Window(context.Context, string, time.Time, int) ([]domain.TelemetrySample, error) {
	return fr.window, nil
}
func (fr *fakeTelemetryRepo) LatestByOnlineNode(context.Context) (map[string]domain.TelemetrySample, error) {
	return fr.latest, nil
}

func cleanSamples(n int) []domain.TelemetrySample {
	out := make([]domain.TelemetrySample, n)
	for i := 0; i < n; i++ {
		jitter := float64(i%5) * 0.01
		out[i] = domain.TelemetrySample{
			RPM: fp(1000 + jitter), Torque: fp(50 + jitter),
			VibX: fp(0.1 + jitter), VibY: fp(0.1), VibZ: fp(0.1),
			Temperature: fp(40 + jitter), Power: fp(500 + jitter),
		}
	}
	return out
}

func testConfig() Config {
	return Config{Contamination: 0.05, MinTrainingSamples: 100, TrainingWindowDays: 30}
}

func TestDetector_TrainSkipsWithTooFewCleanSamples(t *testing.T) {
	repo := &fakeTelemetryRepo{window: cleanSamples(10)}
	d, err := New(repo, testConfig(), nil, nil)
	require.NoError(t, err)

	err = d.Train(context.Background(), "node1")
	assert.ErrorIs(t, err, ErrInsufficientSamples)
}

func TestDetector_TrainAndScoreNormalPoint(t *testing.T) {
	repo := &fakeTelemetryRepo{window: cleanSamples(200)}
	d, err := New(repo, testConfig(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, d.Train(context.Background(), "node1"))

	normal := domain.TelemetrySample{
		RPM: fp(1000), Torque: fp(50), VibX: fp(0.1), VibY: fp(0.1), VibZ: fp(0.1),
		Temperature: fp(40), Power: fp(500),
	}
	_, outlier, ok := d.Score("node1", normal)
	require.True(t, ok)
	assert.False(t, outlier)
}

func TestDetector_ScoreUntrainedNodeReturnsNotOK(t *testing.T) {
	repo := &fakeTelemetryRepo{}
	d, err := New(repo, testConfig(), nil, nil)
	require.NoError(t, err)

	_, _, ok := d.Score("node-unknown", domain.TelemetrySample{})
	assert.False(t, ok)
}

func TestDetector_TickFlagsExtremeOutlier(t *testing.T) {
	repo := &fakeTelemetryRepo{
		window: cleanSamples(200),
		latest: map[string]domain.TelemetrySample{
			"node1": {
				RPM: fp(50000), Torque: fp(5000), VibX: fp(80), VibY: fp(80), VibZ: fp(80),
				Temperature: fp(400), Power: fp(90000),
			},
		},
	}
	d, err := New(repo, testConfig(), nil, nil)
	require.NoError(t, err)

	tickets, err := d.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "node1", tickets[0].NodeID)
	assert.Equal(t, domain.PriorityHigh, tickets[0].Priority)

	score, ok := tickets[0].DiagnosticData.Field("anomaly_score")
	require.True(t, ok)
	_, isNumber := score.Number()
	assert.True(t, isNumber)
}
