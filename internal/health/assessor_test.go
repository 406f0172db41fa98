package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laces/genesis/internal/domain"
)

func f(v float64) *float64 { return &v }

type fakeTelemetryRepo struct {
	samples []domain.TelemetrySample
}

func (f *fakeTelemetryRepo) Insert(context.Context, domain.TelemetrySample) error { return nil }
func (f *fakeTelemetryRepo) InsertBatch(context.Context, []domain.TelemetrySample) error {
	return nil
}
func (fr *fakeTelemetryRepo) Window(context.Context, string, time.Time, int) ([]domain.TelemetrySample, error) {
	return fr.samples, nil
}
func (fr *fakeTelemetryRepo) LatestByOnlineNode(context.Context) (map[string]domain.TelemetrySample, error) {
	return nil, nil
}

type fakeNodeRepo struct {
	node domain.MachineNode
}

func (fr *fakeNodeRepo) Get(context.Context, string) (domain.MachineNode, error) {
	return fr.node, nil
}

func TestAssessor_ComputesCompositeScore(t *testing.T) {
	samples := []domain.TelemetrySample{
		{VibX: f(1), VibY: f(0), VibZ: f(0), Temperature: f(30), ToolWear: f(10)},
	}
	telemetryRepo := &fakeTelemetryRepo{samples: samples}
	lastMaint := time.Now().Add(-30 * 24 * time.Hour)
	nodeRepo := &fakeNodeRepo{node: domain.MachineNode{ID: "node1", LastMaintenanceAt: &lastMaint}}

	a := New(telemetryRepo, nodeRepo, Config{VibrationCritical: 10, TemperatureCritical: 90})
	result, err := a.Assess(context.Background(), "node1")
	require.NoError(t, err)

	assert.Equal(t, 1.0, result.Vibration)
	assert.Equal(t, 30.0, result.Temperature)
	assert.Equal(t, 10.0, result.ToolWear)
	assert.Equal(t, 30, result.DaysSinceMaintenance)
	assert.InDelta(t, 90.0, result.VibScore, 0.01)
	assert.True(t, result.Score > 0 && result.Score <= 100)
}

func TestAssessor_ScenarioFourThresholds(t *testing.T) {
	samples := []domain.TelemetrySample{
		{VibX: f(0.4), VibY: f(0), VibZ: f(0), RPM: f(2000), Temperature: f(60), ToolWear: f(30)},
	}
	telemetryRepo := &fakeTelemetryRepo{samples: samples}
	lastMaint := time.Now().Add(-30 * 24 * time.Hour)
	nodeRepo := &fakeNodeRepo{node: domain.MachineNode{ID: "node1", LastMaintenanceAt: &lastMaint}}

	a := New(telemetryRepo, nodeRepo, Config{VibrationCritical: 0.8, TemperatureCritical: 95})
	result, err := a.Assess(context.Background(), "node1")
	require.NoError(t, err)

	assert.InDelta(t, 0.4, result.Vibration, 0.001)
	assert.Equal(t, 60.0, result.Temperature)
	assert.Equal(t, 30, result.DaysSinceMaintenance)
	assert.InDelta(t, 50.0, result.VibScore, 0.01)
	assert.InDelta(t, 36.84, result.TempScore, 0.01)
	assert.InDelta(t, 70.0, result.WearScore, 0.01)
	assert.InDelta(t, 84.65, result.MaintScore, 0.01)
	assert.InDelta(t, 58.64, result.Score, 0.01)
}

func TestAssessor_UnknownMaintenanceDateUsesFallback(t *testing.T) {
	telemetryRepo := &fakeTelemetryRepo{}
	nodeRepo := &fakeNodeRepo{node: domain.MachineNode{ID: "node1"}}

	a := New(telemetryRepo, nodeRepo, Config{VibrationCritical: 10, TemperatureCritical: 90})
	result, err := a.Assess(context.Background(), "node1")
	require.NoError(t, err)
	assert.Equal(t, 9999, result.DaysSinceMaintenance)
	assert.InDelta(t, 0, result.MaintScore, 0.001)
}
