// Package health is the Health Assessor: it windows a node's last 5
// minutes of telemetry and folds it into a single composite score used by
// the Schedule Optimizer and surfaced on the dashboard.
package health

import (
	"context"
	"math"
	"time"

	"github.com/laces/genesis/internal/domain"
	"github.com/laces/genesis/internal/telemetry"
)

// Config carries the two critical thresholds the composite score is
// normalized against.
type Config struct {
	VibrationCritical   float64
	TemperatureCritical float64
}

// NodeHealth is the result of one assessment, including every
// intermediate metric that fed the composite score.
type NodeHealth struct {
	NodeID               string
	Vibration            float64
	Temperature          float64
	RPM                  float64
	ToolWear             float64
	DaysSinceMaintenance int
	VibScore             float64
	TempScore            float64
	WearScore            float64
	MaintScore           float64
	Score                float64
	AssessedAt           time.Time
}

// NodeRepository is the subset of node metadata the assessor needs.
type NodeRepository interface {
	Get(ctx context.Context, nodeID string) (domain.MachineNode, error)
}

type Assessor struct {
	telemetry telemetry.Repository
	nodes     NodeRepository
	cfg       Config
}

func New(telemetryRepo telemetry.Repository, nodes NodeRepository, cfg Config) *Assessor {
	return &Assessor{telemetry: telemetryRepo, nodes: nodes, cfg: cfg}
}

// Assess fetches nodeID's most recent 5 minutes of telemetry (up to 100
// rows) and computes its composite health score.
func (a *Assessor) Assess(ctx context.Context, nodeID string) (*NodeHealth, error) {
	now := time.Now()
	samples, err := a.telemetry.Window(ctx, nodeID, now.Add(-5*time.Minute), 100)
	if err != nil {
		return nil, err
	}

	node, err := a.nodes.Get(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	vibration := meanVibration(samples)
	temperature := meanField(samples, func(s domain.TelemetrySample) *float64 { return s.Temperature })
	rpm := meanField(samples, func(s domain.TelemetrySample) *float64 { return s.RPM })
	toolWear := meanField(samples, func(s domain.TelemetrySample) *float64 { return s.ToolWear })
	daysSinceMaintenance := node.DaysSinceMaintenance(now)

	vibScore := clampScore(100 - (vibration/a.cfg.VibrationCritical)*100)
	tempScore := clampScore(100 - (temperature/a.cfg.TemperatureCritical)*100)
	wearScore := clampScore(100 - toolWear)
	maintScore := 100 * math.Exp(-float64(daysSinceMaintenance)/180)

	score := 0.30*vibScore + 0.25*tempScore + 0.25*wearScore + 0.20*maintScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &NodeHealth{
		NodeID:               nodeID,
		Vibration:            vibration,
		Temperature:          temperature,
		RPM:                  rpm,
		ToolWear:             toolWear,
		DaysSinceMaintenance: daysSinceMaintenance,
		VibScore:             vibScore,
		TempScore:            tempScore,
		WearScore:            wearScore,
		MaintScore:           maintScore,
		Score:                score,
		AssessedAt:           now,
	}, nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// meanVibration averages √(x²+y²+z²) over samples where all three axes
// are present, ignoring samples with a missing axis.
func meanVibration(samples []domain.TelemetrySample) float64 {
	var sum float64
	var count int
	for _, s := range samples {
		if v, ok := s.Vibration(); ok {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func meanField(samples []domain.TelemetrySample, get func(domain.TelemetrySample) *float64) float64 {
	var sum float64
	var count int
	for _, s := range samples {
		if v := get(s); v != nil {
			sum += *v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
