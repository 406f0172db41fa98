package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laces/genesis/internal/anomaly"
	"github.com/laces/genesis/internal/connection"
	"github.com/laces/genesis/internal/domain"
	"github.com/laces/genesis/internal/health"
	"github.com/laces/genesis/internal/predictor"
	"github.com/laces/genesis/internal/tickets"
)

func fp(v float64) *float64 { return &v }

type fakeTelemetryRepo struct {
	window map[string][]domain.TelemetrySample
	latest map[string]domain.TelemetrySample
}

func (fr *fakeTelemetryRepo) Insert(context.Context, domain.TelemetrySample) error      { return nil }
func (fr *fakeTelemetryRepo) InsertBatch(context.Context, []domain.TelemetrySample) error { return nil }
func (fr *fakeTelemetryRepo) Window(_ context.Context, nodeID string, _ time.Time, _ int) ([]domain.TelemetrySample, error) {
	return fr.window[nodeID], nil
}
func (fr *fakeTelemetryRepo) LatestByOnlineNode(context.Context) (map[string]domain.TelemetrySample, error) {
	return fr.latest, nil
}

type fakeNodeRepo struct {
	online []domain.MachineNode
}

func (fr *fakeNodeRepo) ListOnline(context.Context) ([]domain.MachineNode, error) {
	return fr.online, nil
}

func (fr *fakeNodeRepo) Get(_ context.Context, nodeID string) (domain.MachineNode, error) {
	for _, n := range fr.online {
		if n.ID == nodeID {
			return n, nil
		}
	}
	return domain.MachineNode{ID: nodeID}, nil
}

type fakeTicketsRepo struct {
	inserted []domain.MaintenanceTicket
	open     []domain.MaintenanceTicket
}

func (f *fakeTicketsRepo) FindOpenOrAcknowledged(context.Context, string, string, time.Time) (*domain.MaintenanceTicket, error) {
	return nil, nil
}

func (f *fakeTicketsRepo) Insert(_ context.Context, t domain.MaintenanceTicket) error {
	f.inserted = append(f.inserted, t)
	return nil
}

func (f *fakeTicketsRepo) ListBySeverityCreatedSince(context.Context, []domain.TicketPriority, time.Time) ([]domain.MaintenanceTicket, error) {
	return nil, nil
}

func (f *fakeTicketsRepo) ListOpen(context.Context) ([]domain.MaintenanceTicket, error) {
	return f.open, nil
}

func (f *fakeTicketsRepo) Acknowledge(context.Context, string, time.Time) error { return nil }

type fakeSessionExpirer struct {
	expired []string
}

func (f *fakeSessionExpirer) ExpireStale(context.Context, time.Time) ([]string, error) {
	return f.expired, nil
}

type fakeTransport struct{ ctx context.Context }

func (f *fakeTransport) Send(connection.Event) error  { return nil }
func (f *fakeTransport) Close() error                  { return nil }
func (f *fakeTransport) Context() context.Context      { return f.ctx }

func buildTestOrchestrator(telemetryRepo *fakeTelemetryRepo, nodeRepo *fakeNodeRepo, ticketsRepo *fakeTicketsRepo, sessionRepo *fakeSessionExpirer, conn *connection.Manager) *Orchestrator {
	assessor := health.New(telemetryRepo, nodeRepo, health.Config{VibrationCritical: 10, TemperatureCritical: 90})
	pred := predictor.New(telemetryRepo, predictor.Config{VibrationCritical: 10})
	detector, _ := anomaly.New(telemetryRepo, anomaly.Config{Contamination: 0.05, MinTrainingSamples: 100, TrainingWindowDays: 30}, nil, nil)
	engine := tickets.New(ticketsRepo, 24*time.Hour, nil, nil)

	cfg := Config{
		TelemetryMonitorInterval:  time.Hour,
		PredictiveLoopInterval:    time.Hour,
		ScheduleOptimizerInterval: time.Hour,
		AlertDispatcherInterval:   time.Hour,
		SessionSweepInterval:      time.Hour,
		VibrationCritical:         10,
		TemperatureCritical:       90,
		RecommendationTopN:        5,
	}

	return New(nodeRepo, assessor, pred, detector, engine, sessionRepo, conn, func(domain.MaintenanceTicket) error { return nil }, cfg, nil)
}

func TestOrchestrator_TelemetryMonitorTick_EmitsVibrationTicket(t *testing.T) {
	telemetryRepo := &fakeTelemetryRepo{
		window: map[string][]domain.TelemetrySample{
			"node1": {{VibX: fp(20), VibY: fp(0), VibZ: fp(0), Temperature: fp(30)}},
		},
	}
	nodeRepo := &fakeNodeRepo{online: []domain.MachineNode{{ID: "node1"}}}
	ticketsRepo := &fakeTicketsRepo{}
	sessionRepo := &fakeSessionExpirer{}
	conn := connection.New(nil, nil)

	o := buildTestOrchestrator(telemetryRepo, nodeRepo, ticketsRepo, sessionRepo, conn)

	require.NoError(t, o.telemetryMonitorTick(context.Background()))
	require.Len(t, ticketsRepo.inserted, 1)
	assert.Contains(t, ticketsRepo.inserted[0].Title, "Critical vibration")
	assert.Equal(t, domain.PriorityCritical, ticketsRepo.inserted[0].Priority)
}

func TestOrchestrator_PredictiveLoopTick_SkipsNodesWithoutEnoughHistory(t *testing.T) {
	telemetryRepo := &fakeTelemetryRepo{window: map[string][]domain.TelemetrySample{}}
	nodeRepo := &fakeNodeRepo{online: []domain.MachineNode{{ID: "node1"}}}
	ticketsRepo := &fakeTicketsRepo{}
	sessionRepo := &fakeSessionExpirer{}
	conn := connection.New(nil, nil)

	o := buildTestOrchestrator(telemetryRepo, nodeRepo, ticketsRepo, sessionRepo, conn)

	require.NoError(t, o.predictiveLoopTick(context.Background()))
	assert.Empty(t, ticketsRepo.inserted)
}

func TestOrchestrator_SessionSweepTick_DetachesExpiredSessions(t *testing.T) {
	telemetryRepo := &fakeTelemetryRepo{}
	nodeRepo := &fakeNodeRepo{}
	ticketsRepo := &fakeTicketsRepo{}
	sessionRepo := &fakeSessionExpirer{expired: []string{"session-a"}}
	conn := connection.New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn.Start(ctx)

	conn.Attach("session-a", "user-a", &fakeTransport{ctx: context.Background()})
	require.NoError(t, conn.SubscribeTwin("session-a", "twin1"))
	require.Len(t, conn.ActiveSessions("twin1"), 1)

	o := buildTestOrchestrator(telemetryRepo, nodeRepo, ticketsRepo, sessionRepo, conn)
	require.NoError(t, o.sessionSweepTick(context.Background()))

	assert.Empty(t, conn.ActiveSessions("twin1"))
}

func TestOrchestrator_ScheduleOptimizerTick_DoesNotError(t *testing.T) {
	telemetryRepo := &fakeTelemetryRepo{window: map[string][]domain.TelemetrySample{
		"node1": {{VibX: fp(1), VibY: fp(0), VibZ: fp(0), Temperature: fp(30), ToolWear: fp(10)}},
	}}
	nodeRepo := &fakeNodeRepo{online: []domain.MachineNode{{ID: "node1"}}}
	ticketsRepo := &fakeTicketsRepo{open: []domain.MaintenanceTicket{{ID: "t1", NodeID: "node1", Priority: domain.PriorityHigh, CreatedAt: time.Now()}}}
	sessionRepo := &fakeSessionExpirer{}
	conn := connection.New(nil, nil)

	o := buildTestOrchestrator(telemetryRepo, nodeRepo, ticketsRepo, sessionRepo, conn)
	assert.NoError(t, o.scheduleOptimizerTick(context.Background()))
}

func TestOrchestrator_AlertDispatcherTick_DoesNotError(t *testing.T) {
	telemetryRepo := &fakeTelemetryRepo{}
	nodeRepo := &fakeNodeRepo{}
	ticketsRepo := &fakeTicketsRepo{}
	sessionRepo := &fakeSessionExpirer{}
	conn := connection.New(nil, nil)

	o := buildTestOrchestrator(telemetryRepo, nodeRepo, ticketsRepo, sessionRepo, conn)
	assert.NoError(t, o.alertDispatcherTick(context.Background()))
}
