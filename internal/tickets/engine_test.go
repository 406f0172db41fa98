package tickets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laces/genesis/internal/domain"
)

type fakeRepo struct {
	inserted     []domain.MaintenanceTicket
	existing     *domain.MaintenanceTicket
	acknowledged []string
	listed       []domain.MaintenanceTicket
}

func (f *fakeRepo) FindOpenOrAcknowledged(context.Context, string, string, time.Time) (*domain.MaintenanceTicket, error) {
	return f.existing, nil
}

func (f *fakeRepo) Insert(_ context.Context, t domain.MaintenanceTicket) error {
	f.inserted = append(f.inserted, t)
	return nil
}

func (f *fakeRepo) ListBySeverityCreatedSince(context.Context, []domain.TicketPriority, time.Time) ([]domain.MaintenanceTicket, error) {
	return f.listed, nil
}

func (f *fakeRepo) ListOpen(context.Context) ([]domain.MaintenanceTicket, error) {
	return f.listed, nil
}

func (f *fakeRepo) Acknowledge(_ context.Context, id string, _ time.Time) error {
	f.acknowledged = append(f.acknowledged, id)
	return nil
}

func TestEngine_SubmitInsertsNewTicket(t *testing.T) {
	repo := &fakeRepo{}
	e := New(repo, 24*time.Hour, nil, nil)

	ticket, inserted, err := e.Submit(context.Background(), "node1", "Critical vibration", "desc", domain.PriorityCritical, domain.NewNull())
	require.NoError(t, err)
	assert.True(t, inserted)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "node1", ticket.NodeID)
	assert.Equal(t, domain.TicketOpen, ticket.Status)
}

func TestEngine_SubmitDedupsWithinWindow(t *testing.T) {
	existing := domain.MaintenanceTicket{ID: "t1", NodeID: "node1", Title: "Critical vibration", CreatedAt: time.Now()}
	repo := &fakeRepo{existing: &existing}
	e := New(repo, 24*time.Hour, nil, nil)

	ticket, inserted, err := e.Submit(context.Background(), "node1", "Critical vibration", "desc", domain.PriorityCritical, domain.NewNull())
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "t1", ticket.ID)
	assert.Empty(t, repo.inserted)
}

func TestPrioritize_SortsBySeverityThenAge(t *testing.T) {
	now := time.Now()
	items := []domain.MaintenanceTicket{
		{ID: "low-old", Priority: domain.PriorityLow, CreatedAt: now.Add(-100 * time.Hour)},
		{ID: "high-new", Priority: domain.PriorityHigh, CreatedAt: now.Add(-time.Hour)},
		{ID: "critical", Priority: domain.PriorityCritical, CreatedAt: now},
	}

	top := Prioritize(items, now, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "critical", top[0].ID)
	assert.Equal(t, "high-new", top[1].ID)
}

func TestEngine_DispatchDueAcknowledgesDispatched(t *testing.T) {
	repo := &fakeRepo{listed: []domain.MaintenanceTicket{
		{ID: "t1", Priority: domain.PriorityCritical},
		{ID: "t2", Priority: domain.PriorityHigh},
	}}
	e := New(repo, 24*time.Hour, nil, nil)

	var dispatchedIDs []string
	n, err := e.DispatchDue(context.Background(), func(t domain.MaintenanceTicket) error {
		dispatchedIDs = append(dispatchedIDs, t.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"t1", "t2"}, dispatchedIDs)
	assert.ElementsMatch(t, []string{"t1", "t2"}, repo.acknowledged)
}

func TestRecommend_RuleTableFirstMatchWins(t *testing.T) {
	cfg := Config{VibrationCritical: 10, TemperatureCritical: 90}

	toolWear := Recommend(HealthInputs{ToolWear: 85, Vibration: 20, Temperature: 100}, cfg)
	assert.Equal(t, "Replace cutting tool", toolWear.Action)

	vibration := Recommend(HealthInputs{ToolWear: 10, Vibration: 15, Temperature: 100}, cfg)
	assert.Equal(t, "Inspect & replace bearings", vibration.Action)

	temperature := Recommend(HealthInputs{ToolWear: 10, Vibration: 1, Temperature: 95}, cfg)
	assert.Equal(t, "Check cooling, replace thermal compound", temperature.Action)

	routine := Recommend(HealthInputs{ToolWear: 10, Vibration: 1, Temperature: 40}, cfg)
	assert.Equal(t, "Routine inspection & lubrication", routine.Action)
}

func TestUrgency(t *testing.T) {
	assert.Equal(t, 24*time.Hour, Urgency(domain.PriorityCritical))
	assert.Equal(t, 168*time.Hour, Urgency(domain.PriorityHigh))
}
