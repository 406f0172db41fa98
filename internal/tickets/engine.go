// Package tickets is the Ticket Engine: dedup, prioritize, recommend,
// and dispatch the maintenance work items raised by the Health Assessor,
// Anomaly Detector, and Failure Predictor.
package tickets

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/laces/genesis/internal/domain"
)

// Repository is the persistence surface the Ticket Engine needs.
type Repository interface {
	FindOpenOrAcknowledged(ctx context.Context, nodeID, title string, since time.Time) (*domain.MaintenanceTicket, error)
	Insert(ctx context.Context, t domain.MaintenanceTicket) error
	ListBySeverityCreatedSince(ctx context.Context, priorities []domain.TicketPriority, since time.Time) ([]domain.MaintenanceTicket, error)
	ListOpen(ctx context.Context) ([]domain.MaintenanceTicket, error)
	Acknowledge(ctx context.Context, id string, ackAt time.Time) error
}

var severityScore = map[domain.TicketPriority]float64{
	domain.PriorityCritical: 100,
	domain.PriorityHigh:     75,
	domain.PriorityMedium:   50,
	domain.PriorityLow:      25,
}

// Engine owns ticket dedup, prioritization, and dispatch.
type Engine struct {
	repo        Repository
	dedupWindow time.Duration
	logger      *slog.Logger
	metrics     *Metrics
}

func New(repo Repository, dedupWindow time.Duration, logger *slog.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = unregisteredMetrics()
	}
	return &Engine{repo: repo, dedupWindow: dedupWindow, logger: logger.With("component", "ticket_engine"), metrics: metrics}
}

// Submit inserts a new ticket for (node_id, title) unless an open or
// acknowledged row for that pair already exists within the dedup
// window, in which case it is silently suppressed. Returns the ticket
// that now represents this incident (either newly created or the
// existing one) and whether a new row was actually inserted.
func (e *Engine) Submit(ctx context.Context, nodeID, title, description string, priority domain.TicketPriority, diagnostic domain.JSONValue) (*domain.MaintenanceTicket, bool, error) {
	since := time.Now().Add(-e.dedupWindow)
	existing, err := e.repo.FindOpenOrAcknowledged(ctx, nodeID, title, since)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		e.metrics.DedupedTotal.Inc()
		return existing, false, nil
	}

	t := domain.MaintenanceTicket{
		ID:             uuid.New().String(),
		NodeID:         nodeID,
		Title:          title,
		Description:    description,
		Priority:       priority,
		Status:         domain.TicketOpen,
		DiagnosticData: diagnostic,
		CreatedAt:      time.Now(),
	}
	if err := e.repo.Insert(ctx, t); err != nil {
		return nil, false, err
	}
	e.metrics.SubmittedTotal.WithLabelValues(string(priority)).Inc()
	return &t, true, nil
}

// OpenTickets returns every open ticket, for the schedule optimizer's
// prioritization pass.
func (e *Engine) OpenTickets(ctx context.Context) ([]domain.MaintenanceTicket, error) {
	return e.repo.ListOpen(ctx)
}

// Prioritize scores tickets by severity plus age and returns the top n
// sorted descending, for recommendation generation or dispatch.
func Prioritize(items []domain.MaintenanceTicket, now time.Time, n int) []domain.MaintenanceTicket {
	scored := make([]domain.MaintenanceTicket, len(items))
	copy(scored, items)

	sort.SliceStable(scored, func(i, j int) bool {
		return score(scored[i], now) > score(scored[j], now)
	})

	if n >= 0 && n < len(scored) {
		scored = scored[:n]
	}
	return scored
}

func score(t domain.MaintenanceTicket, now time.Time) float64 {
	ageHours := now.Sub(t.CreatedAt).Hours()
	return severityScore[t.Priority] + 0.5*ageHours
}

// DispatchDue selects open critical/high tickets created in the last
// hour, emits each through dispatch, and atomically flips them to
// acknowledged. dispatch failures stop that ticket from being
// acknowledged, so it is retried on the next tick.
func (e *Engine) DispatchDue(ctx context.Context, dispatch func(domain.MaintenanceTicket) error) (int, error) {
	since := time.Now().Add(-time.Hour)
	due, err := e.repo.ListBySeverityCreatedSince(ctx, []domain.TicketPriority{domain.PriorityCritical, domain.PriorityHigh}, since)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, t := range due {
		if err := dispatch(t); err != nil {
			e.logger.Error("ticket dispatch failed", "ticket_id", t.ID, "error", err)
			continue
		}
		if err := e.repo.Acknowledge(ctx, t.ID, time.Now()); err != nil {
			e.logger.Error("ticket acknowledge failed", "ticket_id", t.ID, "error", err)
			continue
		}
		dispatched++
		e.metrics.DispatchedTotal.Inc()
	}
	return dispatched, nil
}
