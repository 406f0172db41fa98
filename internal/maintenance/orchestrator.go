// Package maintenance wires the Maintenance Agent's four independent
// periodic control loops — telemetry monitor, predictive loop, schedule
// optimizer, alert dispatcher — plus a supplemented session-expiry
// sweep, against the shared Health Assessor, Anomaly Detector, Failure
// Predictor, and Ticket Engine.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/laces/genesis/internal/anomaly"
	"github.com/laces/genesis/internal/connection"
	"github.com/laces/genesis/internal/domain"
	"github.com/laces/genesis/internal/health"
	"github.com/laces/genesis/internal/predictor"
	"github.com/laces/genesis/internal/tickets"
)

// NodeLister is the fleet directory the monitor and predictive loops
// iterate every tick.
type NodeLister interface {
	ListOnline(ctx context.Context) ([]domain.MachineNode, error)
}

// SessionExpirer marks overdue sessions inactive and reports which ones
// just expired, so the orchestrator can tear down any connection state
// still referencing them.
type SessionExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) ([]string, error)
}

// Config carries the five loop intervals plus the thresholds the
// telemetry monitor checks nodes against.
type Config struct {
	TelemetryMonitorInterval  time.Duration
	PredictiveLoopInterval    time.Duration
	ScheduleOptimizerInterval time.Duration
	AlertDispatcherInterval   time.Duration
	SessionSweepInterval      time.Duration

	VibrationCritical   float64
	TemperatureCritical float64

	RecommendationTopN int
}

// Dispatcher sends a ticket through the outbound alert channel. The
// concrete transport (SMTP, etc.) is explicitly out of scope; callers
// supply whatever they have (log, webhook, no-op).
type Dispatcher func(domain.MaintenanceTicket) error

// Orchestrator owns the five background loops and their shared
// dependencies.
type Orchestrator struct {
	nodes     NodeLister
	assessor  *health.Assessor
	predictor *predictor.Predictor
	detector  *anomaly.Detector
	engine    *tickets.Engine
	sessions  SessionExpirer
	conn      *connection.Manager
	dispatch  Dispatcher
	cfg       Config
	logger    *slog.Logger

	loops []*loop
}

func New(
	nodes NodeLister,
	assessor *health.Assessor,
	pred *predictor.Predictor,
	detector *anomaly.Detector,
	engine *tickets.Engine,
	sessionRepo SessionExpirer,
	conn *connection.Manager,
	dispatch Dispatcher,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		nodes: nodes, assessor: assessor, predictor: pred, detector: detector,
		engine: engine, sessions: sessionRepo, conn: conn, dispatch: dispatch,
		cfg: cfg, logger: logger.With("component", "maintenance_orchestrator"),
	}
}

// Start launches all five loops as background goroutines. It returns
// immediately; call Stop to shut them down.
func (o *Orchestrator) Start(ctx context.Context) {
	o.loops = []*loop{
		newLoop("telemetry_monitor", o.cfg.TelemetryMonitorInterval, o.telemetryMonitorTick, o.logger),
		newLoop("predictive", o.cfg.PredictiveLoopInterval, o.predictiveLoopTick, o.logger),
		newLoop("schedule_optimizer", o.cfg.ScheduleOptimizerInterval, o.scheduleOptimizerTick, o.logger),
		newLoop("alert_dispatcher", o.cfg.AlertDispatcherInterval, o.alertDispatcherTick, o.logger),
		newLoop("session_sweep", o.cfg.SessionSweepInterval, o.sessionSweepTick, o.logger),
	}
	for _, l := range o.loops {
		l.Start(ctx)
	}
}

func (o *Orchestrator) Stop() {
	for _, l := range o.loops {
		l.Stop()
	}
}

// telemetryMonitorTick assesses every online node's health, raises a
// threshold ticket when vibration or temperature crosses its critical
// limit, and runs the anomaly detector's per-node scoring pass.
func (o *Orchestrator) telemetryMonitorTick(ctx context.Context) error {
	nodes, err := o.nodes.ListOnline(ctx)
	if err != nil {
		return err
	}

	for _, node := range nodes {
		result, err := o.assessor.Assess(ctx, node.ID)
		if err != nil {
			o.logger.Error("health assessment failed", "node_id", node.ID, "error", err)
			continue
		}
		o.checkThresholds(ctx, node.ID, result)
	}

	anomalyTickets, err := o.detector.Tick(ctx)
	if err != nil {
		return fmt.Errorf("anomaly tick: %w", err)
	}
	for _, t := range anomalyTickets {
		if _, _, err := o.engine.Submit(ctx, t.NodeID, t.Title, t.Description, t.Priority, t.DiagnosticData); err != nil {
			o.logger.Error("anomaly ticket submit failed", "node_id", t.NodeID, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) checkThresholds(ctx context.Context, nodeID string, result *health.NodeHealth) {
	switch {
	case result.Vibration >= o.cfg.VibrationCritical:
		title := fmt.Sprintf("Critical vibration: %.2fg (limit: %.2fg)", result.Vibration, o.cfg.VibrationCritical)
		diagnostic := domain.NewObject(map[string]domain.JSONValue{
			"vibration": domain.NewNumber(result.Vibration),
			"limit":     domain.NewNumber(o.cfg.VibrationCritical),
		})
		if _, _, err := o.engine.Submit(ctx, nodeID, title, "Vibration has crossed the critical threshold.", domain.PriorityCritical, diagnostic); err != nil {
			o.logger.Error("vibration ticket submit failed", "node_id", nodeID, "error", err)
		}
	case result.Temperature >= o.cfg.TemperatureCritical:
		title := fmt.Sprintf("Critical temperature: %.1f°C (limit: %.1f°C)", result.Temperature, o.cfg.TemperatureCritical)
		diagnostic := domain.NewObject(map[string]domain.JSONValue{
			"temperature": domain.NewNumber(result.Temperature),
			"limit":       domain.NewNumber(o.cfg.TemperatureCritical),
		})
		if _, _, err := o.engine.Submit(ctx, nodeID, title, "Temperature has crossed the critical threshold.", domain.PriorityHigh, diagnostic); err != nil {
			o.logger.Error("temperature ticket submit failed", "node_id", nodeID, "error", err)
		}
	}
}

// predictiveLoopTick runs the hourly trend-based predictor over every
// online node and raises a critical ticket for any node whose failure
// probability exceeds the spec's 0.7 cutoff.
func (o *Orchestrator) predictiveLoopTick(ctx context.Context) error {
	nodes, err := o.nodes.ListOnline(ctx)
	if err != nil {
		return err
	}

	for _, node := range nodes {
		pred, err := o.predictor.Trend(ctx, node.ID)
		if err != nil {
			o.logger.Error("trend prediction failed", "node_id", node.ID, "error", err)
			continue
		}
		if pred == nil || !pred.Critical {
			continue
		}

		title := fmt.Sprintf("Predicted failure within %.1fh (trend-based)", pred.HoursToFailure)
		diagnostic := domain.NewObject(map[string]domain.JSONValue{
			"failure_prob":     domain.NewNumber(pred.FailureProb),
			"hours_to_failure": domain.NewNumber(pred.HoursToFailure),
			"vib_trend":        domain.NewNumber(pred.VibTrend),
		})
		if _, _, err := o.engine.Submit(ctx, node.ID, title, "Trend-based failure forecast exceeded the alert threshold.", domain.PriorityCritical, diagnostic); err != nil {
			o.logger.Error("predictive ticket submit failed", "node_id", node.ID, "error", err)
		}
	}
	return nil
}

// scheduleOptimizerTick prioritizes every open ticket and logs the
// recommended action for the top N, pairing each with a fresh health
// snapshot so the recommendation reflects current conditions rather
// than the reading that originally raised the ticket.
func (o *Orchestrator) scheduleOptimizerTick(ctx context.Context) error {
	open, err := o.engine.OpenTickets(ctx)
	if err != nil {
		return err
	}

	top := tickets.Prioritize(open, time.Now(), o.cfg.RecommendationTopN)
	for _, t := range top {
		result, err := o.assessor.Assess(ctx, t.NodeID)
		if err != nil {
			o.logger.Error("schedule optimizer assessment failed", "node_id", t.NodeID, "error", err)
			continue
		}

		rec := tickets.Recommend(tickets.HealthInputs{
			Vibration:   result.Vibration,
			Temperature: result.Temperature,
			ToolWear:    result.ToolWear,
		}, tickets.Config{VibrationCritical: o.cfg.VibrationCritical, TemperatureCritical: o.cfg.TemperatureCritical})

		o.logger.Info("maintenance recommendation",
			"ticket_id", t.ID, "node_id", t.NodeID, "action", rec.Action,
			"parts", rec.Parts, "cost", rec.Cost, "downtime_hours", rec.DowntimeHours,
			"urgency", tickets.Urgency(t.Priority))
	}
	return nil
}

// alertDispatcherTick sends every due critical/high ticket through the
// outbound channel and acknowledges it on success.
func (o *Orchestrator) alertDispatcherTick(ctx context.Context) error {
	n, err := o.engine.DispatchDue(ctx, o.dispatch)
	if err != nil {
		return err
	}
	if n > 0 {
		o.logger.Info("dispatched maintenance alerts", "count", n)
	}
	return nil
}

// sessionSweepTick expires overdue sessions and detaches any live
// connection still attached under one of them.
func (o *Orchestrator) sessionSweepTick(ctx context.Context) error {
	expired, err := o.sessions.ExpireStale(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, sessionID := range expired {
		o.conn.Detach(sessionID)
	}
	if len(expired) > 0 {
		o.logger.Info("expired stale sessions", "count", len(expired))
	}
	return nil
}
