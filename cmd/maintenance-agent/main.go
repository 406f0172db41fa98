// Package main is the entry point for the maintenance agent: the fleet
// telemetry monitor, predictive loop, schedule optimizer, alert
// dispatcher, and session-expiry sweep that run alongside the
// collaboration server against the same Postgres/Redis state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/laces/genesis/internal/anomaly"
	"github.com/laces/genesis/internal/config"
	"github.com/laces/genesis/internal/connection"
	"github.com/laces/genesis/internal/database"
	"github.com/laces/genesis/internal/database/postgres"
	"github.com/laces/genesis/internal/domain"
	"github.com/laces/genesis/internal/health"
	"github.com/laces/genesis/internal/maintenance"
	"github.com/laces/genesis/internal/nodes"
	"github.com/laces/genesis/internal/platform/logging"
	"github.com/laces/genesis/internal/predictor"
	"github.com/laces/genesis/internal/sessions"
	"github.com/laces/genesis/internal/telemetry"
	"github.com/laces/genesis/internal/tickets"
)

const serviceName = "genesis-maintenance-agent"

func main() {
	var showVersion = flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, "1.0.0")
		os.Exit(0)
	}

	cfg, err := config.LoadConfigFromEnv()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	slog.SetDefault(logger)

	slog.Info("starting maintenance agent", "service", serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConfig := postgres.LoadFromEnv()
	pool := postgres.NewPostgresPool(dbConfig, logger)
	if err := pool.Connect(ctx); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	if err := database.RunMigrations(ctx, pool, logger); err != nil {
		slog.Error("failed to run database migrations", "error", err)
		slog.Warn("continuing without migrations - manual intervention may be required")
	}

	nodeRepo := nodes.NewRepository(pool)
	telemetryRepo := telemetry.NewPostgresRepository(pool)
	ticketRepo := tickets.NewPostgresRepository(pool)
	sessionRepo := sessions.NewRepository(pool)

	assessor := health.New(telemetryRepo, nodeRepo, health.Config{
		VibrationCritical:   cfg.Maintenance.VibrationCritical,
		TemperatureCritical: cfg.Maintenance.TemperatureCritical,
	})
	pred := predictor.New(telemetryRepo, predictor.Config{
		VibrationCritical: cfg.Maintenance.VibrationCritical,
	})
	detector, err := anomaly.New(telemetryRepo, anomaly.Config{
		Contamination:      cfg.Maintenance.AnomalyContamination,
		MinTrainingSamples: cfg.Maintenance.AnomalyMinTrainingSamples,
		TrainingWindowDays: cfg.Maintenance.AnomalyTrainingWindowDays,
	}, logger, nil)
	if err != nil {
		slog.Error("failed to build anomaly detector", "error", err)
		os.Exit(1)
	}
	engine := tickets.New(ticketRepo, cfg.Maintenance.TicketDedupWindow, logger, nil)

	// The connection manager here has no attached transports of its own;
	// it only satisfies the orchestrator's session sweep. Detaching a
	// session from it is a no-op: connections held by the collaboration
	// server process are not reached from this process.
	connManager := connection.New(logger, nil)
	connManager.Start(ctx)

	orchestrator := maintenance.New(
		nodeRepo,
		assessor,
		pred,
		detector,
		engine,
		sessionRepo,
		connManager,
		logDispatcher(logger),
		maintenance.Config{
			TelemetryMonitorInterval:  cfg.Maintenance.TelemetryMonitorInterval,
			PredictiveLoopInterval:    cfg.Maintenance.PredictiveLoopInterval,
			ScheduleOptimizerInterval: cfg.Maintenance.ScheduleOptimizerInterval,
			AlertDispatcherInterval:   cfg.Maintenance.AlertDispatcherInterval,
			SessionSweepInterval:      cfg.Maintenance.SessionSweepInterval,
			VibrationCritical:         cfg.Maintenance.VibrationCritical,
			TemperatureCritical:       cfg.Maintenance.TemperatureCritical,
			RecommendationTopN:        10,
		},
		logger,
	)

	orchestrator.Start(ctx)
	slog.Info("maintenance agent loops started")

	<-ctx.Done()
	slog.Info("shutting down maintenance agent")

	orchestrator.Stop()
	_ = connManager.Stop(context.Background())
	_ = pool.Disconnect(context.Background())

	slog.Info("maintenance agent exited")
}

// logDispatcher is the maintenance.Dispatcher used until a real outbound
// alert transport (SMTP, etc.) is configured — out of scope per the
// system's external interfaces.
func logDispatcher(logger *slog.Logger) maintenance.Dispatcher {
	return func(t domain.MaintenanceTicket) error {
		logger.Warn("maintenance alert",
			"ticket_id", t.ID, "node_id", t.NodeID, "title", t.Title,
			"priority", t.Priority)
		return nil
	}
}
