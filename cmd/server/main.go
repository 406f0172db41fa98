// Package main is the entry point for the collaboration server: the REST
// and WebSocket surface fronting the digital-twin directory, lock
// manager, edit pipeline, and telemetry ingest.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/laces/genesis/cmd/server/handlers"
	"github.com/laces/genesis/internal/api"
	"github.com/laces/genesis/internal/api/middleware"
	"github.com/laces/genesis/internal/auth"
	"github.com/laces/genesis/internal/config"
	"github.com/laces/genesis/internal/connection"
	"github.com/laces/genesis/internal/database"
	"github.com/laces/genesis/internal/database/postgres"
	"github.com/laces/genesis/internal/editpipeline"
	"github.com/laces/genesis/internal/kv"
	"github.com/laces/genesis/internal/lock"
	"github.com/laces/genesis/internal/platform/logging"
	"github.com/laces/genesis/internal/sessions"
	"github.com/laces/genesis/internal/telemetry"
	"github.com/laces/genesis/internal/twins"
	"github.com/laces/genesis/internal/users"
)

const serviceName = "genesis-server"

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

	slog.Info("starting collaboration server", "service", serviceName)

	ctx := context.Background()

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
	} else {
		slog.Info("database migrations completed")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		MaxRetries:   cfg.Redis.MaxRetries,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	kvStore := kv.New(redisClient, kv.DefaultConfig(), logger)

	userRepo := users.NewRepository(pool)
	sessionRepo := sessions.NewRepository(pool)
	twinRepo := twins.NewRepository(pool)
	lockRepo := lock.NewPostgresRepository(pool)
	editRepo := editpipeline.NewPostgresRepository(pool)
	telemetryRepo := telemetry.NewPostgresRepository(pool)

	connManager := connection.New(logger, nil)
	connManager.Start(ctx)

	lockManager := lock.New(kvStore, lockRepo, cfg.Lock.TTL, logger, nil)
	editPipeline := editpipeline.New(lockManager, editRepo, connManager, logger)

	telemetryIngest := telemetry.New(telemetryRepo, telemetry.Config{
		BatchMaxSamples: cfg.Telemetry.BatchMaxSamples,
		RateLimitPerSec: cfg.Telemetry.RateLimitPerSec,
		RateLimitBurst:  cfg.Telemetry.RateLimitBurst,
		InsertTimeout:   cfg.Telemetry.InsertTimeout,
	}, logger, nil)

	authService := auth.New(userRepo, sessionRepo, auth.Config{SessionTTL: cfg.Connection.SessionTTL})

	reaper := lock.NewReaper(lockManager, cfg.Lock.ReaperInterval, cfg.Lock.ReaperGrace, logger)
	reaper.Start(ctx)

	router := api.NewRouter(api.RouterConfig{
		EnableRateLimit:    true,
		EnableCompression:  true,
		EnableCORS:         true,
		EnableMetrics:      true,
		RateLimitPerMinute: 600,
		RateLimitBurst:     100,
		CORSConfig:         middleware.DefaultCORSConfig(),
		Logger:             logger,
		AuthConfig:         middleware.AuthConfig{Sessions: sessionRepo},
		Auth:               handlers.NewAuthHandlers(authService, logger),
		Twins:              handlers.NewTwinHandlers(twinRepo, logger),
		Locks:              handlers.NewLockHandlers(lockManager, connManager, logger),
		EditOperations:     handlers.NewEditOperationHandlers(editPipeline, logger),
		Telemetry:          handlers.NewTelemetryHandlers(telemetryIngest, logger),
		Health:             handlers.NewHealthHandlers(pool.Health, kvStore.Ping, connManager),
		WebSocket:          handlers.NewWebSocketHandlers(sessionRepo, connManager, logger),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	reaper.Stop()
	_ = connManager.Stop(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	_ = pool.Disconnect(context.Background())
	slog.Info("server exited")
}
