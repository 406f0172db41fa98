// Package api wires the collaboration platform's HTTP surface together:
// middleware stack, route table, and the per-domain handlers in
// cmd/server/handlers.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/laces/genesis/internal/api/middleware"
	"github.com/laces/genesis/cmd/server/handlers"
)

// RouterConfig holds every dependency the route table needs.
type RouterConfig struct {
	EnableRateLimit   bool
	EnableCompression bool
	EnableCORS        bool
	EnableMetrics     bool

	AuthConfig middleware.AuthConfig

	RateLimitPerMinute int
	RateLimitBurst     int

	CORSConfig middleware.CORSConfig

	Logger *slog.Logger

	Auth           *handlers.AuthHandlers
	Twins          *handlers.TwinHandlers
	Locks          *handlers.LockHandlers
	EditOperations *handlers.EditOperationHandlers
	Telemetry      *handlers.TelemetryHandlers
	Health         *handlers.HealthHandlers
	WebSocket      *handlers.WebSocketHandlers
}

// DefaultRouterConfig returns sane middleware defaults; callers still need
// to set the handler fields and AuthConfig.Sessions before calling NewRouter.
func DefaultRouterConfig(logger *slog.Logger) RouterConfig {
	return RouterConfig{
		EnableRateLimit:    true,
		EnableCompression:  true,
		EnableCORS:         true,
		EnableMetrics:      true,
		RateLimitPerMinute: 100,
		RateLimitBurst:     20,
		CORSConfig:         middleware.DefaultCORSConfig(),
		Logger:             logger,
	}
}

// NewRouter builds the route table.
//
// The middleware stack is applied in order:
//  1. RequestID (always)
//  2. Logging (always)
//  3. Metrics (if enabled)
//  4. CORS (if enabled)
//  5. Compression (if enabled)
//  6. Route-specific: Auth, RateLimit
func NewRouter(config RouterConfig) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(config.Logger))

	if config.EnableMetrics {
		router.Use(middleware.MetricsMiddleware)
	}
	if config.EnableCORS {
		router.Use(middleware.CORSMiddleware(config.CORSConfig))
	}
	if config.EnableCompression {
		router.Use(middleware.CompressionMiddleware)
	}

	// GET /health is the one public, unauthenticated endpoint.
	router.HandleFunc("/health", config.Health.Check).Methods(http.MethodGet)

	router.HandleFunc("/auth/register", config.Auth.Register).Methods(http.MethodPost)
	router.HandleFunc("/auth/login", config.Auth.Login).Methods(http.MethodPost)

	// /ws/{session_id} authenticates itself (bearer token as a query
	// parameter) rather than through AuthMiddleware, since the WebSocket
	// handshake precedes any normal request context setup.
	router.HandleFunc("/ws/{session_id}", config.WebSocket.Serve).Methods(http.MethodGet)

	protected := router.NewRoute().Subrouter()
	protected.Use(middleware.AuthMiddleware(config.AuthConfig))
	if config.EnableRateLimit {
		protected.Use(middleware.RateLimitMiddleware(config.RateLimitPerMinute, config.RateLimitBurst))
	}

	protected.HandleFunc("/twins", config.Twins.Create).Methods(http.MethodPost)
	protected.HandleFunc("/twins", config.Twins.List).Methods(http.MethodGet)
	protected.HandleFunc("/twins/{id}/versions", config.Twins.CreateVersion).Methods(http.MethodPost)

	protected.HandleFunc("/locks/acquire", config.Locks.Acquire).Methods(http.MethodPost)
	protected.HandleFunc("/locks/{lock_id}", config.Locks.Release).Methods(http.MethodDelete)

	protected.HandleFunc("/edit-operations", config.EditOperations.Submit).Methods(http.MethodPost)

	// Telemetry is ingested by fleet nodes, not logged-in collaboration
	// users, so it sits outside the bearer-token subrouter; rate limiting
	// still applies since it's the platform's main write-burst source.
	telemetry := router.NewRoute().Subrouter()
	if config.EnableRateLimit {
		telemetry.Use(middleware.RateLimitMiddleware(config.RateLimitPerMinute, config.RateLimitBurst))
	}
	telemetry.HandleFunc("/telemetry", config.Telemetry.Ingest).Methods(http.MethodPost)
	telemetry.HandleFunc("/telemetry/batch", config.Telemetry.IngestBatch).Methods(http.MethodPost)

	return router
}
