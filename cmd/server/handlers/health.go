// Package handlers provides the HTTP handlers for the collaboration
// platform's REST and WebSocket surface.
package handlers

import (
	"context"
	"net/http"

	"github.com/laces/genesis/internal/connection"
)

// Ping is a lightweight round trip against a dependency — the Postgres
// pool's Health method or the KV client's Ping method both satisfy it.
type Ping func(ctx context.Context) error

// HealthResponse is the public, unauthenticated system health shape the
// spec's `GET /health` defines.
type HealthResponse struct {
	Status            string `json:"status"`
	ActiveConnections int    `json:"active_connections"`
	Database          string `json:"database"`
	Redis             string `json:"redis"`
}

// HealthHandlers serves the public health endpoint.
type HealthHandlers struct {
	pingDB    Ping
	pingRedis Ping
	conn      *connection.Manager
}

func NewHealthHandlers(pingDB, pingRedis Ping, conn *connection.Manager) *HealthHandlers {
	return &HealthHandlers{pingDB: pingDB, pingRedis: pingRedis, conn: conn}
}

// Check handles GET /health.
func (h *HealthHandlers) Check(w http.ResponseWriter, r *http.Request) {
	dbStatus := probe(r.Context(), h.pingDB)
	redisStatus := probe(r.Context(), h.pingRedis)

	status := "healthy"
	if dbStatus != "healthy" || redisStatus != "healthy" {
		status = "degraded"
	}

	response := HealthResponse{
		Status:            status,
		ActiveConnections: h.conn.ActiveConnections(),
		Database:          dbStatus,
		Redis:             redisStatus,
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, response)
}

func probe(ctx context.Context, ping Ping) string {
	if ping == nil {
		return "unknown"
	}
	if err := ping(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
