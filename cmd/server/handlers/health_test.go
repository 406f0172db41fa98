package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laces/genesis/internal/connection"
)

func TestHealthHandlers_CheckHealthy(t *testing.T) {
	conn := connection.New(nil, nil)
	h := NewHealthHandlers(
		func(context.Context) error { return nil },
		func(context.Context) error { return nil },
		conn,
	)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.Check(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Database)
	assert.Equal(t, "healthy", resp.Redis)
}

func TestHealthHandlers_CheckDegradedWhenDatabaseDown(t *testing.T) {
	conn := connection.New(nil, nil)
	h := NewHealthHandlers(
		func(context.Context) error { return errors.New("connection refused") },
		func(context.Context) error { return nil },
		conn,
	)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.Check(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unhealthy", resp.Database)
}
