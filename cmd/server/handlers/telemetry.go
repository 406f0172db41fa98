package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/laces/genesis/internal/apierrors"
	"github.com/laces/genesis/internal/domain"
)

// TelemetryIngester is the subset of *telemetry.Ingest the handler needs.
type TelemetryIngester interface {
	Single(ctx context.Context, sample domain.TelemetrySample) error
	Batch(ctx context.Context, samples []domain.TelemetrySample) (int, error)
}

type TelemetryHandlers struct {
	ingest TelemetryIngester
	logger *slog.Logger
}

func NewTelemetryHandlers(ingest TelemetryIngester, logger *slog.Logger) *TelemetryHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelemetryHandlers{ingest: ingest, logger: logger}
}

type telemetrySampleRequest struct {
	NodeID        string           `json:"node_id"`
	Timestamp     *time.Time       `json:"timestamp"`
	RPM           *float64         `json:"rpm"`
	Torque        *float64         `json:"torque"`
	VibX          *float64         `json:"vib_x"`
	VibY          *float64         `json:"vib_y"`
	VibZ          *float64         `json:"vib_z"`
	Temperature   *float64         `json:"temperature"`
	Power         *float64         `json:"power"`
	ToolWear      *float64         `json:"tool_wear"`
	ErrorCode     *string          `json:"error_code"`
	CustomMetrics domain.JSONValue `json:"custom_metrics"`
}

func (req telemetrySampleRequest) toSample() domain.TelemetrySample {
	ts := time.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	return domain.TelemetrySample{
		ID:            uuid.New().String(),
		NodeID:        req.NodeID,
		Timestamp:     ts,
		RPM:           req.RPM,
		Torque:        req.Torque,
		VibX:          req.VibX,
		VibY:          req.VibY,
		VibZ:          req.VibZ,
		Temperature:   req.Temperature,
		Power:         req.Power,
		ToolWear:      req.ToolWear,
		ErrorCode:     req.ErrorCode,
		CustomMetrics: req.CustomMetrics,
	}
}

// Ingest handles POST /telemetry.
func (h *TelemetryHandlers) Ingest(w http.ResponseWriter, r *http.Request) {
	var req telemetrySampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierrors.ValidationError("invalid request body"))
		return
	}
	if req.NodeID == "" {
		writeError(w, r, apierrors.ValidationError("node_id is required"))
		return
	}

	sample := req.toSample()
	if err := h.ingest.Single(r.Context(), sample); err != nil {
		h.writeIngestErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ingested"})
}

type telemetryBatchRequest struct {
	Samples []telemetrySampleRequest `json:"samples"`
}

// IngestBatch handles POST /telemetry/batch.
func (h *TelemetryHandlers) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var req telemetryBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierrors.ValidationError("invalid request body"))
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, r, apierrors.ValidationError("samples must not be empty"))
		return
	}

	samples := make([]domain.TelemetrySample, 0, len(req.Samples))
	for _, s := range req.Samples {
		if s.NodeID == "" {
			writeError(w, r, apierrors.ValidationError("node_id is required on every sample"))
			return
		}
		samples = append(samples, s.toSample())
	}

	accepted, err := h.ingest.Batch(r.Context(), samples)
	if err != nil {
		h.writeIngestErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "ingested", "count": accepted})
}

func (h *TelemetryHandlers) writeIngestErr(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		writeError(w, r, apiErr)
		return
	}
	h.logger.Error("telemetry ingest failed", "error", err)
	writeError(w, r, apierrors.InternalError("telemetry ingest failed"))
}
