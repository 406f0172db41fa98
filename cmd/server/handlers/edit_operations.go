package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/laces/genesis/internal/api/middleware"
	"github.com/laces/genesis/internal/apierrors"
	"github.com/laces/genesis/internal/domain"
)

// EditSubmitter is the subset of *editpipeline.Pipeline the handler needs.
type EditSubmitter interface {
	Submit(ctx context.Context, twinID, sessionID, userID, component, opType string, payload domain.JSONValue, callerClock domain.VectorClock) (*domain.EditOperation, error)
}

type EditOperationHandlers struct {
	pipeline EditSubmitter
	logger   *slog.Logger
}

func NewEditOperationHandlers(pipeline EditSubmitter, logger *slog.Logger) *EditOperationHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &EditOperationHandlers{pipeline: pipeline, logger: logger}
}

type submitOperationRequest struct {
	TwinID        string             `json:"twin_id"`
	OperationType string             `json:"operation_type"`
	ComponentPath string             `json:"component_path"`
	OperationData domain.JSONValue   `json:"operation_data"`
	VectorClock   domain.VectorClock `json:"vector_clock"`
}

type submitOperationResponse struct {
	OperationID string `json:"operation_id"`
}

// Submit handles POST /edit-operations.
func (h *EditOperationHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, r, apierrors.AuthError("authentication required"))
		return
	}
	sessionID := r.Header.Get(SessionIDHeader)
	if sessionID == "" {
		writeError(w, r, apierrors.ValidationError(SessionIDHeader+" header is required"))
		return
	}

	var req submitOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierrors.ValidationError("invalid request body"))
		return
	}
	if req.TwinID == "" || req.ComponentPath == "" || req.OperationType == "" {
		writeError(w, r, apierrors.ValidationError("twin_id, component_path, and operation_type are required"))
		return
	}

	op, err := h.pipeline.Submit(r.Context(), req.TwinID, sessionID, user.ID, req.ComponentPath, req.OperationType, req.OperationData, req.VectorClock)
	if err != nil {
		var apiErr *apierrors.APIError
		if errors.As(err, &apiErr) {
			writeError(w, r, apiErr)
			return
		}
		h.logger.Error("edit operation submit failed", "twin_id", req.TwinID, "error", err)
		writeError(w, r, apierrors.InternalError("failed to submit edit operation"))
		return
	}

	writeJSON(w, http.StatusCreated, submitOperationResponse{OperationID: op.ID})
}
