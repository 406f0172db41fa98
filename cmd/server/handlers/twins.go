package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/laces/genesis/internal/api/middleware"
	"github.com/laces/genesis/internal/apierrors"
	"github.com/laces/genesis/internal/domain"
)

// TwinStore is the subset of internal/twins.Repository the handlers need.
type TwinStore interface {
	Create(ctx context.Context, t domain.DigitalTwin) error
	Get(ctx context.Context, id string) (domain.DigitalTwin, error)
	ListByOrganization(ctx context.Context, organizationID string, skip, limit int) ([]domain.DigitalTwin, error)
	CreateVersion(ctx context.Context, v domain.TwinVersion) (int, error)
}

type TwinHandlers struct {
	twins  TwinStore
	logger *slog.Logger
}

func NewTwinHandlers(twins TwinStore, logger *slog.Logger) *TwinHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &TwinHandlers{twins: twins, logger: logger}
}

type createTwinRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	TwinType    string          `json:"twin_type"`
	Properties  domain.JSONValue `json:"properties"`
	Tags        []string        `json:"tags"`
}

type createTwinResponse struct {
	TwinID    string `json:"twin_id"`
	VersionID string `json:"version_id"`
}

// Create handles POST /twins.
func (h *TwinHandlers) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, r, apierrors.AuthError("authentication required"))
		return
	}

	var req createTwinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierrors.ValidationError("invalid request body"))
		return
	}
	if req.Name == "" {
		writeError(w, r, apierrors.ValidationError("name is required"))
		return
	}

	now := time.Now()
	twin := domain.DigitalTwin{
		ID:             uuid.New().String(),
		Name:           req.Name,
		OrganizationID: user.OrganizationID,
		Components:     componentsFromProperties(req.Properties),
		CreatedBy:      user.ID,
		CreatedAt:      now,
	}
	if err := h.twins.Create(r.Context(), twin); err != nil {
		h.logger.Error("twin create failed", "error", err)
		writeError(w, r, apierrors.InternalError("failed to create twin"))
		return
	}

	version := domain.TwinVersion{
		ID:        uuid.New().String(),
		TwinID:    twin.ID,
		Clock:     domain.VectorClock{},
		CreatedBy: user.ID,
		CreatedAt: now,
	}
	if _, err := h.twins.CreateVersion(r.Context(), version); err != nil {
		h.logger.Error("initial twin version create failed", "twin_id", twin.ID, "error", err)
		writeError(w, r, apierrors.InternalError("failed to create initial twin version"))
		return
	}

	writeJSON(w, http.StatusCreated, createTwinResponse{TwinID: twin.ID, VersionID: version.ID})
}

// List handles GET /twins?skip=&limit=.
func (h *TwinHandlers) List(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, r, apierrors.AuthError("authentication required"))
		return
	}

	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 50)

	twinList, err := h.twins.ListByOrganization(r.Context(), user.OrganizationID, skip, limit)
	if err != nil {
		h.logger.Error("twin list failed", "error", err)
		writeError(w, r, apierrors.InternalError("failed to list twins"))
		return
	}
	writeJSON(w, http.StatusOK, twinList)
}

type createVersionRequest struct {
	CommitMessage string          `json:"commit_message"`
	ModelURL      string          `json:"model_url"`
	ModelFormat   string          `json:"model_format"`
	Properties    domain.JSONValue `json:"properties"`
}

type createVersionResponse struct {
	VersionID     string `json:"version_id"`
	VersionNumber int    `json:"version_number"`
}

// CreateVersion handles POST /twins/{id}/versions.
func (h *TwinHandlers) CreateVersion(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, r, apierrors.AuthError("authentication required"))
		return
	}
	twinID := mux.Vars(r)["id"]

	var req createVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierrors.ValidationError("invalid request body"))
		return
	}

	if _, err := h.twins.Get(r.Context(), twinID); err != nil {
		writeError(w, r, apierrors.NotFoundError("twin"))
		return
	}

	version := domain.TwinVersion{
		ID:        uuid.New().String(),
		TwinID:    twinID,
		Clock:     domain.VectorClock{},
		CreatedBy: user.ID,
		CreatedAt: time.Now(),
	}
	versionNumber, err := h.twins.CreateVersion(r.Context(), version)
	if err != nil {
		h.logger.Error("twin version create failed", "twin_id", twinID, "error", err)
		writeError(w, r, apierrors.InternalError("failed to create twin version"))
		return
	}

	writeJSON(w, http.StatusCreated, createVersionResponse{VersionID: version.ID, VersionNumber: versionNumber})
}

// componentsFromProperties flattens a twin's top-level property keys into
// the dotted-path component set locks and edit operations address.
func componentsFromProperties(properties domain.JSONValue) []string {
	fields, ok := properties.Object()
	if !ok {
		return nil
	}
	components := make([]string, 0, len(fields))
	for key := range fields {
		components = append(components, key)
	}
	return components
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
