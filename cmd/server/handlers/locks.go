package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/laces/genesis/internal/api/middleware"
	"github.com/laces/genesis/internal/apierrors"
	"github.com/laces/genesis/internal/connection"
	"github.com/laces/genesis/internal/domain"
	"github.com/laces/genesis/internal/lock"
)

// LockHandlers implements POST /locks/acquire and DELETE /locks/{lock_id}.
// A session ID is required for every call but the spec's auth model only
// authenticates a user bearer token, so the session is carried as a
// request header rather than inferred — matching the one-session-per-
// connection assumption the WebSocket transport also makes.
type LockHandlers struct {
	locks  *lock.Manager
	conn   *connection.Manager
	logger *slog.Logger
}

func NewLockHandlers(locks *lock.Manager, conn *connection.Manager, logger *slog.Logger) *LockHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &LockHandlers{locks: locks, conn: conn, logger: logger}
}

// SessionIDHeader carries the caller's live session ID on REST calls that
// need to attribute an action to a specific connection, not just a user.
const SessionIDHeader = "X-Session-ID"

type acquireLockRequest struct {
	TwinID     string   `json:"twin_id"`
	Components []string `json:"components"`
	LockType   string   `json:"lock_type"`
}

type acquireLockResponse struct {
	LockID string `json:"lock_id"`
}

// Acquire handles POST /locks/acquire.
func (h *LockHandlers) Acquire(w http.ResponseWriter, r *http.Request) {
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

	var req acquireLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierrors.ValidationError("invalid request body"))
		return
	}
	if req.TwinID == "" || len(req.Components) == 0 {
		writeError(w, r, apierrors.ValidationError("twin_id and components are required"))
		return
	}

	lockType := domain.LockType(req.LockType)
	if lockType != domain.LockShared {
		lockType = domain.LockExclusive
	}

	acquired, err := h.locks.Acquire(r.Context(), req.TwinID, user.ID, sessionID, req.Components, lockType)
	if err != nil {
		h.writeLockErr(w, r, err)
		return
	}

	event := connection.NewEvent(connection.EventTypeLockAcquired, req.TwinID, domain.NewObject(map[string]domain.JSONValue{
		"lock_id": domain.NewString(acquired.ID),
		"user_id": domain.NewString(user.ID),
	}), connection.EventSourceLockManager)
	if err := h.conn.BroadcastExcept(req.TwinID, event, sessionID); err != nil {
		h.logger.Warn("failed to broadcast lock acquisition", "lock_id", acquired.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, acquireLockResponse{LockID: acquired.ID})
}

// Release handles DELETE /locks/{lock_id}.
func (h *LockHandlers) Release(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionIDHeader)
	if sessionID == "" {
		writeError(w, r, apierrors.ValidationError(SessionIDHeader+" header is required"))
		return
	}
	lockID := mux.Vars(r)["lock_id"]
	twinID := r.URL.Query().Get("twin_id")
	if twinID == "" {
		writeError(w, r, apierrors.ValidationError("twin_id query parameter is required"))
		return
	}

	if err := h.locks.Release(r.Context(), twinID, lockID, sessionID); err != nil {
		h.writeLockErr(w, r, err)
		return
	}

	event := connection.NewEvent(connection.EventTypeLockReleased, twinID, domain.NewObject(map[string]domain.JSONValue{
		"lock_id": domain.NewString(lockID),
	}), connection.EventSourceLockManager)
	if err := h.conn.BroadcastExcept(twinID, event, sessionID); err != nil {
		h.logger.Warn("failed to broadcast lock release", "lock_id", lockID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (h *LockHandlers) writeLockErr(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		writeError(w, r, apiErr)
		return
	}
	h.logger.Error("lock operation failed", "error", err)
	writeError(w, r, apierrors.InternalError("lock operation failed"))
}
