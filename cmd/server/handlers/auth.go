package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/laces/genesis/internal/api/middleware"
	"github.com/laces/genesis/internal/apierrors"
	"github.com/laces/genesis/internal/auth"
	"github.com/laces/genesis/internal/users"
)

// AuthHandlers implements POST /auth/register and POST /auth/login.
type AuthHandlers struct {
	auth   *auth.Service
	logger *slog.Logger
}

func NewAuthHandlers(auth *auth.Service, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{auth: auth, logger: logger}
}

type registerRequest struct {
	Email          string `json:"email"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	OrganizationID string `json:"organization_id"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	SessionID   string `json:"session_id"`
}

// Register handles POST /auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierrors.ValidationError("invalid request body"))
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, apierrors.ValidationError("username and password are required"))
		return
	}

	result, err := h.auth.Register(r.Context(), req.Username, req.Password, req.OrganizationID)
	if err != nil {
		h.writeAuthErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		AccessToken: result.AccessToken,
		UserID:      result.UserID,
		SessionID:   result.SessionID,
	})
}

// Login handles POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierrors.ValidationError("invalid request body"))
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeAuthErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		AccessToken: result.AccessToken,
		UserID:      result.UserID,
		SessionID:   result.SessionID,
	})
}

func (h *AuthHandlers) writeAuthErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, apierrors.AuthError("invalid username or password"))
	case errors.Is(err, users.ErrUsernameTaken):
		writeError(w, r, apierrors.ValidationError("username already taken"))
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrEmptyPassword):
		writeError(w, r, apierrors.ValidationError(err.Error()))
	default:
		h.logger.Error("auth request failed", "error", err)
		writeError(w, r, apierrors.InternalError("authentication failed"))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
	apiErr.RequestID = middleware.GetRequestID(r.Context())
	apierrors.WriteError(w, apiErr)
}
