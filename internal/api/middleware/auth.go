package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/laces/genesis/internal/domain"
)

// SessionResolver looks up the session and owning user behind a bearer
// token. internal/sessions.Repository satisfies this.
type SessionResolver interface {
	GetActiveByToken(ctx context.Context, token string) (domain.Session, domain.User, error)
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Sessions SessionResolver
}

// AuthMiddleware validates the session bearer token carried in the
// Authorization header.
//
// Supported scheme:
//   - Bearer: Header "Authorization: Bearer <session_token>"
//
// On success, adds the resolved user and session to request context
// (accessible via GetUser / GetSession). On failure, returns 401.
func AuthMiddleware(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get(AuthorizationHeader)
			if authHeader == "" {
				writeUnauthorized(w, r, "Missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeUnauthorized(w, r, "Invalid Authorization header format")
				return
			}

			session, user, err := config.Sessions.GetActiveByToken(r.Context(), parts[1])
			if err != nil {
				writeUnauthorized(w, r, "Invalid or expired session")
				return
			}
			if session.Expired(time.Now()) {
				writeUnauthorized(w, r, "Session expired")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, &AuthenticatedUser{
				ID:             user.ID,
				Username:       user.Username,
				OrganizationID: user.OrganizationID,
			})
			ctx = context.WithValue(ctx, SessionContextKey, &session)
			r = r.WithContext(ctx)

			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized writes 401 Unauthorized response
func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	requestID := GetRequestID(r.Context())
	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":       "AUTH_ERROR",
			"message":    message,
			"request_id": requestID,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(errorResponse)
}

// GetUser extracts the authenticated user from context.
func GetUser(ctx context.Context) (*AuthenticatedUser, bool) {
	user, ok := ctx.Value(UserContextKey).(*AuthenticatedUser)
	return user, ok
}

// GetSession extracts the authenticated session from context.
func GetSession(ctx context.Context) (*domain.Session, bool) {
	session, ok := ctx.Value(SessionContextKey).(*domain.Session)
	return session, ok
}
