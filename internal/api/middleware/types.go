package middleware

// Context keys for middleware data storage
type contextKey string

const (
	// RequestIDContextKey is the context key for request ID
	RequestIDContextKey contextKey = "request_id"

	// UserContextKey is the context key for the authenticated user
	UserContextKey contextKey = "user"

	// SessionContextKey is the context key for the authenticated session
	SessionContextKey contextKey = "session"

	// StartTimeContextKey is the context key for request start time
	StartTimeContextKey contextKey = "start_time"
)

// HTTP headers
const (
	// RequestIDHeader is the header name for request ID
	RequestIDHeader = "X-Request-ID"

	// AuthorizationHeader is the header name for authorization
	AuthorizationHeader = "Authorization"

	// RateLimitHeader prefix for rate limit headers
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"

	// Cache control headers
	CacheControlHeader = "Cache-Control"
	ETagHeader         = "ETag"
	IfNoneMatchHeader  = "If-None-Match"

	// API version header
	APIVersionHeader = "X-API-Version"
)

// AuthenticatedUser is the identity carried in request context once a
// bearer token has resolved to an active session. It mirrors domain.User
// rather than the session row itself, since handlers only ever need the
// identity, not the token.
type AuthenticatedUser struct {
	ID             string
	Username       string
	OrganizationID string
}
