// Package auth issues and validates the session bearer tokens that
// gate every other endpoint: password hashing at signup, credential
// verification at login, and random token minting for the resulting
// session row.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/laces/genesis/internal/domain"
	"github.com/laces/genesis/internal/users"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
)

// SessionStore is the subset of internal/sessions.Repository the auth
// service needs to mint a session row.
type SessionStore interface {
	Create(ctx context.Context, s domain.Session) error
}

// UserStore is the subset of internal/users.Repository the auth service
// needs for signup and login.
type UserStore interface {
	Create(ctx context.Context, u domain.User) error
	GetByUsername(ctx context.Context, username string) (domain.User, error)
}

// Config carries the session lifetime new sessions are minted with.
type Config struct {
	SessionTTL time.Duration
}

type Service struct {
	users    UserStore
	sessions SessionStore
	cfg      Config
}

func New(users UserStore, sessions SessionStore, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Service{users: users, sessions: sessions, cfg: cfg}
}

// Result is what both Register and Login hand back to the HTTP layer.
type Result struct {
	AccessToken string
	UserID      string
	SessionID   string
}

// Register hashes the password, creates the user, and immediately logs
// them in with a fresh session — matching the spec's single-call
// register response shape.
func (s *Service) Register(ctx context.Context, username, password, organizationID string) (Result, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return Result{}, err
	}

	u := domain.User{
		ID:             uuid.New().String(),
		Username:       username,
		PasswordHash:   hash,
		OrganizationID: organizationID,
		CreatedAt:      time.Now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return Result{}, err
	}

	return s.issueSession(ctx, u)
}

// Login verifies credentials and mints a new session.
func (s *Service) Login(ctx context.Context, username, password string) (Result, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Result{}, ErrInvalidCredentials
		}
		return Result{}, err
	}
	if !CheckPassword(password, u.PasswordHash) {
		return Result{}, ErrInvalidCredentials
	}
	return s.issueSession(ctx, u)
}

func (s *Service) issueSession(ctx context.Context, u domain.User) (Result, error) {
	token, err := randomToken()
	if err != nil {
		return Result{}, err
	}

	now := time.Now()
	session := domain.Session{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
		Active:    true,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return Result{}, err
	}

	return Result{AccessToken: token, UserID: u.ID, SessionID: session.ID}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
