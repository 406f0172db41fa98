// Package sessions is the Session directory backing bearer-token auth
// and the Maintenance Agent's session-expiry sweep.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/laces/genesis/internal/database/postgres"
	"github.com/laces/genesis/internal/domain"
)

var ErrNotFound = errors.New("sessions: not found")

type Repository struct {
	db    postgres.DatabaseConnection
	retry *postgres.RetryExecutor
}

func NewRepository(db postgres.DatabaseConnection) *Repository {
	return &Repository{
		db:    db,
		retry: postgres.NewRetryExecutor(postgres.DefaultRetryConfig(), nil),
	}
}

func (r *Repository) Create(ctx context.Context, s domain.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_sessions (id, user_id, token, created_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, s.Token, s.CreatedAt, s.ExpiresAt, s.Active,
	)
	return err
}

// GetActiveByToken looks up the session and owning user for an
// unexpired bearer token. Returns ErrNotFound for an unknown, inactive,
// or expired token.
//
// This runs on every authenticated request, so a transient pool or
// connection error is retried a few times with backoff before it
// reaches the caller as a 503 — a permanent ErrNotFound never retries,
// since shouldRetry only fires for connection/timeout errors.
func (r *Repository) GetActiveByToken(ctx context.Context, token string) (domain.Session, domain.User, error) {
	var s domain.Session
	var u domain.User

	err := r.retry.Execute(ctx, func() error {
		return r.db.QueryRow(ctx, `
			SELECT s.id, s.user_id, s.token, s.created_at, s.expires_at, s.active,
			       u.id, u.username, u.password_hash, u.organization_id, u.created_at
			FROM user_sessions s JOIN users u ON u.id = s.user_id
			WHERE s.token = $1 AND s.active AND s.expires_at > now()`,
			token,
		).Scan(
			&s.ID, &s.UserID, &s.Token, &s.CreatedAt, &s.ExpiresAt, &s.Active,
			&u.ID, &u.Username, &u.PasswordHash, &u.OrganizationID, &u.CreatedAt,
		)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, domain.User{}, err
	}
	return s, u, nil
}

// ExpireStale marks every active session whose expiry has passed as
// inactive, and returns the ids that were just expired so callers can
// tear down any live connection state (locks, websocket transports)
// still referencing them.
func (r *Repository) ExpireStale(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE user_sessions SET active = false
		WHERE active AND expires_at < $1
		RETURNING id`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
