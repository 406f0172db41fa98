package lock

import (
	"context"
	"time"

	"github.com/laces/genesis/internal/database/postgres"
	"github.com/laces/genesis/internal/domain"
)

// PostgresRepository persists the durable shadow row for each EditLock. The
// KV record remains authoritative while a lock is live; this table exists
// for audit reads, crash recovery, and the stale reaper's sweep.
type PostgresRepository struct {
	db postgres.DatabaseConnection
}

func NewPostgresRepository(db postgres.DatabaseConnection) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertLock(ctx context.Context, l domain.EditLock) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO edit_locks (id, twin_id, user_id, session_id, components, lock_type, acquired_at, expires_at, heartbeat_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true)
		ON CONFLICT (id) DO NOTHING`,
		l.ID, l.TwinID, l.UserID, l.SessionID, l.Components, string(l.Type), l.AcquiredAt, l.ExpiresAt, l.HeartbeatAt,
	)
	return err
}

func (r *PostgresRepository) MarkReleased(ctx context.Context, lockID string, releasedAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE edit_locks SET released_at = $2, is_active = false WHERE id = $1`,
		lockID, releasedAt,
	)
	return err
}

// ExtendLock records a heartbeat: it advances expires_at by the manager's
// TTL and stamps heartbeat_at so the stale reaper's grace window is
// measured from the most recent renewal, not from acquisition.
func (r *PostgresRepository) ExtendLock(ctx context.Context, lockID string, expiresAt, heartbeatAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE edit_locks SET expires_at = $2, heartbeat_at = $3 WHERE id = $1`,
		lockID, expiresAt, heartbeatAt,
	)
	return err
}

// StaleLocks returns every active lock whose heartbeat has lapsed past
// grace, or whose expiry has already passed outright — the reaper's
// candidate set for deactivation.
func (r *PostgresRepository) StaleLocks(ctx context.Context, now time.Time, grace time.Duration) ([]domain.EditLock, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, twin_id, user_id, session_id, components, lock_type, acquired_at, expires_at, heartbeat_at, is_active
		FROM edit_locks
		WHERE is_active AND (heartbeat_at + $2::interval < $1 OR expires_at < $1)`,
		now, grace.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locks []domain.EditLock
	for rows.Next() {
		var l domain.EditLock
		var lockType string
		if err := rows.Scan(&l.ID, &l.TwinID, &l.UserID, &l.SessionID, &l.Components, &lockType,
			&l.AcquiredAt, &l.ExpiresAt, &l.HeartbeatAt, &l.IsActive); err != nil {
			return nil, err
		}
		l.Type = domain.LockType(lockType)
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

// MarkInactive flips a stale lock's SQL row to inactive without touching
// released_at, which stays reserved for an explicit client-initiated Release.
func (r *PostgresRepository) MarkInactive(ctx context.Context, lockID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE edit_locks SET is_active = false WHERE id = $1`,
		lockID,
	)
	return err
}
