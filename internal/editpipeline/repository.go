package editpipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/laces/genesis/internal/database/postgres"
	"github.com/laces/genesis/internal/domain"
)

// PostgresRepository is the append-only edit_operations log plus the
// per-twin vector-clock high-watermark used to stamp new operations.
type PostgresRepository struct {
	db postgres.DatabaseConnection
}

func NewPostgresRepository(db postgres.DatabaseConnection) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertOperation(ctx context.Context, op domain.EditOperation) error {
	payload, err := json.Marshal(op.Payload)
	if err != nil {
		return err
	}
	clock, err := json.Marshal(op.Clock)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO edit_operations (id, twin_id, session_id, user_id, component, op_type, payload, clock, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		op.ID, op.TwinID, op.SessionID, op.UserID, op.Component, op.OpType, payload, clock, op.AppliedAt,
	)
	return err
}

func (r *PostgresRepository) TwinClock(ctx context.Context, twinID string) (domain.VectorClock, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT clock FROM twin_clocks WHERE twin_id = $1`, twinID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VectorClock{}, nil
	}
	if err != nil {
		return nil, err
	}
	clock := make(domain.VectorClock)
	if err := json.Unmarshal(raw, &clock); err != nil {
		return nil, err
	}
	return clock, nil
}

func (r *PostgresRepository) SaveTwinClock(ctx context.Context, twinID string, clock domain.VectorClock) error {
	raw, err := json.Marshal(clock)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO twin_clocks (twin_id, clock)
		VALUES ($1, $2)
		ON CONFLICT (twin_id) DO UPDATE SET clock = EXCLUDED.clock`,
		twinID, raw,
	)
	return err
}
