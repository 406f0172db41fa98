package tickets

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/laces/genesis/internal/database/postgres"
	"github.com/laces/genesis/internal/domain"
)

type PostgresRepository struct {
	db postgres.DatabaseConnection
}

func NewPostgresRepository(db postgres.DatabaseConnection) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindOpenOrAcknowledged returns the most recent open or acknowledged
// ticket for (node_id, title) created at or after since, or nil if none
// exists.
func (r *PostgresRepository) FindOpenOrAcknowledged(ctx context.Context, nodeID, title string, since time.Time) (*domain.MaintenanceTicket, error) {
	var t domain.MaintenanceTicket
	var diagnostic []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, node_id, title, description, priority, status, diagnostic_data, created_at, acknowledged_at
		FROM maintenance_tickets
		WHERE node_id = $1 AND title = $2 AND status IN ('open', 'acknowledged') AND created_at >= $3
		ORDER BY created_at DESC LIMIT 1`,
		nodeID, title, since,
	).Scan(&t.ID, &t.NodeID, &t.Title, &t.Description, &t.Priority, &t.Status, &diagnostic, &t.CreatedAt, &t.AcknowledgedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(diagnostic) > 0 {
		if err := json.Unmarshal(diagnostic, &t.DiagnosticData); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, t domain.MaintenanceTicket) error {
	diagnostic, err := json.Marshal(t.DiagnosticData)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO maintenance_tickets (id, node_id, title, description, priority, status, diagnostic_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.NodeID, t.Title, t.Description, string(t.Priority), string(t.Status), diagnostic, t.CreatedAt,
	)
	return err
}

// ListBySeverityCreatedSince returns open tickets matching one of
// priorities, created at or after since.
func (r *PostgresRepository) ListBySeverityCreatedSince(ctx context.Context, priorities []domain.TicketPriority, since time.Time) ([]domain.MaintenanceTicket, error) {
	labels := make([]string, len(priorities))
	for i, p := range priorities {
		labels[i] = string(p)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, node_id, title, description, priority, status, diagnostic_data, created_at, acknowledged_at
		FROM maintenance_tickets
		WHERE status = 'open' AND priority = ANY($1) AND created_at >= $2`,
		labels, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MaintenanceTicket
	for rows.Next() {
		var t domain.MaintenanceTicket
		var diagnostic []byte
		if err := rows.Scan(&t.ID, &t.NodeID, &t.Title, &t.Description, &t.Priority, &t.Status, &diagnostic, &t.CreatedAt, &t.AcknowledgedAt); err != nil {
			return nil, err
		}
		if len(diagnostic) > 0 {
			if err := json.Unmarshal(diagnostic, &t.DiagnosticData); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListOpen returns every open ticket, for the schedule optimizer's
// prioritization pass.
func (r *PostgresRepository) ListOpen(ctx context.Context) ([]domain.MaintenanceTicket, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, node_id, title, description, priority, status, diagnostic_data, created_at, acknowledged_at
		FROM maintenance_tickets WHERE status = 'open'`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MaintenanceTicket
	for rows.Next() {
		var t domain.MaintenanceTicket
		var diagnostic []byte
		if err := rows.Scan(&t.ID, &t.NodeID, &t.Title, &t.Description, &t.Priority, &t.Status, &diagnostic, &t.CreatedAt, &t.AcknowledgedAt); err != nil {
			return nil, err
		}
		if len(diagnostic) > 0 {
			if err := json.Unmarshal(diagnostic, &t.DiagnosticData); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Acknowledge(ctx context.Context, id string, ackAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE maintenance_tickets SET status = 'acknowledged', acknowledged_at = $2 WHERE id = $1`,
		id, ackAt,
	)
	return err
}
