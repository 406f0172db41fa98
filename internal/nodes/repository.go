// Package nodes is the MachineNode directory: the small amount of shared
// persistence every Maintenance Core component needs (look up one node,
// list the online fleet) factored out of health/anomaly/predictor so none
// of them duplicates the same two queries.
package nodes

import (
	"context"
	"encoding/json"

	"github.com/laces/genesis/internal/database/postgres"
	"github.com/laces/genesis/internal/domain"
)

type Repository struct {
	db postgres.DatabaseConnection
}

func NewRepository(db postgres.DatabaseConnection) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, nodeID string) (domain.MachineNode, error) {
	var n domain.MachineNode
	var metadata []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, name, organization_id, online, last_maintenance_at, metadata, created_at
		FROM machine_nodes WHERE id = $1`, nodeID,
	).Scan(&n.ID, &n.Name, &n.OrganizationID, &n.Online, &n.LastMaintenanceAt, &metadata, &n.CreatedAt)
	if err != nil {
		return domain.MachineNode{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return domain.MachineNode{}, err
		}
	}
	return n, nil
}

func (r *Repository) ListOnline(ctx context.Context) ([]domain.MachineNode, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, organization_id, online, last_maintenance_at, metadata, created_at
		FROM machine_nodes WHERE online`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MachineNode
	for rows.Next() {
		var n domain.MachineNode
		var metadata []byte
		if err := rows.Scan(&n.ID, &n.Name, &n.OrganizationID, &n.Online, &n.LastMaintenanceAt, &metadata, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
