// Package twins is the DigitalTwin and TwinVersion directory: twin
// creation/listing and the immutable version snapshots taken on save.
package twins

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/laces/genesis/internal/database/postgres"
	"github.com/laces/genesis/internal/domain"
)

var ErrNotFound = errors.New("twins: not found")

type Repository struct {
	db postgres.DatabaseConnection
}

func NewRepository(db postgres.DatabaseConnection) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, t domain.DigitalTwin) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO digital_twins (id, name, organization_id, components, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.OrganizationID, t.Components, t.CreatedBy, t.CreatedAt,
	)
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (domain.DigitalTwin, error) {
	var t domain.DigitalTwin
	err := r.db.QueryRow(ctx, `
		SELECT id, name, organization_id, components, created_by, created_at
		FROM digital_twins WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.OrganizationID, &t.Components, &t.CreatedBy, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DigitalTwin{}, ErrNotFound
	}
	return t, err
}

// ListByOrganization returns an organization's twins newest-first, page
// by skip/limit, matching the spec's `GET /twins?skip=&limit=`.
func (r *Repository) ListByOrganization(ctx context.Context, organizationID string, skip, limit int) ([]domain.DigitalTwin, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, organization_id, components, created_by, created_at
		FROM digital_twins WHERE organization_id = $1
		ORDER BY created_at DESC OFFSET $2 LIMIT $3`,
		organizationID, skip, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DigitalTwin
	for rows.Next() {
		var t domain.DigitalTwin
		if err := rows.Scan(&t.ID, &t.Name, &t.OrganizationID, &t.Components, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateVersion inserts a new immutable snapshot row and returns its
// assigned version number (one more than the twin's current highest).
func (r *Repository) CreateVersion(ctx context.Context, v domain.TwinVersion) (int, error) {
	clock, err := json.Marshal(v.Clock)
	if err != nil {
		return 0, err
	}

	var versionNumber int
	err = r.db.QueryRow(ctx, `
		INSERT INTO twin_versions (id, twin_id, version_number, clock, created_by, created_at)
		VALUES ($1, $2, COALESCE((SELECT MAX(version_number) FROM twin_versions WHERE twin_id = $2), 0) + 1, $3, $4, $5)
		RETURNING version_number`,
		v.ID, v.TwinID, clock, v.CreatedBy, v.CreatedAt,
	).Scan(&versionNumber)
	return versionNumber, err
}

func (r *Repository) LatestVersion(ctx context.Context, twinID string) (domain.TwinVersion, error) {
	var v domain.TwinVersion
	var clock []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, twin_id, version_number, clock, created_by, created_at
		FROM twin_versions WHERE twin_id = $1
		ORDER BY version_number DESC LIMIT 1`, twinID,
	).Scan(&v.ID, &v.TwinID, &v.VersionNumber, &clock, &v.CreatedBy, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TwinVersion{}, ErrNotFound
	}
	if err != nil {
		return domain.TwinVersion{}, err
	}
	if len(clock) > 0 {
		if err := json.Unmarshal(clock, &v.Clock); err != nil {
			return domain.TwinVersion{}, err
		}
	}
	return v, nil
}
