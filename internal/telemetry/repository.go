// Package telemetry is the Telemetry Ingest component: single and batch
// insert paths into the time-series telemetry_data table, rate-limited so
// a burst of nodes can't starve the connection pool.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/laces/genesis/internal/database/postgres"
	"github.com/laces/genesis/internal/domain"
)

// Repository persists telemetry samples and reads them back for the
// Health Assessor, Anomaly Detector, and Failure Predictor.
type Repository interface {
	Insert(ctx context.Context, sample domain.TelemetrySample) error
	InsertBatch(ctx context.Context, samples []domain.TelemetrySample) error
	Window(ctx context.Context, nodeID string, since time.Time, limit int) ([]domain.TelemetrySample, error)
	LatestByOnlineNode(ctx context.Context) (map[string]domain.TelemetrySample, error)
}

const columnsPerRow = 12

// PostgresRepository is the single implementation used in production; it
// issues one multi-row INSERT per batch, matching the teacher's pattern of
// building one statement with positional placeholders rather than looping
// one INSERT per row.
type PostgresRepository struct {
	db postgres.DatabaseConnection
}

func NewPostgresRepository(db postgres.DatabaseConnection) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, s domain.TelemetrySample) error {
	return r.InsertBatch(ctx, []domain.TelemetrySample{s})
}

func (r *PostgresRepository) InsertBatch(ctx context.Context, samples []domain.TelemetrySample) error {
	if len(samples) == 0 {
		return nil
	}

	rowClauses := make([]string, 0, len(samples))
	values := make([]interface{}, 0, len(samples)*columnsPerRow)

	for i, s := range samples {
		custom, err := json.Marshal(s.CustomMetrics)
		if err != nil {
			return err
		}

		base := i * columnsPerRow
		placeholders := make([]string, columnsPerRow)
		for j := 0; j < columnsPerRow; j++ {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		rowClauses = append(rowClauses, "("+strings.Join(placeholders, ",")+")")

		values = append(values,
			s.NodeID, s.Timestamp, s.RPM, s.Torque, s.VibX, s.VibY, s.VibZ,
			s.Temperature, s.Power, s.ToolWear, s.ErrorCode, custom,
		)
	}

	query := `INSERT INTO telemetry_data
		(node_id, "timestamp", rpm, torque, vib_x, vib_y, vib_z, temperature, power, tool_wear, error_code, custom_metrics)
		VALUES ` + strings.Join(rowClauses, ",")

	_, err := r.db.Exec(ctx, query, values...)
	return err
}

// Window returns up to limit samples for nodeID at or after since, newest
// first.
func (r *PostgresRepository) Window(ctx context.Context, nodeID string, since time.Time, limit int) ([]domain.TelemetrySample, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, node_id, "timestamp", rpm, torque, vib_x, vib_y, vib_z, temperature, power, tool_wear, error_code, custom_metrics
		FROM telemetry_data
		WHERE node_id = $1 AND "timestamp" >= $2
		ORDER BY "timestamp" DESC
		LIMIT $3`,
		nodeID, since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []domain.TelemetrySample
	for rows.Next() {
		var s domain.TelemetrySample
		var custom []byte
		if err := rows.Scan(&s.ID, &s.NodeID, &s.Timestamp, &s.RPM, &s.Torque, &s.VibX, &s.VibY, &s.VibZ,
			&s.Temperature, &s.Power, &s.ToolWear, &s.ErrorCode, &custom); err != nil {
			return nil, err
		}
		if len(custom) > 0 {
			if err := json.Unmarshal(custom, &s.CustomMetrics); err != nil {
				return nil, err
			}
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// LatestByOnlineNode returns, for every online node, its single most
// recent telemetry sample — the feed the Anomaly Detector scores on each
// monitor tick.
func (r *PostgresRepository) LatestByOnlineNode(ctx context.Context) (map[string]domain.TelemetrySample, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (t.node_id)
			t.id, t.node_id, t."timestamp", t.rpm, t.torque, t.vib_x, t.vib_y, t.vib_z,
			t.temperature, t.power, t.tool_wear, t.error_code, t.custom_metrics
		FROM telemetry_data t
		JOIN machine_nodes n ON n.id = t.node_id
		WHERE n.online
		ORDER BY t.node_id, t."timestamp" DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.TelemetrySample)
	for rows.Next() {
		var s domain.TelemetrySample
		var custom []byte
		if err := rows.Scan(&s.ID, &s.NodeID, &s.Timestamp, &s.RPM, &s.Torque, &s.VibX, &s.VibY, &s.VibZ,
			&s.Temperature, &s.Power, &s.ToolWear, &s.ErrorCode, &custom); err != nil {
			return nil, err
		}
		if len(custom) > 0 {
			if err := json.Unmarshal(custom, &s.CustomMetrics); err != nil {
				return nil, err
			}
		}
		out[s.NodeID] = s
	}
	return out, rows.Err()
}
