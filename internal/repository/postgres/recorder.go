// Package postgres persists tick history when a database is configured. The
// engine runs fine without it; the memory recorder covers the same interface.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
)

// TickRecorder implements domain.SnapshotRecorder on a pgx pool.
type TickRecorder struct {
	pool *pgxpool.Pool
}

// NewTickRecorder creates a recorder backed by the given pool.
func NewTickRecorder(pool *pgxpool.Pool) *TickRecorder {
	return &TickRecorder{pool: pool}
}

// EnsureSchema creates the tick history table if it does not exist.
func (r *TickRecorder) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS tick_snapshots (
			id BIGSERIAL PRIMARY KEY,
			instance_id TEXT NOT NULL,
			city TEXT NOT NULL,
			tick INTEGER NOT NULL,
			simulated_time TIMESTAMPTZ NOT NULL,
			hour SMALLINT NOT NULL,
			condition TEXT NOT NULL,
			temperature DOUBLE PRECISION NOT NULL,
			congestion_level DOUBLE PRECISION NOT NULL,
			congestion_label TEXT NOT NULL,
			average_speed_kmh DOUBLE PRECISION NOT NULL,
			vehicle_estimate INTEGER NOT NULL,
			scheduled_events INTEGER NOT NULL,
			active_events INTEGER NOT NULL,
			completed_events INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tick_snapshots_instance
			ON tick_snapshots (instance_id, tick DESC)
	`

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("postgres: failed to ensure schema: %w", err)
	}
	return nil
}

// Save persists one tick row.
func (r *TickRecorder) Save(ctx context.Context, rec domain.SnapshotRecord) error {
	query := `
		INSERT INTO tick_snapshots (
			instance_id, city, tick, simulated_time, hour,
			condition, temperature, congestion_level, congestion_label,
			average_speed_kmh, vehicle_estimate,
			scheduled_events, active_events, completed_events, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.InstanceID, rec.City, rec.Tick, rec.SimulatedTime, rec.Hour,
		rec.Condition, rec.Temperature, rec.CongestionLevel, rec.CongestionLabel,
		rec.AverageSpeed, rec.VehicleEstimate,
		rec.ScheduledEvents, rec.ActiveEvents, rec.CompletedEvents, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save tick snapshot: %w", err)
	}

	return nil
}

// Recent returns up to limit rows for the instance, newest tick first.
func (r *TickRecorder) Recent(ctx context.Context, instanceID string, limit int) ([]domain.SnapshotRecord, error) {
	query := `
		SELECT instance_id, city, tick, simulated_time, hour,
			   condition, temperature, congestion_level, congestion_label,
			   average_speed_kmh, vehicle_estimate,
			   scheduled_events, active_events, completed_events, created_at
		FROM tick_snapshots
		WHERE instance_id = $1
		ORDER BY tick DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query tick snapshots: %w", err)
	}
	defer rows.Close()

	var results []domain.SnapshotRecord
	for rows.Next() {
		var rec domain.SnapshotRecord
		err := rows.Scan(
			&rec.InstanceID, &rec.City, &rec.Tick, &rec.SimulatedTime, &rec.Hour,
			&rec.Condition, &rec.Temperature, &rec.CongestionLevel, &rec.CongestionLabel,
			&rec.AverageSpeed, &rec.VehicleEstimate,
			&rec.ScheduledEvents, &rec.ActiveEvents, &rec.CompletedEvents, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan tick snapshot row: %w", err)
		}
		results = append(results, rec)
	}

	return results, nil
}

// Health checks database connectivity.
func (r *TickRecorder) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}
