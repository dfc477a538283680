package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/datapolicy/policyscan/internal/domain/scan"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
)

type ScheduleRepository struct {
	db *DB
}

func NewScheduleRepository(db *DB) scan.ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Get returns the single schedule configuration row
func (r *ScheduleRepository) Get(ctx context.Context) (*scan.ScheduleConfig, error) {
	query := `
		SELECT enabled, interval_minutes, next_run_at, last_run_at, updated_at
		FROM schedule_config WHERE id = 1
	`
	var cfg scan.ScheduleConfig
	var nextRun, lastRun sql.NullString
	var updatedAt string

	err := r.db.QueryRowContext(ctx, query).Scan(
		&cfg.Enabled, &cfg.IntervalMinutes, &nextRun, &lastRun, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Schedule")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get schedule", err)
	}

	cfg.NextRunAt = parseNullTime(nextRun)
	cfg.LastRunAt = parseNullTime(lastRun)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &cfg, nil
}

// Save upserts the schedule configuration row
func (r *ScheduleRepository) Save(ctx context.Context, cfg *scan.ScheduleConfig) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("Failed to start transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_config WHERE id = 1`); err != nil {
		return errors.DatabaseError("Failed to clear schedule", err)
	}

	query := r.db.Rebind(`
		INSERT INTO schedule_config (id, enabled, interval_minutes, next_run_at, last_run_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
	`)
	_, err = tx.ExecContext(ctx, query,
		cfg.Enabled, cfg.IntervalMinutes,
		nullTime(cfg.NextRunAt), nullTime(cfg.LastRunAt),
		cfg.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return errors.DatabaseError("Failed to save schedule", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("Failed to commit schedule", err)
	}
	return nil
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &t
}
