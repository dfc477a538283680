package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/scan"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/utils"
)

type ScanRepository struct {
	db *DB
}

func NewScanRepository(db *DB) scan.Repository {
	return &ScanRepository{db: db}
}

const runColumns = `id, status, trigger_type, started_at, completed_at, error,
	rules_evaluated, rules_succeeded, new_count, persisting_count, resolved_count`

// CreateRun inserts a run in running state. A partial unique index on
// status makes the insert itself the arbiter: of two concurrent
// triggers, one loses with a unique violation regardless of the
// isolation level.
func (r *ScanRepository) CreateRun(ctx context.Context, run *scan.Run) error {
	query := r.db.Rebind(`
		INSERT INTO scan_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		run.ID.String(), string(run.Status), string(run.Trigger),
		run.StartedAt.Format(time.RFC3339), nullTime(run.CompletedAt), run.Error,
		run.RulesEvaluated, run.RulesSucceeded,
		run.NewCount, run.PersistingCount, run.ResolvedCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ScanInProgress()
		}
		return errors.DatabaseError("Failed to create scan run", err)
	}
	return nil
}

func (r *ScanRepository) GetRun(ctx context.Context, id uuid.UUID) (*scan.Run, error) {
	query := r.db.Rebind(`SELECT ` + runColumns + ` FROM scan_runs WHERE id = ?`)
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Scan run")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get scan run", err)
	}

	outcomes, err := r.ListOutcomes(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Outcomes = outcomes
	return run, nil
}

func (r *ScanRepository) GetRunning(ctx context.Context) (*scan.Run, error) {
	query := r.db.Rebind(`SELECT ` + runColumns + ` FROM scan_runs WHERE status = ? LIMIT 1`)
	run, err := scanRun(r.db.QueryRowContext(ctx, query, string(scan.StatusRunning)))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Running scan")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get running scan", err)
	}
	return run, nil
}

func (r *ScanRepository) LatestRun(ctx context.Context) (*scan.Run, error) {
	query := `SELECT ` + runColumns + ` FROM scan_runs ORDER BY started_at DESC LIMIT 1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Scan run")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get latest scan run", err)
	}
	return run, nil
}

func (r *ScanRepository) ListRuns(ctx context.Context, p utils.PaginationParams) ([]*scan.Run, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_runs`).Scan(&total); err != nil {
		return nil, 0, errors.DatabaseError("Failed to count scan runs", err)
	}

	query := r.db.Rebind(`SELECT ` + runColumns + ` FROM scan_runs
		ORDER BY started_at DESC LIMIT ? OFFSET ?`)
	rows, err := r.db.QueryContext(ctx, query, p.PageSize, p.Offset)
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to list scan runs", err)
	}
	defer rows.Close()

	var out []*scan.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, errors.DatabaseError("Failed to scan run row", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.DatabaseError("Failed to read scan runs", err)
	}
	return out, total, nil
}

func (r *ScanRepository) FinishRun(ctx context.Context, run *scan.Run) error {
	query := r.db.Rebind(`
		UPDATE scan_runs SET status = ?, completed_at = ?, error = ?,
			rules_evaluated = ?, rules_succeeded = ?,
			new_count = ?, persisting_count = ?, resolved_count = ?
		WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		string(run.Status), nullTime(run.CompletedAt), run.Error,
		run.RulesEvaluated, run.RulesSucceeded,
		run.NewCount, run.PersistingCount, run.ResolvedCount,
		run.ID.String(),
	)
	if err != nil {
		return errors.DatabaseError("Failed to finish scan run", err)
	}
	return requireRow(result, "Scan run")
}

func (r *ScanRepository) AddOutcome(ctx context.Context, o *scan.RuleOutcome) error {
	query := r.db.Rebind(`
		INSERT INTO rule_outcomes (id, run_id, rule_id, rule_code, outcome, detail, row_count, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		o.ID.String(), o.RunID.String(), o.RuleID.String(), o.RuleCode,
		string(o.Outcome), o.Detail, o.RowCount, o.Duration.Milliseconds(),
	)
	if err != nil {
		return errors.DatabaseError("Failed to record rule outcome", err)
	}
	return nil
}

func (r *ScanRepository) ListOutcomes(ctx context.Context, runID uuid.UUID) ([]scan.RuleOutcome, error) {
	query := r.db.Rebind(`
		SELECT id, run_id, rule_id, rule_code, outcome, detail, row_count, duration_ms
		FROM rule_outcomes WHERE run_id = ? ORDER BY rule_code
	`)
	rows, err := r.db.QueryContext(ctx, query, runID.String())
	if err != nil {
		return nil, errors.DatabaseError("Failed to list rule outcomes", err)
	}
	defer rows.Close()

	var out []scan.RuleOutcome
	for rows.Next() {
		var o scan.RuleOutcome
		var id, rid, ruleID, outcome string
		var durationMs int64
		if err := rows.Scan(&id, &rid, &ruleID, &o.RuleCode, &outcome, &o.Detail, &o.RowCount, &durationMs); err != nil {
			return nil, errors.DatabaseError("Failed to scan rule outcome", err)
		}
		o.ID, _ = uuid.Parse(id)
		o.RunID, _ = uuid.Parse(rid)
		o.RuleID, _ = uuid.Parse(ruleID)
		o.Outcome = scan.Outcome(outcome)
		o.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to read rule outcomes", err)
	}
	return out, nil
}

func scanRun(s rowScanner) (*scan.Run, error) {
	var run scan.Run
	var id, status, trigger, startedAt string
	var completedAt sql.NullString

	err := s.Scan(
		&id, &status, &trigger, &startedAt, &completedAt, &run.Error,
		&run.RulesEvaluated, &run.RulesSucceeded,
		&run.NewCount, &run.PersistingCount, &run.ResolvedCount,
	)
	if err != nil {
		return nil, err
	}

	run.ID, _ = uuid.Parse(id)
	run.Status = scan.Status(status)
	run.Trigger = scan.Trigger(trigger)
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if completedAt.Valid && completedAt.String != "" {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err == nil {
			run.CompletedAt = &t
		}
	}
	return &run, nil
}
