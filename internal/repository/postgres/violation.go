package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/domain/violation"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/utils"
)

type ViolationRepository struct {
	db *DB
}

func NewViolationRepository(db *DB) violation.Repository {
	return &ViolationRepository{db: db}
}

const violationColumns = `id, rule_id, record_identifier, record_data, justification,
	severity, status, review_status, review_note,
	first_detected_at, last_seen_at, resolved_at, created_at, updated_at`

func (r *ViolationRepository) Create(ctx context.Context, v *violation.Violation) error {
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	recordData, err := json.Marshal(v.RecordData)
	if err != nil {
		return errors.Internal("Failed to encode record data", err)
	}

	query := r.db.Rebind(`
		INSERT INTO violations (` + violationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.db.ExecContext(ctx, query,
		v.ID.String(), v.RuleID.String(), v.RecordIdentifier, string(recordData),
		v.Justification, string(v.Severity), string(v.Status), string(v.ReviewStatus),
		v.ReviewNote,
		v.FirstDetectedAt.Format(time.RFC3339), v.LastSeenAt.Format(time.RFC3339),
		nullTime(v.ResolvedAt),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.DatabaseError("Failed to create violation", err)
	}
	return nil
}

func (r *ViolationRepository) GetByID(ctx context.Context, id uuid.UUID) (*violation.Violation, error) {
	query := r.db.Rebind(`SELECT ` + violationColumns + ` FROM violations WHERE id = ?`)
	v, err := scanViolation(r.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Violation")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get violation", err)
	}
	return v, nil
}

func (r *ViolationRepository) ListOpen(ctx context.Context, ruleIDs []uuid.UUID) ([]*violation.Violation, error) {
	where := []string{"status = ?"}
	args := []interface{}{string(violation.StatusOpen)}

	if len(ruleIDs) > 0 {
		placeholders := make([]string, len(ruleIDs))
		for i, id := range ruleIDs {
			placeholders[i] = "?"
			args = append(args, id.String())
		}
		where = append(where, "rule_id IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := r.db.Rebind(`SELECT ` + violationColumns + ` FROM violations WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY first_detected_at`)

	return r.queryMany(ctx, query, args...)
}

func (r *ViolationRepository) List(ctx context.Context, filter violation.Filter, p utils.PaginationParams) ([]*violation.Violation, int, error) {
	where := []string{"1 = 1"}
	args := []interface{}{}

	if filter.RuleID != nil {
		where = append(where, "rule_id = ?")
		args = append(args, filter.RuleID.String())
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ReviewStatus != "" {
		where = append(where, "review_status = ?")
		args = append(args, string(filter.ReviewStatus))
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM violations WHERE ` + whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.DatabaseError("Failed to count violations", err)
	}

	query := r.db.Rebind(`SELECT ` + violationColumns + ` FROM violations WHERE ` +
		whereClause + ` ORDER BY last_seen_at DESC, id LIMIT ? OFFSET ?`)
	args = append(args, p.PageSize, p.Offset)

	out, err := r.queryMany(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *ViolationRepository) Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	query := r.db.Rebind(`
		UPDATE violations SET last_seen_at = ?, updated_at = ? WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		seenAt.Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), id.String(),
	)
	if err != nil {
		return errors.DatabaseError("Failed to update violation", err)
	}
	return requireRow(result, "Violation")
}

func (r *ViolationRepository) Resolve(ctx context.Context, id uuid.UUID, resolvedAt time.Time) error {
	query := r.db.Rebind(`
		UPDATE violations SET status = ?, resolved_at = ?, updated_at = ? WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		string(violation.StatusResolved), resolvedAt.Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339), id.String(),
	)
	if err != nil {
		return errors.DatabaseError("Failed to resolve violation", err)
	}
	return requireRow(result, "Violation")
}

func (r *ViolationRepository) UpdateReview(ctx context.Context, id uuid.UUID, status violation.ReviewStatus, note string) error {
	query := r.db.Rebind(`
		UPDATE violations SET review_status = ?, review_note = ?, updated_at = ? WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		string(status), note, time.Now().UTC().Format(time.RFC3339), id.String(),
	)
	if err != nil {
		return errors.DatabaseError("Failed to update violation review", err)
	}
	return requireRow(result, "Violation")
}

func (r *ViolationRepository) CountBySeverity(ctx context.Context, status violation.Status) (map[rule.Severity]int, error) {
	query := r.db.Rebind(`
		SELECT severity, COUNT(*) FROM violations WHERE status = ? GROUP BY severity
	`)
	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, errors.DatabaseError("Failed to count violations", err)
	}
	defer rows.Close()

	out := map[rule.Severity]int{}
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, errors.DatabaseError("Failed to scan violation counts", err)
		}
		out[rule.Severity(severity)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to read violation counts", err)
	}
	return out, nil
}

func (r *ViolationRepository) CountByStatus(ctx context.Context) (map[violation.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM violations GROUP BY status`)
	if err != nil {
		return nil, errors.DatabaseError("Failed to count violations", err)
	}
	defer rows.Close()

	out := map[violation.Status]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.DatabaseError("Failed to scan violation counts", err)
		}
		out[violation.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to read violation counts", err)
	}
	return out, nil
}

func (r *ViolationRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*violation.Violation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list violations", err)
	}
	defer rows.Close()

	var out []*violation.Violation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan violation", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to read violations", err)
	}
	return out, nil
}

func scanViolation(s rowScanner) (*violation.Violation, error) {
	var v violation.Violation
	var id, ruleID, recordData, severity, status, reviewStatus string
	var firstDetected, lastSeen, createdAt, updatedAt string
	var resolvedAt sql.NullString

	err := s.Scan(
		&id, &ruleID, &v.RecordIdentifier, &recordData, &v.Justification,
		&severity, &status, &reviewStatus, &v.ReviewNote,
		&firstDetected, &lastSeen, &resolvedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.ID, _ = uuid.Parse(id)
	v.RuleID, _ = uuid.Parse(ruleID)
	v.Severity = rule.Severity(severity)
	v.Status = violation.Status(status)
	v.ReviewStatus = violation.ReviewStatus(reviewStatus)
	if recordData != "" {
		_ = json.Unmarshal([]byte(recordData), &v.RecordData)
	}
	v.FirstDetectedAt, _ = time.Parse(time.RFC3339, firstDetected)
	v.LastSeenAt, _ = time.Parse(time.RFC3339, lastSeen)
	if resolvedAt.Valid && resolvedAt.String != "" {
		t, err := time.Parse(time.RFC3339, resolvedAt.String)
		if err == nil {
			v.ResolvedAt = &t
		}
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	v.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &v, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
