package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
)

type RuleRepository struct {
	db *DB
}

func NewRuleRepository(db *DB) rule.Repository {
	return &RuleRepository{db: db}
}

const ruleColumns = `id, code, name, description, evaluation_criteria, target_table,
	severity, is_active, generated_sql, schema_hash, created_at, updated_at`

func (r *RuleRepository) Create(ctx context.Context, rl *rule.Rule) error {
	now := time.Now().UTC()
	rl.CreatedAt = now
	rl.UpdatedAt = now

	query := r.db.Rebind(`
		INSERT INTO rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		rl.ID.String(), rl.Code, rl.Name, rl.Description, rl.EvaluationCriteria,
		rl.TargetTable, string(rl.Severity), rl.IsActive, rl.GeneratedSQL, rl.SchemaHash,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("A rule with this code already exists")
		}
		return errors.DatabaseError("Failed to create rule", err)
	}
	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*rule.Rule, error) {
	query := r.db.Rebind(`SELECT ` + ruleColumns + ` FROM rules WHERE id = ?`)
	return r.scanOne(r.db.QueryRowContext(ctx, query, id.String()))
}

func (r *RuleRepository) GetByCode(ctx context.Context, code string) (*rule.Rule, error) {
	query := r.db.Rebind(`SELECT ` + ruleColumns + ` FROM rules WHERE code = ?`)
	return r.scanOne(r.db.QueryRowContext(ctx, query, code))
}

func (r *RuleRepository) List(ctx context.Context, filter rule.Filter) ([]*rule.Rule, error) {
	where := []string{"1 = 1"}
	args := []interface{}{}

	if filter.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *filter.IsActive)
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(filter.Severity))
	}

	query := r.db.Rebind(`SELECT ` + ruleColumns + ` FROM rules WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY code`)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list rules", err)
	}
	defer rows.Close()

	var out []*rule.Rule
	for rows.Next() {
		rl, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rl)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to read rules", err)
	}
	return out, nil
}

func (r *RuleRepository) ListActive(ctx context.Context) ([]*rule.Rule, error) {
	active := true
	return r.List(ctx, rule.Filter{IsActive: &active})
}

func (r *RuleRepository) Update(ctx context.Context, rl *rule.Rule) error {
	rl.UpdatedAt = time.Now().UTC()

	query := r.db.Rebind(`
		UPDATE rules SET name = ?, description = ?, evaluation_criteria = ?,
			target_table = ?, severity = ?, is_active = ?,
			generated_sql = ?, schema_hash = ?, updated_at = ?
		WHERE id = ?
	`)

	result, err := r.db.ExecContext(ctx, query,
		rl.Name, rl.Description, rl.EvaluationCriteria, rl.TargetTable,
		string(rl.Severity), rl.IsActive, rl.GeneratedSQL, rl.SchemaHash,
		rl.UpdatedAt.Format(time.RFC3339), rl.ID.String(),
	)
	if err != nil {
		return errors.DatabaseError("Failed to update rule", err)
	}
	return requireRow(result, "Rule")
}

func (r *RuleRepository) UpdateGeneratedSQL(ctx context.Context, id uuid.UUID, sqlText, schemaHash string) error {
	query := r.db.Rebind(`
		UPDATE rules SET generated_sql = ?, schema_hash = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		sqlText, schemaHash, time.Now().UTC().Format(time.RFC3339), id.String(),
	)
	if err != nil {
		return errors.DatabaseError("Failed to update generated query", err)
	}
	return requireRow(result, "Rule")
}

func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM rules WHERE id = ?"), id.String())
	if err != nil {
		return errors.DatabaseError("Failed to delete rule", err)
	}
	return requireRow(result, "Rule")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *RuleRepository) scanOne(row *sql.Row) (*rule.Rule, error) {
	rl, err := r.scanInto(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Rule")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get rule", err)
	}
	return rl, nil
}

func (r *RuleRepository) scanRow(rows *sql.Rows) (*rule.Rule, error) {
	rl, err := r.scanInto(rows)
	if err != nil {
		return nil, errors.DatabaseError("Failed to scan rule", err)
	}
	return rl, nil
}

func (r *RuleRepository) scanInto(s rowScanner) (*rule.Rule, error) {
	var rl rule.Rule
	var id, severity, createdAt, updatedAt string
	err := s.Scan(
		&id, &rl.Code, &rl.Name, &rl.Description, &rl.EvaluationCriteria,
		&rl.TargetTable, &severity, &rl.IsActive, &rl.GeneratedSQL, &rl.SchemaHash,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	rl.ID, _ = uuid.Parse(id)
	rl.Severity = rule.Severity(severity)
	rl.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rl.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rl, nil
}

func requireRow(result sql.Result, resource string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to get affected rows", err)
	}
	if rows == 0 {
		return errors.NotFound(resource)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
