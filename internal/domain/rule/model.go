package rule

import (
	"time"

	"github.com/google/uuid"
)

// Severity levels for compliance rules, ordered from least to most severe
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Valid reports whether the severity is a known level
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the ordering of the severity, higher means more severe
func (s Severity) Rank() int {
	return severityRank[s]
}

// Rule is a compliance rule expressed in natural language. The
// evaluation criteria describes what a violating record looks like;
// the translator turns it into SQL against the target schema.
type Rule struct {
	ID                 uuid.UUID `json:"id"`
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	EvaluationCriteria string    `json:"evaluation_criteria"`
	TargetTable        string    `json:"target_table"`
	Severity           Severity  `json:"severity"`
	IsActive           bool      `json:"is_active"`

	// Cached translation, keyed by the schema snapshot it was
	// generated against. Invalidated when the schema hash changes
	// or the criteria is edited.
	GeneratedSQL string `json:"generated_sql,omitempty"`
	SchemaHash   string `json:"schema_hash,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CachedSQL returns the cached generated SQL if it is still valid for
// the given schema hash.
func (r *Rule) CachedSQL(schemaHash string) (string, bool) {
	if r.GeneratedSQL == "" || r.SchemaHash == "" || r.SchemaHash != schemaHash {
		return "", false
	}
	return r.GeneratedSQL, true
}

// Filter describes optional filters for listing rules
type Filter struct {
	IsActive *bool
	Severity Severity
}
