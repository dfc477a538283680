package violation

import (
	"time"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/rule"
)

// Status is the lifecycle state of a violation. A violation is open
// while the offending record keeps showing up in scans and resolved
// once a healthy scan of its rule no longer detects it.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// ReviewStatus is the human triage state, orthogonal to lifecycle.
// A false positive is excluded from future diffs so the scanner
// stops re-opening it.
type ReviewStatus string

const (
	ReviewPending       ReviewStatus = "pending"
	ReviewConfirmed     ReviewStatus = "confirmed"
	ReviewFalsePositive ReviewStatus = "false_positive"
)

// Valid reports whether the review status is a known value
func (r ReviewStatus) Valid() bool {
	switch r {
	case ReviewPending, ReviewConfirmed, ReviewFalsePositive:
		return true
	}
	return false
}

// Violation is a single record found to violate a rule. Identity is
// the pair (RuleID, RecordIdentifier): the same offending record
// detected across consecutive scans is one violation, not many.
type Violation struct {
	ID               uuid.UUID      `json:"id"`
	RuleID           uuid.UUID      `json:"rule_id"`
	RecordIdentifier string         `json:"record_identifier"`
	RecordData       map[string]any `json:"record_data"`
	Justification    string         `json:"justification"`

	// Severity is copied from the rule at first detection and never
	// updated, so later rule edits do not rewrite history.
	Severity rule.Severity `json:"severity"`

	Status       Status       `json:"status"`
	ReviewStatus ReviewStatus `json:"review_status"`
	ReviewNote   string       `json:"review_note,omitempty"`

	FirstDetectedAt time.Time  `json:"first_detected_at"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter describes optional filters for listing violations
type Filter struct {
	RuleID       *uuid.UUID
	Status       Status
	ReviewStatus ReviewStatus
	Severity     rule.Severity
}

// Summary aggregates open violation counts
type Summary struct {
	TotalOpen     int                   `json:"total_open"`
	TotalResolved int                   `json:"total_resolved"`
	BySeverity    map[rule.Severity]int `json:"by_severity"`
	ByStatus      map[Status]int        `json:"by_status"`
}
