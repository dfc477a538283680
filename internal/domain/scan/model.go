package scan

import (
	"time"

	"github.com/google/uuid"
)

// Status of a scan run
type Status string

const (
	StatusRunning             Status = "running"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
)

// Trigger records what started a scan run
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Outcome classifies how a single rule fared within a run
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeRejected       Outcome = "rejected"
	OutcomeError          Outcome = "error"
	OutcomeUntranslatable Outcome = "untranslatable"
	OutcomeSkipped        Outcome = "skipped"
)

// RuleOutcome is the per-rule result of a scan run. A rule that did
// not produce a trustworthy result (rejected, error, untranslatable,
// skipped) leaves its existing violations untouched.
type RuleOutcome struct {
	ID       uuid.UUID     `json:"id"`
	RunID    uuid.UUID     `json:"run_id"`
	RuleID   uuid.UUID     `json:"rule_id"`
	RuleCode string        `json:"rule_code"`
	Outcome  Outcome       `json:"outcome"`
	Detail   string        `json:"detail,omitempty"`
	RowCount int           `json:"row_count"`
	Duration time.Duration `json:"duration"`
}

// Healthy reports whether the outcome carries a trustworthy result
// set that the diff may act on.
func (o Outcome) Healthy() bool {
	return o == OutcomeSuccess
}

// Run is one execution of the full active rule set against the
// target database.
type Run struct {
	ID          uuid.UUID  `json:"id"`
	Status      Status     `json:"status"`
	Trigger     Trigger    `json:"trigger"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	RulesEvaluated  int `json:"rules_evaluated"`
	RulesSucceeded  int `json:"rules_succeeded"`
	NewCount        int `json:"new_count"`
	PersistingCount int `json:"persisting_count"`
	ResolvedCount   int `json:"resolved_count"`

	Outcomes []RuleOutcome `json:"outcomes,omitempty"`
}

// Terminal reports whether the run has finished
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCompletedWithErrors || s == StatusFailed
}

// ScheduleConfig holds the single-row periodic scan configuration.
// The interval is bounded between hourly and daily.
type ScheduleConfig struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"interval_minutes"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Interval returns the configured interval as a duration
func (c *ScheduleConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}
