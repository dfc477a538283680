package client

import "time"

// Rule represents a compliance rule
type Rule struct {
	ID                 string    `json:"id"`
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	EvaluationCriteria string    `json:"evaluation_criteria"`
	TargetTable        string    `json:"target_table"`
	Severity           string    `json:"severity"`
	IsActive           bool      `json:"is_active"`
	HasCachedSQL       bool      `json:"has_cached_sql"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Violation represents a detected compliance violation
type Violation struct {
	ID               string         `json:"id"`
	RuleID           string         `json:"rule_id"`
	RecordIdentifier string         `json:"record_identifier"`
	RecordData       map[string]any `json:"record_data,omitempty"`
	Justification    string         `json:"justification"`
	Severity         string         `json:"severity"`
	Status           string         `json:"status"`
	ReviewStatus     string         `json:"review_status"`
	ReviewNote       string         `json:"review_note,omitempty"`
	FirstDetectedAt  time.Time      `json:"first_detected_at"`
	LastSeenAt       time.Time      `json:"last_seen_at"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
}

// ViolationSummary holds aggregate violation counts
type ViolationSummary struct {
	TotalOpen     int            `json:"total_open"`
	TotalResolved int            `json:"total_resolved"`
	BySeverity    map[string]int `json:"by_severity"`
	ByStatus      map[string]int `json:"by_status"`
}

// ScanRun represents a scan run
type ScanRun struct {
	ID              string        `json:"id"`
	Status          string        `json:"status"`
	Trigger         string        `json:"trigger"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	Error           string        `json:"error,omitempty"`
	RulesEvaluated  int           `json:"rules_evaluated"`
	RulesSucceeded  int           `json:"rules_succeeded"`
	NewCount        int           `json:"new_count"`
	PersistingCount int           `json:"persisting_count"`
	ResolvedCount   int           `json:"resolved_count"`
	Outcomes        []RuleOutcome `json:"outcomes,omitempty"`
}

// RuleOutcome represents a per-rule result within a scan run
type RuleOutcome struct {
	RuleID     string `json:"rule_id"`
	RuleCode   string `json:"rule_code"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail,omitempty"`
	RowCount   int    `json:"row_count"`
	DurationMS int64  `json:"duration_ms"`
}

// ScanStatus represents the scheduler state alongside the current or
// latest run and the schedule
type ScanStatus struct {
	State    string    `json:"state"`
	Run      *ScanRun  `json:"run,omitempty"`
	Schedule *Schedule `json:"schedule,omitempty"`
}

// Schedule represents the periodic scan schedule
type Schedule struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"interval_minutes"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
	SchedulerState  string     `json:"scheduler_state,omitempty"`
}

// TargetStatus represents the result of a target connectivity check
type TargetStatus struct {
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Column represents a target table column
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// Table represents a target table
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Schema represents a target schema snapshot
type Schema struct {
	Tables     []Table   `json:"tables"`
	Hash       string    `json:"hash"`
	CapturedAt time.Time `json:"captured_at"`
}

// ListOptions contains common pagination options
type ListOptions struct {
	Page     int
	PageSize int
}
