package dto

import "time"

// ScanRunDTO represents a scan run in API responses
type ScanRunDTO struct {
	ID              string           `json:"id"`
	Status          string           `json:"status"`
	Trigger         string           `json:"trigger"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	Error           string           `json:"error,omitempty"`
	RulesEvaluated  int              `json:"rules_evaluated"`
	RulesSucceeded  int              `json:"rules_succeeded"`
	NewCount        int              `json:"new_count"`
	PersistingCount int              `json:"persisting_count"`
	ResolvedCount   int              `json:"resolved_count"`
	Outcomes        []RuleOutcomeDTO `json:"outcomes,omitempty"`
}

// RuleOutcomeDTO represents a per-rule result within a scan run
type RuleOutcomeDTO struct {
	RuleID     string `json:"rule_id"`
	RuleCode   string `json:"rule_code"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail,omitempty"`
	RowCount   int    `json:"row_count"`
	DurationMS int64  `json:"duration_ms"`
}

// ScanStatusDTO represents the coordinator state, the current or
// latest run, and the schedule
type ScanStatusDTO struct {
	State    string       `json:"state"`
	Run      *ScanRunDTO  `json:"run,omitempty"`
	Schedule *ScheduleDTO `json:"schedule,omitempty"`
}

// ScheduleDTO represents the periodic scan schedule
type ScheduleDTO struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"interval_minutes"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
	SchedulerState  string     `json:"scheduler_state,omitempty"`
}

// UpdateScheduleRequest represents a schedule update request. The
// interval is bounded between hourly and daily.
type UpdateScheduleRequest struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes" validate:"required,min=60,max=1440"`
}
