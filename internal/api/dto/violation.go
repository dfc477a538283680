package dto

import "time"

// ViolationDTO represents a violation in API responses
type ViolationDTO struct {
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

// ReviewRequest represents a violation review request
type ReviewRequest struct {
	ReviewStatus string `json:"review_status" validate:"required,oneof=pending confirmed false_positive"`
	Note         string `json:"note,omitempty" validate:"max=1024"`
}

// ViolationSummaryDTO represents aggregate violation counts
type ViolationSummaryDTO struct {
	TotalOpen     int            `json:"total_open"`
	TotalResolved int            `json:"total_resolved"`
	BySeverity    map[string]int `json:"by_severity"`
	ByStatus      map[string]int `json:"by_status"`
}
