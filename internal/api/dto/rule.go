package dto

import "time"

// RuleDTO represents a compliance rule in API responses
type RuleDTO struct {
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

// CreateRuleRequest represents a rule creation request
type CreateRuleRequest struct {
	Code               string `json:"code" validate:"required,max=64"`
	Name               string `json:"name,omitempty"`
	Description        string `json:"description,omitempty"`
	EvaluationCriteria string `json:"evaluation_criteria" validate:"required"`
	TargetTable        string `json:"target_table" validate:"required,max=128"`
	Severity           string `json:"severity" validate:"required,oneof=low medium high critical"`
}

// UpdateRuleRequest represents a partial rule update request
type UpdateRuleRequest struct {
	Name               *string `json:"name,omitempty"`
	Description        *string `json:"description,omitempty"`
	EvaluationCriteria *string `json:"evaluation_criteria,omitempty"`
	TargetTable        *string `json:"target_table,omitempty"`
	Severity           *string `json:"severity,omitempty" validate:"omitempty,oneof=low medium high critical"`
	IsActive           *bool   `json:"is_active,omitempty"`
}
