package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// RuleService handles rule-related API calls
type RuleService struct {
	client *Client
}

// CreateRuleRequest represents a request to create a rule
type CreateRuleRequest struct {
	Code               string `json:"code"`
	Name               string `json:"name,omitempty"`
	Description        string `json:"description,omitempty"`
	EvaluationCriteria string `json:"evaluation_criteria"`
	TargetTable        string `json:"target_table"`
	Severity           string `json:"severity"`
}

// UpdateRuleRequest represents a partial rule update
type UpdateRuleRequest struct {
	Name               *string `json:"name,omitempty"`
	Description        *string `json:"description,omitempty"`
	EvaluationCriteria *string `json:"evaluation_criteria,omitempty"`
	TargetTable        *string `json:"target_table,omitempty"`
	Severity           *string `json:"severity,omitempty"`
	IsActive           *bool   `json:"is_active,omitempty"`
}

// RuleListOptions contains options for listing rules
type RuleListOptions struct {
	IsActive *bool
	Severity string
}

// List retrieves rules matching the options
func (s *RuleService) List(ctx context.Context, opts *RuleListOptions) ([]Rule, error) {
	query := url.Values{}
	if opts != nil {
		if opts.IsActive != nil {
			query.Set("is_active", fmt.Sprintf("%t", *opts.IsActive))
		}
		if opts.Severity != "" {
			query.Set("severity", opts.Severity)
		}
	}

	path := "/api/v1/rules"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var rules []Rule
	if err := s.client.doRequest(ctx, http.MethodGet, path, nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Get retrieves a rule by ID
func (s *RuleService) Get(ctx context.Context, id string) (*Rule, error) {
	var rule Rule
	if err := s.client.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/v1/rules/%s", id), nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Create creates a new rule
func (s *RuleService) Create(ctx context.Context, req *CreateRuleRequest) (*Rule, error) {
	var rule Rule
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/rules", req, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Update applies a partial update to a rule
func (s *RuleService) Update(ctx context.Context, id string, req *UpdateRuleRequest) (*Rule, error) {
	var rule Rule
	if err := s.client.doRequest(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/rules/%s", id), req, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Delete removes a rule
func (s *RuleService) Delete(ctx context.Context, id string) error {
	return s.client.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/rules/%s", id), nil, nil)
}
