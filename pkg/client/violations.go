package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ViolationService handles violation-related API calls
type ViolationService struct {
	client *Client
}

// ViolationListOptions contains options for listing violations
type ViolationListOptions struct {
	ListOptions
	RuleID       string
	Status       string
	ReviewStatus string
	Severity     string
}

// ReviewRequest represents a violation review decision
type ReviewRequest struct {
	ReviewStatus string `json:"review_status"`
	Note         string `json:"note,omitempty"`
}

// List retrieves violations matching the options
func (s *ViolationService) List(ctx context.Context, opts *ViolationListOptions) ([]Violation, error) {
	query := url.Values{}
	if opts != nil {
		if opts.Page > 0 {
			query.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PageSize > 0 {
			query.Set("page_size", strconv.Itoa(opts.PageSize))
		}
		if opts.RuleID != "" {
			query.Set("rule_id", opts.RuleID)
		}
		if opts.Status != "" {
			query.Set("status", opts.Status)
		}
		if opts.ReviewStatus != "" {
			query.Set("review_status", opts.ReviewStatus)
		}
		if opts.Severity != "" {
			query.Set("severity", opts.Severity)
		}
	}

	path := "/api/v1/violations"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var page struct {
		Data []Violation `json:"data"`
	}
	if err := s.client.doRequest(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// Get retrieves a violation by ID
func (s *ViolationService) Get(ctx context.Context, id string) (*Violation, error) {
	var v Violation
	if err := s.client.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/v1/violations/%s", id), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Review marks a violation as confirmed or false positive
func (s *ViolationService) Review(ctx context.Context, id string, req *ReviewRequest) (*Violation, error) {
	var v Violation
	if err := s.client.doRequest(ctx, http.MethodPut, fmt.Sprintf("/api/v1/violations/%s/review", id), req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Summary retrieves aggregate violation counts
func (s *ViolationService) Summary(ctx context.Context) (*ViolationSummary, error) {
	var summary ViolationSummary
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/violations/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
