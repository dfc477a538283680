package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ScanService handles scan-related API calls
type ScanService struct {
	client *Client
}

// Trigger starts a manual scan. It returns a conflict error when a
// scan is already running.
func (s *ScanService) Trigger(ctx context.Context) (*ScanRun, error) {
	var run ScanRun
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/scans", nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// List retrieves past scan runs, newest first
func (s *ScanService) List(ctx context.Context, opts *ListOptions) ([]ScanRun, error) {
	query := url.Values{}
	if opts != nil {
		if opts.Page > 0 {
			query.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PageSize > 0 {
			query.Set("page_size", strconv.Itoa(opts.PageSize))
		}
	}

	path := "/api/v1/scans"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var page struct {
		Data []ScanRun `json:"data"`
	}
	if err := s.client.doRequest(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// Get retrieves a scan run with its per-rule outcomes
func (s *ScanService) Get(ctx context.Context, id string) (*ScanRun, error) {
	var run ScanRun
	if err := s.client.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/v1/scans/%s", id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Status retrieves the scheduler state, the running scan (or the most
// recent run if none is in flight), and the schedule
func (s *ScanService) Status(ctx context.Context) (*ScanStatus, error) {
	var status ScanStatus
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/scans/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
