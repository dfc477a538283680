package client

import (
	"context"
	"net/http"
)

// ScheduleService handles schedule-related API calls
type ScheduleService struct {
	client *Client
}

// UpdateScheduleRequest represents a schedule update
type UpdateScheduleRequest struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"`
}

// Get retrieves the current scan schedule
func (s *ScheduleService) Get(ctx context.Context) (*Schedule, error) {
	var schedule Schedule
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/schedule", nil, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// Update reconfigures the scan schedule. The interval must be between
// 60 and 1440 minutes.
func (s *ScheduleService) Update(ctx context.Context, req *UpdateScheduleRequest) (*Schedule, error) {
	var schedule Schedule
	if err := s.client.doRequest(ctx, http.MethodPut, "/api/v1/schedule", req, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}
