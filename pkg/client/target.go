package client

import (
	"context"
	"net/http"
)

// TargetService handles target database API calls
type TargetService struct {
	client *Client
}

// Test checks connectivity to the target database
func (s *TargetService) Test(ctx context.Context) (*TargetStatus, error) {
	var status TargetStatus
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/target/test", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Schema retrieves the current target schema snapshot
func (s *TargetService) Schema(ctx context.Context) (*Schema, error) {
	var schema Schema
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/target/schema", nil, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}
