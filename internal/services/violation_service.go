package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/violation"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
	"github.com/datapolicy/policyscan/internal/pkg/utils"
)

// ViolationService implements violation.Service
type ViolationService struct {
	repo violation.Repository
	log  *logger.Logger
}

// NewViolationService creates a new violation service
func NewViolationService(repo violation.Repository, log *logger.Logger) violation.Service {
	return &ViolationService{repo: repo, log: log}
}

// Get returns a violation by ID
func (s *ViolationService) Get(ctx context.Context, id uuid.UUID) (*violation.Violation, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns violations matching the filter with pagination
func (s *ViolationService) List(ctx context.Context, filter violation.Filter, p utils.PaginationParams) ([]*violation.Violation, int, error) {
	return s.repo.List(ctx, filter, p)
}

// Review records a triage decision. Marking a violation as a false
// positive takes it out of future scan diffs entirely.
func (s *ViolationService) Review(ctx context.Context, id uuid.UUID, status violation.ReviewStatus, note string) (*violation.Violation, error) {
	if !status.Valid() {
		return nil, errors.BadRequest("Invalid review status")
	}

	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateReview(ctx, id, status, note); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"violation_id":  id.String(),
		"review_status": string(status),
	}).Info("violation reviewed")

	return s.repo.GetByID(ctx, id)
}

// Summary aggregates violation counts by severity and status
func (s *ViolationService) Summary(ctx context.Context) (*violation.Summary, error) {
	bySeverity, err := s.repo.CountBySeverity(ctx, violation.StatusOpen)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	return &violation.Summary{
		TotalOpen:     byStatus[violation.StatusOpen],
		TotalResolved: byStatus[violation.StatusResolved],
		BySeverity:    bySeverity,
		ByStatus:      byStatus,
	}, nil
}
