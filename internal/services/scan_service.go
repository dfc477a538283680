package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/scan"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
	"github.com/datapolicy/policyscan/internal/pkg/utils"
	"github.com/datapolicy/policyscan/internal/scanner"
)

// ScanService implements scan.Service on top of the scan engine
type ScanService struct {
	engine *scanner.Engine
	repo   scan.Repository
	log    *logger.Logger
}

// NewScanService creates a new scan service
func NewScanService(engine *scanner.Engine, repo scan.Repository, log *logger.Logger) *ScanService {
	return &ScanService{engine: engine, repo: repo, log: log}
}

// Trigger starts a scan run. The engine returns a conflict when
// another run is already in progress.
func (s *ScanService) Trigger(ctx context.Context, trigger scan.Trigger) (*scan.Run, error) {
	return s.engine.Run(ctx, trigger)
}

// TriggerAsync starts a scan in the background, returning the run in
// its running state. A conflict error is returned when another run is
// already in progress.
func (s *ScanService) TriggerAsync(ctx context.Context, trigger scan.Trigger) (*scan.Run, error) {
	return s.engine.Start(ctx, trigger)
}

// Get returns a scan run with its rule outcomes
func (s *ScanService) Get(ctx context.Context, id uuid.UUID) (*scan.Run, error) {
	return s.repo.GetRun(ctx, id)
}

// List returns past scan runs, newest first
func (s *ScanService) List(ctx context.Context, p utils.PaginationParams) ([]*scan.Run, int, error) {
	return s.repo.ListRuns(ctx, p)
}

// CurrentStatus returns the running scan if one exists, otherwise the
// most recent run.
func (s *ScanService) CurrentStatus(ctx context.Context) (*scan.Run, error) {
	run, err := s.repo.GetRunning(ctx)
	if err == nil {
		return run, nil
	}
	if appErr, ok := err.(*errors.AppError); !ok || appErr.Code != errors.ErrCodeNotFound {
		return nil, err
	}
	return s.repo.LatestRun(ctx)
}
