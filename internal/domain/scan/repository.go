package scan

import (
	"context"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/pkg/utils"
)

// Repository defines the interface for scan run persistence
type Repository interface {
	// CreateRun inserts a new run in running state. Implementations
	// must fail with a conflict when another run is still running so
	// at most one run exists at a time.
	CreateRun(ctx context.Context, r *Run) error

	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	GetRunning(ctx context.Context) (*Run, error)
	LatestRun(ctx context.Context) (*Run, error)
	ListRuns(ctx context.Context, p utils.PaginationParams) ([]*Run, int, error)
	FinishRun(ctx context.Context, r *Run) error

	AddOutcome(ctx context.Context, o *RuleOutcome) error
	ListOutcomes(ctx context.Context, runID uuid.UUID) ([]RuleOutcome, error)
}

// ScheduleRepository persists the single schedule configuration row
type ScheduleRepository interface {
	Get(ctx context.Context) (*ScheduleConfig, error)
	Save(ctx context.Context, c *ScheduleConfig) error
}
