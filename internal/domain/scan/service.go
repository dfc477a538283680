package scan

import (
	"context"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/pkg/utils"
)

// Service defines the interface for scan operations
type Service interface {
	// Trigger starts a scan run. It returns a conflict error when a
	// run is already in progress.
	Trigger(ctx context.Context, trigger Trigger) (*Run, error)

	// TriggerAsync starts a scan and returns as soon as the run row
	// exists. The scan completes in the background.
	TriggerAsync(ctx context.Context, trigger Trigger) (*Run, error)

	Get(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, p utils.PaginationParams) ([]*Run, int, error)

	// CurrentStatus returns the running scan if one exists, otherwise
	// the most recently finished run.
	CurrentStatus(ctx context.Context) (*Run, error)
}

// Scheduler manages the periodic scan schedule
type Scheduler interface {
	GetSchedule(ctx context.Context) (*ScheduleConfig, error)
	UpdateSchedule(ctx context.Context, enabled bool, intervalMinutes int) (*ScheduleConfig, error)
}
