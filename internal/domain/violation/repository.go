package violation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/pkg/utils"
)

// Repository defines the interface for violation persistence
type Repository interface {
	Create(ctx context.Context, v *Violation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Violation, error)

	// ListOpen returns all open violations, optionally restricted to
	// a set of rules. False positives are included; callers that diff
	// scan results filter them out.
	ListOpen(ctx context.Context, ruleIDs []uuid.UUID) ([]*Violation, error)

	List(ctx context.Context, filter Filter, p utils.PaginationParams) ([]*Violation, int, error)

	// Touch marks a persisting violation as seen at the given time
	Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error

	// Resolve closes a violation at the given time
	Resolve(ctx context.Context, id uuid.UUID, resolvedAt time.Time) error

	UpdateReview(ctx context.Context, id uuid.UUID, status ReviewStatus, note string) error

	CountBySeverity(ctx context.Context, status Status) (map[rule.Severity]int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
