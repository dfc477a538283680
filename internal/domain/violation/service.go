package violation

import (
	"context"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/pkg/utils"
)

// Service defines the interface for violation operations
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*Violation, error)
	List(ctx context.Context, filter Filter, p utils.PaginationParams) ([]*Violation, int, error)
	Review(ctx context.Context, id uuid.UUID, status ReviewStatus, note string) (*Violation, error)
	Summary(ctx context.Context) (*Summary, error)
}
