package rule

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for rule persistence
type Repository interface {
	Create(ctx context.Context, r *Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	GetByCode(ctx context.Context, code string) (*Rule, error)
	List(ctx context.Context, filter Filter) ([]*Rule, error)
	ListActive(ctx context.Context) ([]*Rule, error)
	Update(ctx context.Context, r *Rule) error
	UpdateGeneratedSQL(ctx context.Context, id uuid.UUID, sql, schemaHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
}
