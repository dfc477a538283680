package rule

import (
	"context"

	"github.com/google/uuid"
)

// CreateInput holds the fields for creating a rule
type CreateInput struct {
	Code               string
	Name               string
	Description        string
	EvaluationCriteria string
	TargetTable        string
	Severity           Severity
}

// UpdateInput holds the optional fields for updating a rule. Nil
// fields are left unchanged.
type UpdateInput struct {
	Name               *string
	Description        *string
	EvaluationCriteria *string
	TargetTable        *string
	Severity           *Severity
	IsActive           *bool
}

// Service defines the interface for rule operations
type Service interface {
	Create(ctx context.Context, input CreateInput) (*Rule, error)
	Get(ctx context.Context, id uuid.UUID) (*Rule, error)
	List(ctx context.Context, filter Filter) ([]*Rule, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Rule, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
