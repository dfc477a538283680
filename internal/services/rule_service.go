package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
)

// RuleService implements rule.Service
type RuleService struct {
	repo rule.Repository
	log  *logger.Logger
}

// NewRuleService creates a new rule service
func NewRuleService(repo rule.Repository, log *logger.Logger) rule.Service {
	return &RuleService{repo: repo, log: log}
}

// Create creates a new compliance rule. New rules start active with
// no cached query; the first scan translates them.
func (s *RuleService) Create(ctx context.Context, input rule.CreateInput) (*rule.Rule, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, errors.BadRequest("Rule code is required")
	}
	if strings.TrimSpace(input.EvaluationCriteria) == "" {
		return nil, errors.BadRequest("Evaluation criteria is required")
	}
	if strings.TrimSpace(input.TargetTable) == "" {
		return nil, errors.BadRequest("Target table is required")
	}
	if !input.Severity.Valid() {
		return nil, errors.BadRequest("Invalid severity level")
	}

	r := &rule.Rule{
		ID:                 uuid.New(),
		Code:               code,
		Name:               strings.TrimSpace(input.Name),
		Description:        strings.TrimSpace(input.Description),
		EvaluationCriteria: strings.TrimSpace(input.EvaluationCriteria),
		TargetTable:        strings.TrimSpace(input.TargetTable),
		Severity:           input.Severity,
		IsActive:           true,
	}
	if r.Name == "" {
		r.Name = code
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"rule_id":   r.ID.String(),
		"rule_code": r.Code,
		"severity":  string(r.Severity),
	}).Info("compliance rule created")

	return r, nil
}

// Get returns a rule by ID
func (s *RuleService) Get(ctx context.Context, id uuid.UUID) (*rule.Rule, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns rules matching the filter
func (s *RuleService) List(ctx context.Context, filter rule.Filter) ([]*rule.Rule, error) {
	return s.repo.List(ctx, filter)
}

// Update applies a partial update. Changing the evaluation criteria
// or the target table drops the cached query so the next scan
// re-translates against the live schema. Severity edits only affect
// violations detected after the change.
func (s *RuleService) Update(ctx context.Context, id uuid.UUID, input rule.UpdateInput) (*rule.Rule, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	invalidateCache := false
	if input.Name != nil {
		r.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		r.Description = strings.TrimSpace(*input.Description)
	}
	if input.EvaluationCriteria != nil {
		criteria := strings.TrimSpace(*input.EvaluationCriteria)
		if criteria == "" {
			return nil, errors.BadRequest("Evaluation criteria cannot be empty")
		}
		if criteria != r.EvaluationCriteria {
			r.EvaluationCriteria = criteria
			invalidateCache = true
		}
	}
	if input.TargetTable != nil {
		table := strings.TrimSpace(*input.TargetTable)
		if table == "" {
			return nil, errors.BadRequest("Target table cannot be empty")
		}
		if table != r.TargetTable {
			r.TargetTable = table
			invalidateCache = true
		}
	}
	if input.Severity != nil {
		if !input.Severity.Valid() {
			return nil, errors.BadRequest("Invalid severity level")
		}
		r.Severity = *input.Severity
	}
	if input.IsActive != nil {
		r.IsActive = *input.IsActive
	}

	if invalidateCache {
		r.GeneratedSQL = ""
		r.SchemaHash = ""
	}

	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"rule_id":   r.ID.String(),
		"rule_code": r.Code,
	}).Info("compliance rule updated")

	return r, nil
}

// Delete removes a rule
func (s *RuleService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
