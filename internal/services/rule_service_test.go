package services

import (
	"context"
	"testing"

	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/testutil"
)

func newRuleService() (rule.Service, *testutil.RuleRepo) {
	repo := testutil.NewRuleRepo()
	return NewRuleService(repo, testutil.NewTestLogger()), repo
}

func TestRuleService_Create(t *testing.T) {
	tests := []struct {
		name    string
		input   rule.CreateInput
		wantErr bool
	}{
		{
			name: "valid rule",
			input: rule.CreateInput{
				Code:               "FIN-002",
				Name:               "Large transactions need approval",
				EvaluationCriteria: "transactions above 10000 must have an approver",
				TargetTable:        "transactions",
				Severity:           rule.SeverityCritical,
			},
			wantErr: false,
		},
		{
			name: "missing code",
			input: rule.CreateInput{
				EvaluationCriteria: "criteria",
				TargetTable:        "transactions",
				Severity:           rule.SeverityLow,
			},
			wantErr: true,
		},
		{
			name: "missing criteria",
			input: rule.CreateInput{
				Code:        "FIN-003",
				TargetTable: "transactions",
				Severity:    rule.SeverityLow,
			},
			wantErr: true,
		},
		{
			name: "missing target table",
			input: rule.CreateInput{
				Code:               "FIN-004",
				EvaluationCriteria: "criteria",
				Severity:           rule.SeverityLow,
			},
			wantErr: true,
		},
		{
			name: "invalid severity",
			input: rule.CreateInput{
				Code:               "FIN-005",
				EvaluationCriteria: "criteria",
				TargetTable:        "transactions",
				Severity:           rule.Severity("urgent"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newRuleService()
			r, err := svc.Create(context.Background(), tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Create() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if !r.IsActive {
					t.Error("new rule should start active")
				}
				if r.GeneratedSQL != "" {
					t.Error("new rule should have no cached query")
				}
			}
		})
	}
}

func TestRuleService_Create_DuplicateCode(t *testing.T) {
	svc, _ := newRuleService()
	input := rule.CreateInput{
		Code:               "FIN-002",
		EvaluationCriteria: "criteria",
		TargetTable:        "transactions",
		Severity:           rule.SeverityHigh,
	}
	if _, err := svc.Create(context.Background(), input); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := svc.Create(context.Background(), input); err == nil {
		t.Error("expected conflict on duplicate code")
	}
}

func TestRuleService_Update_InvalidatesCachedQuery(t *testing.T) {
	svc, repo := newRuleService()
	ctx := context.Background()

	r, err := svc.Create(ctx, rule.CreateInput{
		Code:               "FIN-002",
		EvaluationCriteria: "transactions above 10000 must have an approver",
		TargetTable:        "transactions",
		Severity:           rule.SeverityHigh,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.UpdateGeneratedSQL(ctx, r.ID, "SELECT 1", "hash"); err != nil {
		t.Fatalf("seed cached query: %v", err)
	}

	// a name change keeps the cache
	name := "renamed"
	updated, err := svc.Update(ctx, r.ID, rule.UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.GeneratedSQL == "" {
		t.Error("name change should not drop the cached query")
	}

	// a criteria change drops it
	criteria := "transactions above 5000 must have an approver"
	updated, err = svc.Update(ctx, r.ID, rule.UpdateInput{EvaluationCriteria: &criteria})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.GeneratedSQL != "" || updated.SchemaHash != "" {
		t.Error("criteria change must drop the cached query")
	}
}

func TestRuleService_Update_SeverityDoesNotTouchCache(t *testing.T) {
	svc, repo := newRuleService()
	ctx := context.Background()

	r, _ := svc.Create(ctx, rule.CreateInput{
		Code:               "FIN-002",
		EvaluationCriteria: "criteria",
		TargetTable:        "transactions",
		Severity:           rule.SeverityLow,
	})
	_ = repo.UpdateGeneratedSQL(ctx, r.ID, "SELECT 1", "hash")

	sev := rule.SeverityCritical
	updated, err := svc.Update(ctx, r.ID, rule.UpdateInput{Severity: &sev})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Severity != rule.SeverityCritical {
		t.Errorf("severity = %s, want critical", updated.Severity)
	}
	if updated.GeneratedSQL == "" {
		t.Error("severity change should not drop the cached query")
	}
}
