package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/domain/violation"
	"github.com/datapolicy/policyscan/internal/testutil"
)

func seedViolation(t *testing.T, repo *testutil.ViolationRepo, sev rule.Severity, status violation.Status) *violation.Violation {
	t.Helper()
	now := time.Now().UTC()
	v := &violation.Violation{
		ID:               uuid.New(),
		RuleID:           uuid.New(),
		RecordIdentifier: uuid.NewString(),
		Severity:         sev,
		Status:           status,
		ReviewStatus:     violation.ReviewPending,
		FirstDetectedAt:  now,
		LastSeenAt:       now,
	}
	if err := repo.Create(context.Background(), v); err != nil {
		t.Fatalf("seed violation: %v", err)
	}
	return v
}

func TestViolationService_Review(t *testing.T) {
	repo := testutil.NewViolationRepo()
	svc := NewViolationService(repo, testutil.NewTestLogger())
	v := seedViolation(t, repo, rule.SeverityHigh, violation.StatusOpen)

	got, err := svc.Review(context.Background(), v.ID, violation.ReviewFalsePositive, "test data, not production")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got.ReviewStatus != violation.ReviewFalsePositive {
		t.Errorf("review status = %s, want false_positive", got.ReviewStatus)
	}
	if got.ReviewNote != "test data, not production" {
		t.Errorf("review note = %q", got.ReviewNote)
	}
	if got.Status != violation.StatusOpen {
		t.Error("review must not change lifecycle status")
	}
}

func TestViolationService_Review_InvalidStatus(t *testing.T) {
	repo := testutil.NewViolationRepo()
	svc := NewViolationService(repo, testutil.NewTestLogger())
	v := seedViolation(t, repo, rule.SeverityLow, violation.StatusOpen)

	if _, err := svc.Review(context.Background(), v.ID, violation.ReviewStatus("bogus"), ""); err == nil {
		t.Error("expected error for unknown review status")
	}
}

func TestViolationService_Review_NotFound(t *testing.T) {
	svc := NewViolationService(testutil.NewViolationRepo(), testutil.NewTestLogger())
	if _, err := svc.Review(context.Background(), uuid.New(), violation.ReviewConfirmed, ""); err == nil {
		t.Error("expected not found error")
	}
}

func TestViolationService_Summary(t *testing.T) {
	repo := testutil.NewViolationRepo()
	svc := NewViolationService(repo, testutil.NewTestLogger())

	seedViolation(t, repo, rule.SeverityCritical, violation.StatusOpen)
	seedViolation(t, repo, rule.SeverityCritical, violation.StatusOpen)
	seedViolation(t, repo, rule.SeverityLow, violation.StatusOpen)
	seedViolation(t, repo, rule.SeverityHigh, violation.StatusResolved)

	sum, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalOpen != 3 {
		t.Errorf("TotalOpen = %d, want 3", sum.TotalOpen)
	}
	if sum.TotalResolved != 1 {
		t.Errorf("TotalResolved = %d, want 1", sum.TotalResolved)
	}
	if sum.BySeverity[rule.SeverityCritical] != 2 {
		t.Errorf("critical open = %d, want 2", sum.BySeverity[rule.SeverityCritical])
	}
	if sum.BySeverity[rule.SeverityHigh] != 0 {
		t.Errorf("resolved violations must not count in open severity totals")
	}
}
