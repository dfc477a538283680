package scanner

import (
	"testing"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/domain/violation"
)

func openViolation(ruleID uuid.UUID, record string) *violation.Violation {
	return &violation.Violation{
		ID:               uuid.New(),
		RuleID:           ruleID,
		RecordIdentifier: record,
		Status:           violation.StatusOpen,
		ReviewStatus:     violation.ReviewPending,
	}
}

func detection(r *rule.Rule, record string) Detection {
	return Detection{Rule: r, RecordIdentifier: record}
}

func TestDiff_PartitionsDetectionsAndPriors(t *testing.T) {
	r := &rule.Rule{ID: uuid.New(), Code: "FIN-001"}
	healthy := map[uuid.UUID]bool{r.ID: true}

	previous := []*violation.Violation{
		openViolation(r.ID, "id=1"), // persists
		openViolation(r.ID, "id=2"), // resolves
	}
	current := []Detection{
		detection(r, "id=1"), // persisting
		detection(r, "id=3"), // new
	}

	res := Diff(previous, current, healthy)

	if len(res.New) != 1 || res.New[0].RecordIdentifier != "id=3" {
		t.Errorf("New = %v, want one detection id=3", res.New)
	}
	if len(res.Persisting) != 1 || res.Persisting[0].Existing.RecordIdentifier != "id=1" {
		t.Errorf("Persisting = %v, want one match id=1", res.Persisting)
	}
	if len(res.Resolved) != 1 || res.Resolved[0].RecordIdentifier != "id=2" {
		t.Errorf("Resolved = %v, want one violation id=2", res.Resolved)
	}

	// every detection lands in exactly one bucket, every prior in at most one
	if len(res.New)+len(res.Persisting) != len(current) {
		t.Errorf("detections not partitioned: %d new + %d persisting != %d",
			len(res.New), len(res.Persisting), len(current))
	}
	if len(res.Persisting)+len(res.Resolved) != len(previous) {
		t.Errorf("priors not partitioned: %d persisting + %d resolved != %d",
			len(res.Persisting), len(res.Resolved), len(previous))
	}
}

func TestDiff_Idempotent(t *testing.T) {
	r := &rule.Rule{ID: uuid.New(), Code: "FIN-001"}
	healthy := map[uuid.UUID]bool{r.ID: true}

	previous := []*violation.Violation{openViolation(r.ID, "id=1")}
	current := []Detection{detection(r, "id=1"), detection(r, "id=2")}

	first := Diff(previous, current, healthy)
	second := Diff(previous, current, healthy)

	if len(first.New) != len(second.New) ||
		len(first.Persisting) != len(second.Persisting) ||
		len(first.Resolved) != len(second.Resolved) {
		t.Errorf("diff is not stable across identical inputs: %+v vs %+v", first, second)
	}
}

func TestDiff_UnhealthyRuleLeavesViolationsUntouched(t *testing.T) {
	ok := &rule.Rule{ID: uuid.New(), Code: "FIN-001"}
	broken := &rule.Rule{ID: uuid.New(), Code: "FIN-002"}
	healthy := map[uuid.UUID]bool{ok.ID: true}

	previous := []*violation.Violation{
		openViolation(ok.ID, "id=1"),
		openViolation(broken.ID, "id=9"), // rule failed this run
	}
	current := []Detection{} // nothing detected

	res := Diff(previous, current, healthy)

	if len(res.Resolved) != 1 || res.Resolved[0].RuleID != ok.ID {
		t.Fatalf("expected only the healthy rule's violation resolved, got %v", res.Resolved)
	}
	for _, v := range res.Resolved {
		if v.RuleID == broken.ID {
			t.Error("violation of a failed rule must not be resolved")
		}
	}
}

func TestDiff_FalsePositivesAreInert(t *testing.T) {
	r := &rule.Rule{ID: uuid.New(), Code: "FIN-001"}
	healthy := map[uuid.UUID]bool{r.ID: true}

	fp := openViolation(r.ID, "id=1")
	fp.ReviewStatus = violation.ReviewFalsePositive

	t.Run("still detected", func(t *testing.T) {
		res := Diff([]*violation.Violation{fp}, []Detection{detection(r, "id=1")}, healthy)
		if len(res.New) != 0 {
			t.Error("detection matching a false positive must not create a new violation")
		}
		if len(res.Persisting) != 0 {
			t.Error("false positive must not be touched as persisting")
		}
		if len(res.Resolved) != 0 {
			t.Error("false positive must not be resolved")
		}
	})

	t.Run("no longer detected", func(t *testing.T) {
		res := Diff([]*violation.Violation{fp}, nil, healthy)
		if len(res.Resolved) != 0 {
			t.Error("false positive must not be resolved when absent")
		}
	})
}

func TestDiff_ScenarioRepeatedScans(t *testing.T) {
	r := &rule.Rule{ID: uuid.New(), Code: "FIN-002", Severity: rule.SeverityCritical}
	healthy := map[uuid.UUID]bool{r.ID: true}

	// first scan finds five violating records on an empty prior set
	var first []Detection
	for _, id := range []string{"id=1", "id=2", "id=3", "id=4", "id=5"} {
		first = append(first, detection(r, id))
	}
	res := Diff(nil, first, healthy)
	if len(res.New) != 5 || len(res.Persisting) != 0 || len(res.Resolved) != 0 {
		t.Fatalf("first scan: got %d new %d persisting %d resolved, want 5/0/0",
			len(res.New), len(res.Persisting), len(res.Resolved))
	}

	// two records fixed, one new offender before the second scan
	previous := []*violation.Violation{
		openViolation(r.ID, "id=1"),
		openViolation(r.ID, "id=2"),
		openViolation(r.ID, "id=3"),
		openViolation(r.ID, "id=4"),
		openViolation(r.ID, "id=5"),
	}
	second := []Detection{
		detection(r, "id=1"),
		detection(r, "id=2"),
		detection(r, "id=3"),
		detection(r, "id=6"),
	}
	res = Diff(previous, second, healthy)
	if len(res.New) != 1 || len(res.Persisting) != 3 || len(res.Resolved) != 2 {
		t.Fatalf("second scan: got %d new %d persisting %d resolved, want 1/3/2",
			len(res.New), len(res.Persisting), len(res.Resolved))
	}
}
