package scanner

import (
	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/violation"
)

// Match pairs an existing open violation with its current detection
type Match struct {
	Existing  *violation.Violation
	Detection Detection
}

// DiffResult partitions a scan's findings against the previous open
// set. Every detection lands in exactly one of New or Persisting, and
// every considered prior violation in Persisting or Resolved.
type DiffResult struct {
	New        []Detection
	Persisting []Match
	Resolved   []*violation.Violation
}

type identity struct {
	ruleID uuid.UUID
	record string
}

// Diff compares current detections against previously open
// violations. Only rules in healthyRules are considered: a rule whose
// query was rejected, failed, or never ran says nothing about its
// existing violations, so they are neither resolved nor touched.
// Violations reviewed as false positives are inert: detections
// matching one are dropped and the violation is never resolved.
func Diff(previousOpen []*violation.Violation, detections []Detection, healthyRules map[uuid.UUID]bool) DiffResult {
	prior := make(map[identity]*violation.Violation, len(previousOpen))
	for _, v := range previousOpen {
		prior[identity{v.RuleID, v.RecordIdentifier}] = v
	}

	var res DiffResult
	matched := make(map[identity]bool)

	for _, d := range detections {
		if !healthyRules[d.Rule.ID] {
			continue
		}
		key := identity{d.Rule.ID, d.RecordIdentifier}
		existing, ok := prior[key]
		if !ok {
			res.New = append(res.New, d)
			continue
		}
		matched[key] = true
		if existing.ReviewStatus == violation.ReviewFalsePositive {
			continue
		}
		res.Persisting = append(res.Persisting, Match{Existing: existing, Detection: d})
	}

	for _, v := range previousOpen {
		if !healthyRules[v.RuleID] {
			continue
		}
		if v.ReviewStatus == violation.ReviewFalsePositive {
			continue
		}
		if matched[identity{v.RuleID, v.RecordIdentifier}] {
			continue
		}
		res.Resolved = append(res.Resolved, v)
	}

	return res
}
