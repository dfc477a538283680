package scanner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/domain/schema"
)

// Detection is one violating record found by a rule during a scan.
// Identity is (rule, record identifier), so the same offending record
// found again next run maps onto the same violation.
type Detection struct {
	Rule             *rule.Rule
	RecordIdentifier string
	RecordData       map[string]any
}

// RecordIdentifier derives a stable identifier for a result row.
// Preference order: the target table's primary key columns, then a
// column literally named id, then the first *_id column, then the
// first column by name. The fallbacks keep identity stable for rows
// where the query did not select the primary key.
func RecordIdentifier(row map[string]any, snapshot *schema.Snapshot, targetTable string) string {
	if len(row) == 0 {
		return ""
	}

	if pk := snapshot.PrimaryKey(targetTable); len(pk) > 0 {
		parts := make([]string, 0, len(pk))
		for _, col := range pk {
			v, ok := lookupFold(row, col)
			if !ok {
				parts = nil
				break
			}
			parts = append(parts, fmt.Sprintf("%s=%v", strings.ToLower(col), v))
		}
		if len(parts) > 0 {
			return strings.Join(parts, "&")
		}
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.EqualFold(k, "id") {
			return fmt.Sprintf("id=%v", row[k])
		}
	}
	for _, k := range keys {
		if strings.HasSuffix(strings.ToLower(k), "_id") {
			return fmt.Sprintf("%s=%v", strings.ToLower(k), row[k])
		}
	}
	k := keys[0]
	return fmt.Sprintf("%s=%v", strings.ToLower(k), row[k])
}

func lookupFold(row map[string]any, col string) (any, bool) {
	if v, ok := row[col]; ok {
		return v, true
	}
	for k, v := range row {
		if strings.EqualFold(k, col) {
			return v, true
		}
	}
	return nil, false
}

// Justify renders the human-readable explanation stored on a
// violation at first detection.
func Justify(r *rule.Rule, recordIdentifier string) string {
	return fmt.Sprintf("Record %s in table %s violates rule %s (%s): %s",
		recordIdentifier, r.TargetTable, r.Code, r.Severity, r.EvaluationCriteria)
}

// Materialize converts query result rows into detections,
// de-duplicating rows that map to the same record identifier.
func Materialize(r *rule.Rule, snapshot *schema.Snapshot, rows []map[string]any) []Detection {
	seen := make(map[string]bool, len(rows))
	out := make([]Detection, 0, len(rows))
	for _, row := range rows {
		id := RecordIdentifier(row, snapshot, r.TargetTable)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Detection{
			Rule:             r,
			RecordIdentifier: id,
			RecordData:       row,
		})
	}
	return out
}
