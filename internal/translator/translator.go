package translator

import (
	"context"
	"strings"

	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/domain/schema"
)

// Translator turns a natural-language rule into a candidate SQL
// query against the given schema. The output is untrusted and must
// pass validation before execution.
type Translator interface {
	Translate(ctx context.Context, r *rule.Rule, snapshot *schema.Snapshot) (string, error)
}

// UntranslatableError means the translator could not produce SQL for
// the rule at all, as opposed to a transport or provider failure.
type UntranslatableError struct {
	Detail string
}

func (e *UntranslatableError) Error() string {
	return "rule cannot be translated: " + e.Detail
}

// StripFences removes a surrounding markdown code fence from model
// output. Models routinely wrap SQL in ```sql blocks despite
// instructions not to.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the language tag on the opening fence
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || strings.EqualFold(first, "sql") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
