package translator

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/datapolicy/policyscan/internal/config"
	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/domain/schema"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
	"github.com/datapolicy/policyscan/internal/pkg/metrics"
)

const systemPrompt = `You are a SQL generator for a compliance scanning system.
Given a database schema and a compliance rule, produce a single PostgreSQL SELECT
statement that returns the records violating the rule.

Requirements:
- Output exactly one SELECT statement and nothing else. No explanation, no markdown.
- Only reference tables and columns that appear in the provided schema.
- Select the columns needed to identify each violating record, including the
  primary key of the main table.
- Never use INSERT, UPDATE, DELETE, DDL, or any statement other than SELECT.
- If the rule cannot be expressed as a query over this schema, output exactly:
  UNTRANSLATABLE: <short reason>`

// OpenAITranslator implements Translator using the chat completions API
type OpenAITranslator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     *logger.Logger
}

// NewOpenAI creates a translator backed by the OpenAI API
func NewOpenAI(cfg config.TranslatorConfig, log *logger.Logger) *OpenAITranslator {
	return &OpenAITranslator{
		client:  openai.NewClient(cfg.OpenAIAPIKey),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     log,
	}
}

// Translate asks the model for a candidate query. Returned SQL is
// untrusted; the caller validates it before execution.
func (t *OpenAITranslator) Translate(ctx context.Context, r *rule.Rule, snapshot *schema.Snapshot) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf(
		"Database schema:\n\n%s\nCompliance rule %s (%s), target table %s:\n%s\n\nEvaluation criteria:\n%s\n",
		snapshot.PromptContext(), r.Code, r.Severity, r.TargetTable, r.Description, r.EvaluationCriteria,
	)

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       t.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		metrics.RecordTranslation("error")
		return "", errors.TranslationFailed(r.Code, err)
	}
	if len(resp.Choices) == 0 {
		metrics.RecordTranslation("error")
		return "", errors.TranslationFailed(r.Code, fmt.Errorf("empty response from model"))
	}

	out := StripFences(resp.Choices[0].Message.Content)
	if reason, ok := untranslatableReason(out); ok {
		metrics.RecordTranslation("untranslatable")
		return "", &UntranslatableError{Detail: reason}
	}

	metrics.RecordTranslation("success")
	t.log.WithFields(map[string]interface{}{
		"rule_code": r.Code,
		"model":     t.model,
	}).Debug("rule translated")

	return out, nil
}

func untranslatableReason(out string) (string, bool) {
	const marker = "UNTRANSLATABLE:"
	if !strings.HasPrefix(strings.ToUpper(out), marker) {
		return "", false
	}
	reason := strings.TrimSpace(out[len(marker):])
	if reason == "" {
		reason = "no reason given"
	}
	return reason, true
}
