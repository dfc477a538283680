package scanner

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/config"
	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/domain/scan"
	"github.com/datapolicy/policyscan/internal/domain/schema"
	"github.com/datapolicy/policyscan/internal/domain/violation"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
	"github.com/datapolicy/policyscan/internal/pkg/metrics"
	"github.com/datapolicy/policyscan/internal/sqlcheck"
	"github.com/datapolicy/policyscan/internal/targetdb"
	"github.com/datapolicy/policyscan/internal/translator"
)

// Engine runs a full scan: it captures the target schema, translates
// and validates every active rule, executes the accepted queries, and
// reconciles the results against the open violation set.
type Engine struct {
	rules      rule.Repository
	violations violation.Repository
	runs       scan.Repository
	target     targetdb.Executor
	translate  translator.Translator
	cfg        config.ScanConfig
	log        *logger.Logger
}

// NewEngine creates a scan engine
func NewEngine(
	rules rule.Repository,
	violations violation.Repository,
	runs scan.Repository,
	target targetdb.Executor,
	tr translator.Translator,
	cfg config.ScanConfig,
	log *logger.Logger,
) *Engine {
	return &Engine{
		rules:      rules,
		violations: violations,
		runs:       runs,
		target:     target,
		translate:  tr,
		cfg:        cfg,
		log:        log,
	}
}

type ruleResult struct {
	outcome    scan.RuleOutcome
	detections []Detection
}

// Run executes one scan and blocks until it finishes. Creating the
// run row enforces that at most one scan runs at a time; a conflict
// error is returned untouched so callers can surface it as such.
func (e *Engine) Run(ctx context.Context, trigger scan.Trigger) (*scan.Run, error) {
	run, err := e.begin(ctx, trigger)
	if err != nil {
		return nil, err
	}
	e.complete(ctx, run)
	return run, nil
}

// Start creates the run row, then completes the scan in the
// background. The returned run reflects the running state.
func (e *Engine) Start(ctx context.Context, trigger scan.Trigger) (*scan.Run, error) {
	run, err := e.begin(ctx, trigger)
	if err != nil {
		return nil, err
	}
	accepted := *run
	go e.complete(context.WithoutCancel(ctx), run)
	return &accepted, nil
}

func (e *Engine) begin(ctx context.Context, trigger scan.Trigger) (*scan.Run, error) {
	run := &scan.Run{
		ID:        uuid.New(),
		Status:    scan.StatusRunning,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	if err := e.runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (e *Engine) complete(ctx context.Context, run *scan.Run) {
	started := time.Now()
	e.log.WithFields(map[string]interface{}{
		"run_id":  run.ID.String(),
		"trigger": string(run.Trigger),
	}).Info("scan started")

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.RunTimeout)
	defer cancel()

	// bookkeeping must outlive the run deadline: skipped outcomes and
	// the diff for rules that did execute are persisted even when the
	// timeout fires mid-run
	persistCtx := context.WithoutCancel(ctx)

	if err := e.execute(runCtx, persistCtx, run); err != nil {
		run.Status = scan.StatusFailed
		run.Error = err.Error()
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	if err := e.runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		e.log.ErrorWithErr(err, "failed to persist scan run result")
	}

	metrics.RecordScanRun(string(run.Status), time.Since(started))
	e.log.WithFields(map[string]interface{}{
		"run_id":     run.ID.String(),
		"status":     string(run.Status),
		"new":        run.NewCount,
		"persisting": run.PersistingCount,
		"resolved":   run.ResolvedCount,
	}).Info("scan finished")
}

// execute evaluates the rules under ctx, which carries the run
// deadline, and does all persistence on persistCtx, which does not.
func (e *Engine) execute(ctx, persistCtx context.Context, run *scan.Run) error {
	if err := e.target.Ping(ctx); err != nil {
		return err
	}

	snapshot, err := e.target.Snapshot(ctx)
	if err != nil {
		return err
	}
	schemaHash := snapshot.Hash()

	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return err
	}

	validator := sqlcheck.New(snapshot, sqlcheck.Limits{RowLimit: e.cfg.RowLimit})

	results := e.runRules(ctx, run, rules, snapshot, schemaHash, validator)

	healthy := make(map[uuid.UUID]bool, len(rules))
	var detections []Detection
	for _, res := range results {
		run.Outcomes = append(run.Outcomes, res.outcome)
		metrics.RecordRuleOutcome(string(res.outcome.Outcome))
		if err := e.runs.AddOutcome(persistCtx, &res.outcome); err != nil {
			e.log.ErrorWithErr(err, "failed to persist rule outcome")
		}
		if res.outcome.Outcome.Healthy() {
			healthy[res.outcome.RuleID] = true
			run.RulesSucceeded++
			detections = append(detections, res.detections...)
		}
	}
	run.RulesEvaluated = len(rules)

	previousOpen, err := e.violations.ListOpen(persistCtx, nil)
	if err != nil {
		return err
	}

	diff := Diff(previousOpen, detections, healthy)
	if err := e.apply(persistCtx, run, diff); err != nil {
		return err
	}

	run.NewCount = len(diff.New)
	run.PersistingCount = len(diff.Persisting)
	run.ResolvedCount = len(diff.Resolved)

	if run.RulesSucceeded < len(rules) {
		run.Status = scan.StatusCompletedWithErrors
	} else {
		run.Status = scan.StatusCompleted
	}
	return nil
}

// runRules evaluates rules on a bounded worker pool. Rules that
// cannot start before the run deadline are recorded as skipped.
func (e *Engine) runRules(
	ctx context.Context,
	run *scan.Run,
	rules []*rule.Rule,
	snapshot *schema.Snapshot,
	schemaHash string,
	validator *sqlcheck.Validator,
) []ruleResult {
	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan *rule.Rule)
	results := make([]ruleResult, 0, len(rules))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				res := e.evalRule(ctx, run, r, snapshot, schemaHash, validator)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}

	for _, r := range rules {
		jobs <- r
	}
	close(jobs)
	wg.Wait()

	return results
}

func (e *Engine) evalRule(
	ctx context.Context,
	run *scan.Run,
	r *rule.Rule,
	snapshot *schema.Snapshot,
	schemaHash string,
	validator *sqlcheck.Validator,
) (res ruleResult) {
	started := time.Now()
	res.outcome = scan.RuleOutcome{
		ID:       uuid.New(),
		RunID:    run.ID,
		RuleID:   r.ID,
		RuleCode: r.Code,
	}
	defer func() {
		res.outcome.Duration = time.Since(started)
	}()

	if ctx.Err() != nil {
		res.outcome.Outcome = scan.OutcomeSkipped
		res.outcome.Detail = "run timeout reached before evaluation"
		return res
	}

	query, cached := r.CachedSQL(schemaHash)
	if !cached {
		var err error
		query, err = e.translateWithRetry(ctx, r, snapshot)
		if err != nil {
			var unErr *translator.UntranslatableError
			if stderrors.As(err, &unErr) {
				res.outcome.Outcome = scan.OutcomeUntranslatable
				res.outcome.Detail = unErr.Detail
			} else if ctx.Err() != nil {
				res.outcome.Outcome = scan.OutcomeSkipped
				res.outcome.Detail = "run timeout reached during translation"
			} else {
				res.outcome.Outcome = scan.OutcomeError
				res.outcome.Detail = err.Error()
			}
			return res
		}
	}

	checked, err := validator.Validate(query)
	if err != nil {
		var rejErr *sqlcheck.RejectError
		if stderrors.As(err, &rejErr) {
			res.outcome.Outcome = scan.OutcomeRejected
			res.outcome.Detail = rejErr.Reason
		} else {
			res.outcome.Outcome = scan.OutcomeError
			res.outcome.Detail = err.Error()
		}
		// a cached query that no longer validates is stale
		if cached {
			_ = e.rules.UpdateGeneratedSQL(ctx, r.ID, "", "")
		}
		return res
	}

	if !cached {
		if err := e.rules.UpdateGeneratedSQL(ctx, r.ID, query, schemaHash); err != nil {
			e.log.ErrorWithErr(err, "failed to cache generated query")
		}
	}

	queryStart := time.Now()
	rows, err := e.target.Query(ctx, checked.SQL)
	if err != nil {
		metrics.RecordTargetQuery("error", time.Since(queryStart))
		if ctx.Err() != nil {
			res.outcome.Outcome = scan.OutcomeSkipped
			res.outcome.Detail = "run timeout reached during query"
			return res
		}
		res.outcome.Outcome = scan.OutcomeError
		if targetdb.IsUndefinedRelation(err) {
			res.outcome.Detail = "target schema changed during scan: " + err.Error()
			_ = e.rules.UpdateGeneratedSQL(ctx, r.ID, "", "")
		} else {
			res.outcome.Detail = err.Error()
		}
		return res
	}
	metrics.RecordTargetQuery("success", time.Since(queryStart))

	res.detections = Materialize(r, snapshot, rows)
	res.outcome.Outcome = scan.OutcomeSuccess
	res.outcome.RowCount = len(res.detections)
	return res
}

// translateWithRetry retries transient translator failures with
// doubling delays. Untranslatable rules are never retried.
func (e *Engine) translateWithRetry(ctx context.Context, r *rule.Rule, snapshot *schema.Snapshot) (string, error) {
	attempts := e.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	delay := e.cfg.BaseRetryDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		query, err := e.translate.Translate(ctx, r, snapshot)
		if err == nil {
			return query, nil
		}
		lastErr = err

		var unErr *translator.UntranslatableError
		if stderrors.As(err, &unErr) {
			return "", err
		}
		if attempt == attempts {
			break
		}

		e.log.WithFields(map[string]interface{}{
			"rule_code": r.Code,
			"attempt":   attempt,
		}).Warn("translation failed, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if e.cfg.MaxRetryDelay > 0 && delay > e.cfg.MaxRetryDelay {
			delay = e.cfg.MaxRetryDelay
		}
	}
	return "", lastErr
}

// apply persists the diff: new violations are created with severity
// frozen from the rule, persisting ones get their last seen time
// bumped, and resolved ones are closed.
func (e *Engine) apply(ctx context.Context, run *scan.Run, diff DiffResult) error {
	now := time.Now().UTC()

	for _, d := range diff.New {
		v := &violation.Violation{
			ID:               uuid.New(),
			RuleID:           d.Rule.ID,
			RecordIdentifier: d.RecordIdentifier,
			RecordData:       d.RecordData,
			Justification:    Justify(d.Rule, d.RecordIdentifier),
			Severity:         d.Rule.Severity,
			Status:           violation.StatusOpen,
			ReviewStatus:     violation.ReviewPending,
			FirstDetectedAt:  now,
			LastSeenAt:       now,
		}
		if err := e.violations.Create(ctx, v); err != nil {
			return errors.DatabaseError("failed to create violation", err)
		}
	}

	for _, m := range diff.Persisting {
		if err := e.violations.Touch(ctx, m.Existing.ID, now); err != nil {
			return errors.DatabaseError("failed to update violation", err)
		}
	}

	for _, v := range diff.Resolved {
		if err := e.violations.Resolve(ctx, v.ID, now); err != nil {
			return errors.DatabaseError("failed to resolve violation", err)
		}
	}

	e.refreshOpenGauges(ctx)
	return nil
}

func (e *Engine) refreshOpenGauges(ctx context.Context) {
	counts, err := e.violations.CountBySeverity(ctx, violation.StatusOpen)
	if err != nil {
		return
	}
	for _, sev := range []rule.Severity{rule.SeverityLow, rule.SeverityMedium, rule.SeverityHigh, rule.SeverityCritical} {
		metrics.SetOpenViolations(string(sev), float64(counts[sev]))
	}
}
