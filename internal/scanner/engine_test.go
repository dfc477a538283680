package scanner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/config"
	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/domain/scan"
	"github.com/datapolicy/policyscan/internal/domain/schema"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/testutil"
	"github.com/datapolicy/policyscan/internal/translator"
)

func engineSnapshot() *schema.Snapshot {
	return &schema.Snapshot{
		Tables: []schema.Table{
			{
				Name: "transactions",
				Columns: []schema.Column{
					{Name: "id", DataType: "integer", PrimaryKey: true},
					{Name: "amount", DataType: "numeric"},
					{Name: "approved_by", DataType: "integer", Nullable: true},
				},
			},
		},
		CapturedAt: time.Now(),
	}
}

type engineFixture struct {
	engine     *Engine
	rules      *testutil.RuleRepo
	violations *testutil.ViolationRepo
	runs       *testutil.ScanRepo
	target     *testutil.StubTarget
	translate  *testutil.StubTranslator
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		rules:      testutil.NewRuleRepo(),
		violations: testutil.NewViolationRepo(),
		runs:       testutil.NewScanRepo(),
		target: &testutil.StubTarget{
			Schema:  engineSnapshot(),
			Results: map[string][]map[string]any{},
		},
		translate: &testutil.StubTranslator{
			Responses: map[string]string{},
			Errs:      map[string]error{},
		},
	}
	cfg := config.ScanConfig{
		QueryTimeout:   time.Second,
		RunTimeout:     time.Minute,
		RowLimit:       50,
		Workers:        2,
		MaxRetries:     1,
		BaseRetryDelay: time.Millisecond,
	}
	f.engine = NewEngine(f.rules, f.violations, f.runs, f.target, f.translate, cfg, testutil.NewTestLogger())
	return f
}

func (f *engineFixture) addRule(t *testing.T, code string, sev rule.Severity) *rule.Rule {
	t.Helper()
	r := &rule.Rule{
		ID:                 uuid.New(),
		Code:               code,
		Name:               code,
		EvaluationCriteria: "criteria for " + code,
		TargetTable:        "transactions",
		Severity:           sev,
		IsActive:           true,
	}
	if err := f.rules.Create(context.Background(), r); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return r
}

func TestEngineRun_MaterializesNewViolations(t *testing.T) {
	f := newEngineFixture(t)
	f.addRule(t, "FIN-002", rule.SeverityCritical)

	f.translate.Responses["FIN-002"] = "SELECT id, amount FROM transactions WHERE amount > 10000 AND approved_by IS NULL"
	sanitized := "SELECT id, amount FROM transactions WHERE amount > 10000 AND approved_by IS NULL LIMIT 50"
	f.target.Results[sanitized] = []map[string]any{
		{"id": int64(1), "amount": "20000"},
		{"id": int64(2), "amount": "30000"},
		{"id": int64(3), "amount": "15000"},
		{"id": int64(4), "amount": "50000"},
		{"id": int64(5), "amount": "12000"},
	}

	run, err := f.engine.Run(context.Background(), scan.TriggerManual)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if run.Status != scan.StatusCompleted {
		t.Errorf("status = %s, want %s (error: %s)", run.Status, scan.StatusCompleted, run.Error)
	}
	if run.NewCount != 5 {
		t.Errorf("NewCount = %d, want 5", run.NewCount)
	}

	open, err := f.violations.ListOpen(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(open) != 5 {
		t.Fatalf("expected 5 open violations, got %d", len(open))
	}
	for _, v := range open {
		if v.Severity != rule.SeverityCritical {
			t.Errorf("violation severity = %s, want critical", v.Severity)
		}
		if v.Justification == "" {
			t.Error("violation has empty justification")
		}
	}
}

func TestEngineRun_SecondScanDiffs(t *testing.T) {
	f := newEngineFixture(t)
	f.addRule(t, "FIN-002", rule.SeverityCritical)

	f.translate.Responses["FIN-002"] = "SELECT id FROM transactions WHERE approved_by IS NULL"
	sanitized := "SELECT id FROM transactions WHERE approved_by IS NULL LIMIT 50"
	f.target.Results[sanitized] = []map[string]any{{"id": int64(1)}, {"id": int64(2)}}

	if _, err := f.engine.Run(context.Background(), scan.TriggerManual); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// record 2 fixed, record 3 newly offending
	f.target.Results[sanitized] = []map[string]any{{"id": int64(1)}, {"id": int64(3)}}

	run, err := f.engine.Run(context.Background(), scan.TriggerScheduled)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if run.NewCount != 1 || run.PersistingCount != 1 || run.ResolvedCount != 1 {
		t.Errorf("counts = %d/%d/%d new/persisting/resolved, want 1/1/1",
			run.NewCount, run.PersistingCount, run.ResolvedCount)
	}

	open, _ := f.violations.ListOpen(context.Background(), nil)
	if len(open) != 2 {
		t.Errorf("expected 2 open violations after second scan, got %d", len(open))
	}
}

func TestEngineRun_RejectedRuleLeavesViolationsOpen(t *testing.T) {
	f := newEngineFixture(t)
	f.addRule(t, "FIN-002", rule.SeverityHigh)

	f.translate.Responses["FIN-002"] = "SELECT id FROM transactions"
	sanitized := "SELECT id FROM transactions LIMIT 50"
	f.target.Results[sanitized] = []map[string]any{{"id": int64(1)}}

	if _, err := f.engine.Run(context.Background(), scan.TriggerManual); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// translator goes rogue on the second run and the query cache is
	// invalidated by a criteria edit
	rules, _ := f.rules.ListActive(context.Background())
	r := rules[0]
	_ = f.rules.UpdateGeneratedSQL(context.Background(), r.ID, "", "")
	f.translate.Responses["FIN-002"] = "DELETE FROM transactions"

	run, err := f.engine.Run(context.Background(), scan.TriggerManual)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if run.Status != scan.StatusCompletedWithErrors {
		t.Errorf("status = %s, want %s", run.Status, scan.StatusCompletedWithErrors)
	}
	if len(run.Outcomes) != 1 || run.Outcomes[0].Outcome != scan.OutcomeRejected {
		t.Fatalf("expected one rejected outcome, got %+v", run.Outcomes)
	}
	if run.ResolvedCount != 0 {
		t.Errorf("ResolvedCount = %d, want 0 for a rejected rule", run.ResolvedCount)
	}

	open, _ := f.violations.ListOpen(context.Background(), nil)
	if len(open) != 1 {
		t.Errorf("expected the prior violation to stay open, got %d open", len(open))
	}
}

func TestEngineRun_UntranslatableRule(t *testing.T) {
	f := newEngineFixture(t)
	f.addRule(t, "HR-001", rule.SeverityLow)
	f.translate.Errs["HR-001"] = &translator.UntranslatableError{Detail: "rule references data outside the schema"}

	run, err := f.engine.Run(context.Background(), scan.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != scan.StatusCompletedWithErrors {
		t.Errorf("status = %s, want %s", run.Status, scan.StatusCompletedWithErrors)
	}
	if len(run.Outcomes) != 1 || run.Outcomes[0].Outcome != scan.OutcomeUntranslatable {
		t.Fatalf("expected one untranslatable outcome, got %+v", run.Outcomes)
	}
}

func TestEngineRun_UsesCachedQueryWithoutRetranslating(t *testing.T) {
	f := newEngineFixture(t)
	f.addRule(t, "FIN-002", rule.SeverityHigh)
	f.translate.Responses["FIN-002"] = "SELECT id FROM transactions"

	if _, err := f.engine.Run(context.Background(), scan.TriggerManual); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if f.translate.Calls != 1 {
		t.Fatalf("expected 1 translation call, got %d", f.translate.Calls)
	}

	if _, err := f.engine.Run(context.Background(), scan.TriggerManual); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.translate.Calls != 1 {
		t.Errorf("expected cached query to be reused, translator called %d times", f.translate.Calls)
	}
}

func TestEngineRun_RunTimeoutKeepsRunReport(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.cfg.RunTimeout = 50 * time.Millisecond
	f.addRule(t, "FIN-002", rule.SeverityHigh)

	f.translate.Responses["FIN-002"] = "SELECT id FROM transactions"
	sanitized := "SELECT id FROM transactions LIMIT 50"
	f.target.Results[sanitized] = []map[string]any{{"id": int64(1)}}

	if _, err := f.engine.Run(context.Background(), scan.TriggerManual); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// the target hangs past the run deadline on the second run
	f.target.QueryDelay = time.Second

	run, err := f.engine.Run(context.Background(), scan.TriggerScheduled)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if run.Status != scan.StatusCompletedWithErrors {
		t.Errorf("status = %s, want %s (error: %s)", run.Status, scan.StatusCompletedWithErrors, run.Error)
	}
	if len(run.Outcomes) != 1 || run.Outcomes[0].Outcome != scan.OutcomeSkipped {
		t.Fatalf("expected one skipped outcome, got %+v", run.Outcomes)
	}

	// the skipped outcome survives the expired run deadline
	got, err := f.runs.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(got.Outcomes) != 1 || got.Outcomes[0].Outcome != scan.OutcomeSkipped {
		t.Fatalf("persisted outcomes = %+v, want one skipped", got.Outcomes)
	}

	// the unhealthy rule leaves its prior violation untouched
	if run.ResolvedCount != 0 {
		t.Errorf("ResolvedCount = %d, want 0 after a timed out rule", run.ResolvedCount)
	}
	open, _ := f.violations.ListOpen(context.Background(), nil)
	if len(open) != 1 {
		t.Errorf("expected the prior violation to stay open, got %d open", len(open))
	}
}

func TestEngineRun_TargetUnreachableFailsRun(t *testing.T) {
	f := newEngineFixture(t)
	f.addRule(t, "FIN-002", rule.SeverityHigh)
	f.target.PingErr = errors.TargetConnectionError(nil)

	run, err := f.engine.Run(context.Background(), scan.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != scan.StatusFailed {
		t.Errorf("status = %s, want %s", run.Status, scan.StatusFailed)
	}
	if run.Error == "" {
		t.Error("failed run has no error message")
	}
}

func TestEngineRun_OnlyOneRunAtATime(t *testing.T) {
	f := newEngineFixture(t)
	running := &scan.Run{ID: uuid.New(), Status: scan.StatusRunning, StartedAt: time.Now()}
	if err := f.runs.CreateRun(context.Background(), running); err != nil {
		t.Fatalf("seed running scan: %v", err)
	}

	_, err := f.engine.Run(context.Background(), scan.TriggerManual)
	if err == nil {
		t.Fatal("expected conflict error while a scan is running")
	}
	appErr, ok := err.(*errors.AppError)
	if !ok || appErr.Code != errors.ErrCodeScanInProgress {
		t.Errorf("expected SCAN_IN_PROGRESS, got %v", err)
	}
}

func TestEngineRun_ConcurrentTriggersStartExactlyOne(t *testing.T) {
	f := newEngineFixture(t)
	f.addRule(t, "FIN-002", rule.SeverityHigh)
	f.translate.Responses["FIN-002"] = "SELECT id FROM transactions"

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	conflicts := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Run(context.Background(), scan.TriggerManual)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				started++
				return
			}
			if appErr, ok := err.(*errors.AppError); ok && appErr.Code == errors.ErrCodeScanInProgress {
				conflicts++
			}
		}()
	}
	wg.Wait()

	if started+conflicts != attempts {
		t.Fatalf("unexpected errors: %d started, %d conflicts of %d attempts", started, conflicts, attempts)
	}
	if started < 1 {
		t.Fatal("no scan managed to start")
	}
}
