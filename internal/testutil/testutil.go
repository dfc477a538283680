package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/domain/scan"
	"github.com/datapolicy/policyscan/internal/domain/schema"
	"github.com/datapolicy/policyscan/internal/domain/violation"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
	"github.com/datapolicy/policyscan/internal/pkg/utils"
)

// NewTestLogger returns a quiet logger for tests
func NewTestLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "console"})
}

// RuleRepo is an in-memory rule.Repository
type RuleRepo struct {
	mu    sync.Mutex
	rules map[uuid.UUID]*rule.Rule
}

func NewRuleRepo() *RuleRepo {
	return &RuleRepo{rules: map[uuid.UUID]*rule.Rule{}}
}

func (r *RuleRepo) Create(_ context.Context, rl *rule.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rules {
		if existing.Code == rl.Code {
			return errors.Conflict("rule code already exists")
		}
	}
	cp := *rl
	r.rules[rl.ID] = &cp
	return nil
}

func (r *RuleRepo) GetByID(_ context.Context, id uuid.UUID) (*rule.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl, ok := r.rules[id]
	if !ok {
		return nil, errors.NotFound("rule")
	}
	cp := *rl
	return &cp, nil
}

func (r *RuleRepo) GetByCode(_ context.Context, code string) (*rule.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rl := range r.rules {
		if rl.Code == code {
			cp := *rl
			return &cp, nil
		}
	}
	return nil, errors.NotFound("rule")
}

func (r *RuleRepo) List(_ context.Context, filter rule.Filter) ([]*rule.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*rule.Rule
	for _, rl := range r.rules {
		if filter.IsActive != nil && rl.IsActive != *filter.IsActive {
			continue
		}
		if filter.Severity != "" && rl.Severity != filter.Severity {
			continue
		}
		cp := *rl
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *RuleRepo) ListActive(ctx context.Context) ([]*rule.Rule, error) {
	active := true
	return r.List(ctx, rule.Filter{IsActive: &active})
}

func (r *RuleRepo) Update(_ context.Context, rl *rule.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rl.ID]; !ok {
		return errors.NotFound("rule")
	}
	cp := *rl
	r.rules[rl.ID] = &cp
	return nil
}

func (r *RuleRepo) UpdateGeneratedSQL(_ context.Context, id uuid.UUID, sql, schemaHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl, ok := r.rules[id]
	if !ok {
		return errors.NotFound("rule")
	}
	rl.GeneratedSQL = sql
	rl.SchemaHash = schemaHash
	return nil
}

func (r *RuleRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return errors.NotFound("rule")
	}
	delete(r.rules, id)
	return nil
}

// ViolationRepo is an in-memory violation.Repository. Writes and the
// open-set listing fail on an expired context like the real store.
type ViolationRepo struct {
	mu         sync.Mutex
	violations map[uuid.UUID]*violation.Violation
}

func NewViolationRepo() *ViolationRepo {
	return &ViolationRepo{violations: map[uuid.UUID]*violation.Violation{}}
}

func (r *ViolationRepo) Create(ctx context.Context, v *violation.Violation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *v
	r.violations[v.ID] = &cp
	return nil
}

func (r *ViolationRepo) GetByID(_ context.Context, id uuid.UUID) (*violation.Violation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.violations[id]
	if !ok {
		return nil, errors.NotFound("violation")
	}
	cp := *v
	return &cp, nil
}

func (r *ViolationRepo) ListOpen(ctx context.Context, ruleIDs []uuid.UUID) ([]*violation.Violation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range ruleIDs {
		want[id] = true
	}
	var out []*violation.Violation
	for _, v := range r.violations {
		if v.Status != violation.StatusOpen {
			continue
		}
		if len(want) > 0 && !want[v.RuleID] {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordIdentifier < out[j].RecordIdentifier })
	return out, nil
}

func (r *ViolationRepo) List(_ context.Context, filter violation.Filter, p utils.PaginationParams) ([]*violation.Violation, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*violation.Violation
	for _, v := range r.violations {
		if filter.RuleID != nil && v.RuleID != *filter.RuleID {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		if filter.ReviewStatus != "" && v.ReviewStatus != filter.ReviewStatus {
			continue
		}
		if filter.Severity != "" && v.Severity != filter.Severity {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordIdentifier < out[j].RecordIdentifier })
	total := len(out)
	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r *ViolationRepo) Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.violations[id]
	if !ok {
		return errors.NotFound("violation")
	}
	v.LastSeenAt = seenAt
	return nil
}

func (r *ViolationRepo) Resolve(ctx context.Context, id uuid.UUID, resolvedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.violations[id]
	if !ok {
		return errors.NotFound("violation")
	}
	v.Status = violation.StatusResolved
	v.ResolvedAt = &resolvedAt
	return nil
}

func (r *ViolationRepo) UpdateReview(_ context.Context, id uuid.UUID, status violation.ReviewStatus, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.violations[id]
	if !ok {
		return errors.NotFound("violation")
	}
	v.ReviewStatus = status
	v.ReviewNote = note
	return nil
}

func (r *ViolationRepo) CountBySeverity(_ context.Context, status violation.Status) (map[rule.Severity]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[rule.Severity]int{}
	for _, v := range r.violations {
		if v.Status == status {
			out[v.Severity]++
		}
	}
	return out, nil
}

func (r *ViolationRepo) CountByStatus(_ context.Context) (map[violation.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[violation.Status]int{}
	for _, v := range r.violations {
		out[v.Status]++
	}
	return out, nil
}

// ScanRepo is an in-memory scan.Repository enforcing the single
// running run invariant the same way the SQL implementation does
type ScanRepo struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*scan.Run
	outcomes map[uuid.UUID][]scan.RuleOutcome
	order    []uuid.UUID
}

func NewScanRepo() *ScanRepo {
	return &ScanRepo{
		runs:     map[uuid.UUID]*scan.Run{},
		outcomes: map[uuid.UUID][]scan.RuleOutcome{},
	}
}

func (r *ScanRepo) CreateRun(_ context.Context, run *scan.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.runs {
		if existing.Status == scan.StatusRunning {
			return errors.ScanInProgress()
		}
	}
	cp := *run
	r.runs[run.ID] = &cp
	r.order = append(r.order, run.ID)
	return nil
}

func (r *ScanRepo) GetRun(_ context.Context, id uuid.UUID) (*scan.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, errors.NotFound("scan run")
	}
	cp := *run
	cp.Outcomes = append([]scan.RuleOutcome(nil), r.outcomes[id]...)
	return &cp, nil
}

func (r *ScanRepo) GetRunning(_ context.Context) (*scan.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.Status == scan.StatusRunning {
			cp := *run
			return &cp, nil
		}
	}
	return nil, errors.NotFound("running scan")
}

func (r *ScanRepo) LatestRun(_ context.Context) (*scan.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil, errors.NotFound("scan run")
	}
	cp := *r.runs[r.order[len(r.order)-1]]
	return &cp, nil
}

func (r *ScanRepo) ListRuns(_ context.Context, p utils.PaginationParams) ([]*scan.Run, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scan.Run
	for i := len(r.order) - 1; i >= 0; i-- {
		cp := *r.runs[r.order[i]]
		out = append(out, &cp)
	}
	total := len(out)
	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r *ScanRepo) FinishRun(_ context.Context, run *scan.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		return errors.NotFound("scan run")
	}
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *ScanRepo) AddOutcome(ctx context.Context, o *scan.RuleOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[o.RunID] = append(r.outcomes[o.RunID], *o)
	return nil
}

func (r *ScanRepo) ListOutcomes(_ context.Context, runID uuid.UUID) ([]scan.RuleOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scan.RuleOutcome(nil), r.outcomes[runID]...), nil
}

// ScheduleRepo is an in-memory scan.ScheduleRepository
type ScheduleRepo struct {
	mu  sync.Mutex
	cfg *scan.ScheduleConfig
}

func NewScheduleRepo(cfg *scan.ScheduleConfig) *ScheduleRepo {
	return &ScheduleRepo{cfg: cfg}
}

func (r *ScheduleRepo) Get(_ context.Context) (*scan.ScheduleConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg == nil {
		return nil, errors.NotFound("schedule")
	}
	cp := *r.cfg
	return &cp, nil
}

func (r *ScheduleRepo) Save(_ context.Context, cfg *scan.ScheduleConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cfg
	r.cfg = &cp
	return nil
}

// StubTranslator returns canned SQL per rule code
type StubTranslator struct {
	mu        sync.Mutex
	Responses map[string]string
	Errs      map[string]error
	Calls     int
}

func (s *StubTranslator) Translate(_ context.Context, r *rule.Rule, _ *schema.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if err, ok := s.Errs[r.Code]; ok {
		return "", err
	}
	if sql, ok := s.Responses[r.Code]; ok {
		return sql, nil
	}
	return "", errors.TranslationFailed(r.Code, nil)
}

// StubTarget is a canned targetdb.Executor. Query results are keyed
// by the sanitized SQL text. A nonzero QueryDelay makes every query
// block that long, or until the context expires.
type StubTarget struct {
	mu         sync.Mutex
	Schema     *schema.Snapshot
	Results    map[string][]map[string]any
	QueryErrs  map[string]error
	PingErr    error
	QueryDelay time.Duration
	Queries    []string
}

func (s *StubTarget) Ping(_ context.Context) error {
	return s.PingErr
}

func (s *StubTarget) Snapshot(_ context.Context) (*schema.Snapshot, error) {
	if s.Schema == nil {
		return nil, errors.SchemaError(nil)
	}
	return s.Schema, nil
}

func (s *StubTarget) Query(ctx context.Context, query string) ([]map[string]any, error) {
	if s.QueryDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.QueryDelay):
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Queries = append(s.Queries, query)
	if err, ok := s.QueryErrs[query]; ok {
		return nil, err
	}
	return s.Results[query], nil
}

func (s *StubTarget) Close() error { return nil }
