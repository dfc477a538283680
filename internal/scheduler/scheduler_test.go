package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/config"
	"github.com/datapolicy/policyscan/internal/domain/scan"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/testutil"
)

type fakeRunner struct {
	mu    sync.Mutex
	runs  int
	err   error
	state scan.Status
}

func (f *fakeRunner) Trigger(_ context.Context, trigger scan.Trigger) (*scan.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	if f.err != nil {
		return nil, f.err
	}
	status := f.state
	if status == "" {
		status = scan.StatusCompleted
	}
	now := time.Now().UTC()
	return &scan.Run{
		ID:          uuid.New(),
		Status:      status,
		Trigger:     trigger,
		StartedAt:   now,
		CompletedAt: &now,
	}, nil
}

func newScheduler(runner *fakeRunner, repo scan.ScheduleRepository) *Scheduler {
	cfg := config.ScanConfig{
		IntervalMinutes: 60,
		BaseRetryDelay:  time.Millisecond,
		MaxRetryDelay:   4 * time.Millisecond,
		MaxRetries:      20,
	}
	return New(runner, repo, cfg, testutil.NewTestLogger())
}

func TestUpdateSchedule_ValidatesInterval(t *testing.T) {
	s := newScheduler(&fakeRunner{}, testutil.NewScheduleRepo(nil))

	tests := []struct {
		name     string
		interval int
		wantErr  bool
	}{
		{"below hourly", 59, true},
		{"hourly", 60, false},
		{"six hours", 360, false},
		{"daily", 1440, false},
		{"above daily", 1441, true},
		{"zero", 0, true},
		{"negative", -60, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.UpdateSchedule(context.Background(), true, tt.interval)
			if (err != nil) != tt.wantErr {
				t.Errorf("UpdateSchedule(%d) error = %v, wantErr %v", tt.interval, err, tt.wantErr)
			}
		})
	}
}

func TestUpdateSchedule_RecomputesNextRunFromNow(t *testing.T) {
	repo := testutil.NewScheduleRepo(&scan.ScheduleConfig{
		Enabled:         true,
		IntervalMinutes: 60,
	})
	s := newScheduler(&fakeRunner{}, repo)

	before := time.Now().UTC()
	cfg, err := s.UpdateSchedule(context.Background(), true, 1440)
	if err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	after := time.Now().UTC()

	if cfg.IntervalMinutes != 1440 {
		t.Errorf("interval = %d, want 1440", cfg.IntervalMinutes)
	}
	if cfg.NextRunAt == nil {
		t.Fatal("NextRunAt not set on enabled schedule")
	}
	// next run must be a full new interval from now, not from the old anchor
	lo := before.Add(1440 * time.Minute)
	hi := after.Add(1440 * time.Minute)
	if cfg.NextRunAt.Before(lo) || cfg.NextRunAt.After(hi) {
		t.Errorf("NextRunAt = %v, want within [%v, %v]", cfg.NextRunAt, lo, hi)
	}
}

func TestUpdateSchedule_DisableClearsNextRun(t *testing.T) {
	repo := testutil.NewScheduleRepo(&scan.ScheduleConfig{
		Enabled:         true,
		IntervalMinutes: 60,
	})
	s := newScheduler(&fakeRunner{}, repo)

	cfg, err := s.UpdateSchedule(context.Background(), false, 60)
	if err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	if cfg.Enabled {
		t.Error("schedule still enabled")
	}
	if cfg.NextRunAt != nil {
		t.Errorf("NextRunAt = %v, want nil when disabled", cfg.NextRunAt)
	}
}

func TestTick_RunsScanAndRecordsSchedule(t *testing.T) {
	repo := testutil.NewScheduleRepo(&scan.ScheduleConfig{
		Enabled:         true,
		IntervalMinutes: 60,
	})
	runner := &fakeRunner{}
	s := newScheduler(runner, repo)

	s.tick()

	if runner.runs != 1 {
		t.Fatalf("expected 1 scan run, got %d", runner.runs)
	}
	if got := s.CurrentState(); got != StateIdle {
		t.Errorf("state = %s, want %s", got, StateIdle)
	}
	cfg, _ := repo.Get(context.Background())
	if cfg.LastRunAt == nil {
		t.Error("LastRunAt not recorded")
	}
	if cfg.NextRunAt == nil {
		t.Error("NextRunAt not recomputed")
	}
}

func TestTick_SkipsWhenManualScanInProgress(t *testing.T) {
	repo := testutil.NewScheduleRepo(&scan.ScheduleConfig{Enabled: true, IntervalMinutes: 60})
	runner := &fakeRunner{err: errors.ScanInProgress()}
	s := newScheduler(runner, repo)

	s.tick()

	if got := s.CurrentState(); got != StateIdle {
		t.Errorf("state after conflict = %s, want %s", got, StateIdle)
	}
}

func TestTick_CoolsDownAfterFailuresAndRecovers(t *testing.T) {
	repo := testutil.NewScheduleRepo(&scan.ScheduleConfig{Enabled: true, IntervalMinutes: 60})
	runner := &fakeRunner{err: errors.TargetConnectionError(nil)}
	s := newScheduler(runner, repo)

	s.tick()
	if got := s.CurrentState(); got != StateCoolingDown {
		t.Fatalf("state after failure = %s, want %s", got, StateCoolingDown)
	}
	firstDelay := s.currentDelay

	s.tick()
	if s.currentDelay <= firstDelay {
		t.Errorf("delay did not grow: %v then %v", firstDelay, s.currentDelay)
	}

	// delay growth is capped
	for i := 0; i < 10; i++ {
		s.tick()
	}
	if s.currentDelay > 4*time.Millisecond {
		t.Errorf("delay %v exceeds cap", s.currentDelay)
	}

	// target comes back
	runner.mu.Lock()
	runner.err = nil
	runner.mu.Unlock()

	s.tick()
	if got := s.CurrentState(); got != StateIdle {
		t.Errorf("state after recovery = %s, want %s", got, StateIdle)
	}
	if s.currentDelay != 0 {
		t.Errorf("delay not reset after success, got %v", s.currentDelay)
	}
}

func TestTick_GivesUpAfterRetryBudget(t *testing.T) {
	repo := testutil.NewScheduleRepo(&scan.ScheduleConfig{Enabled: true, IntervalMinutes: 60})
	runner := &fakeRunner{err: errors.TargetConnectionError(nil)}
	cfg := config.ScanConfig{
		IntervalMinutes: 60,
		BaseRetryDelay:  time.Millisecond,
		MaxRetryDelay:   4 * time.Millisecond,
		MaxRetries:      3,
	}
	s := New(runner, repo, cfg, testutil.NewTestLogger())

	s.tick()
	s.tick()
	if got := s.CurrentState(); got != StateCoolingDown {
		t.Fatalf("state after two failures = %s, want %s", got, StateCoolingDown)
	}

	// third consecutive failure spends the budget
	s.tick()
	if got := s.CurrentState(); got != StateIdle {
		t.Errorf("state after exhausted retries = %s, want %s", got, StateIdle)
	}
	if s.currentDelay != 0 {
		t.Errorf("delay = %v, want 0 after giving up", s.currentDelay)
	}
	if runner.runs != 3 {
		t.Errorf("runner called %d times, want 3", runner.runs)
	}

	// the next regular interval still gets its chance
	runner.mu.Lock()
	runner.err = nil
	runner.mu.Unlock()
	s.tick()
	if got := s.CurrentState(); got != StateIdle {
		t.Errorf("state after recovery = %s, want %s", got, StateIdle)
	}
	if runner.runs != 4 {
		t.Errorf("runner called %d times, want 4", runner.runs)
	}
}

func TestUpdateSchedule_DisableCancelsParkedRetry(t *testing.T) {
	repo := testutil.NewScheduleRepo(&scan.ScheduleConfig{Enabled: true, IntervalMinutes: 60})
	runner := &fakeRunner{err: errors.TargetConnectionError(nil)}
	s := newScheduler(runner, repo)

	s.tick()
	if got := s.CurrentState(); got != StateCoolingDown {
		t.Fatalf("state after failure = %s, want %s", got, StateCoolingDown)
	}

	// park the next tick in a long backoff
	s.mu.Lock()
	s.currentDelay = time.Minute
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.tick()
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		parked := s.cooldownCancel != nil
		s.mu.Unlock()
		if parked {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tick never parked in backoff")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := s.UpdateSchedule(context.Background(), false, 60); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("parked tick did not return after disable")
	}

	runner.mu.Lock()
	runs := runner.runs
	runner.mu.Unlock()
	if runs != 1 {
		t.Errorf("runner called %d times, want 1 (the disabled retry must not fire)", runs)
	}
	if got := s.CurrentState(); got != StateIdle {
		t.Errorf("state after disable = %s, want %s", got, StateIdle)
	}
}
