package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/datapolicy/policyscan/internal/config"
	"github.com/datapolicy/policyscan/internal/domain/scan"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
)

// State of the scheduler loop
type State string

const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateCoolingDown State = "cooling_down"
)

// Runner starts a scan run. The scan service implements it.
type Runner interface {
	Trigger(ctx context.Context, trigger scan.Trigger) (*scan.Run, error)
}

// Scheduler drives periodic scans. Exactly one scheduled scan can be
// in flight; ticks that arrive while a scan runs are skipped. After a
// failed run the scheduler cools down with doubling delays instead of
// hammering a broken target.
type Scheduler struct {
	runner   Runner
	schedule scan.ScheduleRepository
	cfg      config.ScanConfig
	log      *logger.Logger

	cron    *cron.Cron
	entryID cron.EntryID

	mu             sync.Mutex
	state          State
	currentDelay   time.Duration
	retries        int
	cooldownCancel chan struct{}
}

// New creates a scheduler. Call Start to begin ticking.
func New(runner Runner, schedule scan.ScheduleRepository, cfg config.ScanConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		cfg:      cfg,
		log:      log,
		cron:     cron.New(),
		state:    StateIdle,
	}
}

// Start loads the persisted schedule, seeding it from configuration
// on first boot, and begins the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	cfg, err := s.schedule.Get(ctx)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); !ok || appErr.Code != errors.ErrCodeNotFound {
			return err
		}
		cfg = &scan.ScheduleConfig{
			Enabled:         s.cfg.Enabled,
			IntervalMinutes: s.cfg.IntervalMinutes,
			UpdatedAt:       time.Now().UTC(),
		}
		if cfg.Enabled {
			next := time.Now().UTC().Add(cfg.Interval())
			cfg.NextRunAt = &next
		}
		if err := s.schedule.Save(ctx, cfg); err != nil {
			return err
		}
	}

	if cfg.Enabled {
		if err := s.arm(cfg.IntervalMinutes); err != nil {
			return err
		}
	}
	s.cron.Start()

	s.log.WithFields(map[string]interface{}{
		"enabled":          cfg.Enabled,
		"interval_minutes": cfg.IntervalMinutes,
	}).Info("scan scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// CurrentState returns the current scheduler state
func (s *Scheduler) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GetSchedule returns the persisted schedule configuration
func (s *Scheduler) GetSchedule(ctx context.Context) (*scan.ScheduleConfig, error) {
	return s.schedule.Get(ctx)
}

// UpdateSchedule reconfigures the periodic scan. The interval is
// bounded between hourly and daily. The next run is always computed
// from now, so shrinking the interval never fires an immediate
// catch-up scan.
func (s *Scheduler) UpdateSchedule(ctx context.Context, enabled bool, intervalMinutes int) (*scan.ScheduleConfig, error) {
	if intervalMinutes < config.MinIntervalMinutes || intervalMinutes > config.MaxIntervalMinutes {
		return nil, errors.BadRequest(fmt.Sprintf(
			"interval must be between %d and %d minutes",
			config.MinIntervalMinutes, config.MaxIntervalMinutes))
	}

	cfg, err := s.schedule.Get(ctx)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); !ok || appErr.Code != errors.ErrCodeNotFound {
			return nil, err
		}
		cfg = &scan.ScheduleConfig{}
	}

	cfg.Enabled = enabled
	cfg.IntervalMinutes = intervalMinutes
	cfg.UpdatedAt = time.Now().UTC()
	if enabled {
		next := time.Now().UTC().Add(cfg.Interval())
		cfg.NextRunAt = &next
	} else {
		cfg.NextRunAt = nil
	}

	if err := s.schedule.Save(ctx, cfg); err != nil {
		return nil, err
	}

	s.disarm()
	if enabled {
		if err := s.arm(intervalMinutes); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.retries = 0
	s.currentDelay = 0
	if s.cooldownCancel != nil {
		// wake a tick parked in backoff so it sees the new schedule
		close(s.cooldownCancel)
		s.cooldownCancel = nil
	}
	if s.state == StateCoolingDown {
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.log.WithFields(map[string]interface{}{
		"enabled":          enabled,
		"interval_minutes": intervalMinutes,
	}).Info("scan schedule updated")
	return cfg, nil
}

func (s *Scheduler) arm(intervalMinutes int) error {
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", intervalMinutes), s.tick)
	if err != nil {
		return errors.Internal("failed to schedule periodic scan", err)
	}
	s.mu.Lock()
	s.entryID = id
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) disarm() {
	s.mu.Lock()
	id := s.entryID
	s.entryID = 0
	s.mu.Unlock()
	if id != 0 {
		s.cron.Remove(id)
	}
}

// tick runs one scheduled scan. The state transition under the mutex
// guarantees overlapping ticks cannot both start a scan, and the run
// repository enforces the same invariant against manual triggers.
func (s *Scheduler) tick() {
	s.mu.Lock()
	switch s.state {
	case StateRunning:
		s.mu.Unlock()
		s.log.Warn("previous scheduled scan still running, skipping tick")
		return
	case StateCoolingDown:
		if s.cooldownCancel != nil {
			s.mu.Unlock()
			return
		}
		if s.currentDelay > 0 {
			delay := s.currentDelay
			cancel := make(chan struct{})
			s.cooldownCancel = cancel
			s.mu.Unlock()
			s.log.WithFields(map[string]interface{}{
				"delay": delay.String(),
			}).Warn("scheduler cooling down after failures, deferring scan")
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-cancel:
				// schedule was reconfigured or disabled mid-backoff
				timer.Stop()
				return
			}
			s.mu.Lock()
			s.cooldownCancel = nil
			if s.state == StateRunning {
				s.mu.Unlock()
				return
			}
		}
	}
	s.state = StateRunning
	s.mu.Unlock()

	ctx := context.Background()
	run, err := s.runner.Trigger(ctx, scan.TriggerScheduled)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok && appErr.Code == errors.ErrCodeScanInProgress {
			s.state = StateIdle
			s.log.Info("manual scan in progress, scheduled scan skipped")
			return
		}
		s.failure(err)
		return
	}
	if run.Status == scan.StatusFailed {
		s.failure(fmt.Errorf("scan run %s failed: %s", run.ID, run.Error))
		return
	}

	s.state = StateIdle
	s.retries = 0
	s.currentDelay = 0
	s.recordRun(ctx)
}

// failure moves the scheduler into cooldown with a doubling delay.
// Once the retry budget is spent the scheduler gives up on backoff,
// reports the persistent failure, and returns to idle until the next
// regular interval.
func (s *Scheduler) failure(err error) {
	s.retries++

	maxRetries := s.cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 3
	}
	if s.retries >= maxRetries {
		s.state = StateIdle
		s.retries = 0
		s.currentDelay = 0
		s.log.ErrorWithErr(err, fmt.Sprintf(
			"scheduled scan failed %d times in a row, giving up until the next interval", maxRetries))
		return
	}

	if s.currentDelay == 0 {
		s.currentDelay = s.cfg.BaseRetryDelay
	} else {
		s.currentDelay *= 2
	}
	if s.cfg.MaxRetryDelay > 0 && s.currentDelay > s.cfg.MaxRetryDelay {
		s.currentDelay = s.cfg.MaxRetryDelay
	}
	s.state = StateCoolingDown
	s.log.ErrorWithErr(err, fmt.Sprintf("scheduled scan failed, cooling down %s", s.currentDelay))
}

// recordRun bumps the persisted last and next run stamps. Callers
// hold s.mu.
func (s *Scheduler) recordRun(ctx context.Context) {
	cfg, err := s.schedule.Get(ctx)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	cfg.LastRunAt = &now
	if cfg.Enabled {
		next := now.Add(cfg.Interval())
		cfg.NextRunAt = &next
	}
	if err := s.schedule.Save(ctx, cfg); err != nil {
		s.log.ErrorWithErr(err, "failed to persist schedule state")
	}
}
