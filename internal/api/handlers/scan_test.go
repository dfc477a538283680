package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/config"
	"github.com/datapolicy/policyscan/internal/domain/scan"
	"github.com/datapolicy/policyscan/internal/domain/schema"
	"github.com/datapolicy/policyscan/internal/pkg/validator"
	"github.com/datapolicy/policyscan/internal/scanner"
	"github.com/datapolicy/policyscan/internal/scheduler"
	"github.com/datapolicy/policyscan/internal/services"
	"github.com/datapolicy/policyscan/internal/testutil"
)

func newScanRouter(t *testing.T) (*chi.Mux, *testutil.ScanRepo) {
	t.Helper()
	log := testutil.NewTestLogger()
	runs := testutil.NewScanRepo()
	engine := scanner.NewEngine(
		testutil.NewRuleRepo(),
		testutil.NewViolationRepo(),
		runs,
		&testutil.StubTarget{
			Schema: &schema.Snapshot{
				Tables: []schema.Table{{
					Name: "transactions",
					Columns: []schema.Column{
						{Name: "id", DataType: "integer", PrimaryKey: true},
						{Name: "amount", DataType: "numeric"},
					},
				}},
				CapturedAt: time.Now().UTC(),
			},
		},
		&testutil.StubTranslator{},
		config.ScanConfig{
			QueryTimeout:   time.Second,
			RunTimeout:     time.Minute,
			RowLimit:       50,
			Workers:        1,
			BaseRetryDelay: time.Millisecond,
		},
		log,
	)
	sched := scheduler.New(&noopRunner{}, testutil.NewScheduleRepo(&scan.ScheduleConfig{
		Enabled:         false,
		IntervalMinutes: 60,
		UpdatedAt:       time.Now().UTC(),
	}), config.ScanConfig{IntervalMinutes: 60}, log)
	handler := NewScanHandler(services.NewScanService(engine, runs, log), sched, log)

	r := chi.NewRouter()
	r.Post("/api/v1/scans", handler.Trigger)
	r.Get("/api/v1/scans", handler.List)
	r.Get("/api/v1/scans/status", handler.Status)
	r.Get("/api/v1/scans/{id}", handler.Get)
	return r, runs
}

func TestScanHandler_TriggerAccepted(t *testing.T) {
	router, _ := newScanRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body: %s)", rr.Code, http.StatusAccepted, rr.Body.String())
	}

	var response struct {
		Data struct {
			Status  string `json:"status"`
			Trigger string `json:"trigger"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Data.Status != string(scan.StatusRunning) {
		t.Errorf("status = %q, want %q", response.Data.Status, scan.StatusRunning)
	}
	if response.Data.Trigger != string(scan.TriggerManual) {
		t.Errorf("trigger = %q, want %q", response.Data.Trigger, scan.TriggerManual)
	}
}

func TestScanHandler_TriggerConflictsWhileRunning(t *testing.T) {
	router, runs := newScanRouter(t)
	if err := runs.CreateRun(context.Background(), &scan.Run{
		ID:        uuid.New(),
		Status:    scan.StatusRunning,
		Trigger:   scan.TriggerScheduled,
		StartedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed running scan: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestScanHandler_GetAndStatus(t *testing.T) {
	router, runs := newScanRouter(t)
	completed := time.Now().UTC()
	run := &scan.Run{
		ID:        uuid.New(),
		Status:    scan.StatusRunning,
		Trigger:   scan.TriggerManual,
		StartedAt: completed.Add(-time.Minute),
	}
	if err := runs.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	run.Status = scan.StatusCompleted
	run.CompletedAt = &completed
	run.NewCount = 5
	if err := runs.FinishRun(context.Background(), run); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans/"+run.ID.String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", rr.Code, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/scans/status", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d, want %d", rr.Code, http.StatusOK)
	}

	var response struct {
		Data struct {
			State string `json:"state"`
			Run   *struct {
				ID       string `json:"id"`
				NewCount int    `json:"new_count"`
			} `json:"run"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Data.State != string(scheduler.StateIdle) {
		t.Errorf("state = %q, want %q", response.Data.State, scheduler.StateIdle)
	}
	if response.Data.Run == nil {
		t.Fatal("expected latest run in status response")
	}
	if response.Data.Run.ID != run.ID.String() {
		t.Errorf("latest run = %s, want %s", response.Data.Run.ID, run.ID)
	}
	if response.Data.Run.NewCount != 5 {
		t.Errorf("new count = %d, want 5", response.Data.Run.NewCount)
	}
}

func TestScheduleHandler_Update(t *testing.T) {
	log := testutil.NewTestLogger()
	repo := testutil.NewScheduleRepo(&scan.ScheduleConfig{
		Enabled:         false,
		IntervalMinutes: 60,
		UpdatedAt:       time.Now().UTC(),
	})
	sched := scheduler.New(&noopRunner{}, repo, config.ScanConfig{IntervalMinutes: 60}, log)
	handler := NewScheduleHandler(sched, log, validator.New())

	r := chi.NewRouter()
	r.Get("/api/v1/schedule", handler.Get)
	r.Put("/api/v1/schedule", handler.Update)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid daily interval", `{"enabled":true,"interval_minutes":1440}`, http.StatusOK},
		{"below hourly floor", `{"enabled":true,"interval_minutes":59}`, http.StatusBadRequest},
		{"above daily ceiling", `{"enabled":true,"interval_minutes":1441}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/v1/schedule", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()

			r.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedule", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", rr.Code, http.StatusOK)
	}

	var response struct {
		Data struct {
			Enabled         bool   `json:"enabled"`
			IntervalMinutes int    `json:"interval_minutes"`
			SchedulerState  string `json:"scheduler_state"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !response.Data.Enabled || response.Data.IntervalMinutes != 1440 {
		t.Errorf("schedule = %+v, want enabled with 1440m interval", response.Data)
	}
	if response.Data.SchedulerState != string(scheduler.StateIdle) {
		t.Errorf("scheduler state = %q, want %q", response.Data.SchedulerState, scheduler.StateIdle)
	}
}

type noopRunner struct{}

func (noopRunner) Trigger(_ context.Context, _ scan.Trigger) (*scan.Run, error) {
	return &scan.Run{Status: scan.StatusCompleted}, nil
}
