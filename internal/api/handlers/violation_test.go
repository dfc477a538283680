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

	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/domain/violation"
	"github.com/datapolicy/policyscan/internal/pkg/validator"
	"github.com/datapolicy/policyscan/internal/services"
	"github.com/datapolicy/policyscan/internal/testutil"
)

func newViolationRouter(t *testing.T) (*chi.Mux, *testutil.ViolationRepo) {
	t.Helper()
	repo := testutil.NewViolationRepo()
	log := testutil.NewTestLogger()
	handler := NewViolationHandler(services.NewViolationService(repo, log), log, validator.New())

	r := chi.NewRouter()
	r.Get("/api/v1/violations", handler.List)
	r.Get("/api/v1/violations/summary", handler.Summary)
	r.Get("/api/v1/violations/{id}", handler.Get)
	r.Put("/api/v1/violations/{id}/review", handler.Review)
	return r, repo
}

func seedViolation(t *testing.T, repo *testutil.ViolationRepo, sev rule.Severity) *violation.Violation {
	t.Helper()
	now := time.Now().UTC()
	v := &violation.Violation{
		ID:               uuid.New(),
		RuleID:           uuid.New(),
		RecordIdentifier: "id=42",
		RecordData:       map[string]any{"id": "42", "amount": "-5"},
		Justification:    "Record id=42 in table transactions violates rule FIN-001",
		Severity:         sev,
		Status:           violation.StatusOpen,
		ReviewStatus:     violation.ReviewPending,
		FirstDetectedAt:  now,
		LastSeenAt:       now,
	}
	if err := repo.Create(context.Background(), v); err != nil {
		t.Fatalf("seed violation: %v", err)
	}
	return v
}

func TestViolationHandler_List(t *testing.T) {
	router, repo := newViolationRouter(t)
	seedViolation(t, repo, rule.SeverityHigh)
	seedViolation(t, repo, rule.SeverityLow)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/violations?status=open", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var response struct {
		Data struct {
			Data       []json.RawMessage `json:"data"`
			TotalItems int64             `json:"total_items"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Data.TotalItems != 2 {
		t.Errorf("total = %d, want 2", response.Data.TotalItems)
	}
	if len(response.Data.Data) != 2 {
		t.Errorf("got %d violations, want 2", len(response.Data.Data))
	}
}

func TestViolationHandler_ListRejectsBadRuleID(t *testing.T) {
	router, _ := newViolationRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/violations?rule_id=nope", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestViolationHandler_Get(t *testing.T) {
	router, repo := newViolationRouter(t)
	v := seedViolation(t, repo, rule.SeverityCritical)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/violations/"+v.ID.String(), nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var response struct {
		Data struct {
			RecordIdentifier string         `json:"record_identifier"`
			RecordData       map[string]any `json:"record_data"`
			Severity         string         `json:"severity"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Data.RecordIdentifier != "id=42" {
		t.Errorf("record identifier = %q, want %q", response.Data.RecordIdentifier, "id=42")
	}
	if response.Data.Severity != "critical" {
		t.Errorf("severity = %q, want %q", response.Data.Severity, "critical")
	}
	if response.Data.RecordData["amount"] != "-5" {
		t.Errorf("record data amount = %v, want -5", response.Data.RecordData["amount"])
	}
}

func TestViolationHandler_Review(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantReview violation.ReviewStatus
	}{
		{
			name:       "mark false positive",
			body:       `{"review_status":"false_positive","note":"test data fixture"}`,
			wantStatus: http.StatusOK,
			wantReview: violation.ReviewFalsePositive,
		},
		{
			name:       "confirm",
			body:       `{"review_status":"confirmed"}`,
			wantStatus: http.StatusOK,
			wantReview: violation.ReviewConfirmed,
		},
		{
			name:       "unknown status",
			body:       `{"review_status":"maybe"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, repo := newViolationRouter(t)
			v := seedViolation(t, repo, rule.SeverityMedium)

			req := httptest.NewRequest(http.MethodPut, "/api/v1/violations/"+v.ID.String()+"/review", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body: %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			got, err := repo.GetByID(context.Background(), v.ID)
			if err != nil {
				t.Fatalf("reload violation: %v", err)
			}
			if got.ReviewStatus != tt.wantReview {
				t.Errorf("review status = %q, want %q", got.ReviewStatus, tt.wantReview)
			}
		})
	}
}

func TestViolationHandler_Summary(t *testing.T) {
	router, repo := newViolationRouter(t)
	seedViolation(t, repo, rule.SeverityHigh)
	seedViolation(t, repo, rule.SeverityHigh)
	seedViolation(t, repo, rule.SeverityLow)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/violations/summary", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var response struct {
		Data struct {
			TotalOpen  int            `json:"total_open"`
			BySeverity map[string]int `json:"by_severity"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Data.TotalOpen != 3 {
		t.Errorf("total open = %d, want 3", response.Data.TotalOpen)
	}
	if response.Data.BySeverity["high"] != 2 {
		t.Errorf("high count = %d, want 2", response.Data.BySeverity["high"])
	}
}
