package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/pkg/validator"
	"github.com/datapolicy/policyscan/internal/services"
	"github.com/datapolicy/policyscan/internal/testutil"
)

func newRuleRouter(t *testing.T) (*chi.Mux, rule.Service) {
	t.Helper()
	log := testutil.NewTestLogger()
	service := services.NewRuleService(testutil.NewRuleRepo(), log)
	handler := NewRuleHandler(service, log, validator.New())

	r := chi.NewRouter()
	r.Get("/api/v1/rules", handler.List)
	r.Post("/api/v1/rules", handler.Create)
	r.Get("/api/v1/rules/{id}", handler.Get)
	r.Patch("/api/v1/rules/{id}", handler.Update)
	r.Delete("/api/v1/rules/{id}", handler.Delete)
	return r, service
}

func TestRuleHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid rule",
			body:       `{"code":"FIN-001","evaluation_criteria":"amount must not be negative","target_table":"transactions","severity":"high"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid severity",
			body:       `{"code":"FIN-002","evaluation_criteria":"x","target_table":"transactions","severity":"urgent"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing criteria",
			body:       `{"code":"FIN-003","target_table":"transactions","severity":"low"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       `{"code":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newRuleRouter(t)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/rules", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestRuleHandler_CreateDuplicateCode(t *testing.T) {
	router, service := newRuleRouter(t)
	if _, err := service.Create(context.Background(), rule.CreateInput{
		Code:               "FIN-001",
		EvaluationCriteria: "amount must not be negative",
		TargetTable:        "transactions",
		Severity:           rule.SeverityHigh,
	}); err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	body := `{"code":"FIN-001","evaluation_criteria":"x","target_table":"transactions","severity":"low"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rules", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestRuleHandler_Get(t *testing.T) {
	router, service := newRuleRouter(t)
	created, err := service.Create(context.Background(), rule.CreateInput{
		Code:               "PRIV-001",
		EvaluationCriteria: "users must have a consent date",
		TargetTable:        "users",
		Severity:           rule.SeverityCritical,
	})
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"existing rule", created.ID.String(), http.StatusOK},
		{"unknown rule", uuid.New().String(), http.StatusNotFound},
		{"malformed id", "not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/rules/"+tt.id, nil)
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestRuleHandler_UpdateDeactivates(t *testing.T) {
	router, service := newRuleRouter(t)
	created, err := service.Create(context.Background(), rule.CreateInput{
		Code:               "PRIV-002",
		EvaluationCriteria: "email must be masked",
		TargetTable:        "users",
		Severity:           rule.SeverityMedium,
	})
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	body := `{"is_active":false}`
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/rules/"+created.ID.String(), bytes.NewBufferString(body))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var response struct {
		Data struct {
			IsActive bool `json:"is_active"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Data.IsActive {
		t.Error("rule still active after deactivation")
	}
}

func TestRuleHandler_ListFiltersByActive(t *testing.T) {
	router, service := newRuleRouter(t)
	ctx := context.Background()
	active, err := service.Create(ctx, rule.CreateInput{
		Code:               "FIN-010",
		EvaluationCriteria: "x",
		TargetTable:        "transactions",
		Severity:           rule.SeverityLow,
	})
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	inactiveRule, err := service.Create(ctx, rule.CreateInput{
		Code:               "FIN-011",
		EvaluationCriteria: "y",
		TargetTable:        "transactions",
		Severity:           rule.SeverityLow,
	})
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	off := false
	if _, err := service.Update(ctx, inactiveRule.ID, rule.UpdateInput{IsActive: &off}); err != nil {
		t.Fatalf("deactivate rule: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules?is_active=true", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var response struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.Data) != 1 {
		t.Fatalf("got %d rules, want 1", len(response.Data))
	}
	if response.Data[0].ID != active.ID.String() {
		t.Errorf("got rule %s, want %s", response.Data[0].ID, active.ID)
	}
}
