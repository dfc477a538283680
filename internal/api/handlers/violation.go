package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/datapolicy/policyscan/internal/api/dto"
	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/domain/violation"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
	"github.com/datapolicy/policyscan/internal/pkg/utils"
	"github.com/datapolicy/policyscan/internal/pkg/validator"
)

type ViolationHandler struct {
	service   violation.Service
	logger    *logger.Logger
	validator *validator.Validator
}

func NewViolationHandler(service violation.Service, log *logger.Logger, val *validator.Validator) *ViolationHandler {
	return &ViolationHandler{service: service, logger: log, validator: val}
}

// List returns violations with filtering and pagination
// @Summary List violations
// @Description Get a paginated list of violations with optional filtering
// @Tags Violations
// @Produce json
// @Param rule_id query string false "Filter by rule ID"
// @Param status query string false "Filter by status (open, resolved)"
// @Param review_status query string false "Filter by review status"
// @Param severity query string false "Filter by severity"
// @Param page query int false "Page number (default: 1)"
// @Param page_size query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} utils.PaginatedResponse{data=[]dto.ViolationDTO} "List of violations"
// @Failure 500 {object} utils.ErrorResponse "Internal server error"
// @Router /violations [get]
func (h *ViolationHandler) List(w http.ResponseWriter, r *http.Request) {
	p := utils.ParsePaginationParams(r)

	filter := violation.Filter{
		Status:       violation.Status(r.URL.Query().Get("status")),
		ReviewStatus: violation.ReviewStatus(r.URL.Query().Get("review_status")),
		Severity:     rule.Severity(r.URL.Query().Get("severity")),
	}
	if raw := r.URL.Query().Get("rule_id"); raw != "" {
		ruleID, err := uuid.Parse(raw)
		if err != nil {
			utils.WriteError(w, errors.BadRequest("Invalid rule_id parameter"))
			return
		}
		filter.RuleID = &ruleID
	}

	items, total, err := h.service.List(r.Context(), filter, p)
	if err != nil {
		writeServiceError(w, err, "Failed to list violations")
		return
	}

	dtos := make([]dto.ViolationDTO, len(items))
	for i, v := range items {
		dtos[i] = toViolationDTO(v)
	}

	utils.WriteSuccess(w, http.StatusOK, utils.NewPaginatedResponse(dtos, p.Page, p.PageSize, int64(total)))
}

// Get returns a violation by ID
// @Summary Get violation
// @Description Get a violation by ID, including the offending record data
// @Tags Violations
// @Produce json
// @Param id path string true "Violation ID"
// @Success 200 {object} utils.SuccessResponse{data=dto.ViolationDTO} "Violation details"
// @Failure 404 {object} utils.ErrorResponse "Violation not found"
// @Router /violations/{id} [get]
func (h *ViolationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		utils.WriteError(w, err.(*errors.AppError))
		return
	}

	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get violation")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, toViolationDTO(v))
}

// Review sets the review status of a violation
// @Summary Review violation
// @Description Mark a violation as confirmed or false positive. False positives are ignored by later scans.
// @Tags Violations
// @Accept json
// @Produce json
// @Param id path string true "Violation ID"
// @Param request body dto.ReviewRequest true "Review decision"
// @Success 200 {object} utils.SuccessResponse{data=dto.ViolationDTO} "Updated violation"
// @Failure 400 {object} utils.ErrorResponse "Invalid review status"
// @Failure 404 {object} utils.ErrorResponse "Violation not found"
// @Router /violations/{id}/review [put]
func (h *ViolationHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		utils.WriteError(w, err.(*errors.AppError))
		return
	}

	var req dto.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errors.BadRequest("Invalid request body"))
		return
	}

	if errs := h.validator.Validate(req); len(errs) > 0 {
		utils.WriteError(w, errors.ValidationError("Validation failed", errs))
		return
	}

	v, err := h.service.Review(r.Context(), id, violation.ReviewStatus(req.ReviewStatus), req.Note)
	if err != nil {
		writeServiceError(w, err, "Failed to review violation")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, toViolationDTO(v))
}

// Summary returns aggregate violation counts
// @Summary Violation summary
// @Description Get open and resolved violation counts grouped by severity and status
// @Tags Violations
// @Produce json
// @Success 200 {object} utils.SuccessResponse{data=dto.ViolationSummaryDTO} "Summary counts"
// @Failure 500 {object} utils.ErrorResponse "Internal server error"
// @Router /violations/summary [get]
func (h *ViolationHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Summary(r.Context())
	if err != nil {
		writeServiceError(w, err, "Failed to build summary")
		return
	}

	out := dto.ViolationSummaryDTO{
		TotalOpen:     s.TotalOpen,
		TotalResolved: s.TotalResolved,
		BySeverity:    make(map[string]int, len(s.BySeverity)),
		ByStatus:      make(map[string]int, len(s.ByStatus)),
	}
	for sev, n := range s.BySeverity {
		out.BySeverity[string(sev)] = n
	}
	for st, n := range s.ByStatus {
		out.ByStatus[string(st)] = n
	}

	utils.WriteSuccess(w, http.StatusOK, out)
}

func toViolationDTO(v *violation.Violation) dto.ViolationDTO {
	return dto.ViolationDTO{
		ID:               v.ID.String(),
		RuleID:           v.RuleID.String(),
		RecordIdentifier: v.RecordIdentifier,
		RecordData:       v.RecordData,
		Justification:    v.Justification,
		Severity:         string(v.Severity),
		Status:           string(v.Status),
		ReviewStatus:     string(v.ReviewStatus),
		ReviewNote:       v.ReviewNote,
		FirstDetectedAt:  v.FirstDetectedAt,
		LastSeenAt:       v.LastSeenAt,
		ResolvedAt:       v.ResolvedAt,
	}
}
