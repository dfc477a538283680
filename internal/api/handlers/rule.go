package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/datapolicy/policyscan/internal/api/dto"
	"github.com/datapolicy/policyscan/internal/domain/rule"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
	"github.com/datapolicy/policyscan/internal/pkg/utils"
	"github.com/datapolicy/policyscan/internal/pkg/validator"
)

type RuleHandler struct {
	service   rule.Service
	logger    *logger.Logger
	validator *validator.Validator
}

func NewRuleHandler(service rule.Service, log *logger.Logger, val *validator.Validator) *RuleHandler {
	return &RuleHandler{service: service, logger: log, validator: val}
}

// List returns all rules with optional filtering
// @Summary List rules
// @Description Get all compliance rules with optional filtering
// @Tags Rules
// @Produce json
// @Param is_active query bool false "Filter by active flag"
// @Param severity query string false "Filter by severity"
// @Success 200 {object} utils.SuccessResponse{data=[]dto.RuleDTO} "List of rules"
// @Failure 500 {object} utils.ErrorResponse "Internal server error"
// @Router /rules [get]
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := rule.Filter{
		Severity: rule.Severity(r.URL.Query().Get("severity")),
	}
	switch r.URL.Query().Get("is_active") {
	case "true":
		active := true
		filter.IsActive = &active
	case "false":
		active := false
		filter.IsActive = &active
	}

	rules, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err, "Failed to list rules")
		return
	}

	dtos := make([]dto.RuleDTO, len(rules))
	for i, ru := range rules {
		dtos[i] = toRuleDTO(ru)
	}

	utils.WriteSuccess(w, http.StatusOK, dtos)
}

// Get returns a rule by ID
// @Summary Get rule
// @Description Get a compliance rule by ID
// @Tags Rules
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} utils.SuccessResponse{data=dto.RuleDTO} "Rule details"
// @Failure 404 {object} utils.ErrorResponse "Rule not found"
// @Router /rules/{id} [get]
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		utils.WriteError(w, err.(*errors.AppError))
		return
	}

	ru, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get rule")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, toRuleDTO(ru))
}

// Create creates a new rule
// @Summary Create rule
// @Description Create a new compliance rule
// @Tags Rules
// @Accept json
// @Produce json
// @Param request body dto.CreateRuleRequest true "Rule details"
// @Success 201 {object} utils.SuccessResponse{data=dto.RuleDTO} "Rule created"
// @Failure 400 {object} utils.ErrorResponse "Invalid request or validation error"
// @Failure 409 {object} utils.ErrorResponse "Duplicate rule code"
// @Router /rules [post]
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errors.BadRequest("Invalid request body"))
		return
	}

	if errs := h.validator.Validate(req); len(errs) > 0 {
		utils.WriteError(w, errors.ValidationError("Validation failed", errs))
		return
	}

	ru, err := h.service.Create(r.Context(), rule.CreateInput{
		Code:               req.Code,
		Name:               req.Name,
		Description:        req.Description,
		EvaluationCriteria: req.EvaluationCriteria,
		TargetTable:        req.TargetTable,
		Severity:           rule.Severity(req.Severity),
	})
	if err != nil {
		writeServiceError(w, err, "Failed to create rule")
		return
	}

	utils.WriteSuccess(w, http.StatusCreated, toRuleDTO(ru))
}

// Update applies a partial update to a rule
// @Summary Update rule
// @Description Update an existing rule. Editing the criteria or target table invalidates the cached translation.
// @Tags Rules
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param request body dto.UpdateRuleRequest true "Fields to update"
// @Success 200 {object} utils.SuccessResponse{data=dto.RuleDTO} "Updated rule"
// @Failure 400 {object} utils.ErrorResponse "Invalid request"
// @Failure 404 {object} utils.ErrorResponse "Rule not found"
// @Router /rules/{id} [patch]
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		utils.WriteError(w, err.(*errors.AppError))
		return
	}

	var req dto.UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errors.BadRequest("Invalid request body"))
		return
	}

	if errs := h.validator.Validate(req); len(errs) > 0 {
		utils.WriteError(w, errors.ValidationError("Validation failed", errs))
		return
	}

	input := rule.UpdateInput{
		Name:               req.Name,
		Description:        req.Description,
		EvaluationCriteria: req.EvaluationCriteria,
		TargetTable:        req.TargetTable,
		IsActive:           req.IsActive,
	}
	if req.Severity != nil {
		sev := rule.Severity(*req.Severity)
		input.Severity = &sev
	}

	ru, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, err, "Failed to update rule")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, toRuleDTO(ru))
}

// Delete removes a rule
// @Summary Delete rule
// @Description Delete a compliance rule
// @Tags Rules
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} utils.SuccessResponse "Rule deleted"
// @Failure 404 {object} utils.ErrorResponse "Rule not found"
// @Router /rules/{id} [delete]
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		utils.WriteError(w, err.(*errors.AppError))
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "Failed to delete rule")
		return
	}

	utils.WriteSuccessWithMessage(w, http.StatusOK, "Rule deleted", nil)
}

func toRuleDTO(ru *rule.Rule) dto.RuleDTO {
	return dto.RuleDTO{
		ID:                 ru.ID.String(),
		Code:               ru.Code,
		Name:               ru.Name,
		Description:        ru.Description,
		EvaluationCriteria: ru.EvaluationCriteria,
		TargetTable:        ru.TargetTable,
		Severity:           string(ru.Severity),
		IsActive:           ru.IsActive,
		HasCachedSQL:       ru.GeneratedSQL != "",
		CreatedAt:          ru.CreatedAt,
		UpdatedAt:          ru.UpdatedAt,
	}
}
