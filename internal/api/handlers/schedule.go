package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/datapolicy/policyscan/internal/api/dto"
	"github.com/datapolicy/policyscan/internal/domain/scan"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
	"github.com/datapolicy/policyscan/internal/pkg/utils"
	"github.com/datapolicy/policyscan/internal/pkg/validator"
	"github.com/datapolicy/policyscan/internal/scheduler"
)

// ScheduleService is the scheduler surface the handler needs
type ScheduleService interface {
	scan.Scheduler
	CurrentState() scheduler.State
}

type ScheduleHandler struct {
	service   ScheduleService
	logger    *logger.Logger
	validator *validator.Validator
}

func NewScheduleHandler(service ScheduleService, log *logger.Logger, val *validator.Validator) *ScheduleHandler {
	return &ScheduleHandler{service: service, logger: log, validator: val}
}

// Get returns the current scan schedule
// @Summary Get schedule
// @Description Get the periodic scan schedule and the scheduler state
// @Tags Schedule
// @Produce json
// @Success 200 {object} utils.SuccessResponse{data=dto.ScheduleDTO} "Current schedule"
// @Failure 500 {object} utils.ErrorResponse "Internal server error"
// @Router /schedule [get]
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetSchedule(r.Context())
	if err != nil {
		writeServiceError(w, err, "Failed to get schedule")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, toScheduleDTO(cfg, h.service.CurrentState()))
}

// Update reconfigures the scan schedule
// @Summary Update schedule
// @Description Enable or disable periodic scans and set the interval. The interval must be between 60 and 1440 minutes; the next run is recomputed from now.
// @Tags Schedule
// @Accept json
// @Produce json
// @Param request body dto.UpdateScheduleRequest true "Schedule settings"
// @Success 200 {object} utils.SuccessResponse{data=dto.ScheduleDTO} "Updated schedule"
// @Failure 400 {object} utils.ErrorResponse "Interval out of bounds"
// @Router /schedule [put]
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errors.BadRequest("Invalid request body"))
		return
	}

	if errs := h.validator.Validate(req); len(errs) > 0 {
		utils.WriteError(w, errors.ValidationError("Validation failed", errs))
		return
	}

	// Schedule updates survive request cancellation once accepted
	cfg, err := h.service.UpdateSchedule(context.WithoutCancel(r.Context()), req.Enabled, req.IntervalMinutes)
	if err != nil {
		writeServiceError(w, err, "Failed to update schedule")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, toScheduleDTO(cfg, h.service.CurrentState()))
}

func toScheduleDTO(cfg *scan.ScheduleConfig, state scheduler.State) dto.ScheduleDTO {
	return dto.ScheduleDTO{
		Enabled:         cfg.Enabled,
		IntervalMinutes: cfg.IntervalMinutes,
		NextRunAt:       cfg.NextRunAt,
		LastRunAt:       cfg.LastRunAt,
		UpdatedAt:       cfg.UpdatedAt,
		SchedulerState:  string(state),
	}
}
