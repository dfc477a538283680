package handlers

import (
	"net/http"

	"github.com/datapolicy/policyscan/internal/api/dto"
	"github.com/datapolicy/policyscan/internal/domain/scan"
	"github.com/datapolicy/policyscan/internal/pkg/errors"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
	"github.com/datapolicy/policyscan/internal/pkg/utils"
)

type ScanHandler struct {
	service  scan.Service
	schedule ScheduleService
	logger   *logger.Logger
}

func NewScanHandler(service scan.Service, schedule ScheduleService, log *logger.Logger) *ScanHandler {
	return &ScanHandler{service: service, schedule: schedule, logger: log}
}

// Trigger starts a manual scan
// @Summary Trigger scan
// @Description Start a manual scan. The scan completes in the background.
// @Tags Scans
// @Produce json
// @Success 202 {object} utils.SuccessResponse{data=dto.ScanRunDTO} "Scan accepted"
// @Failure 409 {object} utils.ErrorResponse "A scan is already running"
// @Router /scans [post]
func (h *ScanHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.TriggerAsync(r.Context(), scan.TriggerManual)
	if err != nil {
		writeServiceError(w, err, "Failed to start scan")
		return
	}

	utils.WriteSuccess(w, http.StatusAccepted, toScanRunDTO(run))
}

// List returns past scan runs
// @Summary List scan runs
// @Description Get a paginated list of scan runs, newest first
// @Tags Scans
// @Produce json
// @Param page query int false "Page number (default: 1)"
// @Param page_size query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} utils.PaginatedResponse{data=[]dto.ScanRunDTO} "List of runs"
// @Failure 500 {object} utils.ErrorResponse "Internal server error"
// @Router /scans [get]
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	p := utils.ParsePaginationParams(r)

	runs, total, err := h.service.List(r.Context(), p)
	if err != nil {
		writeServiceError(w, err, "Failed to list scan runs")
		return
	}

	dtos := make([]dto.ScanRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toScanRunDTO(run)
	}

	utils.WriteSuccess(w, http.StatusOK, utils.NewPaginatedResponse(dtos, p.Page, p.PageSize, int64(total)))
}

// Get returns a scan run with its per-rule outcomes
// @Summary Get scan run
// @Description Get a scan run by ID, including per-rule outcomes
// @Tags Scans
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} utils.SuccessResponse{data=dto.ScanRunDTO} "Run details"
// @Failure 404 {object} utils.ErrorResponse "Run not found"
// @Router /scans/{id} [get]
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		utils.WriteError(w, err.(*errors.AppError))
		return
	}

	run, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get scan run")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, toScanRunDTO(run))
}

// Status returns the scheduler state, the current or latest run, and the schedule
// @Summary Scan status
// @Description Get the scheduler state, the running scan if one exists (otherwise the most recent run), and the schedule
// @Tags Scans
// @Produce json
// @Success 200 {object} utils.SuccessResponse{data=dto.ScanStatusDTO} "Scan status"
// @Failure 500 {object} utils.ErrorResponse "Internal server error"
// @Router /scans/status [get]
func (h *ScanHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := dto.ScanStatusDTO{State: string(h.schedule.CurrentState())}

	run, err := h.service.CurrentStatus(r.Context())
	if err != nil {
		// No runs yet is a valid status, not an error
		if appErr, ok := err.(*errors.AppError); !ok || appErr.Code != errors.ErrCodeNotFound {
			writeServiceError(w, err, "Failed to get scan status")
			return
		}
	} else {
		d := toScanRunDTO(run)
		status.Run = &d
	}

	if cfg, err := h.schedule.GetSchedule(r.Context()); err == nil {
		s := toScheduleDTO(cfg, h.schedule.CurrentState())
		status.Schedule = &s
	}

	utils.WriteSuccess(w, http.StatusOK, status)
}

func toScanRunDTO(run *scan.Run) dto.ScanRunDTO {
	out := dto.ScanRunDTO{
		ID:              run.ID.String(),
		Status:          string(run.Status),
		Trigger:         string(run.Trigger),
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		Error:           run.Error,
		RulesEvaluated:  run.RulesEvaluated,
		RulesSucceeded:  run.RulesSucceeded,
		NewCount:        run.NewCount,
		PersistingCount: run.PersistingCount,
		ResolvedCount:   run.ResolvedCount,
	}
	for _, o := range run.Outcomes {
		out.Outcomes = append(out.Outcomes, dto.RuleOutcomeDTO{
			RuleID:     o.RuleID.String(),
			RuleCode:   o.RuleCode,
			Outcome:    string(o.Outcome),
			Detail:     o.Detail,
			RowCount:   o.RowCount,
			DurationMS: o.Duration.Milliseconds(),
		})
	}
	return out
}
