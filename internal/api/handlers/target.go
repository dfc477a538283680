package handlers

import (
	"net/http"
	"time"

	"github.com/datapolicy/policyscan/internal/api/dto"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
	"github.com/datapolicy/policyscan/internal/pkg/utils"
	"github.com/datapolicy/policyscan/internal/targetdb"
)

type TargetHandler struct {
	target targetdb.Executor
	logger *logger.Logger
}

func NewTargetHandler(target targetdb.Executor, log *logger.Logger) *TargetHandler {
	return &TargetHandler{target: target, logger: log}
}

// Test checks connectivity to the target database
// @Summary Test target connection
// @Description Ping the target database and report reachability
// @Tags Target
// @Produce json
// @Success 200 {object} utils.SuccessResponse{data=dto.TargetStatusDTO} "Connectivity result"
// @Router /target/test [post]
func (h *TargetHandler) Test(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	err := h.target.Ping(r.Context())

	status := dto.TargetStatusDTO{
		Reachable: err == nil,
		LatencyMS: time.Since(started).Milliseconds(),
	}
	if err != nil {
		h.logger.ErrorWithErr(err, "Target ping failed")
		status.Error = err.Error()
	}

	utils.WriteSuccess(w, http.StatusOK, status)
}

// Schema returns a fresh snapshot of the target schema
// @Summary Inspect target schema
// @Description Capture and return the current target database schema
// @Tags Target
// @Produce json
// @Success 200 {object} utils.SuccessResponse{data=dto.SchemaDTO} "Schema snapshot"
// @Failure 502 {object} utils.ErrorResponse "Target unreachable"
// @Router /target/schema [get]
func (h *TargetHandler) Schema(w http.ResponseWriter, r *http.Request) {
	snap, err := h.target.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, err, "Failed to inspect target schema")
		return
	}

	out := dto.SchemaDTO{
		Hash:       snap.Hash(),
		CapturedAt: snap.CapturedAt,
		Tables:     make([]dto.TableDTO, len(snap.Tables)),
	}
	for i, t := range snap.Tables {
		cols := make([]dto.ColumnDTO, len(t.Columns))
		for j, c := range t.Columns {
			cols[j] = dto.ColumnDTO{
				Name:       c.Name,
				DataType:   c.DataType,
				Nullable:   c.Nullable,
				PrimaryKey: c.PrimaryKey,
			}
		}
		out.Tables[i] = dto.TableDTO{Name: t.Name, Columns: cols}
	}

	utils.WriteSuccess(w, http.StatusOK, out)
}
