package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"winova/internal/dispatch"
	"winova/internal/planner"
	"winova/internal/schedule"
	"winova/internal/storage"
	"winova/internal/task/scheduler"
	logx "winova/pkg/logx"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// listLimit reads ?limit=, clamped to [1, maxListLimit].
func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeScheduleError maps validation failures to 400 and the rest to 500.
func writeScheduleError(w http.ResponseWriter, err error) {
	var se *schedule.ScheduleError
	if errors.As(err, &se) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Success: false, Message: se.Error(), Field: se.Field})
		return
	}
	if errors.Is(err, schedule.ErrInvalidSchedule) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

type alertHandler struct {
	planner Planner
	store   storage.Gateway
	log     logx.Logger
}

func (h *alertHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req AlertScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.planner.ScheduleAlert(r.Context(), req.spec(OwnerID(r.Context())))
	if err != nil {
		writeScheduleError(w, err)
		return
	}

	resp := AlertScheduleResponse{Success: true, ScheduleID: res.ScheduleID, JobID: res.JobID}
	if res.Registered {
		t := res.TriggerTime
		resp.TriggerTime = &t
	}
	switch {
	case res.Immediate:
		t := res.TriggeredAt
		resp.TriggeredAt = &t
		resp.Message = "Alert triggered immediately (deadline is within the advance notice period)"
		if !res.Dispatched {
			resp.Message = "Alert scheduled; immediate trigger failed"
		}
	default:
		resp.Message = "Alert scheduled successfully"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *alertHandler) TriggerNow(w http.ResponseWriter, r *http.Request) {
	var req AlertScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	at, err := h.planner.TriggerAlertNow(r.Context(), req.spec(OwnerID(r.Context())))
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TriggerResponse{Success: true, Message: "Alert triggered", TriggeredAt: at})
}

func (h *alertHandler) List(w http.ResponseWriter, r *http.Request) {
	var out []dispatch.AlertRecord
	if err := h.store.Find(r.Context(), storage.Alerts, storage.Newest(OwnerID(r.Context()), listLimit(r)), &out); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
}

func (h *alertHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	var out []planner.AlertDefinition
	if err := h.store.Find(r.Context(), storage.AlertSchedules, storage.Newest(OwnerID(r.Context()), listLimit(r)), &out); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": out})
}

type reportHandler struct {
	planner Planner
	store   storage.Gateway
	log     logx.Logger
}

func (h *reportHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req ReportScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.planner.ScheduleReport(r.Context(), req.spec(OwnerID(r.Context())))
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReportScheduleResponse{
		Success:    true,
		Message:    "Report scheduled successfully",
		ScheduleID: res.ScheduleID,
		JobID:      res.JobID,
		NextRun:    res.NextRun,
	})
}

func (h *reportHandler) GenerateNow(w http.ResponseWriter, r *http.Request) {
	var req ReportScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	at, err := h.planner.GenerateReportNow(r.Context(), req.spec(OwnerID(r.Context())))
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidSchedule) {
			writeScheduleError(w, err)
			return
		}
		h.log.Warn("report generation failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate report: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, TriggerResponse{Success: true, Message: "Report generated", TriggeredAt: at})
}

func (h *reportHandler) List(w http.ResponseWriter, r *http.Request) {
	var out []dispatch.ReportRecord
	if err := h.store.Find(r.Context(), storage.Reports, storage.Newest(OwnerID(r.Context()), listLimit(r)), &out); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": out})
}

func (h *reportHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	var out []planner.ReportDefinition
	if err := h.store.Find(r.Context(), storage.ReportSchedules, storage.Newest(OwnerID(r.Context()), listLimit(r)), &out); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": out})
}

type jobHandler struct {
	planner Planner
	jobs    JobLister
}

// List returns the caller's jobs in fire order.
func (h *jobHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"jobs": []scheduler.JobInfo{}})
		return
	}
	owner := OwnerID(r.Context())
	snap := h.jobs.Snapshot()
	out := make([]scheduler.JobInfo, 0, len(snap.Jobs))
	for _, j := range snap.Jobs {
		if j.OwnerID == owner {
			out = append(out, j)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running":  snap.Running,
		"timezone": snap.Timezone,
		"jobs":     out,
	})
}

func (h *jobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.planner.Cancel(r.Context(), OwnerID(r.Context()), id); err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Job cancelled", "job_id": id})
}

func (h *jobHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req EnabledRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "enabled is required", Field: "enabled"})
		return
	}
	if err := h.planner.SetEnabled(r.Context(), OwnerID(r.Context()), id, *req.Enabled); err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": id, "enabled": *req.Enabled})
}

func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, planner.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, planner.ErrForbidden):
		writeError(w, http.StatusForbidden, "job belongs to another owner")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type healthHandler struct {
	store storage.Gateway
	redis *redis.Client
}

func (h *healthHandler) Health(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{}
	status := "healthy"

	if h.store == nil || h.store.Ping(r.Context()) != nil {
		services["storage"] = "unhealthy"
		status = "unhealthy"
	} else {
		services["storage"] = "healthy"
	}

	if h.redis != nil {
		if err := h.redis.Ping(r.Context()).Err(); err != nil {
			services["redis"] = "unhealthy"
			status = "unhealthy"
		} else {
			services["redis"] = "healthy"
		}
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{Status: status, Services: services})
}
