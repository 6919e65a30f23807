package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/pkg/scheduler"
)

type scheduleRequest struct {
	ReportName   string              `json:"report_name"`
	SQLQuery     string              `json:"sql_query"`
	DatabaseName string              `json:"database_name,omitempty"`
	ScheduleType scheduler.Frequency `json:"schedule_type"`
	ScheduleTime string              `json:"schedule_time,omitempty"`
}

type scheduleResponse struct {
	ID      int64     `json:"id"`
	NextRun time.Time `json:"next_run"`
}

func (h *handler) schedule(w http.ResponseWriter, r *http.Request) {
	if !h.schedulerEnabled(w) {
		return
	}

	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	ctx := r.Context()
	id, err := h.Scheduler.Schedule(ctx, req.ReportName, req.SQLQuery, req.DatabaseName, req.ScheduleType, req.ScheduleTime)
	if err != nil {
		if id == 0 {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// отчет сохранен, но задача cron не зарегистрирована
		log.Error().Err(err).Int64("report", id).Msg("report stored without job")
	}

	report, err := h.Scheduler.Report(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, scheduleResponse{ID: id, NextRun: report.NextRun})
}

func (h *handler) listReports(w http.ResponseWriter, r *http.Request) {
	if !h.schedulerEnabled(w) {
		return
	}
	reports, err := h.Scheduler.Reports(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reports == nil {
		reports = []scheduler.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *handler) reportResults(w http.ResponseWriter, r *http.Request) {
	if !h.schedulerEnabled(w) {
		return
	}
	id, ok := reportID(w, r)
	if !ok {
		return
	}

	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.Scheduler.Results(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// runReport runs a report now. A failed query still answers 200 with the
// stored failed run.
func (h *handler) runReport(w http.ResponseWriter, r *http.Request) {
	if !h.schedulerEnabled(w) {
		return
	}
	id, ok := reportID(w, r)
	if !ok {
		return
	}

	run, err := h.Scheduler.RunReport(r.Context(), id)
	switch {
	case errors.Is(err, scheduler.ErrReportNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case run == nil:
		writeFailure(w, err, "")
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

func (h *handler) deleteReport(w http.ResponseWriter, r *http.Request) {
	if !h.schedulerEnabled(w) {
		return
	}
	id, ok := reportID(w, r)
	if !ok {
		return
	}

	err := h.Scheduler.Deactivate(r.Context(), id)
	switch {
	case errors.Is(err, scheduler.ErrReportNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *handler) schedulerEnabled(w http.ResponseWriter) bool {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is disabled")
		return false
	}
	return true
}

func reportID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid report id")
		return 0, false
	}
	return id, true
}
