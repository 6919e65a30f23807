package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/pkg/audit"
	"github.com/ruslano69/sqlassist/pkg/chart"
	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/feedback"
	"github.com/ruslano69/sqlassist/pkg/pipeline"
	"github.com/ruslano69/sqlassist/pkg/resultfmt"
	"github.com/ruslano69/sqlassist/pkg/session"
)

// ────────────────────────────────────────────────────────────────────────────
// POST /api/chat
// ────────────────────────────────────────────────────────────────────────────

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Response  string           `json:"response"`
	SQLQuery  string           `json:"sql_query,omitempty"`
	Source    string           `json:"source,omitempty"`
	Chart     *chart.Spec      `json:"chart,omitempty"`
	Narrative string           `json:"narrative,omitempty"`
	Trace     []pipeline.State `json:"trace"`
	SessionID string           `json:"session_id"`
	Timestamp time.Time        `json:"timestamp"`
}

// chat answers one question, then records the turn in the session history
// and, for single-source answers, in the feedback log.
func (h *handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	sess := h.loadSession(ctx, req.SessionID)

	res := h.Pipeline.Answer(ctx, sess, req.Message)
	if res.Failed() {
		writeFailure(w, res.Failure, sess.ID)
		return
	}

	h.remember(ctx, sess.ID, res)

	writeJSON(w, http.StatusOK, chatResponse{
		Response:  res.Message(),
		SQLQuery:  res.Query(),
		Source:    res.Source(),
		Chart:     res.Chart,
		Narrative: res.Narrative,
		Trace:     res.Trace,
		SessionID: sess.ID,
		Timestamp: time.Now().UTC(),
	})
}

// loadSession never fails the request: without history the question is
// still answerable.
func (h *handler) loadSession(ctx context.Context, id string) session.Session {
	if h.Sessions == nil {
		return session.New(id, nil)
	}
	sess, err := h.Sessions.Load(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("session", id).Msg("session history unavailable")
		return session.New(id, nil)
	}
	return sess
}

func (h *handler) remember(ctx context.Context, sessionID string, res *pipeline.Result) {
	ctx = context.WithoutCancel(ctx)

	if h.Sessions != nil {
		turn := session.Turn{
			Question: res.Question,
			Source:   res.Source(),
			Query:    res.Query(),
			Answer:   res.Formatted,
		}
		if err := h.Sessions.Append(ctx, sessionID, turn); err != nil {
			log.Warn().Err(err).Str("session", sessionID).Msg("session turn not saved")
		}
	}

	if h.Feedback != nil && res.Route == pipeline.RouteSingleSource {
		if err := h.Feedback.LogQuery(ctx, sessionID, res.Question, res.Query(), res.Source(), res.RowSet.Len()); err != nil {
			log.Warn().Err(err).Str("session", sessionID).Msg("query not logged for feedback")
		}
	}
}

// ────────────────────────────────────────────────────────────────────────────
// POST /api/execute
// ────────────────────────────────────────────────────────────────────────────

type executeRequest struct {
	SQLQuery string `json:"sql_query"`
	Source   string `json:"source,omitempty"`
}

type executeResponse struct {
	Source    string   `json:"source"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Formatted string   `json:"formatted"`
}

func (h *handler) execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if strings.TrimSpace(req.SQLQuery) == "" {
		writeError(w, http.StatusBadRequest, "sql_query is required")
		return
	}
	if req.Source == "" {
		req.Source = h.DefaultSource
	}

	ctx := r.Context()
	start := time.Now()
	rs, err := h.Executor.Execute(ctx, req.Source, req.SQLQuery)

	entry := audit.NewEntry(audit.OpExecute, audit.StatusSuccess).
		WithSource(req.Source).
		WithResource(req.SQLQuery).
		WithDuration(time.Since(start))
	if err != nil {
		kind, _ := failure.KindOf(err)
		entry.WithError(string(kind), err)
	} else {
		entry.WithRecords(rs.Len())
	}
	h.logAudit(ctx, entry)

	if err != nil {
		writeFailure(w, err, "")
		return
	}

	rows := rs.Rows
	if rows == nil {
		rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, executeResponse{
		Source:    req.Source,
		Columns:   rs.Columns,
		Rows:      rows,
		RowCount:  rs.Len(),
		Formatted: resultfmt.Format(rs),
	})
}

// ────────────────────────────────────────────────────────────────────────────
// POST /api/feedback, GET /api/stats
// ────────────────────────────────────────────────────────────────────────────

type feedbackRequest struct {
	SessionID    string `json:"session_id"`
	Rating       int    `json:"rating"`
	FeedbackText string `json:"feedback_text,omitempty"`
}

func (h *handler) recordFeedback(w http.ResponseWriter, r *http.Request) {
	if h.Feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback is disabled")
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	ctx := r.Context()
	err := h.Feedback.RecordFeedback(ctx, req.SessionID, req.Rating, req.FeedbackText)

	entry := audit.NewEntry(audit.OpFeedback, audit.StatusSuccess).
		WithSession(req.SessionID).
		WithMetadata("rating", req.Rating).
		WithError("", err)
	h.logAudit(ctx, entry)

	switch {
	case errors.Is(err, feedback.ErrNoPendingQuery):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		log.Error().Err(err).Str("session", req.SessionID).Msg("feedback not recorded")
		writeError(w, http.StatusInternalServerError, "feedback not recorded")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
	}
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	if h.Feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback is disabled")
		return
	}
	st, err := h.Feedback.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("feedback stats")
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) logAudit(ctx context.Context, e *audit.Entry) {
	if err := h.Audit.Log(context.WithoutCancel(ctx), e); err != nil {
		log.Warn().Err(err).Msg("audit entry dropped")
	}
}
