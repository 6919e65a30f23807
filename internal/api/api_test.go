package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ruslano69/sqlassist/internal/testdb"
	_ "github.com/ruslano69/sqlassist/pkg/adapters/sqlite"
	"github.com/ruslano69/sqlassist/pkg/executor"
	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/feedback"
	"github.com/ruslano69/sqlassist/pkg/llm"
	"github.com/ruslano69/sqlassist/pkg/pipeline"
	"github.com/ruslano69/sqlassist/pkg/planner"
	"github.com/ruslano69/sqlassist/pkg/reconcile"
	"github.com/ruslano69/sqlassist/pkg/scheduler"
	"github.com/ruslano69/sqlassist/pkg/security"
	"github.com/ruslano69/sqlassist/pkg/session"
)

type testServer struct {
	router   http.Handler
	sessions *session.RedisStore
	feedback *feedback.Store
}

// newTestServer: реальный конвейер над двумя SQLite источниками, генератор
// отвечает reply/err, история в miniredis.
func newTestServer(t *testing.T, reply string, genErr error, withScheduler bool) *testServer {
	t.Helper()

	reg := testdb.CompanyRegistry(t)
	guard := security.NewSQLValidator(true)
	exec := executor.New(reg, executor.WithValidator(guard))
	rec, err := reconcile.New(exec, reg, reconcile.Config{})
	if err != nil {
		t.Fatal(err)
	}
	gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return reply, genErr
	})
	p := pipeline.New(planner.New(reg, gen, guard), exec, rec)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	sessions := session.NewRedisStore(rdb, session.StoreConfig{})

	fb, err := feedback.Open(filepath.Join(t.TempDir(), "feedback.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fb.Close() })

	deps := Deps{
		Pipeline:      p,
		Executor:      exec,
		DefaultSource: reg.Default(),
		Sessions:      sessions,
		Feedback:      fb,
		Checks: []Check{
			{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
			{Name: "feedback", Ping: fb.Ping},
		},
	}
	if withScheduler {
		store, err := scheduler.OpenStore(filepath.Join(t.TempDir(), "reports.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { store.Close() })
		deps.Scheduler, err = scheduler.New(scheduler.DefaultConfig(), store, exec, reg)
		if err != nil {
			t.Fatal(err)
		}
	}

	return &testServer{router: NewRouter(deps), sessions: sessions, feedback: fb}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rw := httptest.NewRecorder()
	s.router.ServeHTTP(rw, req)
	return rw
}

func decode[T any](t *testing.T, rw *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rw.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rw.Body.String(), err)
	}
	return v
}

// ────────────────────────────────────────────────────────────────────────────
// POST /api/chat
// ────────────────────────────────────────────────────────────────────────────

func TestChat_SingleSourceThenFeedback(t *testing.T) {
	s := newTestServer(t, "DATABASE:db1|QUERY:SELECT COUNT(*) AS total FROM employees;", nil, false)

	rw := s.do(t, http.MethodPost, "/api/chat", chatRequest{Message: "How many employees are there?"})
	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rw.Code, rw.Body)
	}
	resp := decode[chatResponse](t, rw)
	if resp.Response != "Result: 8" || resp.Source != "db1" || !strings.Contains(resp.SQLQuery, "COUNT(*)") {
		t.Errorf("response = %+v", resp)
	}
	if resp.SessionID == "" {
		t.Fatal("no session id assigned")
	}

	sess, err := s.sessions.Load(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.History) != 1 || sess.History[0].Source != "db1" {
		t.Errorf("history = %+v", sess.History)
	}

	rw = s.do(t, http.MethodPost, "/api/feedback", feedbackRequest{SessionID: resp.SessionID, Rating: 5, FeedbackText: "exact"})
	if rw.Code != http.StatusOK {
		t.Fatalf("feedback status = %d: %s", rw.Code, rw.Body)
	}

	rw = s.do(t, http.MethodGet, "/api/stats", nil)
	st := decode[feedback.Stats](t, rw)
	if st.TotalFeedback != 1 || st.PositiveFeedback != 1 || st.AverageRating != 5 {
		t.Errorf("stats = %+v", st)
	}

	// повторная оценка: ожидающих запросов больше нет
	rw = s.do(t, http.MethodPost, "/api/feedback", feedbackRequest{SessionID: resp.SessionID, Rating: 4})
	if rw.Code != http.StatusNotFound {
		t.Errorf("second feedback status = %d", rw.Code)
	}
}

func TestChat_KeepsSessionID(t *testing.T) {
	s := newTestServer(t, "DATABASE:db1|QUERY:SELECT name FROM departments ORDER BY id;", nil, false)

	for i := 0; i < 2; i++ {
		rw := s.do(t, http.MethodPost, "/api/chat", chatRequest{Message: "Which teams exist?", SessionID: "abc"})
		if rw.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rw.Code, rw.Body)
		}
		if got := decode[chatResponse](t, rw).SessionID; got != "abc" {
			t.Errorf("session id = %q", got)
		}
	}
	sess, _ := s.sessions.Load(context.Background(), "abc")
	if len(sess.History) != 2 {
		t.Errorf("history length = %d, want 2", len(sess.History))
	}
}

func TestChat_Failures(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		genErr   error
		message  string
		wantCode int
		wantKind failure.Kind
	}{
		{"unparsable plan", "I do not know", nil, "How many employees are there?", http.StatusUnprocessableEntity, failure.PlanParseError},
		{"generator down", "", errors.New("connection refused"), "How many employees are there?", http.StatusUnprocessableEntity, failure.PlanParseError},
		{"write rejected", "DATABASE:db1|QUERY:DROP TABLE employees;", nil, "Remove the employees", http.StatusUnprocessableEntity, failure.PlanParseError},
		{"missing table", "DATABASE:db1|QUERY:SELECT * FROM projects;", nil, "List projects", http.StatusBadRequest, failure.ExecutionError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.reply, tt.genErr, false)
			rw := s.do(t, http.MethodPost, "/api/chat", chatRequest{Message: tt.message, SessionID: "s1"})
			if rw.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rw.Code, tt.wantCode, rw.Body)
			}
			resp := decode[errorResponse](t, rw)
			if resp.Kind != tt.wantKind || resp.SessionID != "s1" || resp.Error == "" {
				t.Errorf("error response = %+v", resp)
			}

			sess, _ := s.sessions.Load(context.Background(), "s1")
			if len(sess.History) != 0 {
				t.Errorf("failed turn stored: %+v", sess.History)
			}
		})
	}
}

func TestChat_BadRequest(t *testing.T) {
	s := newTestServer(t, "", nil, false)

	rw := s.do(t, http.MethodPost, "/api/chat", chatRequest{Message: "   "})
	if rw.Code != http.StatusBadRequest {
		t.Errorf("empty message status = %d", rw.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("broken json status = %d", rec.Code)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// POST /api/execute
// ────────────────────────────────────────────────────────────────────────────

func TestExecute(t *testing.T) {
	s := newTestServer(t, "", nil, false)

	rw := s.do(t, http.MethodPost, "/api/execute", executeRequest{SQLQuery: "SELECT id, name FROM departments ORDER BY id"})
	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rw.Code, rw.Body)
	}
	resp := decode[executeResponse](t, rw)
	if resp.Source != "db1" || resp.RowCount != 3 || len(resp.Columns) != 2 || resp.Rows[2][1] != "HR" {
		t.Errorf("response = %+v", resp)
	}
	if !strings.Contains(resp.Formatted, "id  |  name") {
		t.Errorf("formatted = %q", resp.Formatted)
	}

	tests := []struct {
		name     string
		req      executeRequest
		wantCode int
		wantKind failure.Kind
	}{
		{"write query", executeRequest{SQLQuery: "DELETE FROM salaries", Source: "db2"}, http.StatusBadRequest, failure.ExecutionError},
		{"unknown source", executeRequest{SQLQuery: "SELECT 1", Source: "db9"}, http.StatusBadGateway, failure.ConnectionError},
		{"empty query", executeRequest{}, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw := s.do(t, http.MethodPost, "/api/execute", tt.req)
			if rw.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rw.Code, tt.wantCode, rw.Body)
			}
			if kind := decode[errorResponse](t, rw).Kind; kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", kind, tt.wantKind)
			}
		})
	}
}

func TestFeedback_Validation(t *testing.T) {
	s := newTestServer(t, "", nil, false)

	tests := []struct {
		name string
		req  feedbackRequest
		want int
	}{
		{"no session", feedbackRequest{Rating: 3}, http.StatusBadRequest},
		{"rating too high", feedbackRequest{SessionID: "x", Rating: 6}, http.StatusBadRequest},
		{"rating zero", feedbackRequest{SessionID: "x"}, http.StatusBadRequest},
		{"nothing to rate", feedbackRequest{SessionID: "x", Rating: 3}, http.StatusNotFound},
	}
	for _, tt := range tests {
		if rw := s.do(t, http.MethodPost, "/api/feedback", tt.req); rw.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rw.Code, tt.want)
		}
	}
}

// ────────────────────────────────────────────────────────────────────────────
// /api/schedule, /api/reports
// ────────────────────────────────────────────────────────────────────────────

func TestReports_Lifecycle(t *testing.T) {
	s := newTestServer(t, "", nil, true)

	rw := s.do(t, http.MethodPost, "/api/schedule", scheduleRequest{
		ReportName:   "Departments",
		SQLQuery:     "SELECT id, name FROM departments",
		ScheduleType: scheduler.Daily,
		ScheduleTime: "09:00",
	})
	if rw.Code != http.StatusCreated {
		t.Fatalf("schedule status = %d: %s", rw.Code, rw.Body)
	}
	created := decode[scheduleResponse](t, rw)
	if created.ID != 1 || created.NextRun.IsZero() {
		t.Errorf("created = %+v", created)
	}

	rw = s.do(t, http.MethodGet, "/api/reports", nil)
	reports := decode[[]scheduler.Report](t, rw)
	if len(reports) != 1 || reports[0].Source != "db1" || reports[0].Name != "Departments" {
		t.Errorf("reports = %+v", reports)
	}

	rw = s.do(t, http.MethodPost, "/api/reports/1/run", nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("run status = %d: %s", rw.Code, rw.Body)
	}
	if run := decode[scheduler.Run](t, rw); run.Status != scheduler.StatusSuccess || run.RowCount != 3 {
		t.Errorf("run = %+v", run)
	}

	rw = s.do(t, http.MethodGet, "/api/reports/1/results?limit=5", nil)
	runs := decode[[]scheduler.Run](t, rw)
	if len(runs) != 1 || runs[0].RowSet == nil || runs[0].RowSet.Len() != 3 {
		t.Errorf("results = %+v", runs)
	}

	if rw = s.do(t, http.MethodDelete, "/api/reports/1", nil); rw.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rw.Code)
	}
	if rw = s.do(t, http.MethodDelete, "/api/reports/1", nil); rw.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", rw.Code)
	}
	if rw = s.do(t, http.MethodPost, "/api/reports/1/run", nil); rw.Code != http.StatusNotFound {
		t.Errorf("run deleted report status = %d", rw.Code)
	}
}

func TestReports_BadInput(t *testing.T) {
	s := newTestServer(t, "", nil, true)

	tests := []struct {
		name, method, path string
		body               any
		want               int
	}{
		{"write query", http.MethodPost, "/api/schedule", scheduleRequest{ReportName: "x", SQLQuery: "DELETE FROM employees", ScheduleType: scheduler.Hourly}, http.StatusBadRequest},
		{"bad frequency", http.MethodPost, "/api/schedule", scheduleRequest{ReportName: "x", SQLQuery: "SELECT 1", ScheduleType: "monthly"}, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/reports/abc/results", nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/reports/1/results?limit=-1", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rw := s.do(t, tt.method, tt.path, tt.body); rw.Code != tt.want {
			t.Errorf("%s: status = %d, want %d: %s", tt.name, rw.Code, tt.want, rw.Body)
		}
	}
}

func TestReports_Disabled(t *testing.T) {
	s := newTestServer(t, "", nil, false)
	if rw := s.do(t, http.MethodGet, "/api/reports", nil); rw.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rw.Code)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// health, readiness, metrics
// ────────────────────────────────────────────────────────────────────────────

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, "", nil, false)

	if rw := s.do(t, http.MethodGet, "/healthz", nil); rw.Code != http.StatusOK {
		t.Errorf("healthz = %d", rw.Code)
	}
	rw := s.do(t, http.MethodGet, "/readyz", nil)
	if rw.Code != http.StatusOK {
		t.Errorf("readyz = %d: %s", rw.Code, rw.Body)
	}
	if checks := decode[map[string]string](t, rw); checks["redis"] != "ok" || checks["feedback"] != "ok" {
		t.Errorf("checks = %v", checks)
	}

	s.do(t, http.MethodPost, "/api/execute", executeRequest{SQLQuery: "SELECT 1"})
	rw = s.do(t, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rw.Body.String(), "sqlassist_source_queries_total") {
		t.Error("source query metric not exported")
	}
}

func TestReadyz_Failing(t *testing.T) {
	router := NewRouter(Deps{Checks: []Check{
		{Name: "db1", Ping: func(ctx context.Context) error { return errors.New("connection refused") }},
	}})
	rw := httptest.NewRecorder()
	router.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable || !strings.Contains(rw.Body.String(), "connection refused") {
		t.Errorf("readyz = %d %s", rw.Code, rw.Body)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{failure.New(failure.PlanParseError, "x"), http.StatusUnprocessableEntity},
		{failure.New(failure.ExecutionError, "x"), http.StatusBadRequest},
		{failure.New(failure.ConnectionError, "x"), http.StatusBadGateway},
		{failure.New(failure.PartialSourceFailure, "x"), http.StatusBadGateway},
		{failure.New(failure.GenerationError, "x"), http.StatusServiceUnavailable},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
