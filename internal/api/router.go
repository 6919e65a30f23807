// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruslano69/sqlassist/pkg/audit"
	"github.com/ruslano69/sqlassist/pkg/feedback"
	"github.com/ruslano69/sqlassist/pkg/pipeline"
	"github.com/ruslano69/sqlassist/pkg/rowset"
	"github.com/ruslano69/sqlassist/pkg/scheduler"
	"github.com/ruslano69/sqlassist/pkg/session"
)

// Answerer answers one question within a session.
type Answerer interface {
	Answer(ctx context.Context, sess session.Session, question string) *pipeline.Result
}

// Executor runs a query directly on a source.
type Executor interface {
	Execute(ctx context.Context, sourceID, query string) (*rowset.RowSet, error)
}

// Sessions loads and extends conversation history.
type Sessions interface {
	Load(ctx context.Context, id string) (session.Session, error)
	Append(ctx context.Context, id string, turn session.Turn) error
}

// Check - зависимость, проверяемая в /readyz
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Deps - все, что нужно обработчикам. Nil Sessions означает запросы без
// истории; nil Feedback или Scheduler отключают соответствующие маршруты (503).
type Deps struct {
	Pipeline       Answerer
	Executor       Executor
	DefaultSource  string
	Sessions       Sessions
	Feedback       *feedback.Store
	Scheduler      *scheduler.Scheduler
	Audit          audit.Logger
	Checks         []Check
	RequestTimeout time.Duration
}

type handler struct {
	Deps
}

// NewRouter wires the routes and returns the chi router.
func NewRouter(deps Deps) http.Handler {
	if deps.Audit == nil {
		deps.Audit = audit.NullLogger{}
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 2 * time.Minute
	}
	h := &handler{Deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", h.readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(deps.RequestTimeout))

		r.Post("/chat", h.chat)
		r.Post("/execute", h.execute)

		r.Post("/feedback", h.recordFeedback)
		r.Get("/stats", h.stats)

		r.Post("/schedule", h.schedule)
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.listReports)
			r.Get("/{id}/results", h.reportResults)
			r.Post("/{id}/run", h.runReport)
			r.Delete("/{id}", h.deleteReport)
		})
	})

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz pings every registered dependency.
func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.Checks))
	status := http.StatusOK
	for _, c := range h.Checks {
		checks[c.Name] = "ok"
		if err := c.Ping(ctx); err != nil {
			checks[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, checks)
}
