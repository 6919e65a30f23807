package pipeline

import (
	"time"

	"github.com/ruslano69/sqlassist/pkg/chart"
	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/intent"
	"github.com/ruslano69/sqlassist/pkg/planner"
	"github.com/ruslano69/sqlassist/pkg/rowset"
)

// State - шаг обработки запроса
type State string

const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StatePlanned    State = "planned"
	StateReconciled State = "reconciled"
	StateExecuted   State = "executed"
	StateFormatted  State = "formatted"
	StateVisualized State = "visualized"
	StateExplained  State = "explained"
	StateDelivered  State = "delivered"
	StateFailed     State = "failed"
)

// Route - ветка обработки
type Route string

const (
	RouteSingleSource Route = "single-source"
	RouteCrossSource  Route = "cross-source"
)

// Result is everything one Answer call produced. The caller owns it.
type Result struct {
	Question  string           `json:"question"`
	SessionID string           `json:"session_id"`
	Intent    intent.Intent    `json:"intent"`
	Route     Route            `json:"route"`
	Plan      *planner.Plan    `json:"plan,omitempty"`
	RowSet    *rowset.RowSet   `json:"rowset,omitempty"`
	Formatted string           `json:"formatted,omitempty"`
	Chart     *chart.Spec      `json:"chart,omitempty"`
	Narrative string           `json:"narrative,omitempty"`
	Failure   *failure.Failure `json:"error,omitempty"`
	Trace     []State          `json:"trace"`
	Duration  time.Duration    `json:"duration"`
}

// Failed reports whether the request ended in the Failed state.
func (r *Result) Failed() bool {
	return r.Failure != nil
}

// Source returns the planned source, or "cross-source" for reconciled answers.
func (r *Result) Source() string {
	if r.Plan != nil {
		return r.Plan.Source
	}
	if r.Route == RouteCrossSource {
		return string(RouteCrossSource)
	}
	return ""
}

// Query returns the planned query, if any.
func (r *Result) Query() string {
	if r.Plan != nil {
		return r.Plan.Query
	}
	return ""
}

// Message is the user-facing text: the formatted result, or the failure.
func (r *Result) Message() string {
	if r.Failure != nil {
		return "Sorry, I could not answer that: " + r.Failure.Error()
	}
	return r.Formatted
}

func (r *Result) enter(s State) {
	r.Trace = append(r.Trace, s)
}
