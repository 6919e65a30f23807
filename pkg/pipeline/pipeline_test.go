package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ruslano69/sqlassist/internal/testdb"
	_ "github.com/ruslano69/sqlassist/pkg/adapters/sqlite"
	"github.com/ruslano69/sqlassist/pkg/audit"
	"github.com/ruslano69/sqlassist/pkg/chart"
	"github.com/ruslano69/sqlassist/pkg/executor"
	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/feedback"
	"github.com/ruslano69/sqlassist/pkg/llm"
	"github.com/ruslano69/sqlassist/pkg/planner"
	"github.com/ruslano69/sqlassist/pkg/reconcile"
	"github.com/ruslano69/sqlassist/pkg/rowset"
	"github.com/ruslano69/sqlassist/pkg/security"
	"github.com/ruslano69/sqlassist/pkg/session"
)

type memAudit struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (m *memAudit) Log(ctx context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) Close() error { return nil }

type staticExamples []feedback.Pattern

func (s staticExamples) SimilarSuccessful(ctx context.Context, question string) ([]feedback.Pattern, error) {
	return s, nil
}

// recorder отвечает заранее заданным текстом и запоминает промпты
type recorder struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (r *recorder) Generate(ctx context.Context, prompt string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	return r.reply, r.err
}

func newPipeline(t *testing.T, plan llm.Generator, opts ...Option) *Pipeline {
	t.Helper()
	reg := testdb.CompanyRegistry(t)
	exec := executor.New(reg, executor.WithValidator(security.NewSQLValidator(true)))
	rec, err := reconcile.New(exec, reg, reconcile.Config{})
	if err != nil {
		t.Fatal(err)
	}
	pl := planner.New(reg, plan, security.NewSQLValidator(true))
	return New(pl, exec, rec, opts...)
}

func TestAnswer_SingleSource(t *testing.T) {
	gen := &recorder{reply: "DATABASE:db1|QUERY:SELECT COUNT(*) AS total FROM employees;"}
	log := &memAudit{}
	p := newPipeline(t, gen, WithAudit(log))

	res := p.Answer(context.Background(), session.New("s1", nil), "How many employees are there?")
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Failure)
	}

	want := []State{StateReceived, StateClassified, StatePlanned, StateExecuted, StateFormatted, StateDelivered}
	if !reflect.DeepEqual(res.Trace, want) {
		t.Errorf("trace = %v, want %v", res.Trace, want)
	}
	if res.Route != RouteSingleSource || res.Source() != "db1" {
		t.Errorf("route = %s, source = %s", res.Route, res.Source())
	}
	if !strings.Contains(res.Formatted, "8") {
		t.Errorf("formatted = %q", res.Formatted)
	}
	if res.Chart != nil {
		t.Errorf("unexpected chart %+v", res.Chart)
	}

	if len(log.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(log.entries))
	}
	e := log.entries[0]
	if e.Operation != audit.OpAnswer || e.Status != audit.StatusSuccess || e.SessionID != "s1" || e.Source != "db1" {
		t.Errorf("audit entry = %+v", e)
	}
}

func TestAnswer_CrossSourceWithChartAndNarrative(t *testing.T) {
	plan := &recorder{err: errors.New("planner must not be called")}
	narrator := &recorder{reply: "Charlie leads Engineering."}
	p := newPipeline(t, plan, WithNarrator(narrator))

	res := p.Answer(context.Background(), session.New("", nil), "Show the top paid employees per department")
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Failure)
	}
	if len(plan.prompts) != 0 {
		t.Errorf("planner called %d times", len(plan.prompts))
	}

	want := []State{StateReceived, StateClassified, StateReconciled, StateFormatted, StateVisualized, StateExplained, StateDelivered}
	if !reflect.DeepEqual(res.Trace, want) {
		t.Errorf("trace = %v, want %v", res.Trace, want)
	}
	if res.Route != RouteCrossSource || res.Source() != "cross-source" {
		t.Errorf("route = %s, source = %s", res.Route, res.Source())
	}
	if res.RowSet.Len() != 6 {
		t.Errorf("rows = %d, want 6", res.RowSet.Len())
	}
	if res.Chart == nil || res.Chart.Kind != chart.KindHorizontalBar {
		t.Errorf("chart = %+v", res.Chart)
	}
	if res.Narrative != "Charlie leads Engineering." {
		t.Errorf("narrative = %q", res.Narrative)
	}

	if len(narrator.prompts) != 1 {
		t.Fatalf("narrator prompts = %d", len(narrator.prompts))
	}
	prompt := narrator.prompts[0]
	if !strings.Contains(prompt, "Question: Show the top paid employees per department") ||
		strings.Contains(prompt, "SQL:") || !strings.HasSuffix(prompt, "Explanation:") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestAnswer_PlanParseFailure(t *testing.T) {
	log := &memAudit{}
	p := newPipeline(t, &recorder{reply: "I am not sure what you mean."}, WithAudit(log))

	res := p.Answer(context.Background(), session.New("s2", nil), "How many employees are there?")
	if !res.Failed() {
		t.Fatal("expected failure")
	}
	if res.Failure.Kind != failure.PlanParseError {
		t.Errorf("kind = %s, want %s", res.Failure.Kind, failure.PlanParseError)
	}
	if res.RowSet != nil {
		t.Error("failed result must not carry a RowSet")
	}
	if last := res.Trace[len(res.Trace)-1]; last != StateFailed {
		t.Errorf("last state = %s", last)
	}
	if !strings.HasPrefix(res.Message(), "Sorry") {
		t.Errorf("message = %q", res.Message())
	}
	if e := log.entries[0]; e.Status != audit.StatusFailure || e.ErrorKind != string(failure.PlanParseError) {
		t.Errorf("audit entry = %+v", e)
	}
}

func TestAnswer_ExecutionFailure(t *testing.T) {
	p := newPipeline(t, &recorder{reply: "DATABASE:db1|QUERY:SELECT * FROM missing_table;"})

	res := p.Answer(context.Background(), session.New("", nil), "List all projects")
	if !res.Failed() || res.Failure.Kind != failure.ExecutionError {
		t.Fatalf("failure = %v, want ExecutionError", res.Failure)
	}
	if res.Plan == nil || res.Plan.Source != "db1" {
		t.Errorf("plan = %+v", res.Plan)
	}
	want := []State{StateReceived, StateClassified, StatePlanned, StateFailed}
	if !reflect.DeepEqual(res.Trace, want) {
		t.Errorf("trace = %v, want %v", res.Trace, want)
	}
}

// downSource отказывает в подключении к одному источнику, остальные идут в настоящий executor
type downSource struct {
	next   *executor.Executor
	source string
}

func (d downSource) Execute(ctx context.Context, sourceID, query string) (*rowset.RowSet, error) {
	if sourceID == d.source {
		return nil, failure.Wrap(failure.ConnectionError, errors.New("connection refused"), "").WithSource(sourceID)
	}
	return d.next.Execute(ctx, sourceID, query)
}

func TestAnswer_CrossSourcePartialFailure(t *testing.T) {
	reg := testdb.CompanyRegistry(t)
	exec := downSource{next: executor.New(reg), source: "db2"}
	rec, err := reconcile.New(exec, reg, reconcile.Config{})
	if err != nil {
		t.Fatal(err)
	}
	plan := &recorder{err: errors.New("planner must not be called")}
	narrator := &recorder{reply: "unused"}
	log := &memAudit{}
	p := New(planner.New(reg, plan, security.NewSQLValidator(true)), exec, rec,
		WithNarrator(narrator), WithAudit(log))

	res := p.Answer(context.Background(), session.New("s1", nil), "Show a chart of the top salaries per department")
	if !res.Failed() {
		t.Fatal("expected failure")
	}
	if res.Failure.Kind != failure.PartialSourceFailure {
		t.Errorf("kind = %s, want %s", res.Failure.Kind, failure.PartialSourceFailure)
	}
	var cause *failure.Failure
	if !errors.As(res.Failure.Err, &cause) || cause.Kind != failure.ConnectionError || cause.Source != "db2" {
		t.Errorf("cause = %+v, want db2 ConnectionError", cause)
	}
	if res.Chart != nil {
		t.Errorf("chart must not be built, got %+v", res.Chart)
	}
	if res.RowSet != nil {
		t.Errorf("rowset must be nil, got %+v", res.RowSet)
	}
	want := []State{StateReceived, StateClassified, StateFailed}
	if !reflect.DeepEqual(res.Trace, want) {
		t.Errorf("trace = %v, want %v", res.Trace, want)
	}
	if len(plan.prompts) != 0 || len(narrator.prompts) != 0 {
		t.Errorf("generator calls: planner %d, narrator %d", len(plan.prompts), len(narrator.prompts))
	}
	if len(log.entries) != 1 || log.entries[0].Status != audit.StatusFailure {
		t.Errorf("audit entries = %+v", log.entries)
	}
}

func TestAnswer_NarratorFailureIsPartial(t *testing.T) {
	log := &memAudit{}
	gen := &recorder{reply: "DATABASE:db1|QUERY:SELECT name FROM departments ORDER BY id;"}
	p := newPipeline(t, gen, WithAudit(log), WithNarrator(&recorder{err: errors.New("model offline")}))

	res := p.Answer(context.Background(), session.New("", nil), "Which teams exist?")
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Failure)
	}
	if res.Narrative != "" {
		t.Errorf("narrative = %q", res.Narrative)
	}
	if last := res.Trace[len(res.Trace)-1]; last != StateDelivered {
		t.Errorf("last state = %s", last)
	}
	if e := log.entries[0]; e.Status != audit.StatusPartial {
		t.Errorf("audit status = %s, want partial", e.Status)
	}
}

func TestAnswer_UsesHistoryAndExamples(t *testing.T) {
	gen := &recorder{reply: "DATABASE:db1|QUERY:SELECT name FROM employees;"}
	examples := staticExamples{{Question: "Who works here?", Source: "db1", SQL: "SELECT name FROM employees;"}}
	p := newPipeline(t, gen, WithExamples(examples))

	sess := session.New("s3", []session.Turn{{Question: "How many employees?", Source: "db1", Query: "SELECT COUNT(*) FROM employees;"}})
	res := p.Answer(context.Background(), sess, "And their names?")
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Failure)
	}

	prompt := gen.prompts[0]
	for _, want := range []string{"Previous conversation:", "How many employees?", "Previously successful queries:", "Who works here?"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestExplainPrompt(t *testing.T) {
	got := ExplainPrompt("q", "SELECT 1;", "1")
	want := "Based on this SQL query result, provide a brief natural language explanation:\n\nQuestion: q\nSQL: SELECT 1;\nResults: 1\n\nExplanation:"
	if got != want {
		t.Errorf("got %q", got)
	}
	if got := ExplainPrompt("q", "", "1"); strings.Contains(got, "SQL") {
		t.Errorf("cross-source prompt mentions SQL: %q", got)
	}
}
