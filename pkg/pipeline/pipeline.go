// Package pipeline answers a question end to end: classify, plan or
// reconcile, execute, format, chart and explain.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/pkg/audit"
	"github.com/ruslano69/sqlassist/pkg/chart"
	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/feedback"
	"github.com/ruslano69/sqlassist/pkg/intent"
	"github.com/ruslano69/sqlassist/pkg/llm"
	"github.com/ruslano69/sqlassist/pkg/planner"
	"github.com/ruslano69/sqlassist/pkg/resultfmt"
	"github.com/ruslano69/sqlassist/pkg/rowset"
	"github.com/ruslano69/sqlassist/pkg/session"
)

// Executor runs a planned query.
type Executor interface {
	Execute(ctx context.Context, sourceID, query string) (*rowset.RowSet, error)
}

// Reconciler answers cross-source questions.
type Reconciler interface {
	Reconcile(ctx context.Context, question string) (*rowset.RowSet, error)
}

// Planner produces single-source plans.
type Planner interface {
	Plan(ctx context.Context, req planner.Request) (planner.Plan, error)
}

// ExampleSource supplies previously successful queries for few-shot prompts.
type ExampleSource interface {
	SimilarSuccessful(ctx context.Context, question string) ([]feedback.Pattern, error)
}

// Pipeline holds only read-only collaborators; Answer may run concurrently.
type Pipeline struct {
	classifier *intent.Classifier
	planner    Planner
	executor   Executor
	reconciler Reconciler
	charts     *chart.Selector
	narrator   llm.Generator
	examples   ExampleSource
	audit      audit.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNarrator enables the explanation step.
func WithNarrator(g llm.Generator) Option {
	return func(p *Pipeline) { p.narrator = g }
}

// WithExamples feeds rated queries into planning prompts.
func WithExamples(src ExampleSource) Option {
	return func(p *Pipeline) { p.examples = src }
}

// WithAudit writes one audit entry per Answer.
func WithAudit(l audit.Logger) Option {
	return func(p *Pipeline) { p.audit = l }
}

// WithClassifier overrides the keyword rules.
func WithClassifier(c *intent.Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// New creates a Pipeline.
func New(pl Planner, exec Executor, rec Reconciler, opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier: intent.New(),
		planner:    pl,
		executor:   exec,
		reconciler: rec,
		audit:      audit.NullLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.charts = chart.NewSelector(p.classifier)
	return p
}

// Answer runs one question through the pipeline. Hard failures end in the
// Failed state with Result.Failure set and no RowSet; chart and narrative
// problems only drop those parts.
func (p *Pipeline) Answer(ctx context.Context, sess session.Session, question string) *Result {
	start := time.Now()
	res := &Result{Question: question, SessionID: sess.ID}
	res.enter(StateReceived)

	res.Intent = p.classifier.Classify(question)
	res.enter(StateClassified)

	var err error
	if res.Intent.SpansMultipleSources {
		res.Route = RouteCrossSource
		err = p.reconcile(ctx, res)
	} else {
		res.Route = RouteSingleSource
		err = p.planAndExecute(ctx, sess, res)
	}
	if err != nil {
		p.fail(res, err)
		p.finish(ctx, res, start)
		return res
	}

	res.Formatted = resultfmt.Format(res.RowSet)
	res.enter(StateFormatted)

	if spec := p.charts.Select(question, res.RowSet); spec != nil {
		res.Chart = spec
		res.enter(StateVisualized)
	}

	if p.narrator != nil {
		if narrative, err := p.explain(ctx, res); err == nil {
			res.Narrative = narrative
			res.enter(StateExplained)
		} else {
			log.Warn().Err(err).Str("session", sess.ID).Msg("explanation skipped")
		}
	}

	res.enter(StateDelivered)
	p.finish(ctx, res, start)
	return res
}

func (p *Pipeline) reconcile(ctx context.Context, res *Result) error {
	log.Debug().Strs("rules", p.classifier.MatchedRules(res.Question)).Msg("cross-source question")
	rs, err := p.reconciler.Reconcile(ctx, res.Question)
	if err != nil {
		return err
	}
	res.RowSet = rs
	res.enter(StateReconciled)
	return nil
}

func (p *Pipeline) planAndExecute(ctx context.Context, sess session.Session, res *Result) error {
	req := planner.Request{Question: res.Question, History: sess.History}
	if p.examples != nil {
		patterns, err := p.examples.SimilarSuccessful(ctx, res.Question)
		if err != nil {
			log.Warn().Err(err).Msg("few-shot examples unavailable")
		}
		for _, pt := range patterns {
			req.Examples = append(req.Examples, planner.Example{Question: pt.Question, Source: pt.Source, Query: pt.SQL})
		}
	}

	plan, err := p.planner.Plan(ctx, req)
	if err != nil {
		return err
	}
	res.Plan = &plan
	res.enter(StatePlanned)

	rs, err := p.executor.Execute(ctx, plan.Source, plan.Query)
	if err != nil {
		return err
	}
	res.RowSet = rs
	res.enter(StateExecuted)
	return nil
}

const (
	explainPrompt = "Based on this query result, provide a brief natural language explanation:\n\n" +
		"Question: %s\nResults: %s\n\nExplanation:"
	explainSQLPrompt = "Based on this SQL query result, provide a brief natural language explanation:\n\n" +
		"Question: %s\nSQL: %s\nResults: %s\n\nExplanation:"
)

// ExplainPrompt builds the narration prompt; query may be empty.
func ExplainPrompt(question, query, formatted string) string {
	if query == "" {
		return fmt.Sprintf(explainPrompt, question, formatted)
	}
	return fmt.Sprintf(explainSQLPrompt, question, query, formatted)
}

func (p *Pipeline) explain(ctx context.Context, res *Result) (string, error) {
	prompt := ExplainPrompt(res.Question, res.Query(), res.Formatted)
	return p.narrator.Generate(llm.WithStage(ctx, "explain"), prompt)
}

func (p *Pipeline) fail(res *Result, err error) {
	var f *failure.Failure
	if !errors.As(err, &f) {
		f = failure.Wrap(failure.ExecutionError, err, "")
	}
	res.Failure = f
	res.RowSet = nil
	res.enter(StateFailed)
}

func (p *Pipeline) finish(ctx context.Context, res *Result, start time.Time) {
	res.Duration = time.Since(start)

	outcome := "delivered"
	if res.Failed() {
		outcome = string(res.Failure.Kind)
	}
	requestsTotal.WithLabelValues(string(res.Route), outcome).Inc()
	requestDuration.WithLabelValues(string(res.Route)).Observe(res.Duration.Seconds())

	entry := audit.NewEntry(audit.OpAnswer, audit.StatusSuccess).
		WithSession(res.SessionID).
		WithSource(res.Source()).
		WithResource(res.Question).
		WithRecords(res.RowSet.Len()).
		WithDuration(res.Duration).
		WithMetadata("route", string(res.Route))
	if res.Failed() {
		entry.WithError(string(res.Failure.Kind), res.Failure)
	} else if p.narrator != nil && res.Narrative == "" {
		entry.Status = audit.StatusPartial
	}
	if err := p.audit.Log(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn().Err(err).Msg("audit entry dropped")
	}

	event := log.Info()
	if res.Failed() {
		event = log.Warn().Str("kind", string(res.Failure.Kind)).Str("detail", res.Failure.Detail)
	}
	event.Str("session", res.SessionID).
		Str("route", string(res.Route)).
		Str("source", res.Source()).
		Int("rows", res.RowSet.Len()).
		Bool("chart", res.Chart != nil).
		Dur("elapsed", res.Duration).
		Msg("question answered")
}
