// Package planner turns a question into a single-source query plan by
// delegating to a text generator and validating the reply.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/llm"
	"github.com/ruslano69/sqlassist/pkg/registry"
	"github.com/ruslano69/sqlassist/pkg/security"
	"github.com/ruslano69/sqlassist/pkg/session"
)

// Plan is a validated (source, query) pair.
type Plan struct {
	Source string `json:"source"`
	Query  string `json:"query"`
}

// Request - входные данные планирования
type Request struct {
	Question string
	History  []session.Turn
	Examples []Example
}

// Planner produces Plans.
type Planner struct {
	registry  *registry.Registry
	generator llm.Generator
	validator *security.SQLValidator
}

// New creates a Planner. A nil validator skips the read-only check.
func New(reg *registry.Registry, gen llm.Generator, validator *security.SQLValidator) *Planner {
	return &Planner{registry: reg, generator: gen, validator: validator}
}

// Plan asks the generator for a query and validates the answer.
// All errors are *failure.Failure of kind PlanParseError; a generator
// failure is kept in the chain so failure.IsKind(err, GenerationError) works on Unwrap.
func (p *Planner) Plan(ctx context.Context, req Request) (Plan, error) {
	start := time.Now()
	prompt := BuildPrompt(p.registry.SchemaText(), req.Question, req.History, req.Examples)

	response, err := p.generator.Generate(llm.WithStage(ctx, "plan"), prompt)
	if err != nil {
		return Plan{}, failure.Wrap(failure.PlanParseError, err, "query generation failed: "+err.Error())
	}

	plan, err := Parse(response, p.registry.Default())
	if err != nil {
		log.Debug().Str("response", response).Msg("unparsable plan")
		return Plan{}, failure.Wrap(failure.PlanParseError, err, "")
	}

	if !p.registry.Has(plan.Source) {
		return Plan{}, failure.New(failure.PlanParseError,
			fmt.Sprintf("planned source %q is not configured", plan.Source)).WithSource(plan.Source)
	}
	if err := p.validator.Validate(plan.Query); err != nil {
		return Plan{}, failure.Wrap(failure.PlanParseError, err, "").WithSource(plan.Source)
	}

	log.Debug().
		Str("source", plan.Source).
		Str("query", plan.Query).
		Dur("elapsed", time.Since(start)).
		Msg("query planned")
	return plan, nil
}
