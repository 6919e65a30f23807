package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/resilience"
)

var generationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sqlassist_generation_failures_total",
	Help: "Text generation failures by pipeline stage.",
}, []string{"stage"})

type stageKey struct{}

// WithStage labels generation calls made with ctx (e.g. "plan", "explain").
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey{}, stage)
}

func stageOf(ctx context.Context) string {
	if s, ok := ctx.Value(stageKey{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// Guarded wraps a Generator with a per-call timeout and a circuit breaker.
// Every error it returns is a *failure.Failure of kind GenerationError.
type Guarded struct {
	next    Generator
	timeout time.Duration
	breaker *resilience.CircuitBreaker
}

// Guard wraps next. A zero timeout leaves deadlines to the caller.
func Guard(next Generator, timeout time.Duration, breaker resilience.Config) (*Guarded, error) {
	cb, err := resilience.New(breaker)
	if err != nil {
		return nil, err
	}
	return &Guarded{next: next, timeout: timeout, breaker: cb}, nil
}

// Generate calls the wrapped generator. An empty completion is an error.
func (g *Guarded) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var text string
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		out, err := g.next.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			return errors.New("empty completion")
		}
		text = out
		return nil
	})
	if err != nil {
		stage := stageOf(ctx)
		generationFailures.WithLabelValues(stage).Inc()
		log.Warn().Err(err).Str("stage", stage).Str("breaker", g.breaker.State().String()).Msg("generation failed")

		detail := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			detail = fmt.Sprintf("generation timed out after %s", g.timeout)
		}
		return "", failure.Wrap(failure.GenerationError, err, detail)
	}
	return text, nil
}

// Breaker exposes the breaker state for readiness reporting.
func (g *Guarded) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}
