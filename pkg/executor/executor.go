// Package executor runs one query against one configured source.
//
// Each call opens its own connection and closes it before returning; nothing
// is pooled and nothing spans calls. Failures are returned as
// *failure.Failure with kind ConnectionError or ExecutionError.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/pkg/adapters"
	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/registry"
	"github.com/ruslano69/sqlassist/pkg/resilience"
	"github.com/ruslano69/sqlassist/pkg/rowset"
	"github.com/ruslano69/sqlassist/pkg/security"
)

// Executor resolves sources through a Registry and runs queries on them.
type Executor struct {
	registry  *registry.Registry
	validator *security.SQLValidator
	breakers  *resilience.Group
	connect   func(ctx context.Context, cfg adapters.Config) (adapters.Adapter, error)
}

// Option configures an Executor.
type Option func(*Executor)

// WithValidator rejects statements the validator refuses before connecting.
// Without it the query string is passed through unmodified.
func WithValidator(v *security.SQLValidator) Option {
	return func(e *Executor) {
		e.validator = v
	}
}

// WithCircuitBreakers guards connection attempts with one breaker per source.
// Query errors do not count against the breaker, only failed connects.
func WithCircuitBreakers(g *resilience.Group) Option {
	return func(e *Executor) {
		e.breakers = g
	}
}

// New creates an Executor.
func New(reg *registry.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry: reg,
		connect:  adapters.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the executor resolves sources with.
func (e *Executor) Registry() *registry.Registry {
	return e.registry
}

// Execute runs query on sourceID and returns all rows.
// A statement without a result set returns a RowSet with no columns.
func (e *Executor) Execute(ctx context.Context, sourceID, query string) (*rowset.RowSet, error) {
	start := time.Now()

	src, err := e.registry.Get(sourceID)
	if err != nil {
		observe(sourceID, outcomeConnectionError, start)
		return nil, failure.Wrap(failure.ConnectionError, err, "").WithSource(sourceID)
	}

	if err := e.validator.Validate(query); err != nil {
		observe(sourceID, outcomeRejected, start)
		return nil, failure.Wrap(failure.ExecutionError, err, "").WithSource(sourceID)
	}

	if src.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, src.Timeout)
		defer cancel()
	}

	adapter, err := e.open(ctx, src)
	if err != nil {
		observe(sourceID, outcomeConnectionError, start)
		return nil, failure.Wrap(failure.ConnectionError, err, "").WithSource(sourceID)
	}
	defer func() {
		if cerr := adapter.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Warn().Err(cerr).Str("source", sourceID).Msg("close connection")
		}
	}()

	rs, err := adapter.Query(ctx, query)
	if err != nil {
		detail := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			detail = "query timed out: " + detail
		}
		observe(sourceID, outcomeExecutionError, start)
		return nil, failure.Wrap(failure.ExecutionError, err, detail).WithSource(sourceID)
	}

	observe(sourceID, outcomeOK, start)
	log.Debug().
		Str("source", sourceID).
		Int("rows", rs.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("query executed")

	return rs, nil
}

// Ping opens and closes a connection to sourceID. Used by readiness checks.
func (e *Executor) Ping(ctx context.Context, sourceID string) error {
	src, err := e.registry.Get(sourceID)
	if err != nil {
		return err
	}
	adapter, err := e.open(ctx, src)
	if err != nil {
		return failure.Wrap(failure.ConnectionError, err, "").WithSource(sourceID)
	}
	return adapter.Close(ctx)
}

func (e *Executor) open(ctx context.Context, src registry.SourceDescriptor) (adapters.Adapter, error) {
	cfg := adapters.Config{Type: src.Type, DSN: src.DSN, Timeout: src.Timeout}
	if e.breakers == nil {
		return e.connect(ctx, cfg)
	}

	var adapter adapters.Adapter
	err := e.breakers.Get(src.ID).Execute(ctx, func(ctx context.Context) error {
		var err error
		adapter, err = e.connect(ctx, cfg)
		return err
	})
	return adapter, err
}
