// Package infra builds every long-lived component from the configuration.
package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/internal/api"
	"github.com/ruslano69/sqlassist/internal/config"
	_ "github.com/ruslano69/sqlassist/pkg/adapters/mssql"
	_ "github.com/ruslano69/sqlassist/pkg/adapters/mysql"
	_ "github.com/ruslano69/sqlassist/pkg/adapters/odbc"
	_ "github.com/ruslano69/sqlassist/pkg/adapters/postgres"
	_ "github.com/ruslano69/sqlassist/pkg/adapters/sqlite"
	"github.com/ruslano69/sqlassist/pkg/archive"
	"github.com/ruslano69/sqlassist/pkg/audit"
	"github.com/ruslano69/sqlassist/pkg/brokers"
	"github.com/ruslano69/sqlassist/pkg/executor"
	"github.com/ruslano69/sqlassist/pkg/feedback"
	"github.com/ruslano69/sqlassist/pkg/llm"
	"github.com/ruslano69/sqlassist/pkg/pipeline"
	"github.com/ruslano69/sqlassist/pkg/planner"
	"github.com/ruslano69/sqlassist/pkg/reconcile"
	"github.com/ruslano69/sqlassist/pkg/registry"
	"github.com/ruslano69/sqlassist/pkg/resilience"
	"github.com/ruslano69/sqlassist/pkg/resultlog"
	"github.com/ruslano69/sqlassist/pkg/scheduler"
	"github.com/ruslano69/sqlassist/pkg/security"
	"github.com/ruslano69/sqlassist/pkg/session"
)

// Options - что поднимать помимо конвейера
type Options struct {
	// Dev: in-process miniredis вместо настоящего Redis
	Dev bool
	// Scheduler открывает хранилище отчетов и брокер доставки
	Scheduler bool
}

// Infra holds all live handles of a running assistant.
type Infra struct {
	Config    *config.Config
	Registry  *registry.Registry
	Executor  *executor.Executor
	Pipeline  *pipeline.Pipeline
	Redis     *redis.Client // nil when redis is disabled
	Sessions  *session.RedisStore
	Feedback  *feedback.Store
	Scheduler *scheduler.Scheduler
	Audit     audit.Logger

	generator *llm.Guarded
	store     *scheduler.Store
	broker    brokers.Publisher
	mini      *miniredis.Miniredis
}

// Setup builds the components in dependency order. On error everything
// opened so far is closed.
func Setup(ctx context.Context, cfg *config.Config, opts Options) (_ *Infra, err error) {
	inf := &Infra{Config: cfg, Audit: audit.NullLogger{}}
	defer func() {
		if err != nil {
			inf.Close()
		}
	}()

	if inf.Registry, err = cfg.Registry(); err != nil {
		return nil, err
	}

	guard := security.NewSQLValidator(cfg.SafeModeEnabled())
	execOpts := []executor.Option{executor.WithValidator(guard)}
	if cfg.SourceBreaker.Enabled {
		group, err := resilience.NewGroup(cfg.SourceBreaker)
		if err != nil {
			return nil, fmt.Errorf("source circuit breaker: %w", err)
		}
		execOpts = append(execOpts, executor.WithCircuitBreakers(group))
	}
	inf.Executor = executor.New(inf.Registry, execOpts...)

	if inf.generator, err = llm.New(cfg.LLM); err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	rec, err := reconcile.New(inf.Executor, inf.Registry, cfg.Reconcile)
	if err != nil {
		return nil, err
	}

	if inf.Audit, err = audit.Open(cfg.Audit); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	if err := inf.setupRedis(ctx, opts.Dev); err != nil {
		return nil, err
	}
	if inf.Redis != nil {
		inf.Sessions = session.NewRedisStore(inf.Redis, cfg.Session)
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithNarrator(inf.generator),
		pipeline.WithAudit(inf.Audit),
	}
	if cfg.Feedback.Enabled {
		if inf.Feedback, err = feedback.Open(cfg.Feedback.Path); err != nil {
			return nil, err
		}
		pipeOpts = append(pipeOpts, pipeline.WithExamples(inf.Feedback))
	}
	inf.Pipeline = pipeline.New(planner.New(inf.Registry, inf.generator, guard), inf.Executor, rec, pipeOpts...)

	if opts.Scheduler && cfg.Scheduler.Enabled {
		if err := inf.setupScheduler(ctx); err != nil {
			return nil, err
		}
	}

	log.Info().
		Strs("sources", inf.Registry.IDs()).
		Str("llm", cfg.LLM.Provider).
		Bool("safe_mode", cfg.SafeModeEnabled()).
		Bool("redis", inf.Redis != nil).
		Bool("feedback", inf.Feedback != nil).
		Bool("scheduler", inf.Scheduler != nil).
		Msg("components ready")
	return inf, nil
}

func (inf *Infra) setupRedis(ctx context.Context, dev bool) error {
	rc := inf.Config.Redis
	switch {
	case dev:
		mini, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("infra: miniredis: %w", err)
		}
		inf.mini = mini
		inf.Redis = redis.NewClient(&redis.Options{Addr: mini.Addr()})
		log.Info().Str("redis", mini.Addr()).Msg("dev: in-process miniredis started")
	case rc.Enabled:
		inf.Redis = redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	default:
		return nil
	}

	if err := inf.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("infra: redis ping: %w", err)
	}
	return nil
}

func (inf *Infra) setupScheduler(ctx context.Context) error {
	cfg := inf.Config

	store, err := scheduler.OpenStore(cfg.Scheduler.DBPath)
	if err != nil {
		return err
	}
	inf.store = store

	opts := []scheduler.Option{scheduler.WithAudit(inf.Audit)}
	if cfg.ResultLog.Enabled && inf.Redis != nil {
		opts = append(opts, scheduler.WithStatePublisher(resultlog.NewRedisPublisher(inf.Redis, cfg.ResultLog)))
	}
	if cfg.Delivery.Enabled {
		broker, err := brokers.New(cfg.Delivery)
		if err != nil {
			return err
		}
		if err := broker.Connect(ctx); err != nil {
			return fmt.Errorf("delivery %s: %w", broker.Type(), err)
		}
		inf.broker = broker
		opts = append(opts, scheduler.WithBroker(broker))
	}
	if cfg.Archive.Enabled {
		arch, err := archive.New(ctx, cfg.Archive)
		if err != nil {
			return err
		}
		opts = append(opts, scheduler.WithArchive(arch))
	}

	inf.Scheduler, err = scheduler.New(cfg.Scheduler, store, inf.Executor, inf.Registry, opts...)
	return err
}

// Checks returns the readiness checks: Redis, every source, local stores
// and the delivery broker.
func (inf *Infra) Checks() []api.Check {
	var checks []api.Check
	if inf.Redis != nil {
		checks = append(checks, api.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return inf.Redis.Ping(ctx).Err()
		}})
	}
	for _, id := range inf.Registry.IDs() {
		checks = append(checks, api.Check{Name: "source:" + id, Ping: func(ctx context.Context) error {
			return inf.Executor.Ping(ctx, id)
		}})
	}
	if inf.Feedback != nil {
		checks = append(checks, api.Check{Name: "feedback", Ping: inf.Feedback.Ping})
	}
	if inf.store != nil {
		checks = append(checks, api.Check{Name: "scheduler", Ping: inf.store.Ping})
	}
	if inf.broker != nil {
		checks = append(checks, api.Check{Name: "delivery", Ping: inf.broker.Ping})
	}
	return checks
}

// Deps builds the HTTP handler dependencies.
func (inf *Infra) Deps() api.Deps {
	deps := api.Deps{
		Pipeline:       inf.Pipeline,
		Executor:       inf.Executor,
		DefaultSource:  inf.Registry.Default(),
		Feedback:       inf.Feedback,
		Scheduler:      inf.Scheduler,
		Audit:          inf.Audit,
		Checks:         inf.Checks(),
		RequestTimeout: inf.Config.Server.WriteTimeout,
	}
	if inf.Sessions != nil {
		deps.Sessions = inf.Sessions
	}
	return deps
}

// Close releases all resources. Safe on a partially built Infra.
func (inf *Infra) Close() error {
	var errs []error
	if inf.Scheduler != nil {
		inf.Scheduler.Stop()
	}
	if inf.store != nil {
		errs = append(errs, inf.store.Close())
	}
	if inf.broker != nil {
		errs = append(errs, inf.broker.Close())
	}
	if inf.Feedback != nil {
		errs = append(errs, inf.Feedback.Close())
	}
	if inf.Audit != nil {
		errs = append(errs, inf.Audit.Close())
	}
	if inf.Redis != nil {
		errs = append(errs, inf.Redis.Close())
	}
	if inf.mini != nil {
		inf.mini.Close()
	}
	return errors.Join(errs...)
}
