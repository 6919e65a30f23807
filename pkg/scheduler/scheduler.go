// Package scheduler runs saved read-only queries on a daily, weekly or hourly
// schedule, stores every run and hands results to the configured outlets.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/pkg/audit"
	"github.com/ruslano69/sqlassist/pkg/brokers"
	"github.com/ruslano69/sqlassist/pkg/chart"
	"github.com/ruslano69/sqlassist/pkg/processors"
	"github.com/ruslano69/sqlassist/pkg/resultlog"
	"github.com/ruslano69/sqlassist/pkg/retry"
	"github.com/ruslano69/sqlassist/pkg/rowset"
	"github.com/ruslano69/sqlassist/pkg/security"
)

// Executor runs a report query against a source.
type Executor interface {
	Execute(ctx context.Context, sourceID, query string) (*rowset.RowSet, error)
}

// Sources resolves source identifiers.
type Sources interface {
	Has(id string) bool
	Default() string
}

// StatePublisher publishes the outcome of each run (pkg/resultlog).
type StatePublisher interface {
	Publish(ctx context.Context, result resultlog.RunResult, execErr error) error
}

// Archiver stores exported workbooks (pkg/archive).
type Archiver interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Config - параметры планировщика
type Config struct {
	Enabled    bool          `yaml:"enabled"`
	DBPath     string        `yaml:"db_path"`
	RunTimeout time.Duration `yaml:"run_timeout"`
	Retry      retry.Config  `yaml:"retry"`
	// Mask скрывает колонки в сообщениях брокера
	Mask map[string]processors.MaskPattern `yaml:"mask,omitempty"`
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		DBPath:     "scheduled_reports.db",
		RunTimeout: 5 * time.Minute,
		Retry:      retry.DefaultConfig(),
	}
}

// Scheduler owns the cron runner and the report store.
type Scheduler struct {
	store     *Store
	exec      Executor
	sources   Sources
	validator *security.SQLValidator
	retryer   *retry.Retryer
	cron      *cron.Cron
	timeout   time.Duration
	now       func() time.Time

	state     StatePublisher
	publisher brokers.Publisher
	archive   Archiver
	masker    *processors.Masker
	charts    *chart.Selector
	audit     audit.Logger

	mu   sync.Mutex
	jobs map[int64]cron.EntryID
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithStatePublisher(p StatePublisher) Option { return func(s *Scheduler) { s.state = p } }
func WithBroker(p brokers.Publisher) Option      { return func(s *Scheduler) { s.publisher = p } }
func WithArchive(a Archiver) Option              { return func(s *Scheduler) { s.archive = a } }
func WithAudit(l audit.Logger) Option            { return func(s *Scheduler) { s.audit = l } }

// WithClock заменяет источник времени (для тестов)
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// New builds a Scheduler over an open store. Jobs are registered by Start.
func New(cfg Config, store *Store, exec Executor, sources Sources, opts ...Option) (*Scheduler, error) {
	retryer, err := retry.New(cfg.Retry)
	if err != nil {
		return nil, err
	}
	masker, err := processors.NewMasker(cfg.Mask)
	if err != nil {
		return nil, err
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultConfig().RunTimeout
	}

	l := cronLogger{}
	s := &Scheduler{
		store:     store,
		exec:      exec,
		sources:   sources,
		validator: security.NewSQLValidator(true),
		retryer:   retryer,
		cron:      cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l))),
		timeout:   cfg.RunTimeout,
		now:       time.Now,
		masker:    masker,
		charts:    chart.NewSelector(nil),
		audit:     audit.NullLogger{},
		jobs:      make(map[int64]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers a job for every active report and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	reports, err := s.store.active(ctx)
	if err != nil {
		return err
	}
	for _, r := range reports {
		sched, err := ParseSchedule(r.Frequency, r.At)
		if err != nil {
			log.Warn().Err(err).Int64("report", r.ID).Msg("skipping report with invalid schedule")
			continue
		}
		if err := s.register(r.ID, sched); err != nil {
			return err
		}
	}
	s.cron.Start()
	log.Info().Int("reports", len(reports)).Msg("scheduler started")
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	if err := s.retryer.Close(); err != nil {
		log.Warn().Err(err).Msg("dlq save failed")
	}
	log.Info().Msg("scheduler stopped")
}

// Schedule validates and stores a report and registers its job.
// An empty sourceID means the default source.
func (s *Scheduler) Schedule(ctx context.Context, name, query, sourceID string, frequency Frequency, at string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("report name is required")
	}
	query = strings.TrimSpace(query)
	if err := s.validator.Validate(query); err != nil {
		return 0, fmt.Errorf("report query rejected: %w", err)
	}
	if sourceID == "" {
		sourceID = s.sources.Default()
	}
	if !s.sources.Has(sourceID) {
		return 0, fmt.Errorf("unknown source %q", sourceID)
	}
	sched, err := ParseSchedule(frequency, at)
	if err != nil {
		return 0, err
	}

	now := s.now()
	id, err := s.store.insert(ctx, Report{
		Name:      name,
		Query:     query,
		Source:    sourceID,
		Frequency: frequency,
		At:        at,
		NextRun:   sched.Next(now),
		CreatedAt: now,
	})
	if err != nil {
		return 0, err
	}

	if err := s.register(id, sched); err != nil {
		return id, err
	}
	s.logAudit(ctx, audit.NewEntry(audit.OpSchedule, audit.StatusSuccess).
		WithSource(sourceID).
		WithResource(name).
		WithMetadata("report_id", id).
		WithMetadata("schedule", fmt.Sprintf("%s %s", frequency, at)))
	return id, nil
}

func (s *Scheduler) register(id int64, sched Schedule) error {
	entry, err := s.cron.AddFunc(sched.CronSpec(), func() { s.runJob(id) })
	if err != nil {
		return fmt.Errorf("register report %d: %w", id, err)
	}

	s.mu.Lock()
	s.jobs[id] = entry
	s.mu.Unlock()

	log.Info().Int64("report", id).Str("cron", sched.CronSpec()).Msg("report job registered")
	return nil
}

func (s *Scheduler) runJob(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunReport(ctx, id); err != nil {
		log.Error().Err(err).Int64("report", id).Msg("scheduled run failed")
	}
}

// Reports lists the active reports.
func (s *Scheduler) Reports(ctx context.Context) ([]Report, error) {
	return s.store.active(ctx)
}

// Report returns one active report.
func (s *Scheduler) Report(ctx context.Context, id int64) (Report, error) {
	return s.store.get(ctx, id)
}

// NextScheduled returns the cron runner's next fire time for a report.
func (s *Scheduler) NextScheduled(id int64) (time.Time, bool) {
	s.mu.Lock()
	entry, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(entry).Next, true
}

// Deactivate marks the report inactive and removes its job.
func (s *Scheduler) Deactivate(ctx context.Context, id int64) error {
	if err := s.store.deactivate(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	if entry, ok := s.jobs[id]; ok {
		s.cron.Remove(entry)
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	log.Info().Int64("report", id).Msg("report deactivated")
	return nil
}

func (s *Scheduler) logAudit(ctx context.Context, e *audit.Entry) {
	if err := s.audit.Log(context.WithoutCancel(ctx), e); err != nil {
		log.Warn().Err(err).Msg("audit entry dropped")
	}
}

// cronLogger направляет логи cron в zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
