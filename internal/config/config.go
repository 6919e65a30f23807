// Package config loads the sqlassist YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/sqlassist/pkg/archive"
	"github.com/ruslano69/sqlassist/pkg/audit"
	"github.com/ruslano69/sqlassist/pkg/brokers"
	"github.com/ruslano69/sqlassist/pkg/llm"
	"github.com/ruslano69/sqlassist/pkg/reconcile"
	"github.com/ruslano69/sqlassist/pkg/registry"
	"github.com/ruslano69/sqlassist/pkg/resilience"
	"github.com/ruslano69/sqlassist/pkg/resultlog"
	"github.com/ruslano69/sqlassist/pkg/scheduler"
	"github.com/ruslano69/sqlassist/pkg/session"
)

// DBPasswordEnv fills the password of network sources that have none.
const DBPasswordEnv = "SQLASSIST_DB_PASSWORD"

// Config is the whole configuration file.
type Config struct {
	Server        ServerConfig            `yaml:"server"`
	Sources       []registry.SourceConfig `yaml:"sources"`
	DefaultSource string                  `yaml:"default_source,omitempty"`
	Relationships []registry.Relationship `yaml:"relationships,omitempty"`
	// SourceBreaker - шаблон circuit breaker на каждый источник
	SourceBreaker resilience.Config `yaml:"source_circuit_breaker"`
	// SafeMode: только SELECT/WITH для планировщика и /api/execute. nil = включен
	SafeMode *bool `yaml:"safe_mode,omitempty"`

	Reconcile reconcile.Config    `yaml:"reconcile"`
	LLM       llm.Config          `yaml:"llm"`
	Redis     RedisConfig         `yaml:"redis"`
	Session   session.StoreConfig `yaml:"session"`
	ResultLog resultlog.Config    `yaml:"result_log"`
	Feedback  FeedbackConfig      `yaml:"feedback"`
	Scheduler scheduler.Config    `yaml:"scheduler"`
	Delivery  brokers.Config      `yaml:"delivery"`
	Archive   archive.Config      `yaml:"archive"`
	Audit     audit.Config        `yaml:"audit"`
}

// ServerConfig - параметры HTTP сервера
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig - общий клиент для истории сессий и состояния отчетов
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// FeedbackConfig - хранилище оценок
type FeedbackConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads path, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg as YAML.
func Save(path string, cfg *Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal encodes cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// SetDefaults fills empty fields. Secrets fall back to the environment.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// генератор может отвечать до минуты, плюс пояснение
		c.Server.WriteTimeout = 3 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	password := os.Getenv(DBPasswordEnv)
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Password == "" && src.DSN == "" && src.Type != "sqlite" {
			src.Password = password
		}
	}

	if c.SafeMode == nil {
		on := true
		c.SafeMode = &on
	}
	c.Reconcile.SetDefaults()
	c.LLM.SetDefaults()

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Feedback.Path == "" {
		c.Feedback.Path = "feedback.db"
	}

	def := scheduler.DefaultConfig()
	if c.Scheduler.DBPath == "" {
		c.Scheduler.DBPath = def.DBPath
	}
	if c.Scheduler.RunTimeout == 0 {
		c.Scheduler.RunTimeout = def.RunTimeout
	}
	if c.Scheduler.Retry.MaxAttempts == 0 && !c.Scheduler.Retry.Enabled {
		c.Scheduler.Retry = def.Retry
	}
}

// Validate checks every section. The source registry and the reconcile
// layout are checked together since extractions name sources.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("no sources configured")
	}
	reg, err := c.Registry()
	if err != nil {
		return err
	}
	if err := c.Reconcile.Validate(reg); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	probe := c.SourceBreaker
	if err := probe.Validate(); err != nil {
		return fmt.Errorf("source_circuit_breaker: %w", err)
	}
	if err := c.Scheduler.Retry.Validate(); err != nil {
		return fmt.Errorf("scheduler.retry: %w", err)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.ResultLog.Enabled && !c.Redis.Enabled {
		return errors.New("result_log requires redis.enabled")
	}
	if c.Delivery.Enabled {
		switch c.Delivery.Type {
		case "rabbitmq":
			if c.Delivery.Queue == "" {
				return errors.New("delivery.queue is required for rabbitmq")
			}
		case "kafka":
			if len(c.Delivery.Brokers) == 0 || c.Delivery.Topic == "" {
				return errors.New("delivery.brokers and delivery.topic are required for kafka")
			}
		default:
			return fmt.Errorf("unsupported delivery type %q (rabbitmq, kafka)", c.Delivery.Type)
		}
	}
	if err := c.Archive.Validate(); err != nil {
		return err
	}
	return nil
}

// Registry builds the source registry.
func (c *Config) Registry() (*registry.Registry, error) {
	return registry.New(c.Sources, c.Relationships, c.DefaultSource)
}

// SafeModeEnabled reports whether the read-only guard is on.
func (c *Config) SafeModeEnabled() bool {
	return c.SafeMode == nil || *c.SafeMode
}

// Example returns a working sample: three PostgreSQL sources, employees and
// departments in db1, salaries in db2, db3 reserved.
func Example() *Config {
	on := true
	cfg := &Config{
		Server: ServerConfig{Addr: ":8000"},
		Sources: []registry.SourceConfig{
			{
				ID: "db1", Type: "postgres", Host: "db1", Port: 5432, Database: "db1", User: "user", Timeout: 30,
				Schema: "- employees table:\n  - id (integer, primary key)\n  - name (varchar(255), not null)\n" +
					"  - department_id (integer, foreign key to departments.id)\n" +
					"- departments table:\n  - id (integer, primary key)\n  - name (varchar(255), not null)",
			},
			{
				ID: "db2", Type: "postgres", Host: "db2", Port: 5432, Database: "db2", User: "user", Timeout: 30,
				Schema: "- salaries table:\n  - id (integer, primary key)\n" +
					"  - employee_id (integer, references employees.id from db1)\n  - amount (integer, not null)",
			},
			{
				ID: "db3", Type: "postgres", Host: "db3", Port: 5432, Database: "db3", User: "user", Timeout: 30,
				Schema: "- currently empty or contains additional data",
			},
		},
		DefaultSource: "db1",
		Relationships: []registry.Relationship{
			{
				From: registry.ColumnRef{Source: "db1", Table: "employees", Column: "department_id"},
				To:   registry.ColumnRef{Source: "db1", Table: "departments", Column: "id"},
			},
			{
				From: registry.ColumnRef{Source: "db2", Table: "salaries", Column: "employee_id"},
				To:   registry.ColumnRef{Source: "db1", Table: "employees", Column: "id"},
				Note: "Employee IDs in salaries table correspond to employee IDs in employees table",
			},
		},
		SourceBreaker: resilience.DefaultConfig(""),
		SafeMode:      &on,
		Reconcile:     reconcile.DefaultConfig(),
		LLM: llm.Config{
			Provider:       llm.ProviderOpenAI,
			Model:          "gpt-4o-mini",
			Timeout:        60 * time.Second,
			Temperature:    0.1,
			MaxTokens:      1000,
			CircuitBreaker: resilience.DefaultConfig(""),
		},
		Redis:     RedisConfig{Enabled: true, Addr: "redis:6379"},
		Session:   session.StoreConfig{Prefix: "sqlassist", MaxTurns: 10, TTL: 24 * time.Hour},
		ResultLog: resultlog.Config{Enabled: true, Prefix: "sqlassist", TTL: 86400},
		Feedback:  FeedbackConfig{Enabled: true, Path: "feedback.db"},
		Scheduler: scheduler.DefaultConfig(),
		Delivery: brokers.Config{
			Type:    "kafka",
			Brokers: []string{"kafka:9092"},
			Topic:   "sqlassist.reports",
		},
		Archive: archive.Config{Bucket: "sqlassist-reports", Prefix: "reports", Region: "us-east-1"},
		Audit: audit.Config{
			Enabled: true,
			Async:   true,
			File:    audit.FileAppenderConfig{Path: "audit.log", MaxSizeMB: 100, MaxBackups: 5},
		},
	}
	return cfg
}
