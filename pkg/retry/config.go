package retry

import (
	"fmt"
	"time"

	"github.com/ruslano69/sqlassist/pkg/failure"
)

// BackoffStrategy определяет стратегию задержки между повторами
type BackoffStrategy string

const (
	BackoffConstant    BackoffStrategy = "constant"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// Config - повторы запуска отчета
type Config struct {
	Enabled bool `yaml:"enabled"`

	// MaxAttempts включает первую попытку; 0 = без ограничения
	MaxAttempts int `yaml:"max_attempts"`

	InitialDelay time.Duration   `yaml:"initial_delay"`
	MaxDelay     time.Duration   `yaml:"max_delay"`
	Backoff      BackoffStrategy `yaml:"backoff"`
	Multiplier   float64         `yaml:"multiplier"`

	// Jitter - доля случайного разброса задержки (0.0 - 1.0)
	Jitter float64 `yaml:"jitter"`

	// RetryOn - классы ошибок, которые повторяются. Пусто = любые ошибки.
	RetryOn []failure.Kind `yaml:"retry_on"`

	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`

	DLQ DLQConfig `yaml:"dlq"`
}

// DLQConfig - файл с запусками, исчерпавшими попытки
type DLQConfig struct {
	Enabled   bool          `yaml:"enabled"`
	FilePath  string        `yaml:"file_path"`
	MaxSize   int           `yaml:"max_size"`
	Retention time.Duration `yaml:"retention"`
}

// Validate проверяет конфигурацию и подставляет множитель по умолчанию
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be >= 0, got %d", c.MaxAttempts)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0")
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max_delay (%v) must be >= initial_delay (%v)", c.MaxDelay, c.InitialDelay)
	}

	switch c.Backoff {
	case BackoffConstant, BackoffLinear, BackoffExponential:
	case "":
		c.Backoff = BackoffExponential
	default:
		return fmt.Errorf("invalid backoff strategy: %s", c.Backoff)
	}

	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.Jitter < 0 || c.Jitter > 1.0 {
		return fmt.Errorf("jitter must be between 0.0 and 1.0, got %f", c.Jitter)
	}
	if c.DLQ.Enabled && c.DLQ.FilePath == "" {
		return fmt.Errorf("dlq.file_path is required when dlq is enabled")
	}
	return nil
}

// DefaultConfig: три попытки, повторяются только ошибки подключения
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Backoff:      BackoffExponential,
		Multiplier:   2.0,
		Jitter:       0.1,
		RetryOn:      []failure.Kind{failure.ConnectionError},
		DLQ: DLQConfig{
			FilePath:  "./report-dlq.json",
			MaxSize:   1000,
			Retention: 7 * 24 * time.Hour,
		},
	}
}
