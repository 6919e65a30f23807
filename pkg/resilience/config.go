package resilience

import (
	"fmt"
	"time"
)

// Config - конфигурация Circuit Breaker
type Config struct {
	// Enabled - включить Circuit Breaker
	Enabled bool `yaml:"enabled"`

	// Name - имя для логов и метрик
	Name string `yaml:"-"`

	// MaxFailures - количество подряд идущих ошибок для открытия
	MaxFailures uint32 `yaml:"max_failures"`

	// Timeout - время в Open состоянии перед переходом в Half-Open
	Timeout time.Duration `yaml:"timeout"`

	// SuccessThreshold - количество успешных вызовов в Half-Open для закрытия
	SuccessThreshold uint32 `yaml:"success_threshold"`

	// OnStateChange - callback при изменении состояния (вызывается в отдельной горутине)
	OnStateChange func(name string, from State, to State) `yaml:"-"`
}

// Counts - счетчики запросов текущего поколения
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Validate - валидация конфигурации с заполнением значений по умолчанию
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxFailures == 0 {
		return fmt.Errorf("max_failures must be greater than 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}
	if c.Name == "" {
		c.Name = "circuit-breaker"
	}
	return nil
}

// DefaultConfig - конфигурация по умолчанию
func DefaultConfig(name string) Config {
	return Config{
		Enabled:          true,
		Name:             name,
		MaxFailures:      5,
		Timeout:          60 * time.Second,
		SuccessThreshold: 2,
	}
}
