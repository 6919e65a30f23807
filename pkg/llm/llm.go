// Package llm talks to the external text generator used for planning queries
// and narrating results.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ruslano69/sqlassist/pkg/resilience"
)

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config описывает подключение к генератору
type Config struct {
	Provider       string            `yaml:"provider"`
	BaseURL        string            `yaml:"base_url"`
	Model          string            `yaml:"model"`
	APIKey         string            `yaml:"api_key"`
	Timeout        time.Duration     `yaml:"timeout"`
	Temperature    float64           `yaml:"temperature"`
	MaxTokens      int               `yaml:"max_tokens"`
	CircuitBreaker resilience.Config `yaml:"circuit_breaker"`
}

// APIKeyEnv overrides an empty api_key.
const APIKeyEnv = "SQLASSIST_LLM_API_KEY"

// SetDefaults заполняет пустые поля
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.BaseURL == "" {
		switch c.Provider {
		case ProviderOllama:
			c.BaseURL = "http://localhost:11434"
		default:
			c.BaseURL = "https://api.openai.com/v1"
		}
	}
	if c.Model == "" {
		if c.Provider == ProviderOllama {
			c.Model = "llama3.2"
		} else {
			c.Model = "gpt-4o-mini"
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Temperature == 0 {
		c.Temperature = 0.1
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1000
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv(APIKeyEnv)
	}
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unsupported llm provider %q", c.Provider)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("llm base_url is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("llm timeout must not be negative")
	}
	return nil
}

// New builds the provider client from cfg and wraps it with Guard.
func New(cfg Config) (*Guarded, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var gen Generator
	switch cfg.Provider {
	case ProviderOllama:
		gen = NewOllamaClient(cfg)
	default:
		gen = NewOpenAIClient(cfg)
	}

	breaker := cfg.CircuitBreaker
	breaker.Name = "llm-" + cfg.Provider
	return Guard(gen, cfg.Timeout, breaker)
}

// trimResponse убирает пробелы по краям ответа
func trimResponse(s string) string {
	return strings.TrimSpace(s)
}
