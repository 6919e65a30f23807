// Package resilience protects calls to flaky dependencies (the text generator,
// individual sources) with circuit breakers.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrCircuitOpen - circuit breaker открыт, вызов не выполнялся
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ExecuteFunc - функция для выполнения с circuit breaker
type ExecuteFunc func(ctx context.Context) error

// CircuitBreaker - защита от каскадных сбоев
type CircuitBreaker struct {
	config       Config
	stateManager *stateManager
}

// New - создать новый Circuit Breaker
func New(config Config) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	return &CircuitBreaker{
		config:       config,
		stateManager: newStateManager(config),
	}, nil
}

// Execute runs fn unless the circuit is open. A disabled breaker always runs fn.
// Context cancellation by the caller is not counted as a dependency failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn ExecuteFunc) error {
	if !cb.config.Enabled {
		return fn(ctx)
	}

	generation, err := cb.stateManager.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.stateManager.afterRequest(generation, false)
			panic(r)
		}
	}()

	err = fn(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	cb.stateManager.afterRequest(generation, err == nil)
	return err
}

// State - текущее состояние
func (cb *CircuitBreaker) State() State {
	return cb.stateManager.stats().State
}

// Stats - полная статистика
func (cb *CircuitBreaker) Stats() Stats {
	return cb.stateManager.stats()
}

// Reset - сбросить состояние в Closed
func (cb *CircuitBreaker) Reset() {
	cb.stateManager.reset()
}

// Name - имя Circuit Breaker
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

func (cb *CircuitBreaker) String() string {
	s := cb.Stats()
	return fmt.Sprintf("CircuitBreaker(%s state=%s failures=%d/%d)",
		cb.config.Name, s.State, s.Counts.ConsecutiveFailures, cb.config.MaxFailures)
}

// Group - набор circuit breakers по имени (например, по источнику)
type Group struct {
	mu       sync.Mutex
	template Config
	breakers map[string]*CircuitBreaker
}

// NewGroup - группа, создающая breakers по шаблону конфигурации
func NewGroup(template Config) (*Group, error) {
	probe := template
	if err := probe.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	return &Group{template: template, breakers: make(map[string]*CircuitBreaker)}, nil
}

// Get returns the breaker for name, creating it on first use.
func (g *Group) Get(name string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[name]; ok {
		return cb
	}
	cfg := g.template
	cfg.Name = name
	cfg.Validate()
	cb := &CircuitBreaker{config: cfg, stateManager: newStateManager(cfg)}
	g.breakers[name] = cb
	return cb
}

// StatsAll - статистика всех breakers группы
func (g *Group) StatsAll() map[string]Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]Stats, len(g.breakers))
	for name, cb := range g.breakers {
		out[name] = cb.Stats()
	}
	return out
}
