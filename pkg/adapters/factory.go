package adapters

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownType - для типа источника не зарегистрирован драйвер
var ErrUnknownType = errors.New("unknown source type")

// Constructor returns a fresh, unconnected adapter.
type Constructor func() Adapter

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Constructor)
)

// Register makes a source type available to New. Driver packages call it
// from init(), so a binary supports exactly the types it blank-imports:
//
//	import _ "github.com/ruslano69/sqlassist/pkg/adapters/postgres"
func Register(sourceType string, ctor Constructor) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[sourceType]; dup {
		panic("adapters: Register called twice for " + sourceType)
	}
	drivers[sourceType] = ctor
}

// Supported reports whether a driver for sourceType was registered.
func Supported(sourceType string) bool {
	driversMu.RLock()
	defer driversMu.RUnlock()
	_, ok := drivers[sourceType]
	return ok
}

// Types returns the registered source types, sorted.
func Types() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for t := range drivers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// New connects an adapter for cfg.Type. The caller owns the adapter and
// must Close it; a failed connect leaves nothing open.
func New(ctx context.Context, cfg Config) (Adapter, error) {
	driversMu.RLock()
	ctor, ok := drivers[cfg.Type]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownType, cfg.Type, Types())
	}

	a := ctor()
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Type, err)
	}
	return a, nil
}
