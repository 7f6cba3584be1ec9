package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ModuleFactory is the engine-specific entry point that turns raw guest
// bytecode into a Module.
type ModuleFactory interface {
	NewModule(ctx context.Context, code []byte, cfg ModuleConfig) (Module, error)
}

// ModuleFactoryFunc adapts a function to the ModuleFactory interface.
type ModuleFactoryFunc func(ctx context.Context, code []byte, cfg ModuleConfig) (Module, error)

func (f ModuleFactoryFunc) NewModule(ctx context.Context, code []byte, cfg ModuleConfig) (Module, error) {
	return f(ctx, code, cfg)
}

var (
	enginesMu sync.RWMutex
	engines   = map[string]ModuleFactory{}
)

// Register makes an engine backend available under name. Backends call it
// from init; registering the same name twice panics.
func Register(name string, factory ModuleFactory) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	if _, dup := engines[name]; dup {
		panic(fmt.Sprintf("executor engine %q already registered", name))
	}
	engines[name] = factory
}

// NewModule compiles code with the named engine backend.
func NewModule(ctx context.Context, engine string, code []byte, cfg ModuleConfig) (Module, error) {
	enginesMu.RLock()
	factory, ok := engines[engine]
	enginesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown executor engine %q (registered: %v)", engine, Engines())
	}
	return factory.NewModule(ctx, code, cfg)
}

// Engines returns the registered backend names, sorted.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
