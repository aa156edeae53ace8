package provider

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configure a provider instance.
type Options struct {
	Endpoint    string
	Model       string
	Timeout     time.Duration
	KeepAlive   string
	Temperature float64
	Log         zerolog.Logger
}

// Factory builds a Provider from Options.
type Factory func(opts Options) (Provider, error)

var (
	factories = make(map[string]Factory)
	mu        sync.RWMutex
)

// Register makes a provider factory available under name. Providers call
// it from init.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// New builds the provider registered under name.
func New(name string, opts Options) (Provider, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q not registered (have %v)", name, List())
	}
	return f(opts)
}

// List returns the names of all registered providers.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
