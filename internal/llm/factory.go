package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nulzo/omni-router/internal/config"
)

type Factory func(cfg config.ProviderConfig) (Provider, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a provider type available to New. Adapters call it from init.
func Register(providerType string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[providerType]; exists {
		panic(fmt.Sprintf("provider factory %s already registered", providerType))
	}
	factories[providerType] = f
}

func Get(providerType string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[providerType]
	if !ok {
		return nil, fmt.Errorf("provider factory not found for type: %s", providerType)
	}
	return f, nil
}

// New looks up the factory for cfg.Type and builds the provider.
func New(cfg config.ProviderConfig) (Provider, error) {
	factoryFunc, err := Get(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("factory lookup failed for type %s: %w", cfg.Type, err)
	}
	return factoryFunc(cfg)
}

// Types lists the registered provider types.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
