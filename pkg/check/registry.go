package check

import (
	"fmt"
	"sort"
	"sync"
)

// Factory is a function that creates a Strategy from a raw configuration map.
// Each backend registers a Factory with the Registry.
type Factory func(config map[string]any) (Strategy, error)

// Registry holds registered backends and their factories.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a backend factory under the given name.
// Returns an error if the name is already registered.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("backend %q is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates the named backend using the provided config.
// Returns an error if the name is not registered or the factory fails.
func (r *Registry) Create(name string, config map[string]any) (Strategy, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	return factory(config)
}

// Types returns the names of all registered backends, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for name := range r.factories {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
