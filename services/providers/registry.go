package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ProviderBuilder is a function that creates a provider instance
type ProviderBuilder func(config ProviderConfig) (Provider, error)

// Registry maps provider names to the builders that construct them
type Registry struct {
	mu       sync.RWMutex
	builders map[string]ProviderBuilder
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]ProviderBuilder),
	}
}

// Register adds a builder for name
func (r *Registry) Register(name string, builder ProviderBuilder) error {
	if name == "" {
		return errors.New("provider name cannot be empty")
	}
	if builder == nil {
		return errors.New("provider builder cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.builders[name] = builder
	return nil
}

// WithBuilder registers a builder and returns the registry for chaining.
// It panics on duplicate names, which is a wiring bug.
func (r *Registry) WithBuilder(name string, builder ProviderBuilder) *Registry {
	if err := r.Register(name, builder); err != nil {
		panic(err)
	}
	return r
}

// Has reports whether a builder is registered for name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[name]
	return ok
}

// Build constructs a provider from config. config.Name selects the builder.
func (r *Registry) Build(config ProviderConfig) (Provider, error) {
	r.mu.RLock()
	builder, exists := r.builders[config.Name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, config.Name)
	}

	provider, err := builder(config.WithDefaults())
	if err != nil {
		return nil, fmt.Errorf("failed to build provider %s: %w", config.Name, err)
	}
	return provider, nil
}

// Names returns the registered provider names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
