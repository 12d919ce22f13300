package stage

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a stage wired to the shared collaborators.
type Factory func(Deps) (Stage, error)

// Registry maintains known stage factories. Stages are selected by name at
// graph-build time; the set of variants is closed at registration.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs a stage factory. Duplicate names are an error.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("stage: name is required")
	}
	if factory == nil {
		return fmt.Errorf("stage: factory is required for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("stage: %s already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Resolve constructs a stage by name and checks that the built stage
// agrees about its own identity.
func (r *Registry) Resolve(name string, deps Deps) (Stage, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("stage: unknown stage %s", name)
	}
	stage, err := factory(deps)
	if err != nil {
		return nil, err
	}
	descriptor := stage.Descriptor()
	if descriptor.Name != name {
		return nil, fmt.Errorf("stage: factory for %s built stage %s", name, descriptor.Name)
	}
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	return stage, nil
}

// Names returns the registered stage names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
