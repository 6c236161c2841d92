package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry tracks the host's registered models and whether model metadata is
// safe to query. Signals must not be connected before the host marks the
// registry ready, normally at the end of application startup.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
	ready  bool
}

// NewRegistry creates an empty, not-yet-ready registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]Model),
	}
}

// Register adds a model. Registering two models with the same name fails.
func (r *Registry) Register(model Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := model.ModelName()
	if _, exists := r.models[name]; exists {
		return fmt.Errorf("model %s is already registered", name)
	}
	r.models[name] = model
	return nil
}

// Get retrieves a model by name.
func (r *Registry) Get(name string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model, exists := r.models[name]
	return model, exists
}

// List returns all registered model names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered models.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}

// SetReady marks model metadata as safe to query.
func (r *Registry) SetReady() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ready = true
}

// Ready reports whether model metadata is safe to query.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.ready
}

// Clear removes all registered models and resets readiness (useful for testing).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models = make(map[string]Model)
	r.ready = false
}
