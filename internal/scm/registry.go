package scm

import (
	"slices"
	"sync"
)

// Factory creates a fresh, unconfigured connector.
type Factory func() Connector

// Registry maps backend kinds to connector factories. It is populated at
// process start and only read afterwards, but is safe for concurrent use
// either way.
type Registry struct {
	mu        sync.RWMutex
	factories map[BackendKind]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[BackendKind]Factory{}}
}

// Register adds or replaces the factory for kind. A later call with the same
// kind overrides the previous factory. Empty kinds and nil factories are
// ignored.
func (r *Registry) Register(kind BackendKind, factory Factory) {
	kind = NormalizeKind(string(kind))
	if kind == "" || factory == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Resolve looks up the factory for kind, ignoring case and surrounding space.
func (r *Registry) Resolve(kind BackendKind) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[NormalizeKind(string(kind))]
	return factory, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []BackendKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]BackendKind, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry with the built-in
// connectors registered.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		RegisterDefaults(defaultRegistry)
	})
	return defaultRegistry
}

// RegisterDefaults registers every connector this build implements.
func RegisterDefaults(r *Registry) {
	r.Register(KindGit, func() Connector { return NewGitConnector() })
}
