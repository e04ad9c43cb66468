package registry

import "sort"

// Module is the interface that all core modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds all the registered runners for a single application instance.
type Registry struct {
	HandlerRegistry map[string]*RegisteredRunner
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		HandlerRegistry: make(map[string]*RegisteredRunner),
	}
}

// Runner returns the runner registered under name.
func (r *Registry) Runner(name string) (*RegisteredRunner, bool) {
	h, ok := r.HandlerRegistry[name]
	return h, ok
}

// Names returns the sorted names of all registered runners.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.HandlerRegistry))
	for name := range r.HandlerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
