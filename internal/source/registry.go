package source

import "github.com/rotisserie/eris"

// Registry maps source names to adapters.
type Registry struct {
	adapters map[string]Adapter
	order    []string // registration order; merge order depends on it
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Registering a name twice replaces the adapter
// but keeps its original position.
func (r *Registry) Register(a Adapter) {
	name := a.Name()
	if _, ok := r.adapters[name]; !ok {
		r.order = append(r.order, name)
	}
	r.adapters[name] = a
}

// Get returns an adapter by name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, eris.Errorf("source: unknown adapter %q", name)
	}
	return a, nil
}

// Select returns the named adapters in registration order. An empty names
// list selects every adapter.
func (r *Registry) Select(names []string) ([]Adapter, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, err := r.Get(n); err != nil {
			return nil, err
		}
		want[n] = true
	}
	var out []Adapter
	for _, n := range r.order {
		if want[n] {
			out = append(out, r.adapters[n])
		}
	}
	return out, nil
}

// All returns all adapters in registration order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.adapters[n])
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
