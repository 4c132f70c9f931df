package store

import "sync"

// Registry holds every defined graph so cascade deletes can reach edges in
// graphs other than the one a delete was issued through.
type Registry struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
	order  []string
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		graphs: make(map[string]*Graph),
	}
}

// Register adds g, replacing any graph registered under the same name.
func (r *Registry) Register(g *Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.graphs[g.name]; !ok {
		r.order = append(r.order, g.name)
	}
	r.graphs[g.name] = g
}

// Unregister removes the graph registered under name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.graphs[name]; !ok {
		return
	}
	delete(r.graphs, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Graph returns the graph registered under name, or nil.
func (r *Registry) Graph(name string) *Graph {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graphs[name]
}

// AllGraphs returns all registered graphs in registration order.
func (r *Registry) AllGraphs() []*Graph {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Graph, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.graphs[n])
	}
	return out
}

// EdgesOf returns every edge definition, across all graphs, that permits
// vertexCollection as an endpoint.
func (r *Registry) EdgesOf(vertexCollection string) []EdgeDefinition {
	var out []EdgeDefinition
	for _, g := range r.AllGraphs() {
		for _, def := range g.defs {
			if def.references(vertexCollection) {
				out = append(out, def)
			}
		}
	}
	return out
}

// References reports whether any registered graph other than except uses
// collection as a vertex or edge collection.
func (r *Registry) References(collection, except string) bool {
	for _, g := range r.AllGraphs() {
		if g.name == except {
			continue
		}
		for _, name := range g.collectionNames() {
			if name == collection {
				return true
			}
		}
	}
	return false
}
