package store

import (
	"context"
	"errors"
	"fmt"
)

// EdgeDefinition declares one edge collection and the vertex collections its
// endpoints may point to.
type EdgeDefinition struct {
	Edge Collection
	From []Collection
	To   []Collection
}

func (d EdgeDefinition) permitsFrom(collection string) bool { return containsName(d.From, collection) }

func (d EdgeDefinition) permitsTo(collection string) bool { return containsName(d.To, collection) }

func (d EdgeDefinition) references(vertexCollection string) bool {
	return d.permitsFrom(vertexCollection) || d.permitsTo(vertexCollection)
}

func (d EdgeDefinition) storage() EdgeCollections {
	ec := EdgeCollections{Edge: d.Edge.Name()}
	for _, c := range d.From {
		ec.From = append(ec.From, c.Name())
	}
	for _, c := range d.To {
		ec.To = append(ec.To, c.Name())
	}
	return ec
}

func containsName(cs []Collection, name string) bool {
	for _, c := range cs {
		if c.Name() == name {
			return true
		}
	}
	return false
}

// Graph keeps edges consistent with the vertices they connect.
//
// Saving an edge through a Graph validates that both endpoints exist.
// Deleting a vertex through a Graph removes every edge pointing at it, in
// every graph of the registry whose edge definitions reference the vertex
// collection.
type Graph struct {
	db   *DB
	name string
	defs []EdgeDefinition
}

// NewGraph defines a graph and registers it with the DB registry.
func NewGraph(db *DB, name string, defs ...EdgeDefinition) *Graph {
	g := &Graph{
		db:   db,
		name: name,
		defs: defs,
	}
	db.registry.Register(g)
	return g
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// EdgeDefinitions returns the graph's edge definitions.
func (g *Graph) EdgeDefinitions() []EdgeDefinition { return g.defs }

// collections returns every vertex and edge collection of the graph, once.
func (g *Graph) collections() []Collection {
	seen := make(map[string]bool)
	var out []Collection
	add := func(c Collection) {
		if !seen[c.Name()] {
			seen[c.Name()] = true
			out = append(out, c)
		}
	}
	for _, d := range g.defs {
		add(d.Edge)
		for _, c := range d.From {
			add(c)
		}
		for _, c := range d.To {
			add(c)
		}
	}
	return out
}

func (g *Graph) collectionNames() []string {
	cs := g.collections()
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name()
	}
	return names
}

// EnsureGraph creates the graph and all of its collections. An existing
// graph is success.
func (g *Graph) EnsureGraph(ctx context.Context) error {
	for _, c := range g.collections() {
		if err := c.EnsureCollection(ctx); err != nil {
			return err
		}
	}
	defs := make([]EdgeCollections, len(g.defs))
	for i, d := range g.defs {
		defs[i] = d.storage()
	}
	if err := g.db.backend.EnsureGraph(ctx, g.name, defs); err != nil {
		return err
	}
	g.db.registry.Register(g)
	return nil
}

// DeleteGraph removes the graph. With dropCollections its vertex and edge
// collections are dropped too, except those still used by another registered
// graph. A missing graph fails with ErrGraphNotFound unless ignoreMissing is
// set, in which case false is returned.
func (g *Graph) DeleteGraph(ctx context.Context, ignoreMissing, dropCollections bool) (bool, error) {
	deleted, err := tolerateMissing(g.db.backend.DeleteGraph(ctx, g.name), ErrGraphNotFound, ignoreMissing)
	if err != nil || !deleted {
		return deleted, err
	}
	g.db.registry.Unregister(g.name)

	if dropCollections {
		for _, c := range g.collections() {
			if g.db.registry.References(c.Name(), g.name) {
				continue
			}
			if _, err := c.DeleteCollection(ctx, true); err != nil {
				return true, err
			}
		}
	}
	return true, nil
}

// collectionFor returns the collection of the graph that owns e.
func (g *Graph) collectionFor(e Entity) (Collection, error) {
	for _, c := range g.collections() {
		if c.Owns(e) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %T is not part of graph %q", ErrStore, e, g.name)
}

func (g *Graph) definitionFor(edgeCollection string) (EdgeDefinition, bool) {
	for _, d := range g.defs {
		if d.Edge.Name() == edgeCollection {
			return d, true
		}
	}
	return EdgeDefinition{}, false
}

// Save stores e through its own collection. Edges are only written when both
// endpoints belong to permitted vertex collections and currently exist.
func (g *Graph) Save(ctx context.Context, e Entity, args ...HookArgs) error {
	c, err := g.collectionFor(e)
	if err != nil {
		return err
	}
	if edge, ok := e.(EdgeEntity); ok && c.IsEdge() {
		if err := g.checkEndpoints(ctx, c.Name(), edge.EdgeDoc()); err != nil {
			return err
		}
	}
	return c.SaveEntity(ctx, e, args...)
}

func (g *Graph) checkEndpoints(ctx context.Context, edgeCollection string, edge *Edge) error {
	def, ok := g.definitionFor(edgeCollection)
	if !ok {
		return fmt.Errorf("%w: %q is not an edge collection of graph %q", ErrStore, edgeCollection, g.name)
	}
	if err := edge.resolve(); err != nil {
		return err
	}

	endpoints := []struct {
		id      string
		permits func(string) bool
	}{
		{edge.From, def.permitsFrom},
		{edge.To, def.permitsTo},
	}
	for _, ep := range endpoints {
		collection, key, ok := SplitID(ep.id)
		if !ok {
			return fmt.Errorf("%w: malformed endpoint %q", ErrModelNotFound, ep.id)
		}
		if !ep.permits(collection) {
			return fmt.Errorf("%w: %q in %q", ErrEdgeNotPermitted, ep.id, edgeCollection)
		}
		if _, err := g.db.backend.Get(ctx, collection, key); err != nil {
			if errors.Is(err, ErrModelNotFound) {
				return fmt.Errorf("%w: endpoint %q", err, ep.id)
			}
			return err
		}
	}
	return nil
}

// Delete removes e through its own collection. When e is a vertex, every edge
// referencing it is removed afterwards (see CascadeVertex). The boolean result
// follows Model.Delete.
func (g *Graph) Delete(ctx context.Context, e Entity, ignoreMissing bool) (bool, error) {
	c, err := g.collectionFor(e)
	if err != nil {
		return false, err
	}
	removed, err := c.DeleteEntity(ctx, e, ignoreMissing)
	if err != nil || !removed || c.IsEdge() {
		return removed, err
	}
	if _, err := g.CascadeVertex(ctx, e.Doc().ID); err != nil {
		return true, err
	}
	return true, nil
}

// CascadeVertex removes every edge whose endpoint is vertexID, in every
// registered graph whose edge definitions reference the vertex collection.
// Edges already gone are skipped. It returns the number of edges removed.
func (g *Graph) CascadeVertex(ctx context.Context, vertexID string) (int, error) {
	var extra []EdgeDefinition
	if g.db.registry.Graph(g.name) != g {
		extra = g.defs
	}
	removed, err := g.db.cascade(ctx, vertexID, extra)
	g.db.logger().Debug("cascade delete completed",
		"graph", g.name,
		"vertex", vertexID,
		"edgesRemoved", removed,
	)
	return removed, err
}

// CascadeVertex removes every edge of every registered graph whose endpoint
// is vertexID. It is the graph-independent form of Graph.CascadeVertex, used
// when a vertex disappeared without going through a Graph.
func (db *DB) CascadeVertex(ctx context.Context, vertexID string) (int, error) {
	removed, err := db.cascade(ctx, vertexID, nil)
	db.logger().Debug("cascade delete completed",
		"vertex", vertexID,
		"edgesRemoved", removed,
	)
	return removed, err
}

// cascade removes edges pointing at vertexID, looked up through the registry
// plus any extra definitions that reference the vertex collection.
func (db *DB) cascade(ctx context.Context, vertexID string, extra []EdgeDefinition) (int, error) {
	vertexCollection, _, ok := SplitID(vertexID)
	if !ok {
		return 0, fmt.Errorf("%w: malformed vertex id %q", ErrStore, vertexID)
	}

	defs := db.registry.EdgesOf(vertexCollection)
	for _, d := range extra {
		if d.references(vertexCollection) {
			defs = append(defs, d)
		}
	}

	removed := 0
	seen := make(map[string]bool)
	for _, def := range defs {
		var attrs []string
		if def.permitsFrom(vertexCollection) {
			attrs = append(attrs, AttrFrom)
		}
		if def.permitsTo(vertexCollection) {
			attrs = append(attrs, AttrTo)
		}
		edgeCollection := def.Edge.Name()
		for _, attr := range attrs {
			keys, err := db.backend.EdgeKeys(ctx, edgeCollection, attr, vertexID)
			if errors.Is(err, ErrDataSourceNotFound) {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("query %s: %w", edgeCollection, err)
			}
			for _, key := range keys {
				id := DocumentID(edgeCollection, key)
				if seen[id] {
					continue
				}
				seen[id] = true

				err := db.backend.Remove(ctx, edgeCollection, key, "")
				if errors.Is(err, ErrModelNotFound) {
					continue
				}
				if err != nil {
					return removed, fmt.Errorf("remove %s: %w", id, err)
				}
				removed++
			}
		}
	}
	return removed, nil
}
