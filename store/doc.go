// Package store provides object-document mapping with graph consistency.
//
// Canopy maps typed Go structs to documents in collections, detects
// concurrent writes through revision preconditions, coordinates
// read-modify-write sequences with advisory locks, and keeps edge collections
// consistent with the vertices they connect, on backends that only offer
// per-document atomicity.
//
// # Key Features
//
//   - Optimistic concurrency via revision tags (stale writes are rejected)
//   - Unique indexes and primary key collisions reported as one error kind
//   - Scoped lock-and-load / lock-and-reload sequences
//   - Edge endpoint validation and cross-graph cascading vertex deletes
//   - Bounded filter/sort queries with lazy cursors
//
// # Entities
//
// Entities embed [Document]; edge entities embed [Edge]:
//
//	type Person struct {
//	    store.Document
//	    Name string `dynamodbav:"name"`
//	}
//
//	type Relation struct {
//	    store.Edge
//	    Kind string `dynamodbav:"kind"`
//	}
//
// The collection name is derived from the type name ("people",
// "relations") unless the type implements [CollectionNamer]. Types may
// shadow the [BeforeSaver] hook provided by Document.
//
// # Models and graphs
//
//	db := store.New(backend, locker, store.DefaultConfig())
//	people := store.NewModel[Person](db)
//	relations := store.NewModel[Relation](db)
//
//	g := store.NewGraph(db, "relations", store.EdgeDefinition{
//	    Edge: relations,
//	    From: []store.Collection{people},
//	    To:   []store.Collection{people},
//	})
//
// # Errors
//
// Every error matches [ErrStore]. Backends translate native failures into the
// kinds declared in errors.go; use [errors.Is] to classify:
//
//	if errors.Is(err, store.ErrUniqueConstraint) {
//	    // reload and retry
//	}
package store
