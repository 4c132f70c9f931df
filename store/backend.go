package store

import "context"

// Backend is the document database a DB runs against.
//
// Implementations translate their native failures into the error kinds in
// errors.go before returning; callers above the Backend only see those kinds.
type Backend interface {
	// EnsureCollection creates the collection. An existing collection is success.
	EnsureCollection(ctx context.Context, collection string) error

	// EnsureEdgeCollection creates an edge collection that supports EdgeKeys
	// lookups. An existing collection is success.
	EnsureEdgeCollection(ctx context.Context, collection string) error

	// DeleteCollection drops the collection. Returns ErrDataSourceNotFound if missing.
	DeleteCollection(ctx context.Context, collection string) error

	// TruncateCollection removes every document. Returns ErrDataSourceNotFound if missing.
	TruncateCollection(ctx context.Context, collection string) error

	// HasCollection reports whether the collection exists.
	HasCollection(ctx context.Context, collection string) (bool, error)

	// EnsureUniqueIndex declares a unique index over fields. Idempotent.
	EnsureUniqueIndex(ctx context.Context, collection string, fields []string) error

	// Insert stores a new document under rec[_key] and returns its revision.
	// Returns ErrUniqueConstraint on key or unique index collision.
	Insert(ctx context.Context, collection string, rec Record) (string, error)

	// Replace overwrites the document if its revision is still rev and returns
	// the new revision. Returns ErrUniqueConstraint on revision mismatch or
	// unique index collision, ErrModelNotFound if the document is gone.
	Replace(ctx context.Context, collection, key, rev string, rec Record) (string, error)

	// Get fetches a document. Returns ErrModelNotFound if missing.
	Get(ctx context.Context, collection, key string) (Record, error)

	// Remove deletes a document. A non-empty rev is a precondition; a mismatch
	// returns ErrUniqueConstraint. Returns ErrModelNotFound if missing.
	Remove(ctx context.Context, collection, key, rev string) error

	// EdgeKeys returns the keys of edges in collection whose endpoint attr
	// (AttrFrom or AttrTo) is vertexID. Returns ErrDataSourceNotFound if the
	// collection is missing.
	EdgeKeys(ctx context.Context, collection, attr, vertexID string) ([]string, error)

	// Query opens a cursor over documents matching q.
	Query(ctx context.Context, collection string, q Query) (RawCursor, error)

	// EnsureGraph records the graph definition. An existing graph is success.
	EnsureGraph(ctx context.Context, name string, defs []EdgeCollections) error

	// DeleteGraph removes the graph definition. Returns ErrGraphNotFound if missing.
	DeleteGraph(ctx context.Context, name string) error
}

// RawCursor is a backend result stream.
type RawCursor interface {
	// Next returns the next record, or ErrCursorDone when exhausted.
	Next(ctx context.Context) (Record, error)

	// Count returns the number of results when counting was requested.
	Count() (int, bool)

	// FullCount returns the number of matches ignoring the limit, when requested.
	FullCount() (int, bool)

	// Close releases the stream. Returns ErrCursorNotFound if it is already gone.
	Close(ctx context.Context) error
}

// Locker is the distributed lock backend.
type Locker interface {
	// Acquire takes the named lock for owner. With block set it waits until
	// the lock is free or ctx is done; otherwise it returns false when the lock
	// is held by another owner.
	Acquire(ctx context.Context, name, owner string, block bool) (bool, error)

	// Release frees the named lock. Returns ErrLockLost if owner no longer
	// holds it.
	Release(ctx context.Context, name, owner string) error
}

// EdgeCollections is the storage-level form of an EdgeDefinition.
type EdgeCollections struct {
	Edge string   `dynamodbav:"edge"`
	From []string `dynamodbav:"from"`
	To   []string `dynamodbav:"to"`
}
