package store

// kind is a member of the closed error taxonomy. Every kind matches ErrStore,
// and a kind with a parent also matches the parent.
type kind struct {
	msg    string
	parent *kind
}

func (k *kind) Error() string { return k.msg }

// Is reports whether target is this kind, one of its ancestors, or ErrStore.
func (k *kind) Is(target error) bool {
	t, ok := target.(*kind)
	if !ok {
		return false
	}
	if t == ErrStore {
		return true
	}
	for p := k.parent; p != nil; p = p.parent {
		if p == t {
			return true
		}
	}
	return false
}

var (
	// ErrStore is the base kind; every error raised by canopy matches it.
	// Backends wrap unclassified failures with it directly.
	ErrStore = &kind{msg: "canopy: store error"}

	// ErrDataSourceNotFound is returned when a collection is absent for an admin operation.
	ErrDataSourceNotFound = &kind{msg: "canopy: data source not found"}

	// ErrModelNotFound is returned when a document doesn't exist.
	ErrModelNotFound = &kind{msg: "canopy: model not found"}

	// ErrMultipleModelsFound is returned by FindOne when RaiseOnMultiple is set
	// and more than one document matches.
	ErrMultipleModelsFound = &kind{msg: "canopy: multiple models found"}

	// ErrUniqueConstraint is returned on a primary key collision, a unique index
	// collision, or a stale revision. All three mean the write lost to another write.
	ErrUniqueConstraint = &kind{msg: "canopy: unique constraint violated"}

	// ErrGraphNotFound is returned when deleting a graph that doesn't exist.
	ErrGraphNotFound = &kind{msg: "canopy: graph not found"}

	// ErrCursor is returned on cursor misuse.
	ErrCursor = &kind{msg: "canopy: cursor error"}

	// ErrCursorNotFound is returned when the backing cursor is already gone.
	ErrCursorNotFound = &kind{msg: "canopy: cursor not found", parent: ErrCursor}

	// ErrCountUnavailable is returned by Cursor.Len when counting was not requested.
	ErrCountUnavailable = &kind{msg: "canopy: cursor count not available", parent: ErrCursor}

	// ErrCursorDone is returned by Cursor.Next when the cursor is exhausted.
	ErrCursorDone = &kind{msg: "canopy: no more results", parent: ErrCursor}

	// ErrLockNotAcquired is returned when a scoped acquisition could not take its lock.
	ErrLockNotAcquired = &kind{msg: "canopy: lock not acquired"}

	// ErrLockLost is returned when releasing a lock whose holder changed while
	// it was held, e.g. because its lease expired. It matches ErrLockNotAcquired.
	ErrLockLost = &kind{msg: "canopy: lock lost", parent: ErrLockNotAcquired}

	// ErrInvalidKey is returned when a caller-supplied key violates the key policy.
	ErrInvalidKey = &kind{msg: "canopy: invalid document key"}

	// ErrEdgeNotPermitted is returned when an edge endpoint belongs to a vertex
	// collection its edge definition does not allow.
	ErrEdgeNotPermitted = &kind{msg: "canopy: edge endpoint not permitted"}

	// errInvalidFilter marks predicates refused by the filter allow-list.
	errInvalidFilter = &kind{msg: "canopy: invalid filter"}
)
