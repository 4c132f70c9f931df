package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/internal/keys"
)

// EntityPtr constrains P to a pointer to T implementing Entity.
type EntityPtr[T any] interface {
	*T
	Entity
}

// Collection is the type-erased view of a Model used by graphs.
type Collection interface {
	// Name returns the collection name, including the configured prefix.
	Name() string

	// IsEdge reports whether the collection stores edges.
	IsEdge() bool

	// Owns reports whether e is an entity of this collection.
	Owns(e Entity) bool

	EnsureCollection(ctx context.Context) error
	DeleteCollection(ctx context.Context, ignoreMissing bool) (bool, error)
	SaveEntity(ctx context.Context, e Entity, args ...HookArgs) error
	DeleteEntity(ctx context.Context, e Entity, ignoreMissing bool) (bool, error)
}

// Model manages the lifecycle of entities of type T in one collection.
type Model[T any, P EntityPtr[T]] struct {
	db     *DB
	name   string
	isEdge bool
}

// NewModel creates the manager for entity type T.
//
//	identities := store.NewModel[Identity](db)
func NewModel[T any, P EntityPtr[T]](db *DB) *Model[T, P] {
	t := reflect.TypeOf((*T)(nil)).Elem()
	_, isEdge := any(P(new(T))).(EdgeEntity)
	return &Model[T, P]{
		db:     db,
		name:   collectionName(db.config.Prefix, t),
		isEdge: isEdge,
	}
}

// Name returns the collection name.
func (m *Model[T, P]) Name() string { return m.name }

// IsEdge reports whether T is an edge type.
func (m *Model[T, P]) IsEdge() bool { return m.isEdge }

// Owns reports whether e is a T.
func (m *Model[T, P]) Owns(e Entity) bool {
	_, ok := e.(P)
	return ok
}

// EnsureCollection creates the collection if it doesn't exist. Edge
// collections are created with endpoint lookups for cascades.
func (m *Model[T, P]) EnsureCollection(ctx context.Context) error {
	if m.isEdge {
		return m.db.backend.EnsureEdgeCollection(ctx, m.name)
	}
	return m.db.backend.EnsureCollection(ctx, m.name)
}

// HasCollection reports whether the collection exists.
func (m *Model[T, P]) HasCollection(ctx context.Context) (bool, error) {
	return m.db.backend.HasCollection(ctx, m.name)
}

// DeleteCollection drops the collection. With ignoreMissing a missing
// collection returns false instead of ErrDataSourceNotFound.
func (m *Model[T, P]) DeleteCollection(ctx context.Context, ignoreMissing bool) (bool, error) {
	return tolerateMissing(m.db.backend.DeleteCollection(ctx, m.name), ErrDataSourceNotFound, ignoreMissing)
}

// TruncateCollection removes every document. With ignoreMissing a missing
// collection returns false instead of ErrDataSourceNotFound.
func (m *Model[T, P]) TruncateCollection(ctx context.Context, ignoreMissing bool) (bool, error) {
	return tolerateMissing(m.db.backend.TruncateCollection(ctx, m.name), ErrDataSourceNotFound, ignoreMissing)
}

// AddUniqueIndex declares a unique index over fields.
func (m *Model[T, P]) AddUniqueIndex(ctx context.Context, fields ...string) error {
	for _, f := range fields {
		if !validPath(f) {
			return fmt.Errorf("%w: invalid index field %q", ErrStore, f)
		}
	}
	return m.db.backend.EnsureUniqueIndex(ctx, m.name, fields)
}

// Save inserts e when it has no revision and replaces it otherwise, using the
// revision as precondition. The BeforeSave hook runs first with the merged
// args. Key, ID and Rev are updated on e in place.
func (m *Model[T, P]) Save(ctx context.Context, e P, args ...HookArgs) error {
	doc := e.Doc()
	isNew := doc.IsNew()

	if h, ok := any(e).(BeforeSaver); ok {
		if err := h.BeforeSave(ctx, isNew, mergeArgs(args)); err != nil {
			return err
		}
	}
	if edge, ok := any(e).(EdgeEntity); ok {
		if err := edge.EdgeDoc().resolve(); err != nil {
			return err
		}
	}

	rec, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrStore, err)
	}
	delete(rec, AttrRev)

	key := doc.Key
	if isNew && key == "" {
		key = m.db.config.KeyGenerator()
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	id := DocumentID(m.name, key)
	rec[AttrKey] = &types.AttributeValueMemberS{Value: key}
	rec[AttrID] = &types.AttributeValueMemberS{Value: id}

	var rev string
	if isNew {
		rev, err = m.db.backend.Insert(ctx, m.name, rec)
	} else {
		rev, err = m.db.backend.Replace(ctx, m.name, key, doc.Rev, rec)
	}
	if err != nil {
		return err
	}

	doc.Key = key
	doc.ID = id
	doc.Rev = rev
	return nil
}

// SaveEntity implements Collection.
func (m *Model[T, P]) SaveEntity(ctx context.Context, e Entity, args ...HookArgs) error {
	p, ok := e.(P)
	if !ok {
		return fmt.Errorf("%w: %T does not belong to collection %q", ErrStore, e, m.name)
	}
	return m.Save(ctx, p, args...)
}

// Load fetches the entity stored under key. A key that fails ValidateKey
// cannot name a stored document and reports ErrModelNotFound.
func (m *Model[T, P]) Load(ctx context.Context, key string) (P, error) {
	if err := lookupKey(key); err != nil {
		return nil, err
	}
	rec, err := m.db.backend.Get(ctx, m.name, key)
	if err != nil {
		return nil, err
	}
	return decode[T, P](rec)
}

// Reload overwrites e with its stored state.
func (m *Model[T, P]) Reload(ctx context.Context, e P) error {
	key := e.Doc().Key
	if key == "" {
		return fmt.Errorf("%w: entity has no key, save it first", ErrModelNotFound)
	}
	if err := lookupKey(key); err != nil {
		return err
	}
	rec, err := m.db.backend.Get(ctx, m.name, key)
	if err != nil {
		return err
	}
	*e = *new(T)
	if err := attributevalue.UnmarshalMap(rec, e); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrStore, err)
	}
	return nil
}

// Delete removes e using its revision as precondition. It returns true if the
// document was removed, false if it was missing and ignoreMissing is set.
func (m *Model[T, P]) Delete(ctx context.Context, e P, ignoreMissing bool) (bool, error) {
	doc := e.Doc()
	if doc.Key == "" {
		return tolerateMissing(fmt.Errorf("%w: entity has no key", ErrModelNotFound), ErrModelNotFound, ignoreMissing)
	}
	if err := lookupKey(doc.Key); err != nil {
		return tolerateMissing(err, ErrModelNotFound, ignoreMissing)
	}
	err := m.db.backend.Remove(ctx, m.name, doc.Key, doc.Rev)
	return tolerateMissing(err, ErrModelNotFound, ignoreMissing)
}

// DeleteKey removes the document stored under key without a revision check.
func (m *Model[T, P]) DeleteKey(ctx context.Context, key string, ignoreMissing bool) (bool, error) {
	if err := lookupKey(key); err != nil {
		return tolerateMissing(err, ErrModelNotFound, ignoreMissing)
	}
	err := m.db.backend.Remove(ctx, m.name, key, "")
	return tolerateMissing(err, ErrModelNotFound, ignoreMissing)
}

// DeleteEntity implements Collection.
func (m *Model[T, P]) DeleteEntity(ctx context.Context, e Entity, ignoreMissing bool) (bool, error) {
	p, ok := e.(P)
	if !ok {
		return false, fmt.Errorf("%w: %T does not belong to collection %q", ErrStore, e, m.name)
	}
	return m.Delete(ctx, p, ignoreMissing)
}

// FindOptions configures Find.
type FindOptions struct {
	Filter Filter
	Sort   Sort

	// Limit caps the number of results (0 = no limit).
	Limit int

	// Count makes Cursor.Len available.
	Count bool

	// FullCount makes Cursor.FullCount available.
	FullCount bool

	// BatchSize overrides Config.BatchSize. Values above MaxBatchSize are
	// clamped.
	BatchSize int
}

// Find returns a cursor over matching entities. A filter refused by the
// field allow-list matches nothing.
func (m *Model[T, P]) Find(ctx context.Context, opts FindOptions) (*Cursor[T, P], error) {
	if err := validateSort(opts.Sort); err != nil {
		return nil, err
	}
	q := Query{
		Sort:      opts.Sort,
		Limit:     opts.Limit,
		Count:     opts.Count,
		FullCount: opts.FullCount,
		BatchSize: opts.BatchSize,
	}
	switch {
	case q.BatchSize <= 0:
		q.BatchSize = m.db.config.BatchSize
	case q.BatchSize > MaxBatchSize:
		q.BatchSize = MaxBatchSize
	}

	conds, err := compileFilter(opts.Filter)
	if errors.Is(err, errInvalidFilter) {
		m.db.logger().Debug("refusing malformed filter",
			"collection", m.name,
			"error", err,
		)
		return newCursor[T, P](&emptyCursor{q: q}), nil
	}
	q.Conditions = conds

	raw, err := m.db.backend.Query(ctx, m.name, q)
	if err != nil {
		return nil, err
	}
	return newCursor[T, P](raw), nil
}

// FindOneOptions configures FindOne.
type FindOneOptions struct {
	Filter Filter
	Sort   Sort

	// RaiseOnMultiple fails with ErrMultipleModelsFound when more than one
	// entity matches.
	RaiseOnMultiple bool
}

// FindOne returns the first match, or ErrModelNotFound.
func (m *Model[T, P]) FindOne(ctx context.Context, opts FindOneOptions) (P, error) {
	limit := 1
	if opts.RaiseOnMultiple {
		limit = 2
	}
	cur, err := m.Find(ctx, FindOptions{Filter: opts.Filter, Sort: opts.Sort, Limit: limit})
	if err != nil {
		return nil, err
	}
	found, err := cur.ToList(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("%w: no %s matches %v", ErrModelNotFound, m.name, opts.Filter)
	case len(found) > 1:
		return nil, fmt.Errorf("%w: more than one %s matches %v", ErrMultipleModelsFound, m.name, opts.Filter)
	}
	return found[0], nil
}

// GetLock returns the lock guarding key. The lock is not acquired.
func (m *Model[T, P]) GetLock(key string) *Lock {
	return NewLock(m.db.locker, keys.LockName(m.name, key))
}

// LockAndReload holds the lock of e while reloading it and running fn.
// The lock is released on every exit path.
func (m *Model[T, P]) LockAndReload(ctx context.Context, e P, fn func(context.Context, P) error) error {
	if key := e.Doc().Key; key != "" {
		if err := lookupKey(key); err != nil {
			return err
		}
	}
	return m.GetLock(e.Doc().Key).Do(ctx, func(ctx context.Context) error {
		if err := m.Reload(ctx, e); err != nil {
			return err
		}
		return fn(ctx, e)
	})
}

// LockAndLoad holds the lock of key while loading the entity and running fn.
// The lock is released on every exit path.
func (m *Model[T, P]) LockAndLoad(ctx context.Context, key string, fn func(context.Context, P) error) error {
	if err := lookupKey(key); err != nil {
		return err
	}
	return m.GetLock(key).Do(ctx, func(ctx context.Context) error {
		e, err := m.Load(ctx, key)
		if err != nil {
			return err
		}
		return fn(ctx, e)
	})
}

// lookupKey reports a key that cannot name a stored document as missing.
func lookupKey(key string) error {
	if err := ValidateKey(key); err != nil {
		return fmt.Errorf("%w: %w", ErrModelNotFound, err)
	}
	return nil
}

// tolerateMissing turns err into the boolean result of an ignoreMissing
// operation: true on success, false if err is missing and tolerated.
func tolerateMissing(err error, missing error, ignoreMissing bool) (bool, error) {
	if err == nil {
		return true, nil
	}
	if ignoreMissing && errors.Is(err, missing) {
		return false, nil
	}
	return false, err
}

func mergeArgs(args []HookArgs) HookArgs {
	merged := HookArgs{}
	for _, a := range args {
		for k, v := range a {
			merged[k] = v
		}
	}
	return merged
}
