// Package memory provides in-process implementations of store.Backend and
// store.Locker. State lives in maps guarded by a mutex; nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/canopy/store"
)

var _ store.Backend = (*Backend)(nil)

type collection struct {
	docs    map[string]store.Record
	seq     map[string]uint64
	indexes [][]string
}

// Backend is an in-memory store.Backend.
type Backend struct {
	mu          sync.RWMutex
	collections map[string]*collection
	graphs      map[string][]store.EdgeCollections
	nextSeq     uint64
}

// New creates an empty Backend.
func New() *Backend {
	return &Backend{
		collections: make(map[string]*collection),
		graphs:      make(map[string][]store.EdgeCollections),
	}
}

func (b *Backend) collection(name string) (*collection, error) {
	c, ok := b.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", store.ErrDataSourceNotFound, name)
	}
	return c, nil
}

// EnsureCollection implements store.Backend.
func (b *Backend) EnsureCollection(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.collections[name]; !ok {
		b.collections[name] = &collection{
			docs: make(map[string]store.Record),
			seq:  make(map[string]uint64),
		}
	}
	return nil
}

// EnsureEdgeCollection implements store.Backend. EdgeKeys scans the
// collection, so edge collections need nothing extra.
func (b *Backend) EnsureEdgeCollection(ctx context.Context, name string) error {
	return b.EnsureCollection(ctx, name)
}

// DeleteCollection implements store.Backend.
func (b *Backend) DeleteCollection(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.collection(name); err != nil {
		return err
	}
	delete(b.collections, name)
	return nil
}

// TruncateCollection implements store.Backend.
func (b *Backend) TruncateCollection(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.collection(name)
	if err != nil {
		return err
	}
	c.docs = make(map[string]store.Record)
	c.seq = make(map[string]uint64)
	return nil
}

// HasCollection implements store.Backend.
func (b *Backend) HasCollection(_ context.Context, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.collections[name]
	return ok, nil
}

// EnsureUniqueIndex implements store.Backend.
func (b *Backend) EnsureUniqueIndex(_ context.Context, name string, fields []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.collection(name)
	if err != nil {
		return err
	}
	for _, idx := range c.indexes {
		if equalFields(idx, fields) {
			return nil
		}
	}
	idx := append([]string(nil), fields...)
	for key, doc := range c.docs {
		if other, ok := c.violates(idx, key, doc); ok {
			return fmt.Errorf("%w: cannot create unique index %v: %q and %q collide",
				store.ErrUniqueConstraint, fields, key, other)
		}
	}
	c.indexes = append(c.indexes, idx)
	return nil
}

// Insert implements store.Backend.
func (b *Backend) Insert(_ context.Context, name string, rec store.Record) (string, error) {
	key := stringAttr(rec, store.AttrKey)

	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.collection(name)
	if err != nil {
		return "", err
	}
	if _, exists := c.docs[key]; exists {
		return "", fmt.Errorf("%w: unique constraint violated - in index primary of type primary over '_key'; conflicting key: %s",
			store.ErrUniqueConstraint, key)
	}
	if err := c.checkIndexes(key, rec); err != nil {
		return "", err
	}

	rev := uuid.NewString()
	b.nextSeq++
	c.docs[key] = withRev(rec, rev)
	c.seq[key] = b.nextSeq
	return rev, nil
}

// Replace implements store.Backend.
func (b *Backend) Replace(_ context.Context, name, key, rev string, rec store.Record) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.collection(name)
	if err != nil {
		return "", err
	}
	current, ok := c.docs[key]
	if !ok {
		return "", fmt.Errorf("%w: document %s/%s", store.ErrModelNotFound, name, key)
	}
	if stringAttr(current, store.AttrRev) != rev {
		return "", fmt.Errorf("%w: conflict, revision of %s/%s is not %s",
			store.ErrUniqueConstraint, name, key, rev)
	}
	if err := c.checkIndexes(key, rec); err != nil {
		return "", err
	}

	newRev := uuid.NewString()
	c.docs[key] = withRev(rec, newRev)
	return newRev, nil
}

// Get implements store.Backend.
func (b *Backend) Get(_ context.Context, name, key string) (store.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, err := b.collection(name)
	if err != nil {
		return nil, err
	}
	doc, ok := c.docs[key]
	if !ok {
		return nil, fmt.Errorf("%w: document %s/%s", store.ErrModelNotFound, name, key)
	}
	return copyRecord(doc), nil
}

// Remove implements store.Backend.
func (b *Backend) Remove(_ context.Context, name, key, rev string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.collection(name)
	if err != nil {
		return err
	}
	doc, ok := c.docs[key]
	if !ok {
		return fmt.Errorf("%w: document %s/%s", store.ErrModelNotFound, name, key)
	}
	if rev != "" && stringAttr(doc, store.AttrRev) != rev {
		return fmt.Errorf("%w: conflict, revision of %s/%s is not %s",
			store.ErrUniqueConstraint, name, key, rev)
	}
	delete(c.docs, key)
	delete(c.seq, key)
	return nil
}

// Query implements store.Backend. The result set is evaluated eagerly and
// handed out in batches of q.BatchSize.
func (b *Backend) Query(_ context.Context, name string, q store.Query) (store.RawCursor, error) {
	b.mu.RLock()
	c, err := b.collection(name)
	if err != nil {
		b.mu.RUnlock()
		return nil, err
	}
	keys := c.ordered()
	recs := make([]store.Record, len(keys))
	for i, key := range keys {
		recs[i] = copyRecord(c.docs[key])
	}
	b.mu.RUnlock()

	page, full := q.Apply(recs)
	return newCursor(page, full, q), nil
}

// EdgeKeys implements store.Backend.
func (b *Backend) EdgeKeys(_ context.Context, name, attr, vertexID string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, err := b.collection(name)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, key := range c.ordered() {
		if stringAttr(c.docs[key], attr) == vertexID {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// EnsureGraph implements store.Backend.
func (b *Backend) EnsureGraph(_ context.Context, name string, defs []store.EdgeCollections) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.graphs[name]; !ok {
		b.graphs[name] = defs
	}
	return nil
}

// DeleteGraph implements store.Backend.
func (b *Backend) DeleteGraph(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.graphs[name]; !ok {
		return fmt.Errorf("%w: graph %q", store.ErrGraphNotFound, name)
	}
	delete(b.graphs, name)
	return nil
}

// HasGraph reports whether a graph definition is stored under name.
func (b *Backend) HasGraph(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.graphs[name]
	return ok
}

// ordered returns the document keys in insertion order.
func (c *collection) ordered() []string {
	keys := make([]string, 0, len(c.docs))
	for key := range c.docs {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return c.seq[keys[i]] < c.seq[keys[j]] })
	return keys
}

// checkIndexes returns ErrUniqueConstraint if rec, stored under key, would
// collide with another document on any unique index.
func (c *collection) checkIndexes(key string, rec store.Record) error {
	for _, idx := range c.indexes {
		if other, ok := c.violates(idx, key, rec); ok {
			return fmt.Errorf("%w: unique constraint violated - in index %v; conflicting key: %s",
				store.ErrUniqueConstraint, idx, other)
		}
	}
	return nil
}

func (c *collection) violates(idx []string, key string, rec store.Record) (string, bool) {
	for otherKey, other := range c.docs {
		if otherKey == key {
			continue
		}
		same := true
		for _, field := range idx {
			path := store.SortKey{Field: field}.Path()
			if store.Compare(store.Lookup(rec, path), store.Lookup(other, path)) != 0 {
				same = false
				break
			}
		}
		if same {
			return otherKey, true
		}
	}
	return "", false
}

func equalFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func withRev(rec store.Record, rev string) store.Record {
	out := copyRecord(rec)
	out[store.AttrRev] = &types.AttributeValueMemberS{Value: rev}
	return out
}

func copyRecord(rec store.Record) store.Record {
	out := make(store.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func stringAttr(rec store.Record, attr string) string {
	if v, ok := rec[attr].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
