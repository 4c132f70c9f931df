package store

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-openapi/inflect"
)

// Reserved document attributes managed by canopy.
const (
	AttrKey  = "_key"
	AttrID   = "_id"
	AttrRev  = "_rev"
	AttrFrom = "_from"
	AttrTo   = "_to"
)

// Record is a raw stored document.
type Record map[string]types.AttributeValue

// Entity is the base interface for all storable types.
// Implement it by embedding Document (or Edge for edge collections).
type Entity interface {
	// Doc returns the embedded document metadata.
	Doc() *Document
}

// EdgeEntity is implemented by entities stored in edge collections.
type EdgeEntity interface {
	Entity

	// EdgeDoc returns the embedded edge metadata.
	EdgeDoc() *Edge
}

// CollectionNamer overrides the collection name derived from the type name.
type CollectionNamer interface {
	CollectionName() string
}

// HookArgs carries caller-supplied values to BeforeSave hooks.
type HookArgs map[string]any

// BeforeSaver is invoked before an entity is serialized on Save.
// Document provides a no-op implementation; entity types shadow it to derive
// or default their own fields.
type BeforeSaver interface {
	BeforeSave(ctx context.Context, isNew bool, args HookArgs) error
}

// Document holds the identity of a stored document.
//
//	type Identity struct {
//	    store.Document
//	    Name string `dynamodbav:"name"`
//	}
type Document struct {
	// Key is unique within the collection. Assigned on first save when empty.
	Key string `dynamodbav:"_key,omitempty"`

	// ID is the fully-qualified "collection/key" identifier.
	ID string `dynamodbav:"_id,omitempty"`

	// Rev is the revision assigned by the store on every successful write.
	Rev string `dynamodbav:"_rev,omitempty"`
}

// Doc implements Entity.
func (d *Document) Doc() *Document { return d }

// BeforeSave is the default no-op hook.
func (d *Document) BeforeSave(context.Context, bool, HookArgs) error { return nil }

// IsNew reports whether the document has never been saved.
func (d *Document) IsNew() bool { return d.Key == "" || d.Rev == "" }

// Edge holds the endpoints of an edge document.
// Endpoints are either set as ids or as loaded entities via SetFrom/SetTo;
// entity endpoints are resolved to ids when the edge is saved.
type Edge struct {
	Document

	From string `dynamodbav:"_from"`
	To   string `dynamodbav:"_to"`

	from Entity
	to   Entity
}

// EdgeDoc implements EdgeEntity.
func (e *Edge) EdgeDoc() *Edge { return e }

// SetFrom sets the "from" endpoint to a loaded entity.
func (e *Edge) SetFrom(v Entity) {
	e.from = v
	e.From = v.Doc().ID
}

// SetTo sets the "to" endpoint to a loaded entity.
func (e *Edge) SetTo(v Entity) {
	e.to = v
	e.To = v.Doc().ID
}

// FromEntity returns the entity passed to SetFrom, or nil after a load/reload.
func (e *Edge) FromEntity() Entity { return e.from }

// ToEntity returns the entity passed to SetTo, or nil after a load/reload.
func (e *Edge) ToEntity() Entity { return e.to }

// FromKey returns the key part of the "from" endpoint.
func (e *Edge) FromKey() string {
	_, key, _ := SplitID(e.From)
	return key
}

// ToKey returns the key part of the "to" endpoint.
func (e *Edge) ToKey() string {
	_, key, _ := SplitID(e.To)
	return key
}

// resolve refreshes From/To from endpoint entities. Endpoints that were never
// saved have no id and fail with ErrModelNotFound.
func (e *Edge) resolve() error {
	if e.from != nil {
		e.From = e.from.Doc().ID
	}
	if e.to != nil {
		e.To = e.to.Doc().ID
	}
	if e.From == "" {
		return fmt.Errorf("%w: edge has no \"from\" endpoint", ErrModelNotFound)
	}
	if e.To == "" {
		return fmt.Errorf("%w: edge has no \"to\" endpoint", ErrModelNotFound)
	}
	return nil
}

// DocumentID composes the fully-qualified identifier of a document.
func DocumentID(collection, key string) string {
	return collection + "/" + key
}

// SplitID splits a fully-qualified identifier into collection and key.
func SplitID(id string) (collection, key string, ok bool) {
	collection, key, ok = strings.Cut(id, "/")
	if !ok || collection == "" || key == "" {
		return "", "", false
	}
	return collection, key, true
}

const maxKeyLength = 254

// ValidateKey checks a caller-supplied key against the key policy.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("%w: key exceeds %d bytes", ErrInvalidKey, maxKeyLength)
	}
	for _, r := range key {
		if !isKeyRune(r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, r)
		}
	}
	return nil
}

func isKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("_-:.@()+,=;$!*'%", r)
}

// collectionName derives the collection name for entity type t (a struct type).
func collectionName(prefix string, t reflect.Type) string {
	if n, ok := reflect.New(t).Interface().(CollectionNamer); ok {
		return prefix + n.CollectionName()
	}
	return prefix + inflect.Underscore(inflect.Pluralize(t.Name()))
}
