// Package store defines the narrow document-collection abstraction the
// user store and token store are built on (spec's storage-abstraction
// re-architecture note): insert, find, update-field, update-array-element-
// by-match, delete, push-to-array. Concrete backends live in the memstore
// and sqlstore subpackages.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrAlreadyExists is returned by Insert when a document with the given id
// already exists in the collection.
var ErrAlreadyExists = errors.New("store: document already exists")

// NotFoundError is returned by FindByID, UpdateField,
// UpdateArrayElementByMatch, and Delete when no document with the given id
// exists in the collection.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("store: %s/%s not found", e.Collection, e.ID)
}

// IsNotFound reports whether err is (or wraps) a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Document is a single persisted document, keyed by collection and id. The
// caller owns the document's shape; the store only ever compares and merges
// at the top level (or one array field deep, for UpdateArrayElementByMatch
// and PushToArray).
type Document map[string]any

// Store is the narrow contract every persistence backend implements. All
// operations must be safe under concurrent access from multiple workers;
// the store is the serialization point for user/device mutations.
type Store interface {
	// Insert adds a new document, failing with ErrAlreadyExists if the id
	// is already present in the collection.
	Insert(ctx context.Context, collection, id string, doc Document) error

	// FindByID returns the document for id, or a *NotFoundError.
	FindByID(ctx context.Context, collection, id string) (Document, error)

	// UpdateField sets a single top-level field on an existing document.
	UpdateField(ctx context.Context, collection, id, field string, value any) error

	// UpdateArrayElementByMatch finds the first element of arrayField whose
	// matchField equals matchValue and merges updates into it. It is an
	// error if no element matches.
	UpdateArrayElementByMatch(ctx context.Context, collection, id, arrayField, matchField string, matchValue any, updates map[string]any) error

	// PushToArray appends element to arrayField. The push and any
	// concurrent push to the same document must not lose either element
	// (atomic at the document level).
	PushToArray(ctx context.Context, collection, id, arrayField string, element any) error

	// Delete removes a document by id.
	Delete(ctx context.Context, collection, id string) error

	// List returns every document in collection, in no particular order.
	// Used by the admin read path; never called from the protocol handler's
	// hot path.
	List(ctx context.Context, collection string) ([]Document, error)
}
