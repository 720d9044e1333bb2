// Package memstore is the default, process-local store.Store
// implementation: a mutex-guarded map of collections to documents.
package memstore

import (
	"context"
	"sync"

	"github.com/coldforge/schnorrauth/internal/store"
)

type collection struct {
	mu   sync.Mutex
	docs map[string]store.Document
}

// Store is an in-memory store.Store. Each collection gets its own mutex, so
// an append to one user's device list never blocks a lookup in a different
// collection; operations within one collection take turns.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) collectionFor(name string) *collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]store.Document)}
		s.collections[name] = c
	}
	return c
}

func cloneDoc(doc store.Document) store.Document {
	clone := make(store.Document, len(doc))
	for k, v := range doc {
		clone[k] = v
	}
	return clone
}

func (s *Store) Insert(ctx context.Context, collectionName, id string, doc store.Document) error {
	c := s.collectionFor(collectionName)
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.docs[id]; exists {
		return store.ErrAlreadyExists
	}
	c.docs[id] = cloneDoc(doc)
	return nil
}

func (s *Store) FindByID(ctx context.Context, collectionName, id string) (store.Document, error) {
	c := s.collectionFor(collectionName)
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[id]
	if !ok {
		return nil, &store.NotFoundError{Collection: collectionName, ID: id}
	}
	return cloneDoc(doc), nil
}

func (s *Store) UpdateField(ctx context.Context, collectionName, id, field string, value any) error {
	c := s.collectionFor(collectionName)
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[id]
	if !ok {
		return &store.NotFoundError{Collection: collectionName, ID: id}
	}
	doc[field] = value
	return nil
}

func (s *Store) UpdateArrayElementByMatch(ctx context.Context, collectionName, id, arrayField, matchField string, matchValue any, updates map[string]any) error {
	c := s.collectionFor(collectionName)
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[id]
	if !ok {
		return &store.NotFoundError{Collection: collectionName, ID: id}
	}

	rawArr, _ := doc[arrayField].([]any)
	for _, rawElem := range rawArr {
		elem, ok := rawElem.(map[string]any)
		if !ok {
			continue
		}
		if elem[matchField] == matchValue {
			for k, v := range updates {
				elem[k] = v
			}
			return nil
		}
	}
	return &store.NotFoundError{Collection: collectionName, ID: id + "/" + arrayField}
}

func (s *Store) PushToArray(ctx context.Context, collectionName, id, arrayField string, element any) error {
	c := s.collectionFor(collectionName)
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[id]
	if !ok {
		return &store.NotFoundError{Collection: collectionName, ID: id}
	}

	arr, _ := doc[arrayField].([]any)
	doc[arrayField] = append(arr, element)
	return nil
}

func (s *Store) Delete(ctx context.Context, collectionName, id string) error {
	c := s.collectionFor(collectionName)
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[id]; !ok {
		return &store.NotFoundError{Collection: collectionName, ID: id}
	}
	delete(c.docs, id)
	return nil
}

func (s *Store) List(ctx context.Context, collectionName string) ([]store.Document, error) {
	c := s.collectionFor(collectionName)
	c.mu.Lock()
	defer c.mu.Unlock()

	docs := make([]store.Document, 0, len(c.docs))
	for _, doc := range c.docs {
		docs = append(docs, cloneDoc(doc))
	}
	return docs, nil
}
