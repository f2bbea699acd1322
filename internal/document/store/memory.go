package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"notary/internal/document/models"
	id "notary/pkg/domain"
	"notary/pkg/platform/sentinel"
)

// InMemory keeps documents and the user index behind a single RWMutex.
//
// Outside a transaction each call locks for itself. Inside InMemoryTx.RunInTx the
// transaction already holds the write lock, so calls made with the transaction
// context skip locking and record undo steps instead.
type InMemory struct {
	mu     sync.RWMutex
	docs   []*models.Document // docs[i] has ID i+1
	byUser map[id.Identity][]id.DocumentID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byUser: make(map[id.Identity][]id.DocumentID),
	}
}

type txStateKey struct{}

// txState marks a context as running inside a transaction on a specific store.
type txState struct {
	store *InMemory
	undo  []func()
}

func (s *InMemory) txFrom(ctx context.Context) (*txState, bool) {
	st, ok := ctx.Value(txStateKey{}).(*txState)
	if !ok || st.store != s {
		return nil, false
	}
	return st, true
}

func (s *InMemory) rlock(ctx context.Context) func() {
	if _, ok := s.txFrom(ctx); ok {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *InMemory) lock(ctx context.Context) (func(), *txState) {
	if st, ok := s.txFrom(ctx); ok {
		return func() {}, st
	}
	s.mu.Lock()
	return s.mu.Unlock, nil
}

// Insert assigns the next id, stores a copy of doc and indexes it for the creator and
// every signatory occurrence.
func (s *InMemory) Insert(ctx context.Context, doc *models.Document) (id.DocumentID, error) {
	if doc == nil {
		return 0, fmt.Errorf("document is required")
	}
	if !doc.Status.IsStorable() {
		return 0, fmt.Errorf("document status %s cannot be stored", doc.Status)
	}
	unlock, tx := s.lock(ctx)
	defer unlock()

	docID := id.DocumentID(len(s.docs) + 1)
	stored := doc.Clone()
	stored.ID = docID
	s.docs = append(s.docs, stored)

	entries := stored.UserIndexEntries()
	for _, identity := range entries {
		s.byUser[identity] = append(s.byUser[identity], docID)
	}

	if tx != nil {
		n := len(s.docs) - 1
		tx.undo = append(tx.undo, func() {
			s.docs = s.docs[:n]
			for _, identity := range entries {
				ids := s.byUser[identity]
				s.byUser[identity] = ids[:len(ids)-1]
				if len(s.byUser[identity]) == 0 {
					delete(s.byUser, identity)
				}
			}
		})
	}
	return docID, nil
}

// FindByID returns a snapshot copy of the document.
func (s *InMemory) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	unlock := s.rlock(ctx)
	defer unlock()

	doc, ok := s.get(docID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return doc.Clone(), nil
}

// Update replaces the mutable state of an existing document.
func (s *InMemory) Update(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("document is required")
	}
	if !doc.Status.IsStorable() {
		return fmt.Errorf("document status %s cannot be stored", doc.Status)
	}
	unlock, tx := s.lock(ctx)
	defer unlock()

	prev, ok := s.get(doc.ID)
	if !ok {
		return sentinel.ErrNotFound
	}
	s.docs[doc.ID-1] = doc.Clone()

	if tx != nil {
		tx.undo = append(tx.undo, func() {
			s.docs[prev.ID-1] = prev
		})
	}
	return nil
}

// ListForUser returns the ids indexed for identity in insertion order.
func (s *InMemory) ListForUser(ctx context.Context, identity id.Identity) ([]id.DocumentID, error) {
	unlock := s.rlock(ctx)
	defer unlock()
	return slices.Clone(s.byUser[identity]), nil
}

// Count returns the number of documents, which is also the highest assigned id.
func (s *InMemory) Count(ctx context.Context) (uint64, error) {
	unlock := s.rlock(ctx)
	defer unlock()
	return uint64(len(s.docs)), nil
}

func (s *InMemory) get(docID id.DocumentID) (*models.Document, bool) {
	if docID == 0 || uint64(docID) > uint64(len(s.docs)) {
		return nil, false
	}
	return s.docs[docID-1], true
}
