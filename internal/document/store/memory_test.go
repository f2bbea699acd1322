package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"notary/internal/document/models"
	id "notary/pkg/domain"
	audit "notary/pkg/platform/audit"
	auditmemory "notary/pkg/platform/audit/store/memory"
	"notary/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemorySuite) newDoc(creator id.Identity, signatories ...id.Identity) *models.Document {
	doc, err := models.NewDocument("Agreement", "fp", creator, signatories, time.Hour, time.Now())
	s.Require().NoError(err)
	return doc
}

func (s *InMemorySuite) TestInsertAndFind() {
	s.Run("assigns sequential ids from one", func() {
		for want := 1; want <= 3; want++ {
			docID, err := s.store.Insert(s.ctx, s.newDoc("C", "A"))
			s.Require().NoError(err)
			s.Equal(id.DocumentID(want), docID)
		}
		n, err := s.store.Count(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(3), n)
	})

	s.Run("returns ErrNotFound outside the assigned range", func() {
		_, err := s.store.FindByID(s.ctx, 0)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindByID(s.ctx, 99)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns snapshots that do not alias stored state", func() {
		docID, err := s.store.Insert(s.ctx, s.newDoc("C", "A"))
		s.Require().NoError(err)

		found, err := s.store.FindByID(s.ctx, docID)
		s.Require().NoError(err)
		found.Signatures["A"] = true
		found.Signatories[0] = "Z"

		again, err := s.store.FindByID(s.ctx, docID)
		s.Require().NoError(err)
		s.False(again.Signatures["A"])
		s.Equal(id.Identity("A"), again.Signatories[0])
	})
}

func (s *InMemorySuite) TestUserIndex() {
	s.Run("indexes creator then each signatory occurrence", func() {
		first, err := s.store.Insert(s.ctx, s.newDoc("C", "A", "C", "A"))
		s.Require().NoError(err)
		second, err := s.store.Insert(s.ctx, s.newDoc("A", "B"))
		s.Require().NoError(err)

		forC, _ := s.store.ListForUser(s.ctx, "C")
		s.Equal([]id.DocumentID{first, first}, forC)

		forA, _ := s.store.ListForUser(s.ctx, "A")
		s.Equal([]id.DocumentID{first, first, second}, forA)
	})

	s.Run("unknown identity yields an empty list", func() {
		ids, err := s.store.ListForUser(s.ctx, "nobody")
		s.Require().NoError(err)
		s.Empty(ids)
	})
}

func (s *InMemorySuite) TestUpdate() {
	docID, err := s.store.Insert(s.ctx, s.newDoc("C", "A"))
	s.Require().NoError(err)

	doc, _ := s.store.FindByID(s.ctx, docID)
	doc.ApplySignature("A")
	s.Require().NoError(s.store.Update(s.ctx, doc))

	found, _ := s.store.FindByID(s.ctx, docID)
	s.True(found.Signatures["A"])
	s.Equal(models.StatusFullySigned, found.Status)

	missing := doc.Clone()
	missing.ID = 42
	s.ErrorIs(s.store.Update(s.ctx, missing), sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestRejectsStatusesThatAreNeverStored() {
	docID, err := s.store.Insert(s.ctx, s.newDoc("C", "A"))
	s.Require().NoError(err)

	for _, status := range []models.Status{models.StatusExpired, models.StatusDraft} {
		doc := s.newDoc("C", "A")
		doc.Status = status
		_, err := s.store.Insert(s.ctx, doc)
		s.Error(err)

		doc.ID = docID
		s.Error(s.store.Update(s.ctx, doc))
	}

	n, _ := s.store.Count(s.ctx)
	s.Equal(uint64(1), n)
	found, _ := s.store.FindByID(s.ctx, docID)
	s.Equal(models.StatusPendingSignatures, found.Status)
}

func (s *InMemorySuite) TestTransactionRollback() {
	auditLog := auditmemory.NewInMemoryStore()
	tx := NewInMemoryTx(s.store, auditLog)

	existing, err := s.store.Insert(s.ctx, s.newDoc("C", "A"))
	s.Require().NoError(err)

	failure := errors.New("audit down")
	err = tx.RunInTx(s.ctx, func(ctx context.Context) error {
		if _, err := s.store.Insert(ctx, s.newDoc("C", "B")); err != nil {
			return err
		}
		doc, err := s.store.FindByID(ctx, existing)
		if err != nil {
			return err
		}
		doc.ApplyRevocation()
		if err := s.store.Update(ctx, doc); err != nil {
			return err
		}
		if err := auditLog.Append(ctx, audit.Event{Action: "document_revoked", AggregateID: existing.String()}); err != nil {
			return err
		}
		return failure
	})
	s.Require().ErrorIs(err, failure)

	n, _ := s.store.Count(s.ctx)
	s.Equal(uint64(1), n)

	doc, _ := s.store.FindByID(s.ctx, existing)
	s.True(doc.IsActive)
	s.Equal(models.StatusPendingSignatures, doc.Status)

	forB, _ := s.store.ListForUser(s.ctx, "B")
	s.Empty(forB)
	forC, _ := s.store.ListForUser(s.ctx, "C")
	s.Equal([]id.DocumentID{existing}, forC)

	s.Equal(0, auditLog.Len())

	next, err := s.store.Insert(s.ctx, s.newDoc("C", "B"))
	s.Require().NoError(err)
	s.Equal(id.DocumentID(2), next, "rolled back ids are reused, leaving no gap")
}

func (s *InMemorySuite) TestTransactionCommit() {
	tx := NewInMemoryTx(s.store)
	var docID id.DocumentID
	err := tx.RunInTx(s.ctx, func(ctx context.Context) error {
		var err error
		docID, err = s.store.Insert(ctx, s.newDoc("C", "A"))
		return err
	})
	s.Require().NoError(err)

	found, err := s.store.FindByID(s.ctx, docID)
	s.Require().NoError(err)
	s.Equal(id.Identity("C"), found.Creator)
}

func (s *InMemorySuite) TestCancelledContext() {
	tx := NewInMemoryTx(s.store)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	called := false
	err := tx.RunInTx(ctx, func(context.Context) error {
		called = true
		return nil
	})
	s.Require().Error(err)
	s.False(called)
}

func (s *InMemorySuite) TestConcurrentInsertsAreDense() {
	tx := NewInMemoryTx(s.store)
	const goroutines = 50

	docs := make([]*models.Document, goroutines)
	for i := range docs {
		docs[i] = s.newDoc("C", "A")
	}

	var wg sync.WaitGroup
	ids := make(chan id.DocumentID, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(doc *models.Document) {
			defer wg.Done()
			_ = tx.RunInTx(s.ctx, func(ctx context.Context) error {
				docID, err := s.store.Insert(ctx, doc)
				if err == nil {
					ids <- docID
				}
				return err
			})
		}(docs[i])
	}
	wg.Wait()
	close(ids)

	seen := make(map[id.DocumentID]bool)
	for docID := range ids {
		s.False(seen[docID], "id %d assigned twice", docID)
		seen[docID] = true
	}
	s.Len(seen, goroutines)
	for i := 1; i <= goroutines; i++ {
		s.True(seen[id.DocumentID(i)], "missing id %d", i)
	}
}
