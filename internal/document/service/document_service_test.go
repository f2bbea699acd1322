package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"notary/internal/document/models"
	"notary/internal/document/store"
	id "notary/pkg/domain"
	dErrors "notary/pkg/domain-errors"
	audit "notary/pkg/platform/audit"
	"notary/pkg/platform/audit/publishers/compliance"
	auditmemory "notary/pkg/platform/audit/store/memory"
	"notary/pkg/requestcontext"
)

const admin id.Identity = "ADMIN"

type ServiceSuite struct {
	suite.Suite
	documents *store.InMemory
	auditLog  *auditmemory.InMemoryStore
	service   *Service
	now       time.Time
	ctx       context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.documents = store.NewInMemory()
	s.auditLog = auditmemory.NewInMemoryStore()
	svc, err := New(s.documents, store.NewInMemoryTx(s.documents, s.auditLog), admin,
		WithAuditPublisher(compliance.New(s.auditLog)),
	)
	s.Require().NoError(err)
	s.service = svc
	s.now = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) at(d time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(d))
}

func (s *ServiceSuite) create(creator id.Identity, validity time.Duration, signatories ...id.Identity) id.DocumentID {
	docID, err := s.service.Create(s.ctx, CreateRequest{
		Caller:      creator,
		Title:       "Share purchase agreement",
		Fingerprint: "sha256:deadbeef",
		Signatories: signatories,
		Validity:    validity,
	})
	s.Require().NoError(err)
	return docID
}

func (s *ServiceSuite) actions(docID id.DocumentID) []string {
	events, err := s.auditLog.ListByAggregate(context.Background(), docID.String())
	s.Require().NoError(err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), "unexpected error: %v", err)
}

func (s *ServiceSuite) TestNew() {
	_, err := New(s.documents, store.NewInMemoryTx(s.documents), "")
	s.Error(err)
	_, err = New(nil, store.NewInMemoryTx(s.documents), admin)
	s.Error(err)
	_, err = New(s.documents, nil, admin)
	s.Error(err)
}

func (s *ServiceSuite) TestCreate() {
	s.Run("assigns id one and starts pending", func() {
		docID := s.create("C", time.Hour, "A", "B")
		s.Equal(id.DocumentID(1), docID)

		doc, err := s.service.Get(s.ctx, docID)
		s.Require().NoError(err)
		s.Equal(models.StatusPendingSignatures, doc.Status)
		s.True(doc.IsActive)
		s.Equal(id.Identity("C"), doc.Creator)
		s.Equal(s.now, doc.CreatedAt)
		s.Equal(s.now.Add(time.Hour), doc.ExpiresAt)
		s.Equal([]string{"document_created", "document_status_changed"}, s.actions(docID))
	})

	s.Run("emits created with title and creator, then the pending status", func() {
		docID := s.create("C", time.Hour, "A")
		events, _ := s.auditLog.ListByAggregate(context.Background(), docID.String())
		s.Require().Len(events, 2)
		s.Equal("C", events[0].ActorID)
		s.Equal("Share purchase agreement", events[0].Subject)
		s.Equal(string(models.StatusPendingSignatures), events[1].Status)
		s.Equal(audit.CategoryCompliance, events[0].Category)
	})

	s.Run("rejects invalid input with validation errors and no state", func() {
		before, _ := s.service.Stats(s.ctx)
		beforeEvents := s.auditLog.Len()

		cases := []CreateRequest{
			{Caller: "C", Title: "", Fingerprint: "fp", Signatories: []id.Identity{"A"}, Validity: time.Hour},
			{Caller: "C", Title: "t", Fingerprint: "", Signatories: []id.Identity{"A"}, Validity: time.Hour},
			{Caller: "C", Title: "t", Fingerprint: "fp", Signatories: nil, Validity: time.Hour},
			{Caller: "C", Title: "t", Fingerprint: "fp", Signatories: []id.Identity{"A"}, Validity: 0},
			{Caller: "C", Title: "t", Fingerprint: "fp", Signatories: []id.Identity{"A"}, Validity: -time.Minute},
		}
		for _, req := range cases {
			_, err := s.service.Create(s.ctx, req)
			s.requireCode(err, dErrors.CodeValidation)
		}

		after, _ := s.service.Stats(s.ctx)
		s.Equal(before, after)
		s.Equal(beforeEvents, s.auditLog.Len())
	})

	s.Run("requires a caller", func() {
		_, err := s.service.Create(s.ctx, CreateRequest{Title: "t", Fingerprint: "fp", Signatories: []id.Identity{"A"}, Validity: time.Hour})
		s.requireCode(err, dErrors.CodeUnauthorized)
	})
}

func (s *ServiceSuite) TestIdsAreDenseUnderConcurrency() {
	const creators = 40
	var wg sync.WaitGroup
	ids := make(chan id.DocumentID, creators)
	for i := 0; i < creators; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docID, err := s.service.Create(s.ctx, CreateRequest{
				Caller: "C", Title: "t", Fingerprint: "fp", Signatories: []id.Identity{"A"}, Validity: time.Hour,
			})
			if err == nil {
				ids <- docID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[id.DocumentID]bool{}
	for docID := range ids {
		seen[docID] = true
	}
	s.Len(seen, creators)
	for i := 1; i <= creators; i++ {
		s.True(seen[id.DocumentID(i)])
	}
	count, _ := s.service.Stats(s.ctx)
	s.Equal(uint64(creators), count)
}

func (s *ServiceSuite) TestGet() {
	s.Run("unknown ids are not found", func() {
		s.create("C", time.Hour, "A")
		for _, docID := range []id.DocumentID{0, 2, 1000} {
			_, err := s.service.Get(s.ctx, docID)
			s.requireCode(err, dErrors.CodeNotFound)
		}
	})
}

func (s *ServiceSuite) TestListForUser() {
	first := s.create("C", time.Hour, "A", "C")
	second := s.create("A", time.Hour, "B")

	forC, err := s.service.ListForUser(s.ctx, "C")
	s.Require().NoError(err)
	s.Equal([]id.DocumentID{first, first}, forC)

	forA, _ := s.service.ListForUser(s.ctx, "A")
	s.Equal([]id.DocumentID{first, second}, forA)

	none, err := s.service.ListForUser(s.ctx, "nobody")
	s.Require().NoError(err)
	s.NotNil(none)
	s.Empty(none)
}

// TestTwoPartySigning follows a document from creation to FULLY_SIGNED.
func (s *ServiceSuite) TestTwoPartySigning() {
	docID := s.create("C", time.Hour, "A", "B")

	doc, err := s.service.Sign(s.ctx, docID, "A")
	s.Require().NoError(err)
	s.Equal(1, doc.SignatureCount())
	s.Equal(models.StatusPendingSignatures, doc.Status)

	doc, err = s.service.Sign(s.ctx, docID, "B")
	s.Require().NoError(err)
	s.Equal(2, doc.SignatureCount())
	s.Equal(models.StatusFullySigned, doc.Status)

	_, err = s.service.Sign(s.ctx, docID, "A")
	s.requireCode(err, dErrors.CodeAlreadySigned)

	stored, _ := s.service.Get(s.ctx, docID)
	s.Equal(models.StatusFullySigned, stored.Status)

	s.Equal([]string{
		"document_created", "document_status_changed",
		"document_signed",
		"document_signed", "document_status_changed",
	}, s.actions(docID))

	signedA, err := s.service.HasSigned(s.ctx, docID, "A")
	s.Require().NoError(err)
	s.True(signedA)
	signedC, _ := s.service.HasSigned(s.ctx, docID, "C")
	s.False(signedC)
}

func (s *ServiceSuite) TestSignGuards() {
	s.Run("non-listed identity is forbidden and nothing changes", func() {
		docID := s.create("C", time.Hour, "A")
		before := s.auditLog.Len()

		for _, caller := range []id.Identity{"C", "ADMIN", "X"} {
			_, err := s.service.Sign(s.ctx, docID, caller)
			s.requireCode(err, dErrors.CodeForbidden)
		}

		doc, _ := s.service.Get(s.ctx, docID)
		s.Empty(doc.Signatures)
		s.Equal(before, s.auditLog.Len())
	})

	s.Run("non-listed identity is forbidden even on inactive documents", func() {
		docID := s.create("C", time.Hour, "A")
		_, err := s.service.Revoke(s.ctx, docID, "C")
		s.Require().NoError(err)

		_, err = s.service.Sign(s.ctx, docID, "X")
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("unknown document is not found", func() {
		_, err := s.service.Sign(s.ctx, 999, "A")
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("signing after the validity window is inactive", func() {
		docID := s.create("C", time.Second, "A")

		_, err := s.service.Sign(s.at(2*time.Second), docID, "A")
		s.requireCode(err, dErrors.CodeInactive)

		v, err := s.service.Verify(s.at(2*time.Second), docID, "sha256:deadbeef")
		s.Require().NoError(err)
		s.False(v.IsValid)
		s.Equal(models.StatusPendingSignatures, v.Status)
	})

	s.Run("signing exactly at expiresAt is allowed", func() {
		docID := s.create("C", time.Second, "A")
		_, err := s.service.Sign(s.at(time.Second), docID, "A")
		s.Require().NoError(err)
	})

	s.Run("signing a revoked document is inactive", func() {
		docID := s.create("C", time.Hour, "A", "B")
		_, err := s.service.Revoke(s.ctx, docID, "C")
		s.Require().NoError(err)

		_, err = s.service.Sign(s.ctx, docID, "A")
		s.requireCode(err, dErrors.CodeInactive)
	})

	s.Run("duplicate signatory signs once", func() {
		docID := s.create("C", time.Hour, "A", "A")
		doc, err := s.service.Sign(s.ctx, docID, "A")
		s.Require().NoError(err)
		s.Equal(models.StatusFullySigned, doc.Status)
		s.Equal(2, doc.SignatureCount())

		_, err = s.service.Sign(s.ctx, docID, "A")
		s.requireCode(err, dErrors.CodeAlreadySigned)
	})
}

// TestExactlyOneCompletingSigner races every signatory and checks a single FULLY_SIGNED transition.
func (s *ServiceSuite) TestExactlyOneCompletingSigner() {
	signatories := []id.Identity{"S1", "S2", "S3", "S4", "S5", "S6", "S7", "S8"}
	docID := s.create("C", time.Hour, signatories...)

	var wg sync.WaitGroup
	var completions atomic.Int32
	var failures atomic.Int32
	for _, signer := range signatories {
		wg.Add(1)
		go func(signer id.Identity) {
			defer wg.Done()
			doc, err := s.service.Sign(s.ctx, docID, signer)
			if err != nil {
				failures.Add(1)
				return
			}
			if doc.Status == models.StatusFullySigned {
				completions.Add(1)
			}
		}(signer)
	}
	wg.Wait()

	s.Equal(int32(0), failures.Load())
	s.Equal(int32(1), completions.Load())

	statusChanges := 0
	for _, action := range s.actions(docID) {
		if action == string(audit.EventDocumentStatusChanged) {
			statusChanges++
		}
	}
	s.Equal(2, statusChanges, "pending at creation, fully signed once")
}

func (s *ServiceSuite) TestRevoke() {
	s.Run("creator revokes a pending document", func() {
		docID := s.create("C", time.Hour, "A")

		doc, err := s.service.Revoke(s.ctx, docID, "C")
		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, doc.Status)
		s.False(doc.IsActive)
		s.Equal([]string{
			"document_created", "document_status_changed",
			"document_revoked", "document_status_changed",
		}, s.actions(docID))

		_, err = s.service.Sign(s.ctx, docID, "A")
		s.requireCode(err, dErrors.CodeInactive)
	})

	s.Run("administrator revokes a fully signed document", func() {
		docID := s.create("C", time.Hour, "A")
		_, err := s.service.Sign(s.ctx, docID, "A")
		s.Require().NoError(err)

		doc, err := s.service.Revoke(s.ctx, docID, admin)
		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, doc.Status)
	})

	s.Run("time-expired documents can still be revoked", func() {
		docID := s.create("C", time.Second, "A")
		_, err := s.service.Revoke(s.at(time.Hour), docID, "C")
		s.Require().NoError(err)
	})

	s.Run("signatories and strangers cannot revoke", func() {
		docID := s.create("C", time.Hour, "A")
		for _, caller := range []id.Identity{"A", "X", ""} {
			_, err := s.service.Revoke(s.ctx, docID, caller)
			s.requireCode(err, dErrors.CodeForbidden)
		}
		doc, _ := s.service.Get(s.ctx, docID)
		s.True(doc.IsActive)
	})

	s.Run("second revoke fails without new events", func() {
		docID := s.create("C", time.Hour, "A")
		_, err := s.service.Revoke(s.ctx, docID, "C")
		s.Require().NoError(err)
		before := len(s.actions(docID))

		_, err = s.service.Revoke(s.ctx, docID, admin)
		s.requireCode(err, dErrors.CodeAlreadyInactive)
		s.Len(s.actions(docID), before)
	})

	s.Run("unknown document is not found", func() {
		_, err := s.service.Revoke(s.ctx, 999, admin)
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestVerify() {
	docID := s.create("C", time.Hour, "A", "B")
	_, err := s.service.Sign(s.ctx, docID, "A")
	s.Require().NoError(err)

	s.Run("matching fingerprint on an active document is valid", func() {
		v, err := s.service.Verify(s.ctx, docID, "sha256:deadbeef")
		s.Require().NoError(err)
		s.True(v.IsValid)
		s.Equal(1, v.SignatureCount)
		s.Equal(2, v.TotalSignatories)
		s.Equal(models.StatusPendingSignatures, v.Status)
	})

	s.Run("any other fingerprint is invalid", func() {
		for _, fp := range []id.Fingerprint{"sha256:DEADBEEF", "sha256:deadbeef ", "x"} {
			v, err := s.service.Verify(s.ctx, docID, fp)
			s.Require().NoError(err)
			s.False(v.IsValid)
		}
	})

	s.Run("unknown document is not found", func() {
		_, err := s.service.Verify(s.ctx, 999, "x")
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestListSignatories() {
	docID := s.create("C", time.Hour, "B", "A", "B")
	_, err := s.service.Sign(s.ctx, docID, "A")
	s.Require().NoError(err)

	got, err := s.service.ListSignatories(s.ctx, docID)
	s.Require().NoError(err)
	s.Equal([]id.Identity{"B", "A", "B"}, got)

	_, err = s.service.ListSignatories(s.ctx, 999)
	s.requireCode(err, dErrors.CodeNotFound)

	_, err = s.service.HasSigned(s.ctx, 999, "A")
	s.requireCode(err, dErrors.CodeNotFound)
}

// TestAuditFailureRollsBack checks the fail-closed path: when the audit append fails the
// whole operation is undone.
func (s *ServiceSuite) TestAuditFailureRollsBack() {
	s.Run("create releases the id", func() {
		s.auditLog.FailNextAppend(errors.New("outbox unavailable"))
		_, err := s.service.Create(s.ctx, CreateRequest{
			Caller: "C", Title: "t", Fingerprint: "fp", Signatories: []id.Identity{"A"}, Validity: time.Hour,
		})
		s.requireCode(err, dErrors.CodeInternal)

		count, _ := s.service.Stats(s.ctx)
		s.Equal(uint64(0), count)
		forC, _ := s.service.ListForUser(s.ctx, "C")
		s.Empty(forC)

		docID := s.create("C", time.Hour, "A")
		s.Equal(id.DocumentID(1), docID)
	})

	s.Run("sign leaves the signature unrecorded", func() {
		docID := s.create("C", time.Hour, "A")
		before := s.auditLog.Len()

		s.auditLog.FailNextAppend(errors.New("outbox unavailable"))
		_, err := s.service.Sign(s.ctx, docID, "A")
		s.requireCode(err, dErrors.CodeInternal)

		doc, _ := s.service.Get(s.ctx, docID)
		s.False(doc.Signatures["A"])
		s.Equal(models.StatusPendingSignatures, doc.Status)
		s.Equal(before, s.auditLog.Len())

		_, err = s.service.Sign(s.ctx, docID, "A")
		s.Require().NoError(err)
	})

	s.Run("revoke leaves the document active", func() {
		docID := s.create("C", time.Hour, "A")

		s.auditLog.FailNextAppend(errors.New("outbox unavailable"))
		_, err := s.service.Revoke(s.ctx, docID, "C")
		s.requireCode(err, dErrors.CodeInternal)

		doc, _ := s.service.Get(s.ctx, docID)
		s.True(doc.IsActive)
		s.Equal(models.StatusPendingSignatures, doc.Status)
	})
}

func (s *ServiceSuite) TestWithoutPublisher() {
	documents := store.NewInMemory()
	svc, err := New(documents, store.NewInMemoryTx(documents), admin)
	s.Require().NoError(err)

	docID, err := svc.Create(s.ctx, CreateRequest{
		Caller: "C", Title: "t", Fingerprint: "fp", Signatories: []id.Identity{"A"}, Validity: time.Hour,
	})
	s.Require().NoError(err)
	_, err = svc.Sign(s.ctx, docID, "A")
	s.Require().NoError(err)
	s.Equal(admin, svc.Administrator())
}
