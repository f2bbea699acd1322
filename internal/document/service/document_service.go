package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"notary/internal/document/guard"
	"notary/internal/document/models"
	id "notary/pkg/domain"
	dErrors "notary/pkg/domain-errors"
	audit "notary/pkg/platform/audit"
	"notary/pkg/requestcontext"
)

// CreateRequest carries the inputs of Create. Caller becomes the document creator.
type CreateRequest struct {
	Caller      id.Identity
	Title       string
	Fingerprint id.Fingerprint
	Signatories []id.Identity
	Validity    time.Duration
}

// Create registers a new document in PENDING_SIGNATURES and returns its id.
func (s *Service) Create(ctx context.Context, req CreateRequest) (docID id.DocumentID, err error) {
	ctx, done := s.begin(ctx, "create", 0)
	defer func() { done(err) }()

	if req.Caller.IsZero() {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}

	doc, err := models.NewDocument(req.Title, req.Fingerprint, req.Caller, req.Signatories, req.Validity, requestcontext.Now(ctx))
	if err != nil {
		return 0, toValidation(err)
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		newID, err := s.documents.Insert(txCtx, doc)
		if err != nil {
			return wrapStoreErr(err, "failed to create document")
		}
		doc.ID = newID

		return s.publish(txCtx,
			s.auditEmitter.documentCreated(txCtx, models.DocumentCreated{DocumentID: newID, Title: doc.Title, Creator: doc.Creator}),
			s.auditEmitter.statusChanged(txCtx, models.DocumentStatusChanged{DocumentID: newID, NewStatus: doc.Status}),
		)
	})
	if err != nil {
		return 0, err
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.String("document.id", doc.ID.String()))
	s.logAudit(ctx, string(audit.EventDocumentCreated),
		"document_id", doc.ID,
		"creator", doc.Creator,
		"signatories", len(doc.Signatories),
	)
	s.incrementCreated()
	return doc.ID, nil
}

// Get returns a snapshot of the document.
func (s *Service) Get(ctx context.Context, docID id.DocumentID) (doc *models.Document, err error) {
	ctx, done := s.begin(ctx, "get", docID)
	defer func() { done(err) }()

	return s.load(ctx, docID)
}

// ListForUser returns every document id indexed for identity, in indexing order.
// Unknown identities yield an empty list.
func (s *Service) ListForUser(ctx context.Context, identity id.Identity) (ids []id.DocumentID, err error) {
	ctx, done := s.begin(ctx, "list_for_user", 0)
	defer func() { done(err) }()

	ids, err = s.documents.ListForUser(ctx, identity)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list user documents")
	}
	if ids == nil {
		ids = []id.DocumentID{}
	}
	return ids, nil
}

// Sign records caller's signature and completes the document when every signatory has signed.
//
// Guard order: exists, isSignatory, isActive, not already signed, status is
// PENDING_SIGNATURES. The completion check runs in the same transaction as the signature
// write, so exactly one signer observes and performs the FULLY_SIGNED transition.
func (s *Service) Sign(ctx context.Context, docID id.DocumentID, caller id.Identity) (signed *models.Document, err error) {
	ctx, done := s.begin(ctx, "sign", docID)
	defer func() { done(err) }()

	now := requestcontext.Now(ctx)
	var completed bool
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := s.load(txCtx, docID)
		if err != nil {
			return err
		}
		if err := guard.All(
			func() error { return guard.IsSignatory(doc, caller) },
			func() error { return guard.IsActive(doc, now) },
			func() error { return doc.CanSign(caller) },
		); err != nil {
			return err
		}

		completed = doc.ApplySignature(caller)
		if err := s.documents.Update(txCtx, doc); err != nil {
			return wrapStoreErr(err, "failed to record signature")
		}

		events := []audit.Event{
			s.auditEmitter.documentSigned(txCtx, models.DocumentSigned{DocumentID: doc.ID, Signatory: caller}),
		}
		if completed {
			events = append(events, s.auditEmitter.statusChanged(txCtx, models.DocumentStatusChanged{DocumentID: doc.ID, NewStatus: doc.Status}))
		}
		if err := s.publish(txCtx, events...); err != nil {
			return err
		}
		signed = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(audit.EventDocumentSigned),
		"document_id", docID,
		"signatory", caller,
		"signature_count", signed.SignatureCount(),
		"total_signatories", signed.TotalSignatories(),
	)
	s.incrementSigned()
	if completed {
		s.logAudit(ctx, string(audit.EventDocumentStatusChanged),
			"document_id", docID,
			"status", signed.Status,
		)
		s.incrementFullySigned()
	}
	return signed, nil
}

// HasSigned reports whether identity has signed the document.
func (s *Service) HasSigned(ctx context.Context, docID id.DocumentID, identity id.Identity) (has bool, err error) {
	ctx, done := s.begin(ctx, "has_signed", docID)
	defer func() { done(err) }()

	doc, err := s.load(ctx, docID)
	if err != nil {
		return false, err
	}
	return doc.HasSigned(identity), nil
}

// ListSignatories returns the signatory list fixed at creation.
func (s *Service) ListSignatories(ctx context.Context, docID id.DocumentID) (signatories []id.Identity, err error) {
	ctx, done := s.begin(ctx, "list_signatories", docID)
	defer func() { done(err) }()

	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}
	return doc.Signatories, nil
}

// Revoke deactivates the document. Only the creator or the registry administrator may
// revoke. Revocation is allowed from any active status, time-expired documents included.
func (s *Service) Revoke(ctx context.Context, docID id.DocumentID, caller id.Identity) (revoked *models.Document, err error) {
	ctx, done := s.begin(ctx, "revoke", docID)
	defer func() { done(err) }()

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := s.load(txCtx, docID)
		if err != nil {
			return err
		}
		if err := guard.All(
			func() error { return guard.IsCreatorOrAdministrator(doc, s.admin, caller) },
			doc.CanRevoke,
		); err != nil {
			return err
		}

		doc.ApplyRevocation()
		if err := s.documents.Update(txCtx, doc); err != nil {
			return wrapStoreErr(err, "failed to revoke document")
		}

		if err := s.publish(txCtx,
			s.auditEmitter.documentRevoked(txCtx, models.DocumentRevoked{DocumentID: doc.ID, RevokedBy: caller}),
			s.auditEmitter.statusChanged(txCtx, models.DocumentStatusChanged{DocumentID: doc.ID, NewStatus: doc.Status}),
		); err != nil {
			return err
		}
		revoked = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(audit.EventDocumentRevoked),
		"document_id", docID,
		"revoked_by", caller,
	)
	s.incrementRevoked()
	return revoked, nil
}

// Verify checks expected against the stored fingerprint and reports completion state.
func (s *Service) Verify(ctx context.Context, docID id.DocumentID, expected id.Fingerprint) (result *models.Verification, err error) {
	ctx, done := s.begin(ctx, "verify", docID)
	defer func() { done(err) }()

	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}
	v := doc.Verify(expected, requestcontext.Now(ctx))
	return &v, nil
}

// Stats returns the number of registered documents.
func (s *Service) Stats(ctx context.Context) (uint64, error) {
	n, err := s.documents.Count(ctx)
	if err != nil {
		return 0, wrapStoreErr(err, "failed to count documents")
	}
	return n, nil
}

func (s *Service) load(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	if docID.IsZero() {
		return nil, guard.Exists(nil)
	}
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load document")
	}
	return doc, guard.Exists(doc)
}

func (s *Service) publish(ctx context.Context, events ...audit.Event) error {
	if err := s.auditEmitter.emit(ctx, events...); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit events")
	}
	return nil
}

// begin opens a span and returns a function that closes it and records the duration.
func (s *Service) begin(ctx context.Context, operation string, docID id.DocumentID) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{attribute.String("operation", operation)}
	if !docID.IsZero() {
		attrs = append(attrs, attribute.String("document.id", docID.String()))
	}
	ctx, span := s.tracer.Start(ctx, "document."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(operation, start)
		}
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	if s.logger == nil {
		return
	}
	args := append(attrs, "log_type", "audit", "request_id", requestcontext.RequestID(ctx))
	s.logger.InfoContext(ctx, event, args...)
}

func (s *Service) incrementCreated() {
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
}

func (s *Service) incrementSigned() {
	if s.metrics != nil {
		s.metrics.IncrementSigned()
	}
}

func (s *Service) incrementFullySigned() {
	if s.metrics != nil {
		s.metrics.IncrementFullySigned()
	}
}

func (s *Service) incrementRevoked() {
	if s.metrics != nil {
		s.metrics.IncrementRevoked()
	}
}
