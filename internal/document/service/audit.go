package service

import (
	"context"

	"notary/internal/document/models"
	id "notary/pkg/domain"
	audit "notary/pkg/platform/audit"
	"notary/pkg/requestcontext"
)

// auditEmitter converts domain events into audit events and hands them to the publisher
// in one call. Without a publisher events are dropped.
type auditEmitter struct {
	publisher AuditPublisher
}

func (e *auditEmitter) emit(ctx context.Context, events ...audit.Event) error {
	if e.publisher == nil || len(events) == 0 {
		return nil
	}
	return e.publisher.Emit(ctx, events...)
}

func (e *auditEmitter) base(ctx context.Context, docID id.DocumentID, action audit.AuditEvent) audit.Event {
	return audit.Event{
		Category:    action.Category(),
		Timestamp:   requestcontext.Now(ctx),
		Action:      string(action),
		AggregateID: docID.String(),
		RequestID:   requestcontext.RequestID(ctx),
	}
}

func (e *auditEmitter) documentCreated(ctx context.Context, ev models.DocumentCreated) audit.Event {
	event := e.base(ctx, ev.DocumentID, audit.EventDocumentCreated)
	event.ActorID = ev.Creator.String()
	event.Subject = ev.Title
	return event
}

func (e *auditEmitter) documentSigned(ctx context.Context, ev models.DocumentSigned) audit.Event {
	event := e.base(ctx, ev.DocumentID, audit.EventDocumentSigned)
	event.ActorID = ev.Signatory.String()
	return event
}

func (e *auditEmitter) statusChanged(ctx context.Context, ev models.DocumentStatusChanged) audit.Event {
	event := e.base(ctx, ev.DocumentID, audit.EventDocumentStatusChanged)
	event.Status = ev.NewStatus.String()
	return event
}

func (e *auditEmitter) documentRevoked(ctx context.Context, ev models.DocumentRevoked) audit.Event {
	event := e.base(ctx, ev.DocumentID, audit.EventDocumentRevoked)
	event.ActorID = ev.RevokedBy.String()
	return event
}
