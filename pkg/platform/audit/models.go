package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: document creation,
	// signatures, status transitions and revocations. These require tamper-evident,
	// append-only storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational visibility.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// AggregateID is the document the event belongs to.
	AggregateID string
	// ActorID is the identity that caused the event (creator, signatory, revoker).
	ActorID string
	// Subject carries a human-readable label, e.g. the document title on creation.
	Subject string
	// Status is the new lifecycle status for status-change events.
	Status    string
	RequestID string
}

type AuditEvent string

const (
	EventDocumentCreated       AuditEvent = "document_created"
	EventDocumentSigned        AuditEvent = "document_signed"
	EventDocumentStatusChanged AuditEvent = "document_status_changed"
	EventDocumentRevoked       AuditEvent = "document_revoked"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDocumentCreated:       CategoryCompliance,
	EventDocumentSigned:        CategoryCompliance,
	EventDocumentStatusChanged: CategoryCompliance,
	EventDocumentRevoked:       CategoryCompliance,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store is the append-only sink for audit events. Append must persist all events of a
// call or none of them.
type Store interface {
	Append(ctx context.Context, events ...Event) error
}

// Reader lists persisted events. Used by tests and audit tooling, never by the registry
// to decide document state.
type Reader interface {
	ListByAggregate(ctx context.Context, aggregateID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
