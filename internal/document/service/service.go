// Package service implements the document registry operations.
//
// Every mutating operation runs its guards, its writes and its audit emission inside a
// single StoreTx.RunInTx call, so an operation either commits completely or leaves no
// trace, audit events included.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"notary/internal/document/metrics"
	"notary/internal/document/models"
	id "notary/pkg/domain"
	audit "notary/pkg/platform/audit"
)

// Store is the document registry persistence port.
type Store interface {
	Insert(ctx context.Context, doc *models.Document) (id.DocumentID, error)
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	Update(ctx context.Context, doc *models.Document) error
	ListForUser(ctx context.Context, identity id.Identity) ([]id.DocumentID, error)
	Count(ctx context.Context) (uint64, error)
}

// StoreTx provides the transactional boundary for document mutations.
// Implementations may wrap a database transaction or, in-memory, a coarse lock with undo.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuditPublisher appends all events of one operation atomically.
type AuditPublisher interface {
	Emit(ctx context.Context, events ...audit.Event) error
}

// Service orchestrates the registry, the authorization guard, the signature tracker and
// the lifecycle state machine.
type Service struct {
	documents    Store
	tx           StoreTx
	admin        id.Identity
	auditEmitter *auditEmitter
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditEmitter.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New constructs a Service. The administrator identity is fixed for the lifetime of the
// instance.
func New(documents Store, tx StoreTx, admin id.Identity, opts ...Option) (*Service, error) {
	if documents == nil {
		return nil, errors.New("document store is required")
	}
	if tx == nil {
		return nil, errors.New("transaction boundary is required")
	}
	if admin.IsZero() {
		return nil, errors.New("registry administrator identity is required")
	}
	s := &Service{
		documents:    documents,
		tx:           tx,
		admin:        admin,
		auditEmitter: &auditEmitter{},
		tracer:       otel.Tracer("notary/document"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Administrator returns the registry administrator identity.
func (s *Service) Administrator() id.Identity {
	return s.admin
}
