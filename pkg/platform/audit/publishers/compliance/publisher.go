// Package compliance provides a fail-closed audit publisher for regulatory events.
//
// Publisher emits compliance events with synchronous, fail-closed semantics.
// Events are written to the audit store and the caller blocks until the write succeeds.
// If the write fails, an error is returned and the calling operation MUST fail.
//
// Use for: document_created, document_signed, document_status_changed, document_revoked
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "notary/pkg/platform/audit"
)

// Publisher emits compliance events with fail-closed semantics.
// All writes are synchronous - the caller blocks until persistence succeeds or fails.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a compliance publisher.
// The store must be outbox-backed for guaranteed delivery.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes compliance events to the audit store in a single append.
// Returns error if persistence fails - the caller MUST fail its operation.
//
// Events of one call are stored together or not at all, in the order given.
func (p *Publisher) Emit(ctx context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	start := time.Now()

	prepared := make([]audit.Event, 0, len(events))
	for _, event := range events {
		if event.Action == "" {
			return fmt.Errorf("compliance event requires Action")
		}
		if event.AggregateID == "" {
			return fmt.Errorf("compliance event %s requires AggregateID", event.Action)
		}
		if event.ID == uuid.Nil {
			event.ID = uuid.New()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now()
		}
		event.Category = audit.AuditEvent(event.Action).Category()
		prepared = append(prepared, event)
	}

	// Synchronous write - this is the critical path
	if err := p.store.Append(ctx, prepared...); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: compliance audit failed",
				"action", prepared[0].Action,
				"document_id", prepared[0].AggregateID,
				"events", len(prepared),
				"error", err,
			)
		}
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(start)
		p.metrics.AddEventsEmitted(len(prepared))
	}

	return nil
}

// Close is a no-op for the synchronous compliance publisher.
func (p *Publisher) Close() error {
	return nil
}
