package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "notary/pkg/platform/audit"
	txcontext "notary/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table in the caller's transaction and published to
// Kafka by the outbox relay. Kafka is the external append-only log.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Payload is the JSON structure published to Kafka.
type Payload struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Timestamp   string `json:"timestamp"`
	Action      string `json:"action"`
	AggregateID string `json:"aggregate_id"`
	ActorID     string `json:"actor_id,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Status      string `json:"status,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// Append writes audit events to the outbox table for Kafka publishing.
// Without a transaction in ctx the events are written in one of their own.
func (s *Store) Append(ctx context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	if _, ok := txcontext.From(ctx); ok {
		return s.insert(ctx, txcontext.ExecutorFrom(ctx, s.db), events)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.insert(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox tx: %w", err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, exec txcontext.Executor, events []audit.Event) error {
	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, event := range events {
		eventID := event.ID
		if eventID == uuid.Nil {
			eventID = uuid.New()
		}
		// Always derive category from action - eventCategories map is the source of truth
		category := audit.AuditEvent(event.Action).Category()

		payloadBytes, err := json.Marshal(Payload{
			ID:          eventID.String(),
			Category:    string(category),
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
			Action:      event.Action,
			AggregateID: event.AggregateID,
			ActorID:     event.ActorID,
			Subject:     event.Subject,
			Status:      event.Status,
			RequestID:   event.RequestID,
		})
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}

		_, err = exec.ExecContext(ctx, query,
			eventID,
			"document",
			event.AggregateID,
			event.Action,
			string(payloadBytes),
			event.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
	}
	return nil
}

// ListByAggregate returns the events recorded for one document in append order.
func (s *Store) ListByAggregate(ctx context.Context, aggregateID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM outbox
		WHERE aggregate_id = $1
		ORDER BY seq
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the N most recent events, oldest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM (
			SELECT seq, payload FROM outbox ORDER BY seq DESC LIMIT $1
		) recent
		ORDER BY seq
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan outbox payload: %w", err)
		}
		event, err := DecodePayload(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return events, nil
}

// DecodePayload turns a published payload back into an Event.
func DecodePayload(raw []byte) (audit.Event, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return audit.Event{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	event := audit.Event{
		Category:    audit.EventCategory(p.Category),
		Action:      p.Action,
		AggregateID: p.AggregateID,
		ActorID:     p.ActorID,
		Subject:     p.Subject,
		Status:      p.Status,
		RequestID:   p.RequestID,
	}
	if eventID, err := uuid.Parse(p.ID); err == nil {
		event.ID = eventID
	}
	if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
		event.Timestamp = ts
	}
	return event, nil
}
