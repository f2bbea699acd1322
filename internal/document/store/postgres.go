package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"notary/internal/document/models"
	id "notary/pkg/domain"
	"notary/pkg/platform/sentinel"
	txcontext "notary/pkg/platform/tx"
)

// PostgresStore persists documents in PostgreSQL.
//
// Ids come from a single-row counter incremented inside the inserting transaction, so a
// rolled-back create releases its id and the sequence stays gap-free. The counter row lock
// also serializes concurrent creates.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, doc *models.Document) (id.DocumentID, error) {
	if doc == nil {
		return 0, fmt.Errorf("document is required")
	}
	if !doc.Status.IsStorable() {
		return 0, fmt.Errorf("document status %s cannot be stored", doc.Status)
	}
	var docID id.DocumentID
	err := s.inTx(ctx, func(exec txcontext.Executor) error {
		var next uint64
		err := exec.QueryRowContext(ctx,
			`UPDATE document_counter SET value = value + 1 WHERE singleton RETURNING value`,
		).Scan(&next)
		if err != nil {
			return fmt.Errorf("allocate document id: %w", err)
		}
		docID = id.DocumentID(next)

		_, err = exec.ExecContext(ctx, `
			INSERT INTO documents (id, title, fingerprint, creator, signatories, signed, created_at, expires_at, is_active, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			int64(docID),
			doc.Title,
			string(doc.Fingerprint),
			string(doc.Creator),
			pq.Array(identitiesToStrings(doc.Signatories)),
			pq.Array(identitiesToStrings(doc.Signed())),
			doc.CreatedAt,
			doc.ExpiresAt,
			doc.IsActive,
			string(doc.Status),
		)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}

		_, err = exec.ExecContext(ctx, `
			INSERT INTO user_documents (identity, document_id)
			SELECT u.identity, $2
			FROM unnest($1::text[]) WITH ORDINALITY AS u(identity, ord)
			ORDER BY u.ord
		`, pq.Array(identitiesToStrings(doc.UserIndexEntries())), int64(docID))
		if err != nil {
			return fmt.Errorf("index document: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return docID, nil
}

// FindByID loads a document. Inside a transaction the row is locked until commit so a
// validate-then-update sequence cannot interleave with another writer.
func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	query := `
		SELECT id, title, fingerprint, creator, signatories, signed, created_at, expires_at, is_active, status
		FROM documents
		WHERE id = $1
	`
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}

	var (
		rawID       int64
		fingerprint string
		creator     string
		signatories []string
		signed      []string
		status      string
		doc         models.Document
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, int64(docID)).Scan(
		&rawID,
		&doc.Title,
		&fingerprint,
		&creator,
		pq.Array(&signatories),
		pq.Array(&signed),
		&doc.CreatedAt,
		&doc.ExpiresAt,
		&doc.IsActive,
		&status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}

	doc.ID = id.DocumentID(rawID)
	doc.Fingerprint = id.Fingerprint(fingerprint)
	doc.Creator = id.Identity(creator)
	doc.Signatories = stringsToIdentities(signatories)
	doc.Signatures = make(map[id.Identity]bool, len(signed))
	for _, s := range signed {
		doc.Signatures[id.Identity(s)] = true
	}
	doc.Status, err = models.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("document %d: %w", rawID, err)
	}
	return &doc, nil
}

// Update writes the mutable columns. Immutable fields are never rewritten.
func (s *PostgresStore) Update(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("document is required")
	}
	if !doc.Status.IsStorable() {
		return fmt.Errorf("document status %s cannot be stored", doc.Status)
	}
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE documents
		SET signed = $2, is_active = $3, status = $4
		WHERE id = $1
	`,
		int64(doc.ID),
		pq.Array(identitiesToStrings(doc.Signed())),
		doc.IsActive,
		string(doc.Status),
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListForUser(ctx context.Context, identity id.Identity) ([]id.DocumentID, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		SELECT document_id FROM user_documents
		WHERE identity = $1
		ORDER BY seq
	`, string(identity))
	if err != nil {
		return nil, fmt.Errorf("list user documents: %w", err)
	}
	defer rows.Close()

	ids := []id.DocumentID{}
	for rows.Next() {
		var raw int64
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan user document: %w", err)
		}
		ids = append(ids, id.DocumentID(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user documents: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT value FROM document_counter WHERE singleton`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// inTx runs fn in the context transaction, or in a new one when ctx carries none.
func (s *PostgresStore) inTx(ctx context.Context, fn func(exec txcontext.Executor) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func identitiesToStrings(in []id.Identity) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func stringsToIdentities(in []string) []id.Identity {
	out := make([]id.Identity, len(in))
	for i, v := range in {
		out[i] = id.Identity(v)
	}
	return out
}
