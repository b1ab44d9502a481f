package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps documents as JSONB rows in a single documents table.
// Each update is a read-modify-write inside one transaction, so writes stay
// atomic per document. An optional change hook is invoked after commit with
// before/after snapshots; the wiring points it at the event stream.
type PostgresStore struct {
	pool     *pgxpool.Pool
	onChange func(ctx context.Context, before, after *Document, id string)
}

// NewPostgresStore instantiates the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// SetChangeHook installs the post-commit change callback.
func (s *PostgresStore) SetChangeHook(fn func(ctx context.Context, before, after *Document, id string)) {
	s.onChange = fn
}

// Get returns the document or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	const query = `
        SELECT id, version, fields, updated_at
        FROM documents WHERE collection=$1 AND id=$2`
	doc, err := scanDocument(s.pool.QueryRow(ctx, query, collection, id), collection)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// Query returns all documents in the collection matching the predicate.
func (s *PostgresStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	base := `SELECT id, version, fields, updated_at FROM documents`
	clauses := []string{"collection=$1"}
	args := []any{collection}

	if len(q.IDIn) > 0 {
		args = append(args, q.IDIn)
		clauses = append(clauses, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if len(q.FieldEquals) > 0 {
		blob, err := json.Marshal(q.FieldEquals)
		if err != nil {
			return nil, fmt.Errorf("marshal equality predicate: %w", err)
		}
		args = append(args, string(blob))
		clauses = append(clauses, fmt.Sprintf("fields @> $%d::jsonb", len(args)))
	}
	for field, want := range q.ArrayContains {
		blob, err := json.Marshal(want)
		if err != nil {
			return nil, fmt.Errorf("marshal contains predicate: %w", err)
		}
		args = append(args, field)
		fieldArg := len(args)
		args = append(args, string(blob))
		clauses = append(clauses, fmt.Sprintf("fields -> $%d @> $%d::jsonb", fieldArg, len(args)))
	}

	query := base + " WHERE " + joinAnd(clauses)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Document
	for rows.Next() {
		doc, err := scanDocument(rows, collection)
		if err != nil {
			return nil, err
		}
		result = append(result, *doc)
	}
	return result, rows.Err()
}

// Create inserts a new document and fires the change hook with a nil before
// snapshot.
func (s *PostgresStore) Create(ctx context.Context, collection, id string, fields map[string]any) (*Document, error) {
	if id == "" {
		id = uuid.NewString()
	}
	blob, err := json.Marshal(normalizeFields(fields))
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	const query = `
        INSERT INTO documents (collection, id, version, fields, updated_at)
        VALUES ($1, $2, 1, $3, NOW())
        RETURNING updated_at`
	var updatedAt time.Time
	if err := s.pool.QueryRow(ctx, query, collection, id, blob).Scan(&updatedAt); err != nil {
		return nil, err
	}
	after := &Document{
		Collection: collection,
		ID:         id,
		Version:    1,
		Fields:     normalizeFields(fields),
		UpdatedAt:  updatedAt,
	}
	s.notify(ctx, nil, after, id)
	return after, nil
}

// Update merges partial fields into the document under a row lock and bumps
// the version.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, partial map[string]any) (*Document, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const selectQuery = `
        SELECT id, version, fields, updated_at
        FROM documents WHERE collection=$1 AND id=$2 FOR UPDATE`
	before, err := scanDocument(tx.QueryRow(ctx, selectQuery, collection, id), collection)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	merged := before.Clone()
	for k, v := range partial {
		if v == nil {
			delete(merged.Fields, k)
			continue
		}
		merged.Fields[k] = v
	}
	blob, err := json.Marshal(merged.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}

	const updateQuery = `
        UPDATE documents SET fields=$3, version=version+1, updated_at=NOW()
        WHERE collection=$1 AND id=$2
        RETURNING version, updated_at`
	var version int64
	var updatedAt time.Time
	if err := tx.QueryRow(ctx, updateQuery, collection, id, blob).Scan(&version, &updatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	after := merged
	after.Version = version
	after.UpdatedAt = updatedAt
	s.notify(ctx, before, after, id)
	return after, nil
}

// Delete removes a document; deleting an absent document is a no-op.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	const query = `DELETE FROM documents WHERE collection=$1 AND id=$2`
	_, err := s.pool.Exec(ctx, query, collection, id)
	return err
}

func (s *PostgresStore) notify(ctx context.Context, before, after *Document, id string) {
	if s.onChange == nil {
		return
	}
	s.onChange(ctx, before, after, id)
}

func scanDocument(row pgx.Row, collection string) (*Document, error) {
	var doc Document
	var blob []byte
	if err := row.Scan(&doc.ID, &doc.Version, &blob, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Collection = collection
	if err := json.Unmarshal(blob, &doc.Fields); err != nil {
		return nil, fmt.Errorf("decode document %s/%s: %w", collection, doc.ID, err)
	}
	return &doc, nil
}

func normalizeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

func joinAnd(clauses []string) string {
	result := clauses[0]
	for _, clause := range clauses[1:] {
		result += " AND " + clause
	}
	return result
}
