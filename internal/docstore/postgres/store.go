package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/earn-hire/internal/docstore"
	"github.com/and161185/earn-hire/internal/errs"
)

// Store implements docstore.Store on the documents table.
type Store struct{ db *DB }

var _ docstore.Store = (*Store)(nil)

// NewStore constructs a document store.
func NewStore(db *DB) *Store { return &Store{db: db} }

// QueryByField selects the oldest document in collection whose data->>field equals value.
func (s *Store) QueryByField(ctx context.Context, collection, field, value string) (*docstore.Document, error) {
	const q = `
SELECT id, owner_id, data, updated_at
FROM documents
WHERE collection = $1 AND data->>$2 = $3
ORDER BY created_at
LIMIT 1`
	var (
		id      uuid.UUID
		owner   string
		raw     []byte
		updated time.Time
	)
	err := s.db.Pool.QueryRow(ctx, q, collection, field, value).Scan(&id, &owner, &raw, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return toDocument(id, owner, raw, updated)
}

// Create inserts a new row with a generated UUIDv4 id.
func (s *Store) Create(ctx context.Context, collection string, data map[string]any, ownerID string) (*docstore.Document, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO documents (collection, id, owner_id, data)
VALUES ($1, $2, $3, $4)
RETURNING updated_at`
	var updated time.Time
	if err := s.db.Pool.QueryRow(ctx, q, collection, id, ownerID, raw).Scan(&updated); err != nil {
		if isUniqueViolation(err) {
			return nil, errs.ErrAlreadyExists
		}
		return nil, err
	}
	return toDocument(id, ownerID, raw, updated)
}

// Update merges partial into data with the jsonb || operator.
func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) (*docstore.Document, error) {
	uid, err := uuid.FromString(id)
	if err != nil {
		return nil, errs.ErrNotFound
	}
	raw, err := json.Marshal(partial)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	const q = `
UPDATE documents
SET data = data || $3::jsonb, updated_at = now()
WHERE collection = $1 AND id = $2
RETURNING owner_id, data, updated_at`
	var (
		owner   string
		out     []byte
		updated time.Time
	)
	if err := s.db.Pool.QueryRow(ctx, q, collection, uid, raw).Scan(&owner, &out, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return toDocument(uid, owner, out, updated)
}

func toDocument(id uuid.UUID, owner string, raw []byte, updated time.Time) (*docstore.Document, error) {
	data := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
	}
	return &docstore.Document{ID: id.String(), OwnerID: owner, Data: data, UpdatedAt: updated}, nil
}
