// Package memorystore is an in-process docstore.Store used by tests and local development.
package memorystore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/earn-hire/internal/docstore"
	"github.com/and161185/earn-hire/internal/errs"
)

// Store keeps documents per collection in insertion order.
type Store struct {
	mu   sync.Mutex
	cols map[string][]*docstore.Document
	now  func() time.Time
}

var _ docstore.Store = (*Store)(nil)

// New constructs an empty store.
func New() *Store {
	return &Store{cols: map[string][]*docstore.Document{}, now: time.Now}
}

// QueryByField returns a copy of the first document whose string field equals value.
func (s *Store) QueryByField(ctx context.Context, collection, field, value string) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.cols[collection] {
		if v, ok := d.Data[field].(string); ok && v == value {
			return copyDoc(d), nil
		}
	}
	return nil, errs.ErrNotFound
}

// Create stores data under a new UUIDv4 id.
func (s *Store) Create(ctx context.Context, collection string, data map[string]any, ownerID string) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	norm, err := normalize(data)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	d := &docstore.Document{ID: id.String(), OwnerID: ownerID, Data: norm, UpdatedAt: s.now()}

	s.mu.Lock()
	s.cols[collection] = append(s.cols[collection], d)
	s.mu.Unlock()
	return copyDoc(d), nil
}

// Update merges partial into the stored document.
func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	norm, err := normalize(partial)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.cols[collection] {
		if d.ID != id {
			continue
		}
		for k, v := range norm {
			d.Data[k] = v
		}
		d.UpdatedAt = s.now()
		return copyDoc(d), nil
	}
	return nil, errs.ErrNotFound
}

// Len reports how many documents a collection holds.
func (s *Store) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cols[collection])
}

// normalize round-trips through JSON so values look the same as from the SQL/Mongo backends.
func normalize(data map[string]any) (map[string]any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func copyDoc(d *docstore.Document) *docstore.Document {
	return &docstore.Document{ID: d.ID, OwnerID: d.OwnerID, Data: docstore.Clone(d.Data), UpdatedAt: d.UpdatedAt}
}
