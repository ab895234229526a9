// Package docstore defines the document store contract used by the ledger services
// and the idempotent find-or-create / upsert primitives built on top of it.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/earn-hire/internal/errs"
)

// Document is a stored JSON object with a generated id and an owner.
type Document struct {
	ID        string
	OwnerID   string
	Data      map[string]any
	UpdatedAt time.Time
}

// Store is the narrow document store contract. Implementations grant
// read/write on a created document to its owner only; there are no transactions.
type Store interface {
	// QueryByField returns the first document whose field equals value, or errs.ErrNotFound.
	QueryByField(ctx context.Context, collection, field, value string) (*Document, error)
	// Create inserts data under a generated id owned by ownerID.
	Create(ctx context.Context, collection string, data map[string]any, ownerID string) (*Document, error)
	// Update merges partial into the document's data and returns the result.
	Update(ctx context.Context, collection, id string, partial map[string]any) (*Document, error)
}

// FindOrCreate returns the document matching field=value, creating it from defaults when absent.
func FindOrCreate(ctx context.Context, s Store, collection, field, value string, defaults map[string]any) (*Document, error) {
	doc, err := s.QueryByField(ctx, collection, field, value)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	doc, err = s.Create(ctx, collection, defaults, value)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", collection, err)
	}
	return doc, nil
}

// Upsert updates the document matching field=value with partial, or creates it from
// defaults overlaid with partial when none exists.
func Upsert(ctx context.Context, s Store, collection, field, value string, defaults, partial map[string]any) (*Document, error) {
	doc, err := s.QueryByField(ctx, collection, field, value)
	switch {
	case err == nil:
		out, err := s.Update(ctx, collection, doc.ID, partial)
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", collection, err)
		}
		return out, nil
	case errors.Is(err, errs.ErrNotFound):
		data := make(map[string]any, len(defaults)+len(partial))
		for k, v := range defaults {
			data[k] = v
		}
		for k, v := range partial {
			data[k] = v
		}
		out, err := s.Create(ctx, collection, data, value)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", collection, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
}

// Encode converts a tagged struct into document data.
func Encode(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Decode fills a tagged struct from document data.
func Decode(data map[string]any, v any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Clone returns a shallow copy of data; slices are copied so callers can't alias stored state.
func Clone(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch t := v.(type) {
		case []any:
			out[k] = append([]any(nil), t...)
		case []string:
			out[k] = append([]string(nil), t...)
		default:
			out[k] = v
		}
	}
	return out
}
