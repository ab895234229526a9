package repository

import (
	"context"

	"github.com/and161185/earn-hire/internal/model"
)

// RewardRepository provides access to per-user crypto point records.
type RewardRepository interface {
	// GetOrCreate loads the record, creating an empty one on first access.
	GetOrCreate(ctx context.Context, userID string) (model.RewardRecord, error)
	// Find loads the record without creating it; ok is false when none exists.
	Find(ctx context.Context, userID string) (rec model.RewardRecord, ok bool, err error)
	// Save writes rec back to the document it was loaded from.
	Save(ctx context.Context, rec model.RewardRecord) (model.RewardRecord, error)
	// Overwrite replaces the stored record for rec.UserID, creating it if absent.
	Overwrite(ctx context.Context, rec model.RewardRecord) (model.RewardRecord, error)
}
