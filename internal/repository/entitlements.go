// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/earn-hire/internal/model"
)

// Collections and the lookup field shared by both per-user records.
const (
	EntitlementsCollection = "insights"
	RewardsCollection      = "crypto_rewards"
	UserIDField            = "userId"
)

// EntitlementRepository provides access to per-user credit records.
type EntitlementRepository interface {
	// GetOrCreate loads the record, creating free-tier defaults on first access.
	GetOrCreate(ctx context.Context, userID string) (model.EntitlementRecord, error)
	// Find loads the record without creating it; ok is false when none exists.
	Find(ctx context.Context, userID string) (rec model.EntitlementRecord, ok bool, err error)
	// Save writes rec back to the document it was loaded from.
	Save(ctx context.Context, rec model.EntitlementRecord) (model.EntitlementRecord, error)
	// Overwrite replaces the stored record for rec.UserID, creating it if absent.
	Overwrite(ctx context.Context, rec model.EntitlementRecord) (model.EntitlementRecord, error)
}
