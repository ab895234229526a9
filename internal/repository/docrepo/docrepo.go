// Package docrepo implements the repository interfaces on top of a docstore.Store.
package docrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/earn-hire/internal/docstore"
	"github.com/and161185/earn-hire/internal/errs"
	"github.com/and161185/earn-hire/internal/model"
	"github.com/and161185/earn-hire/internal/repository"
)

// FieldSealer encrypts free-text fields at rest.
type FieldSealer interface {
	Seal(userID, field, plaintext string) (string, error)
	Open(userID, field, value string) (string, error)
}

// Sealed field names, matching their document keys.
const (
	fieldResumeText        = "resumeText"
	fieldAnalysisStatement = "analysisStatement"
)

// EntitlementRepo stores EntitlementRecords in the insights collection.
type EntitlementRepo struct {
	store  docstore.Store
	now    func() time.Time
	sealer FieldSealer
}

var _ repository.EntitlementRepository = (*EntitlementRepo)(nil)

// NewEntitlementRepo constructs the repository; now defaults to time.Now.
func NewEntitlementRepo(store docstore.Store, now func() time.Time) *EntitlementRepo {
	if now == nil {
		now = time.Now
	}
	return &EntitlementRepo{store: store, now: now}
}

// WithSealer enables at-rest encryption of resume and analysis text.
func (r *EntitlementRepo) WithSealer(s FieldSealer) *EntitlementRepo {
	r.sealer = s
	return r
}

// GetOrCreate loads the record for userID.
func (r *EntitlementRepo) GetOrCreate(ctx context.Context, userID string) (model.EntitlementRecord, error) {
	if userID == "" {
		return model.EntitlementRecord{}, fmt.Errorf("%w: empty user id", errs.ErrInvalidArgument)
	}
	defaults, err := docstore.Encode(model.NewEntitlementRecord(userID, r.now()))
	if err != nil {
		return model.EntitlementRecord{}, err
	}
	doc, err := docstore.FindOrCreate(ctx, r.store, repository.EntitlementsCollection, repository.UserIDField, userID, defaults)
	if err != nil {
		return model.EntitlementRecord{}, err
	}
	return r.decode(doc)
}

// Find loads the record for userID without creating it.
func (r *EntitlementRepo) Find(ctx context.Context, userID string) (model.EntitlementRecord, bool, error) {
	doc, err := r.store.QueryByField(ctx, repository.EntitlementsCollection, repository.UserIDField, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.EntitlementRecord{}, false, nil
	}
	if err != nil {
		return model.EntitlementRecord{}, false, fmt.Errorf("query %s: %w", repository.EntitlementsCollection, err)
	}
	rec, err := r.decode(doc)
	if err != nil {
		return model.EntitlementRecord{}, false, err
	}
	return rec, true, nil
}

// Save writes all record fields to the loaded document.
func (r *EntitlementRepo) Save(ctx context.Context, rec model.EntitlementRecord) (model.EntitlementRecord, error) {
	data, err := r.encode(rec)
	if err != nil {
		return model.EntitlementRecord{}, err
	}
	doc, err := r.store.Update(ctx, repository.EntitlementsCollection, rec.DocID, data)
	if err != nil {
		return model.EntitlementRecord{}, fmt.Errorf("update %s: %w", repository.EntitlementsCollection, err)
	}
	return r.decode(doc)
}

// Overwrite upserts rec by user id.
func (r *EntitlementRepo) Overwrite(ctx context.Context, rec model.EntitlementRecord) (model.EntitlementRecord, error) {
	if rec.UserID == "" {
		return model.EntitlementRecord{}, fmt.Errorf("%w: empty user id", errs.ErrInvalidArgument)
	}
	data, err := r.encode(rec)
	if err != nil {
		return model.EntitlementRecord{}, err
	}
	doc, err := docstore.Upsert(ctx, r.store, repository.EntitlementsCollection, repository.UserIDField, rec.UserID, data, data)
	if err != nil {
		return model.EntitlementRecord{}, err
	}
	return r.decode(doc)
}

func (r *EntitlementRepo) encode(rec model.EntitlementRecord) (map[string]any, error) {
	if r.sealer != nil {
		var err error
		if rec.ResumeText, err = r.sealer.Seal(rec.UserID, fieldResumeText, rec.ResumeText); err != nil {
			return nil, fmt.Errorf("seal %s: %w", fieldResumeText, err)
		}
		if rec.AnalysisStatement, err = r.sealer.Seal(rec.UserID, fieldAnalysisStatement, rec.AnalysisStatement); err != nil {
			return nil, fmt.Errorf("seal %s: %w", fieldAnalysisStatement, err)
		}
	}
	return docstore.Encode(rec)
}

func (r *EntitlementRepo) decode(doc *docstore.Document) (model.EntitlementRecord, error) {
	var rec model.EntitlementRecord
	if err := docstore.Decode(doc.Data, &rec); err != nil {
		return model.EntitlementRecord{}, fmt.Errorf("decode entitlement %s: %w", doc.ID, err)
	}
	rec.DocID = doc.ID
	if r.sealer != nil {
		var err error
		if rec.ResumeText, err = r.sealer.Open(rec.UserID, fieldResumeText, rec.ResumeText); err != nil {
			return model.EntitlementRecord{}, fmt.Errorf("open %s for %s: %w", fieldResumeText, doc.ID, err)
		}
		if rec.AnalysisStatement, err = r.sealer.Open(rec.UserID, fieldAnalysisStatement, rec.AnalysisStatement); err != nil {
			return model.EntitlementRecord{}, fmt.Errorf("open %s for %s: %w", fieldAnalysisStatement, doc.ID, err)
		}
	}
	return rec, nil
}

// RewardRepo stores RewardRecords in the crypto_rewards collection.
type RewardRepo struct{ store docstore.Store }

var _ repository.RewardRepository = (*RewardRepo)(nil)

// NewRewardRepo constructs the repository.
func NewRewardRepo(store docstore.Store) *RewardRepo { return &RewardRepo{store: store} }

// GetOrCreate loads the record for userID.
func (r *RewardRepo) GetOrCreate(ctx context.Context, userID string) (model.RewardRecord, error) {
	if userID == "" {
		return model.RewardRecord{}, fmt.Errorf("%w: empty user id", errs.ErrInvalidArgument)
	}
	defaults, err := docstore.Encode(model.NewRewardRecord(userID))
	if err != nil {
		return model.RewardRecord{}, err
	}
	doc, err := docstore.FindOrCreate(ctx, r.store, repository.RewardsCollection, repository.UserIDField, userID, defaults)
	if err != nil {
		return model.RewardRecord{}, err
	}
	return decodeReward(doc)
}

// Find loads the record for userID without creating it.
func (r *RewardRepo) Find(ctx context.Context, userID string) (model.RewardRecord, bool, error) {
	doc, err := r.store.QueryByField(ctx, repository.RewardsCollection, repository.UserIDField, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.RewardRecord{}, false, nil
	}
	if err != nil {
		return model.RewardRecord{}, false, fmt.Errorf("query %s: %w", repository.RewardsCollection, err)
	}
	rec, err := decodeReward(doc)
	if err != nil {
		return model.RewardRecord{}, false, err
	}
	return rec, true, nil
}

// Save writes all record fields to the loaded document.
func (r *RewardRepo) Save(ctx context.Context, rec model.RewardRecord) (model.RewardRecord, error) {
	data, err := encodeReward(rec)
	if err != nil {
		return model.RewardRecord{}, err
	}
	doc, err := r.store.Update(ctx, repository.RewardsCollection, rec.DocID, data)
	if err != nil {
		return model.RewardRecord{}, fmt.Errorf("update %s: %w", repository.RewardsCollection, err)
	}
	return decodeReward(doc)
}

// Overwrite upserts rec by user id.
func (r *RewardRepo) Overwrite(ctx context.Context, rec model.RewardRecord) (model.RewardRecord, error) {
	if rec.UserID == "" {
		return model.RewardRecord{}, fmt.Errorf("%w: empty user id", errs.ErrInvalidArgument)
	}
	data, err := encodeReward(rec)
	if err != nil {
		return model.RewardRecord{}, err
	}
	doc, err := docstore.Upsert(ctx, r.store, repository.RewardsCollection, repository.UserIDField, rec.UserID, data, data)
	if err != nil {
		return model.RewardRecord{}, err
	}
	return decodeReward(doc)
}

// encodeReward keeps reviewedJobIds an array even when empty.
func encodeReward(rec model.RewardRecord) (map[string]any, error) {
	if rec.ReviewedJobIDs == nil {
		rec.ReviewedJobIDs = []string{}
	}
	return docstore.Encode(rec)
}

func decodeReward(doc *docstore.Document) (model.RewardRecord, error) {
	var rec model.RewardRecord
	if err := docstore.Decode(doc.Data, &rec); err != nil {
		return model.RewardRecord{}, fmt.Errorf("decode reward %s: %w", doc.ID, err)
	}
	if rec.ReviewedJobIDs == nil {
		rec.ReviewedJobIDs = []string{}
	}
	rec.DocID = doc.ID
	return rec, nil
}
