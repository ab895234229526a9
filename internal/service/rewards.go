package service

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/earn-hire/internal/errs"
	"github.com/and161185/earn-hire/internal/model"
	"github.com/and161185/earn-hire/internal/repository"
)

// RewardAccrual defines crypto point awarding and cash-out eligibility.
type RewardAccrual interface {
	// GetOrCreate returns the user's reward record, creating an empty one on first access.
	GetOrCreate(ctx context.Context, userID string) (model.RewardRecord, error)
	// AddPoints awards a job review once per job id; false means nothing was awarded.
	AddPoints(ctx context.Context, jobID, userID string, isAuthenticated bool) (bool, error)
	// GetStatus computes cash-out eligibility.
	GetStatus(ctx context.Context, userID string) (model.RewardStatus, error)
	// ResetOnClaim clears the record after a confirmed on-chain claim.
	ResetOnClaim(ctx context.Context, userID string) error
}

// RewardService implements RewardAccrual.
type RewardService struct {
	rewards      repository.RewardRepository
	entitlements repository.EntitlementRepository
	now          func() time.Time
}

var _ RewardAccrual = (*RewardService)(nil)

// NewRewardService constructs the service. now defaults to time.Now.
func NewRewardService(rewards repository.RewardRepository, entitlements repository.EntitlementRepository, now func() time.Time) *RewardService {
	if now == nil {
		now = time.Now
	}
	return &RewardService{rewards: rewards, entitlements: entitlements, now: now}
}

// GetOrCreate returns the stored reward record.
func (s *RewardService) GetOrCreate(ctx context.Context, userID string) (model.RewardRecord, error) {
	return s.rewards.GetOrCreate(ctx, userID)
}

// AddPoints returns false silently for region-restricted users and already
// reviewed jobs. The first award starts the review clock; unauthenticated
// awards extend the required review time.
func (s *RewardService) AddPoints(ctx context.Context, jobID, userID string, isAuthenticated bool) (bool, error) {
	if jobID == "" {
		return false, fmt.Errorf("%w: empty job id", errs.ErrInvalidArgument)
	}
	ent, err := s.entitlements.GetOrCreate(ctx, userID)
	if err != nil {
		return false, err
	}
	if !model.RegionAllowed(ent.Region) {
		return false, nil
	}

	rec, err := s.rewards.GetOrCreate(ctx, userID)
	if err != nil {
		return false, err
	}
	if rec.HasReviewed(jobID) {
		return false, nil
	}

	rec.Points += model.PointsPerReview
	rec.ReviewedJobIDs = append(rec.ReviewedJobIDs, jobID)
	if rec.LastReviewTimestamp == 0 {
		rec.LastReviewTimestamp = s.now().UnixMilli()
	}
	if !isAuthenticated {
		rec.AnonymousJobClicks++
	}
	if _, err := s.rewards.Save(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// RequiredReviewTime is the dwell time before cash-out: 10 minutes plus 45s per anonymous click.
func RequiredReviewTime(anonymousClicks int) time.Duration {
	return model.BaseReviewTime + time.Duration(anonymousClicks)*model.AnonymousClickDelay
}

// GetStatus evaluates the points threshold, the dwell-time heuristic and the region gate.
func (s *RewardService) GetStatus(ctx context.Context, userID string) (model.RewardStatus, error) {
	ent, err := s.entitlements.GetOrCreate(ctx, userID)
	if err != nil {
		return model.RewardStatus{}, err
	}
	rec, err := s.rewards.GetOrCreate(ctx, userID)
	if err != nil {
		return model.RewardStatus{}, err
	}

	required := RequiredReviewTime(rec.AnonymousJobClicks)
	elapsed := s.now().Sub(time.UnixMilli(rec.LastReviewTimestamp))
	timeMet := elapsed >= required
	restricted := !model.RegionAllowed(ent.Region)

	st := model.RewardStatus{
		Points:             rec.Points,
		TimeRequirementMet: timeMet,
		CanCashOut:         rec.Points >= model.MinCashOutPoints && timeMet && !restricted,
		ReviewedJobs:       len(rec.ReviewedJobIDs),
		IsAnonymous:        !ent.Plan.Paid(),
		AnonymousJobClicks: rec.AnonymousJobClicks,
		RegionRestricted:   restricted,
		RequiredTime:       required,
	}
	if !timeMet {
		st.TimeRemaining = required - elapsed
	}
	return st, nil
}

// ResetOnClaim zeroes points, the review clock, the dedup set and anonymous clicks together.
// Callers must only invoke it after the claim transaction is confirmed.
func (s *RewardService) ResetOnClaim(ctx context.Context, userID string) error {
	rec, err := s.rewards.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	rec.Points = 0
	rec.LastReviewTimestamp = 0
	rec.ReviewedJobIDs = []string{}
	rec.AnonymousJobClicks = 0
	_, err = s.rewards.Save(ctx, rec)
	return err
}

// TokenAmount converts points to the on-chain token payout.
func TokenAmount(points int) float64 {
	return float64(points) * model.TokensPerPoint
}
