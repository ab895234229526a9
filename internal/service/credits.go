// Package service contains the entitlement, reward, migration and claim services.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/earn-hire/internal/model"
	"github.com/and161185/earn-hire/internal/repository"
)

// CreditLedger defines per-user credit metering operations.
// Every check and consumption first rolls the daily free-tier window.
type CreditLedger interface {
	// GetOrCreate returns the user's record, creating free-tier defaults on first access.
	GetOrCreate(ctx context.Context, userID string) (model.EntitlementRecord, error)
	// CheckAndResetDaily rolls the free-tier counters when the UTC date changed.
	CheckAndResetDaily(ctx context.Context, userID string) (model.EntitlementRecord, error)
	// HasReachedInsightLimit reports whether no insight reveal is available.
	HasReachedInsightLimit(ctx context.Context, userID string) (bool, error)
	// IncrementInsightUsage consumes one insight reveal if available.
	IncrementInsightUsage(ctx context.Context, userID string) (bool, error)
	// IncrementGreaterStrategyUsage consumes one strategy unlock if available.
	IncrementGreaterStrategyUsage(ctx context.Context, userID string) (bool, error)
	// HasWarmthSearchesRemaining reports whether a warmth search is available.
	HasWarmthSearchesRemaining(ctx context.Context, userID string) (bool, error)
	// DecrementWarmthSearchUsage consumes one warmth search if available.
	DecrementWarmthSearchUsage(ctx context.Context, userID string) (bool, error)
	// GetWarmthCardsPerSearch returns how many results per search get AI analysis.
	GetWarmthCardsPerSearch(ctx context.Context, userID string) (int, error)
	// SetPlan switches the plan and overwrites the pools with its allotment.
	SetPlan(ctx context.Context, plan model.Plan, userID string) error
	// AddCredits adds a boost product's credits to the current pools.
	AddCredits(ctx context.Context, product model.Product, userID string) error
	// SetRegion stores the user's country code for the reward region gate.
	SetRegion(ctx context.Context, region, userID string) error
	// RemainingCounts returns the display snapshot of all pools.
	RemainingCounts(ctx context.Context, userID string) (model.RemainingCounts, error)
}

// CreditService implements CreditLedger with read-modify-write over the repository.
// Concurrent sessions for the same user can race and over-spend; there is no CAS.
type CreditService struct {
	entitlements repository.EntitlementRepository
	rewards      repository.RewardRepository
	now          func() time.Time
}

var _ CreditLedger = (*CreditService)(nil)

// NewCreditService constructs the ledger. now defaults to time.Now.
func NewCreditService(entitlements repository.EntitlementRepository, rewards repository.RewardRepository, now func() time.Time) *CreditService {
	if now == nil {
		now = time.Now
	}
	return &CreditService{entitlements: entitlements, rewards: rewards, now: now}
}

// GetOrCreate returns the stored record without rolling the daily window.
func (s *CreditService) GetOrCreate(ctx context.Context, userID string) (model.EntitlementRecord, error) {
	return s.entitlements.GetOrCreate(ctx, userID)
}

// CheckAndResetDaily compares the stored date with today's UTC date. On a new day
// the free counter is zeroed; free-tier warmth searches are refilled, paid pools are not.
func (s *CreditService) CheckAndResetDaily(ctx context.Context, userID string) (model.EntitlementRecord, error) {
	rec, err := s.entitlements.GetOrCreate(ctx, userID)
	if err != nil {
		return model.EntitlementRecord{}, err
	}
	today := model.DateOf(s.now())
	if rec.LastResetDate == today {
		return rec, nil
	}
	rec.DailyFreeCount = 0
	rec.LastResetDate = today
	if !rec.Plan.Paid() {
		rec.RemainingWarmthSearches = model.DailyFreeWarmthSearches
	}
	return s.entitlements.Save(ctx, rec)
}

func insightLimitReached(rec model.EntitlementRecord) bool {
	if !rec.Plan.Paid() {
		return rec.DailyFreeCount >= model.DailyFreeInsights
	}
	return rec.RemainingInsights <= 0
}

// HasReachedInsightLimit reports the limit after rolling the day.
func (s *CreditService) HasReachedInsightLimit(ctx context.Context, userID string) (bool, error) {
	rec, err := s.CheckAndResetDaily(ctx, userID)
	if err != nil {
		return false, err
	}
	return insightLimitReached(rec), nil
}

// IncrementInsightUsage bumps the free counter or draws down the paid pool.
// Returns false without writing when the limit is reached.
func (s *CreditService) IncrementInsightUsage(ctx context.Context, userID string) (bool, error) {
	rec, err := s.CheckAndResetDaily(ctx, userID)
	if err != nil {
		return false, err
	}
	if insightLimitReached(rec) {
		return false, nil
	}
	if rec.Plan.Paid() {
		rec.RemainingInsights--
	} else {
		rec.DailyFreeCount++
	}
	if _, err := s.entitlements.Save(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// IncrementGreaterStrategyUsage draws one unit from the strategy pool.
func (s *CreditService) IncrementGreaterStrategyUsage(ctx context.Context, userID string) (bool, error) {
	return s.consume(ctx, userID, func(rec *model.EntitlementRecord) *int { return &rec.RemainingGreaterStrategy })
}

// HasWarmthSearchesRemaining reports whether the warmth pool is non-empty.
func (s *CreditService) HasWarmthSearchesRemaining(ctx context.Context, userID string) (bool, error) {
	rec, err := s.CheckAndResetDaily(ctx, userID)
	if err != nil {
		return false, err
	}
	return rec.RemainingWarmthSearches > 0, nil
}

// DecrementWarmthSearchUsage draws one unit from the warmth pool.
func (s *CreditService) DecrementWarmthSearchUsage(ctx context.Context, userID string) (bool, error) {
	return s.consume(ctx, userID, func(rec *model.EntitlementRecord) *int { return &rec.RemainingWarmthSearches })
}

// consume decrements the selected pool if it is positive.
func (s *CreditService) consume(ctx context.Context, userID string, pool func(*model.EntitlementRecord) *int) (bool, error) {
	rec, err := s.CheckAndResetDaily(ctx, userID)
	if err != nil {
		return false, err
	}
	p := pool(&rec)
	if *p <= 0 {
		return false, nil
	}
	*p--
	if _, err := s.entitlements.Save(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// GetWarmthCardsPerSearch returns 3 on the free tier and 6 on any paid plan.
func (s *CreditService) GetWarmthCardsPerSearch(ctx context.Context, userID string) (int, error) {
	rec, err := s.CheckAndResetDaily(ctx, userID)
	if err != nil {
		return 0, err
	}
	if rec.Plan.Paid() {
		return model.WarmthCardsPaid, nil
	}
	return model.WarmthCardsFree, nil
}

// SetPlan replaces (never adds to) the three pools with the plan's allotment.
func (s *CreditService) SetPlan(ctx context.Context, plan model.Plan, userID string) error {
	allot, err := plan.Allotment()
	if err != nil {
		return err
	}
	rec, err := s.entitlements.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	rec.Plan = plan
	rec.RemainingInsights = allot.Insights
	rec.RemainingGreaterStrategy = allot.GreaterStrategy
	rec.RemainingWarmthSearches = allot.WarmthSearches
	_, err = s.entitlements.Save(ctx, rec)
	return err
}

// AddCredits tops up the pools by a boost product's allotment without touching the plan.
func (s *CreditService) AddCredits(ctx context.Context, product model.Product, userID string) error {
	allot, err := product.BoostAllotment()
	if err != nil {
		return err
	}
	rec, err := s.entitlements.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	rec.RemainingInsights += allot.Insights
	rec.RemainingGreaterStrategy += allot.GreaterStrategy
	rec.RemainingWarmthSearches += allot.WarmthSearches
	_, err = s.entitlements.Save(ctx, rec)
	return err
}

// SetRegion stores an upper-cased country code.
func (s *CreditService) SetRegion(ctx context.Context, region, userID string) error {
	rec, err := s.entitlements.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	rec.Region = strings.ToUpper(strings.TrimSpace(region))
	_, err = s.entitlements.Save(ctx, rec)
	return err
}

// RemainingCounts reports what the user can still consume. On the free tier the
// insight count is derived from the daily counter and strategy unlocks are zero.
func (s *CreditService) RemainingCounts(ctx context.Context, userID string) (model.RemainingCounts, error) {
	rec, err := s.CheckAndResetDaily(ctx, userID)
	if err != nil {
		return model.RemainingCounts{}, err
	}
	rw, err := s.rewards.GetOrCreate(ctx, userID)
	if err != nil {
		return model.RemainingCounts{}, fmt.Errorf("rewards: %w", err)
	}
	out := model.RemainingCounts{
		WarmthSearches:     rec.RemainingWarmthSearches,
		CryptoPoints:       rw.Points,
		AnonymousJobClicks: rw.AnonymousJobClicks,
	}
	if rec.Plan.Paid() {
		out.Insights = rec.RemainingInsights
		out.GreaterStrategy = rec.RemainingGreaterStrategy
	} else {
		out.Insights = max(0, model.DailyFreeInsights-rec.DailyFreeCount)
	}
	return out, nil
}
