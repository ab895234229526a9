package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	memorystore "github.com/and161185/earn-hire/internal/docstore/memory"
	"github.com/and161185/earn-hire/internal/errs"
	"github.com/and161185/earn-hire/internal/model"
	"github.com/and161185/earn-hire/internal/repository"
	"github.com/and161185/earn-hire/internal/repository/docrepo"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock { return &clock{t: time.Date(2025, 3, 14, 23, 50, 0, 0, time.UTC)} }

type ledgerEnv struct {
	store   *memorystore.Store
	ents    *docrepo.EntitlementRepo
	rews    *docrepo.RewardRepo
	clk     *clock
	credits *CreditService
	rewards *RewardService
}

func newLedgerEnv() *ledgerEnv {
	clk := newClock()
	store := memorystore.New()
	ents := docrepo.NewEntitlementRepo(store, clk.Now)
	rews := docrepo.NewRewardRepo(store)
	return &ledgerEnv{
		store:   store,
		ents:    ents,
		rews:    rews,
		clk:     clk,
		credits: NewCreditService(ents, rews, clk.Now),
		rewards: NewRewardService(rews, ents, clk.Now),
	}
}

func TestCredits_GetOrCreateDefaults(t *testing.T) {
	env := newLedgerEnv()
	rec, err := env.credits.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, model.PlanNone, rec.Plan)
	require.Equal(t, 0, rec.DailyFreeCount)
	require.Equal(t, "2025-03-14", rec.LastResetDate)
	require.Equal(t, 3, rec.RemainingInsights)
	require.Equal(t, 0, rec.RemainingGreaterStrategy)
	require.Equal(t, 3, rec.RemainingWarmthSearches)
	require.Empty(t, rec.Region)
}

func TestCredits_DailyResetOnCalendarBoundary(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	for n := 0; n < 3; n++ {
		ok, err := env.credits.IncrementInsightUsage(ctx, "u1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := env.credits.DecrementWarmthSearchUsage(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	reached, err := env.credits.HasReachedInsightLimit(ctx, "u1")
	require.NoError(t, err)
	require.True(t, reached)

	// 20 minutes later is a new UTC date even though less than 24h passed.
	env.clk.Advance(20 * time.Minute)
	rec, err := env.credits.CheckAndResetDaily(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 0, rec.DailyFreeCount)
	require.Equal(t, "2025-03-15", rec.LastResetDate)
	require.Equal(t, model.DailyFreeWarmthSearches, rec.RemainingWarmthSearches)

	again, err := env.credits.CheckAndResetDaily(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, rec, again)
}

func TestCredits_DailyResetKeepsPaidPools(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	require.NoError(t, env.credits.SetPlan(ctx, model.PlanStarter, "u1"))
	ok, err := env.credits.DecrementWarmthSearchUsage(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	env.clk.Advance(24 * time.Hour)
	rec, err := env.credits.CheckAndResetDaily(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 0, rec.DailyFreeCount)
	require.Equal(t, 119, rec.RemainingWarmthSearches)
}

func TestCredits_FreeInsightCap(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := env.credits.IncrementInsightUsage(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, i < 3, ok, "call %d", i+1)
	}
	rec, err := env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 3, rec.DailyFreeCount)
}

func TestCredits_PaidPoolsNeverNegative(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	require.NoError(t, env.credits.SetPlan(ctx, model.PlanStarter, "u1"))
	rec, err := env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	rec.RemainingInsights = 2
	rec.RemainingGreaterStrategy = 1
	_, err = env.ents.Save(ctx, rec)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		ok, err := env.credits.IncrementInsightUsage(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, i < 2, ok)
	}
	for i := 0; i < 3; i++ {
		ok, err := env.credits.IncrementGreaterStrategyUsage(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, i < 1, ok)
	}
	rec, err = env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 0, rec.RemainingInsights)
	require.Equal(t, 0, rec.RemainingGreaterStrategy)
	require.Equal(t, 0, rec.DailyFreeCount)
}

func TestCredits_FreeTierHasNoStrategyUnlocks(t *testing.T) {
	env := newLedgerEnv()
	ok, err := env.credits.IncrementGreaterStrategyUsage(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCredits_WarmthPool(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	for n := 0; n < 3; n++ {
		ok, err := env.credits.DecrementWarmthSearchUsage(ctx, "u1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	has, err := env.credits.HasWarmthSearchesRemaining(ctx, "u1")
	require.NoError(t, err)
	require.False(t, has)
	ok, err := env.credits.DecrementWarmthSearchUsage(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCredits_SetPlanReplaces(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	require.NoError(t, env.credits.SetPlan(ctx, model.PlanStarter, "u1"))
	require.NoError(t, env.credits.SetPlan(ctx, model.PlanPro, "u1"))

	rec, err := env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, model.PlanPro, rec.Plan)
	require.Equal(t, 400, rec.RemainingInsights)
	require.Equal(t, 20, rec.RemainingGreaterStrategy)
	require.Equal(t, 400, rec.RemainingWarmthSearches)
}

func TestCredits_SetPlanRejectsUnknown(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	err := env.credits.SetPlan(ctx, model.Plan("enterprise"), "u1")
	require.ErrorIs(t, err, errs.ErrUnknownPlan)
	err = env.credits.SetPlan(ctx, model.PlanNone, "u1")
	require.ErrorIs(t, err, errs.ErrUnknownPlan)
	require.Equal(t, 0, env.store.Len(repository.EntitlementsCollection))
}

func TestCredits_WarmthCardsPerSearch(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	n, err := env.credits.GetWarmthCardsPerSearch(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.NoError(t, env.credits.SetPlan(ctx, model.PlanStarter, "u1"))
	n, err = env.credits.GetWarmthCardsPerSearch(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 6, n)
}

func TestCredits_AddCreditsIsAdditive(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	require.NoError(t, env.credits.SetPlan(ctx, model.PlanStarter, "u1"))
	require.NoError(t, env.credits.AddCredits(ctx, model.ProductInsightBoost, "u1"))
	require.NoError(t, env.credits.AddCredits(ctx, model.ProductStrategyBoost, "u1"))

	rec, err := env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, model.PlanStarter, rec.Plan)
	require.Equal(t, 121, rec.RemainingInsights)
	require.Equal(t, 11, rec.RemainingGreaterStrategy)
	require.Equal(t, 120, rec.RemainingWarmthSearches)

	err = env.credits.AddCredits(ctx, model.ProductPro, "u1")
	require.ErrorIs(t, err, errs.ErrUnknownPlan)
}

func TestCredits_SetRegionNormalises(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	require.NoError(t, env.credits.SetRegion(ctx, " ca ", "u1"))
	rec, err := env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "CA", rec.Region)
}

func TestCredits_RemainingCounts(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	_, err := env.credits.IncrementInsightUsage(ctx, "u1")
	require.NoError(t, err)
	_, err = env.rewards.AddPoints(ctx, "job-1", "u1", false)
	require.NoError(t, err)

	got, err := env.credits.RemainingCounts(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, model.RemainingCounts{
		Insights:           2,
		GreaterStrategy:    0,
		WarmthSearches:     3,
		CryptoPoints:       10,
		AnonymousJobClicks: 1,
	}, got)

	require.NoError(t, env.credits.SetPlan(ctx, model.PlanPro, "u1"))
	got, err = env.credits.RemainingCounts(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 400, got.Insights)
	require.Equal(t, 20, got.GreaterStrategy)
}

type failingEntitlements struct{ err error }

var _ repository.EntitlementRepository = (*failingEntitlements)(nil)

func (f *failingEntitlements) GetOrCreate(context.Context, string) (model.EntitlementRecord, error) {
	return model.EntitlementRecord{}, f.err
}
func (f *failingEntitlements) Find(context.Context, string) (model.EntitlementRecord, bool, error) {
	return model.EntitlementRecord{}, false, f.err
}
func (f *failingEntitlements) Save(context.Context, model.EntitlementRecord) (model.EntitlementRecord, error) {
	return model.EntitlementRecord{}, f.err
}
func (f *failingEntitlements) Overwrite(context.Context, model.EntitlementRecord) (model.EntitlementRecord, error) {
	return model.EntitlementRecord{}, f.err
}

func TestCredits_StoreErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	svc := NewCreditService(&failingEntitlements{err: boom}, nil, nil)

	_, err := svc.IncrementInsightUsage(context.Background(), "u1")
	require.ErrorIs(t, err, boom)
	err = svc.SetPlan(context.Background(), model.PlanPro, "u1")
	require.ErrorIs(t, err, boom)
}

// lockstepEntitlements holds every GetOrCreate until all expected readers have read.
type lockstepEntitlements struct {
	repository.EntitlementRepository
	reads *sync.WaitGroup
}

func (l lockstepEntitlements) GetOrCreate(ctx context.Context, userID string) (model.EntitlementRecord, error) {
	rec, err := l.EntitlementRepository.GetOrCreate(ctx, userID)
	l.reads.Done()
	l.reads.Wait()
	return rec, err
}

func TestCredits_ConcurrentSessionsCanOverSpend(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()
	require.NoError(t, env.credits.SetPlan(ctx, model.PlanPro, "u1"))
	rec, err := env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	rec.RemainingGreaterStrategy = 1
	_, err = env.ents.Save(ctx, rec)
	require.NoError(t, err)

	var reads sync.WaitGroup
	reads.Add(2)
	repo := lockstepEntitlements{EntitlementRepository: env.ents, reads: &reads}
	sessions := []*CreditService{
		NewCreditService(repo, env.rews, env.clk.Now),
		NewCreditService(repo, env.rews, env.clk.Now),
	}

	results := make([]bool, len(sessions))
	errCh := make(chan error, len(sessions))
	var done sync.WaitGroup
	for i, svc := range sessions {
		i, svc := i, svc
		done.Add(1)
		go func() {
			defer done.Done()
			ok, err := svc.IncrementGreaterStrategyUsage(ctx, "u1")
			results[i] = ok
			errCh <- err
		}()
	}
	done.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	// Both sessions read the single unit before either wrote, so both succeed.
	require.Equal(t, []bool{true, true}, results)
	rec, err = env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 0, rec.RemainingGreaterStrategy)
}
