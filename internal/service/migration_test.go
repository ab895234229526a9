package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/earn-hire/internal/localstore"
	"github.com/and161185/earn-hire/internal/model"
	"github.com/and161185/earn-hire/internal/repository"
)

func localWithData() *localstore.Memory {
	return localstore.NewMemory(map[string]string{
		localstore.KeyEntitlements: `{"count":2,"lastDate":"2025-03-10","plan":"starter","remainingInsights":0,` +
			`"remainingGreaterStrategy":7,"remainingWarmthSearches":55,"region":"CA"}`,
		localstore.KeyRewards:           `{"points":40,"lastReviewTimestamp":1741600000000,"reviewedJobIds":["a","b","c","d"],"anonymousJobClicks":4}`,
		localstore.KeyResumeText:        "Go engineer",
		localstore.KeyAnalysisStatement: "strong fit",
		localstore.KeySearchActivity:    `{"lastDate":"2025-03-11","count":2}`,
	})
}

func newMigration(t *testing.T, env *ledgerEnv) *MigrationService {
	return NewMigrationService(env.ents, env.rews, zaptest.NewLogger(t), env.clk.Now)
}

func TestMigration_CopiesLocalDataExactly(t *testing.T) {
	env := newLedgerEnv()
	svc := newMigration(t, env)
	ctx := context.Background()
	local := localWithData()

	res, err := svc.Run(ctx, "u1", local)
	require.NoError(t, err)
	require.True(t, res.Migrated)
	require.True(t, res.Entitlements)
	require.True(t, res.Rewards)

	ent, err := env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	ent.DocID = ""
	require.Equal(t, model.EntitlementRecord{
		UserID:                   "u1",
		DailyFreeCount:           2,
		LastResetDate:            "2025-03-10",
		Plan:                     model.PlanStarter,
		RemainingInsights:        0,
		RemainingGreaterStrategy: 7,
		RemainingWarmthSearches:  55,
		Region:                   "CA",
		ResumeText:               "Go engineer",
		AnalysisStatement:        "strong fit",
		SearchLastDate:           "2025-03-11",
		SearchCount:              2,
		MigratedAt:               env.clk.Now().UnixMilli(),
	}, ent)

	rw, err := env.rews.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	rw.DocID = ""
	require.Equal(t, model.RewardRecord{
		UserID:              "u1",
		Points:              40,
		LastReviewTimestamp: 1741600000000,
		ReviewedJobIDs:      []string{"a", "b", "c", "d"},
		AnonymousJobClicks:  4,
	}, rw)

	require.Equal(t, map[string]string{localstore.KeyMigrationFlag: "u1"}, local.Snapshot())

	again, err := svc.Run(ctx, "u1", local)
	require.NoError(t, err)
	require.True(t, again.AlreadyDone)
	require.Equal(t, 1, env.store.Len(repository.EntitlementsCollection))
	require.Equal(t, 1, env.store.Len(repository.RewardsCollection))
}

func TestMigration_SecondRunDoesNotOverwrite(t *testing.T) {
	env := newLedgerEnv()
	svc := newMigration(t, env)
	ctx := context.Background()
	local := localWithData()

	_, err := svc.Run(ctx, "u1", local)
	require.NoError(t, err)

	ok, err := env.rewards.AddPoints(ctx, "e", "u1", true)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, local.Set(ctx, localstore.KeyRewards, `{"points":0}`))
	res, err := svc.Run(ctx, "u1", local)
	require.NoError(t, err)
	require.True(t, res.AlreadyDone)

	rw, err := env.rews.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 50, rw.Points)
}

func TestMigration_OtherUsersFlagDoesNotGate(t *testing.T) {
	env := newLedgerEnv()
	svc := newMigration(t, env)
	ctx := context.Background()
	local := localWithData()
	require.NoError(t, local.Set(ctx, localstore.KeyMigrationFlag, "someone-else"))

	res, err := svc.Run(ctx, "u1", local)
	require.NoError(t, err)
	require.False(t, res.AlreadyDone)
	require.True(t, res.Migrated)

	flag, _, err := local.Get(ctx, localstore.KeyMigrationFlag)
	require.NoError(t, err)
	require.Equal(t, "u1", flag)
}

func TestMigration_NothingLocalSetsFlag(t *testing.T) {
	env := newLedgerEnv()
	svc := newMigration(t, env)
	ctx := context.Background()
	local := localstore.NewMemory(nil)

	res, err := svc.Run(ctx, "u1", local)
	require.NoError(t, err)
	require.True(t, res.NothingToMigrate)
	require.False(t, res.Migrated)
	require.Equal(t, map[string]string{localstore.KeyMigrationFlag: "u1"}, local.Snapshot())
	require.Equal(t, 0, env.store.Len(repository.EntitlementsCollection))
}

func TestMigration_MissingFieldsFallBackToDefaults(t *testing.T) {
	env := newLedgerEnv()
	svc := newMigration(t, env)
	ctx := context.Background()
	local := localstore.NewMemory(map[string]string{
		localstore.KeyEntitlements: `{"count":1,"plan":"free"}`,
	})

	res, err := svc.Run(ctx, "u1", local)
	require.NoError(t, err)
	require.True(t, res.Migrated)
	require.False(t, res.Rewards)

	ent, err := env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, ent.DailyFreeCount)
	require.Equal(t, model.PlanNone, ent.Plan)
	require.Equal(t, "2025-03-14", ent.LastResetDate)
	require.Equal(t, 3, ent.RemainingInsights)
	require.Equal(t, 3, ent.RemainingWarmthSearches)
	require.Equal(t, 0, env.store.Len(repository.RewardsCollection))
}

func TestMigration_MalformedValueTreatedAsAbsent(t *testing.T) {
	env := newLedgerEnv()
	svc := newMigration(t, env)
	ctx := context.Background()
	local := localstore.NewMemory(map[string]string{
		localstore.KeyRewards:    `{not json`,
		localstore.KeyResumeText: "resume",
	})

	res, err := svc.Run(ctx, "u1", local)
	require.NoError(t, err)
	require.True(t, res.Migrated)
	require.False(t, res.Rewards)
	require.True(t, res.ResumeText)
	require.Equal(t, 0, env.store.Len(repository.RewardsCollection))
}

type failingRewards struct{ err error }

var _ repository.RewardRepository = (*failingRewards)(nil)

func (f *failingRewards) GetOrCreate(context.Context, string) (model.RewardRecord, error) {
	return model.RewardRecord{}, f.err
}
func (f *failingRewards) Find(context.Context, string) (model.RewardRecord, bool, error) {
	return model.RewardRecord{}, false, f.err
}
func (f *failingRewards) Save(context.Context, model.RewardRecord) (model.RewardRecord, error) {
	return model.RewardRecord{}, f.err
}
func (f *failingRewards) Overwrite(context.Context, model.RewardRecord) (model.RewardRecord, error) {
	return model.RewardRecord{}, f.err
}

func TestMigration_FailureKeepsLocalData(t *testing.T) {
	env := newLedgerEnv()
	boom := errors.New("store down")
	svc := NewMigrationService(env.ents, &failingRewards{err: boom}, zaptest.NewLogger(t), env.clk.Now)
	ctx := context.Background()
	local := localWithData()
	before := local.Snapshot()

	res, err := svc.Run(ctx, "u1", local)
	require.ErrorIs(t, err, boom)
	require.False(t, res.Migrated)
	require.Equal(t, before, local.Snapshot())

	// A later session with a healthy store completes the migration.
	res, err = newMigration(t, env).Run(ctx, "u1", local)
	require.NoError(t, err)
	require.True(t, res.Migrated)
}

type flakyLocal struct {
	*localstore.Memory
	deleteErr error
}

func (f *flakyLocal) Delete(ctx context.Context, keys ...string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Memory.Delete(ctx, keys...)
}

func TestMigration_PurgeFailureIsNotFatal(t *testing.T) {
	env := newLedgerEnv()
	svc := newMigration(t, env)
	local := &flakyLocal{Memory: localWithData(), deleteErr: errors.New("quota")}

	res, err := svc.Run(context.Background(), "u1", local)
	require.NoError(t, err)
	require.True(t, res.Migrated)
	flag, _, err := local.Get(context.Background(), localstore.KeyMigrationFlag)
	require.NoError(t, err)
	require.Equal(t, "u1", flag)
}

func TestMigration_DefaultRecordsAreOverwritten(t *testing.T) {
	env := newLedgerEnv()
	svc := newMigration(t, env)
	ctx := context.Background()

	// Reading status on sign-in creates default records before the migration runs.
	_, err := env.rewards.GetStatus(ctx, "u1")
	require.NoError(t, err)

	res, err := svc.Run(ctx, "u1", localWithData())
	require.NoError(t, err)
	require.True(t, res.Migrated)
	require.False(t, res.KeptExisting)

	ent, err := env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, model.PlanStarter, ent.Plan)
	rw, err := env.rews.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 40, rw.Points)
}

func TestMigration_KeepsExistingDurableState(t *testing.T) {
	env := newLedgerEnv()
	svc := newMigration(t, env)
	ctx := context.Background()
	require.NoError(t, env.credits.SetRegion(ctx, "DE", "u1"))
	seedReward(t, env, "u1", 10, 0, time.Minute)

	first := localstore.NewMemory(map[string]string{
		localstore.KeyEntitlements: `{"plan":"pro","remainingInsights":99999,"region":"US"}`,
		localstore.KeyRewards:      `{"points":100000,"lastReviewTimestamp":1}`,
		localstore.KeyResumeText:   "resume",
	})
	res, err := svc.Run(ctx, "u1", first)
	require.NoError(t, err)
	require.True(t, res.Migrated)
	require.True(t, res.KeptExisting)
	require.Equal(t, map[string]string{localstore.KeyMigrationFlag: "u1"}, first.Snapshot())

	ent, err := env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, model.PlanNone, ent.Plan)
	require.Equal(t, 3, ent.RemainingInsights)
	require.Equal(t, "DE", ent.Region)
	require.Equal(t, "resume", ent.ResumeText)
	require.NotZero(t, ent.MigratedAt)

	st, err := env.rewards.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 10, st.Points)
	require.False(t, st.CanCashOut)
}

func TestMigration_DurableMarkerGatesNewSessions(t *testing.T) {
	env := newLedgerEnv()
	svc := newMigration(t, env)
	ctx := context.Background()

	_, err := svc.Run(ctx, "u1", localWithData())
	require.NoError(t, err)

	second := localstore.NewMemory(map[string]string{
		localstore.KeyEntitlements: `{"plan":"pro","remainingInsights":99999}`,
		localstore.KeyRewards:      `{"points":100000,"lastReviewTimestamp":1}`,
		localstore.KeyResumeText:   "replaced",
	})
	res, err := svc.Run(ctx, "u1", second)
	require.NoError(t, err)
	require.True(t, res.AlreadyDone)
	require.False(t, res.Migrated)
	require.Equal(t, map[string]string{localstore.KeyMigrationFlag: "u1"}, second.Snapshot())

	ent, err := env.ents.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, model.PlanStarter, ent.Plan)
	require.Equal(t, 0, ent.RemainingInsights)
	require.Equal(t, "Go engineer", ent.ResumeText)
	rw, err := env.rews.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 40, rw.Points)
}

func TestMigration_DedupsReviewedJobs(t *testing.T) {
	env := newLedgerEnv()
	svc := newMigration(t, env)
	ctx := context.Background()
	local := localstore.NewMemory(map[string]string{
		localstore.KeyRewards: `{"points":30,"reviewedJobIds":["b","a","b","","a","c"]}`,
	})

	_, err := svc.Run(ctx, "u1", local)
	require.NoError(t, err)

	rw, err := env.rews.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a", "c"}, rw.ReviewedJobIDs)
}
