package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/earn-hire/internal/errs"
	"github.com/and161185/earn-hire/internal/localstore"
	"github.com/and161185/earn-hire/internal/model"
	"github.com/and161185/earn-hire/internal/repository"
)

// MigrationReconciler moves pre-login usage into the durable per-user records once.
type MigrationReconciler interface {
	Run(ctx context.Context, userID string, local localstore.Store) (MigrationResult, error)
}

// MigrationResult describes what a Run did.
type MigrationResult struct {
	AlreadyDone      bool `json:"alreadyDone"`
	NothingToMigrate bool `json:"nothingToMigrate"`
	Migrated         bool `json:"migrated"`

	Entitlements      bool `json:"entitlements"`
	Rewards           bool `json:"rewards"`
	ResumeText        bool `json:"resumeText"`
	AnalysisStatement bool `json:"analysisStatement"`
	SearchActivity    bool `json:"searchActivity"`

	// KeptExisting is set when durable credits and rewards were kept instead of overwritten.
	KeptExisting bool `json:"keptExisting"`
}

func (r MigrationResult) hasArtifacts() bool {
	return r.Entitlements || r.Rewards || r.ResumeText || r.AnalysisStatement || r.SearchActivity
}

// localEntitlements mirrors the anonymous entitlement snapshot. Absent fields stay nil.
type localEntitlements struct {
	Count                    *int    `json:"count"`
	LastDate                 *string `json:"lastDate"`
	Plan                     *string `json:"plan"`
	RemainingInsights        *int    `json:"remainingInsights"`
	RemainingGreaterStrategy *int    `json:"remainingGreaterStrategy"`
	RemainingWarmthSearches  *int    `json:"remainingWarmthSearches"`
	Region                   *string `json:"region"`
}

type localRewards struct {
	Points              *int     `json:"points"`
	LastReviewTimestamp *int64   `json:"lastReviewTimestamp"`
	ReviewedJobIDs      []string `json:"reviewedJobIds"`
	AnonymousJobClicks  *int     `json:"anonymousJobClicks"`
}

type localSearchActivity struct {
	LastDate *string `json:"lastDate"`
	Count    *int    `json:"count"`
}

// localArtifacts is everything read from local storage for one run.
type localArtifacts struct {
	entitlements *localEntitlements
	rewards      *localRewards
	search       *localSearchActivity
	resume       string
	analysis     string
}

// MigrationService implements MigrationReconciler.
type MigrationService struct {
	entitlements repository.EntitlementRepository
	rewards      repository.RewardRepository
	log          *zap.Logger
	now          func() time.Time
}

var _ MigrationReconciler = (*MigrationService)(nil)

// NewMigrationService constructs the reconciler. log and now may be nil.
func NewMigrationService(entitlements repository.EntitlementRepository, rewards repository.RewardRepository, log *zap.Logger, now func() time.Time) *MigrationService {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &MigrationService{entitlements: entitlements, rewards: rewards, log: log, now: now}
}

// Run is gated by the migration flag holding exactly userID and by the durable
// marker on the user's entitlement record. Local values overwrite the durable
// records only while the user has no durable state beyond free-tier defaults;
// otherwise the stored credits and rewards are kept and only profile text is
// copied. Rewards are written before the entitlement record that carries the
// marker, the flag is written after both and local artifacts are purged only
// after the flag. Any failure before the flag leaves local storage untouched so
// the next session retries.
func (s *MigrationService) Run(ctx context.Context, userID string, local localstore.Store) (MigrationResult, error) {
	var res MigrationResult
	if userID == "" {
		return res, fmt.Errorf("%w: empty user id", errs.ErrInvalidArgument)
	}
	log := s.log.With(zap.String("user_id", userID))

	flag, ok, err := local.Get(ctx, localstore.KeyMigrationFlag)
	if err != nil {
		return res, fmt.Errorf("read migration flag: %w", err)
	}
	if ok && flag == userID {
		res.AlreadyDone = true
		return res, nil
	}

	arts, err := s.readLocal(ctx, local, log)
	if err != nil {
		return res, err
	}
	res.Entitlements = arts.entitlements != nil
	res.Rewards = arts.rewards != nil
	res.SearchActivity = arts.search != nil
	res.ResumeText = arts.resume != ""
	res.AnalysisStatement = arts.analysis != ""

	if !res.hasArtifacts() {
		if err := local.Set(ctx, localstore.KeyMigrationFlag, userID); err != nil {
			return res, fmt.Errorf("write migration flag: %w", err)
		}
		res.NothingToMigrate = true
		log.Debug("no local data to migrate")
		return res, nil
	}

	ent, entFound, err := s.entitlements.Find(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("load entitlements: %w", err)
	}
	if entFound && ent.MigratedAt != 0 {
		log.Info("durable records already migrated, discarding local data")
		if err := s.finish(ctx, local, userID, log); err != nil {
			return res, err
		}
		return MigrationResult{AlreadyDone: true}, nil
	}
	rw, rwFound, err := s.rewards.Find(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("load rewards: %w", err)
	}
	fresh := (!entFound || ent.Pristine()) && (!rwFound || rw.Pristine())
	res.KeptExisting = !fresh

	log.Info("migrating local data",
		zap.Bool("entitlements", res.Entitlements),
		zap.Bool("rewards", res.Rewards),
		zap.Bool("resume_text", res.ResumeText),
		zap.Bool("analysis_statement", res.AnalysisStatement),
		zap.Bool("search_activity", res.SearchActivity),
		zap.Bool("kept_existing", res.KeptExisting),
	)

	if res.Rewards && fresh {
		if _, err := s.rewards.Overwrite(ctx, rewardFromLocal(userID, arts.rewards)); err != nil {
			log.Error("migrate rewards", zap.Error(err))
			return res, fmt.Errorf("migrate rewards: %w", err)
		}
	}

	var rec model.EntitlementRecord
	if fresh {
		rec = s.entitlementFromLocal(userID, arts, log)
	} else {
		if !entFound {
			ent = model.NewEntitlementRecord(userID, s.now())
		}
		rec = withLocalProfile(ent, arts)
	}
	rec.MigratedAt = s.now().UnixMilli()
	if _, err := s.entitlements.Overwrite(ctx, rec); err != nil {
		log.Error("migrate entitlements", zap.Error(err))
		return res, fmt.Errorf("migrate entitlements: %w", err)
	}

	if err := s.finish(ctx, local, userID, log); err != nil {
		return res, err
	}
	res.Migrated = true
	log.Info("migration completed")
	return res, nil
}

// finish writes the flag and purges local artifacts. Purge failures are not
// fatal once the flag is set.
func (s *MigrationService) finish(ctx context.Context, local localstore.Store, userID string, log *zap.Logger) error {
	if err := local.Set(ctx, localstore.KeyMigrationFlag, userID); err != nil {
		log.Error("write migration flag", zap.Error(err))
		return fmt.Errorf("write migration flag: %w", err)
	}
	if err := local.Delete(ctx, localstore.ArtifactKeys...); err != nil {
		log.Warn("purge local data", zap.Error(err))
	}
	return nil
}

func (s *MigrationService) readLocal(ctx context.Context, local localstore.Store, log *zap.Logger) (localArtifacts, error) {
	var arts localArtifacts
	var err error

	if arts.entitlements, err = readJSON[localEntitlements](ctx, local, localstore.KeyEntitlements, log); err != nil {
		return arts, err
	}
	if arts.rewards, err = readJSON[localRewards](ctx, local, localstore.KeyRewards, log); err != nil {
		return arts, err
	}
	if arts.search, err = readJSON[localSearchActivity](ctx, local, localstore.KeySearchActivity, log); err != nil {
		return arts, err
	}
	if arts.resume, _, err = local.Get(ctx, localstore.KeyResumeText); err != nil {
		return arts, fmt.Errorf("read %s: %w", localstore.KeyResumeText, err)
	}
	if arts.analysis, _, err = local.Get(ctx, localstore.KeyAnalysisStatement); err != nil {
		return arts, fmt.Errorf("read %s: %w", localstore.KeyAnalysisStatement, err)
	}
	return arts, nil
}

// readJSON returns nil for a missing, empty or malformed value.
func readJSON[T any](ctx context.Context, local localstore.Store, key string, log *zap.Logger) (*T, error) {
	raw, ok, err := local.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || raw == "" || raw == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.Warn("ignoring malformed local value", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	return &v, nil
}

func (s *MigrationService) entitlementFromLocal(userID string, arts localArtifacts, log *zap.Logger) model.EntitlementRecord {
	now := s.now()
	rec := model.NewEntitlementRecord(userID, now)
	if e := arts.entitlements; e != nil {
		setInt(&rec.DailyFreeCount, e.Count)
		setString(&rec.LastResetDate, e.LastDate)
		setInt(&rec.RemainingInsights, e.RemainingInsights)
		setInt(&rec.RemainingGreaterStrategy, e.RemainingGreaterStrategy)
		setInt(&rec.RemainingWarmthSearches, e.RemainingWarmthSearches)
		setString(&rec.Region, e.Region)
		if e.Plan != nil {
			rec.Plan = localPlan(*e.Plan, log)
		}
	}
	rec.ResumeText = arts.resume
	rec.AnalysisStatement = arts.analysis
	rec.SearchLastDate = model.DateOf(now)
	if a := arts.search; a != nil {
		setString(&rec.SearchLastDate, a.LastDate)
		setInt(&rec.SearchCount, a.Count)
	}
	return rec
}

// withLocalProfile copies the non-empty local profile text and search activity onto rec.
func withLocalProfile(rec model.EntitlementRecord, arts localArtifacts) model.EntitlementRecord {
	if arts.resume != "" {
		rec.ResumeText = arts.resume
	}
	if arts.analysis != "" {
		rec.AnalysisStatement = arts.analysis
	}
	if a := arts.search; a != nil {
		setString(&rec.SearchLastDate, a.LastDate)
		setInt(&rec.SearchCount, a.Count)
	}
	return rec
}

// localPlan maps the anonymous plan string; "free" and unknown values become the free tier.
func localPlan(s string, log *zap.Logger) model.Plan {
	if s == "" || s == "free" {
		return model.PlanNone
	}
	p, err := model.ParsePlan(s)
	if err != nil {
		log.Warn("unknown local plan, using free tier", zap.String("plan", s))
		return model.PlanNone
	}
	return p
}

func rewardFromLocal(userID string, r *localRewards) model.RewardRecord {
	rec := model.NewRewardRecord(userID)
	setInt(&rec.Points, r.Points)
	setInt(&rec.AnonymousJobClicks, r.AnonymousJobClicks)
	if r.LastReviewTimestamp != nil {
		rec.LastReviewTimestamp = *r.LastReviewTimestamp
	}
	for _, id := range r.ReviewedJobIDs {
		if id != "" && !rec.HasReviewed(id) {
			rec.ReviewedJobIDs = append(rec.ReviewedJobIDs, id)
		}
	}
	return rec
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = max(0, *v)
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
