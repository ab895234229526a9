// Package model defines domain entities used by services and repositories.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/and161185/earn-hire/internal/errs"
)

// Free-tier and reward constants.
const (
	DailyFreeInsights       = 3
	DailyFreeWarmthSearches = 3
	WarmthCardsFree         = 3
	WarmthCardsPaid         = 6

	PointsPerReview     = 10
	MinCashOutPoints    = 100
	BaseReviewTime      = 10 * time.Minute
	AnonymousClickDelay = 45 * time.Second

	// TokensPerPoint is the on-chain payout rate.
	TokensPerPoint = 0.01
)

// AllowedRegions is the reward issuance allow-list (ISO country codes).
var AllowedRegions = map[string]struct{}{"US": {}, "CA": {}}

// RegionAllowed reports whether an unset or allow-listed region may earn rewards.
func RegionAllowed(region string) bool {
	if region == "" {
		return true
	}
	_, ok := AllowedRegions[region]
	return ok
}

// Plan is the closed set of entitlement tiers. The zero value is the free tier.
type Plan string

const (
	PlanNone    Plan = ""
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
)

// Allotment is the fixed credit bundle granted by a plan or product.
type Allotment struct {
	Insights        int
	GreaterStrategy int
	WarmthSearches  int
}

var planAllotments = map[Plan]Allotment{
	PlanStarter: {Insights: 120, GreaterStrategy: 10, WarmthSearches: 120},
	PlanPro:     {Insights: 400, GreaterStrategy: 20, WarmthSearches: 400},
}

// ParsePlan validates a paid plan identifier. PlanNone is not purchasable and is rejected.
func ParsePlan(s string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := planAllotments[p]; !ok {
		return PlanNone, fmt.Errorf("%w: %q", errs.ErrUnknownPlan, s)
	}
	return p, nil
}

// Paid reports whether the plan is a paid tier.
func (p Plan) Paid() bool { return p != PlanNone }

// Allotment returns the plan's fixed bundle.
func (p Plan) Allotment() (Allotment, error) {
	a, ok := planAllotments[p]
	if !ok {
		return Allotment{}, fmt.Errorf("%w: %q", errs.ErrUnknownPlan, string(p))
	}
	return a, nil
}

// Product is a purchasable item: either a plan subscription or an additive boost.
type Product string

const (
	ProductStarter       Product = "starter"
	ProductPro           Product = "pro"
	ProductInsightBoost  Product = "insight-boost"
	ProductStrategyBoost Product = "strategy-boost"
)

var boostAllotments = map[Product]Allotment{
	ProductInsightBoost:  {Insights: 1},
	ProductStrategyBoost: {GreaterStrategy: 1},
}

// ParseProduct validates a product identifier coming from checkout metadata.
func ParseProduct(s string) (Product, error) {
	p := Product(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProductStarter, ProductPro, ProductInsightBoost, ProductStrategyBoost:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", errs.ErrUnknownPlan, s)
}

// Plan returns the plan a subscription product switches to.
func (p Product) Plan() (Plan, bool) {
	switch p {
	case ProductStarter:
		return PlanStarter, true
	case ProductPro:
		return PlanPro, true
	}
	return PlanNone, false
}

// BoostAllotment returns the credits an additive product grants.
func (p Product) BoostAllotment() (Allotment, error) {
	a, ok := boostAllotments[p]
	if !ok {
		return Allotment{}, fmt.Errorf("%w: %q is not a boost", errs.ErrUnknownPlan, string(p))
	}
	return a, nil
}

// EntitlementRecord is the per-user credit state stored in the insights collection.
type EntitlementRecord struct {
	DocID                    string `json:"-"`
	UserID                   string `json:"userId"`
	DailyFreeCount           int    `json:"count"`
	LastResetDate            string `json:"lastDate"` // YYYY-MM-DD, UTC
	Plan                     Plan   `json:"plan"`
	RemainingInsights        int    `json:"remainingInsights"`
	RemainingGreaterStrategy int    `json:"remainingGreaterStrategy"`
	RemainingWarmthSearches  int    `json:"remainingWarmthSearches"`
	Region                   string `json:"region"`

	// Profile fields carried over from pre-login local storage.
	ResumeText        string `json:"resumeText,omitempty"`
	AnalysisStatement string `json:"analysisStatement,omitempty"`
	SearchLastDate    string `json:"searchLastDate,omitempty"`
	SearchCount       int    `json:"searchCount,omitempty"`

	// MigratedAt is the epoch ms of the completed pre-login migration, 0 = never.
	MigratedAt int64 `json:"migratedAt,omitempty"`
}

// NewEntitlementRecord returns the free-tier defaults for a user.
func NewEntitlementRecord(userID string, now time.Time) EntitlementRecord {
	return EntitlementRecord{
		UserID:                  userID,
		LastResetDate:           DateOf(now),
		Plan:                    PlanNone,
		RemainingInsights:       DailyFreeInsights,
		RemainingWarmthSearches: DailyFreeWarmthSearches,
	}
}

// Pristine reports whether the record still holds only free-tier defaults.
// The reset date is ignored.
func (r EntitlementRecord) Pristine() bool {
	return r.MigratedAt == 0 &&
		r.Plan == PlanNone &&
		r.DailyFreeCount == 0 &&
		r.RemainingInsights == DailyFreeInsights &&
		r.RemainingGreaterStrategy == 0 &&
		r.RemainingWarmthSearches == DailyFreeWarmthSearches &&
		r.Region == "" &&
		r.ResumeText == "" &&
		r.AnalysisStatement == "" &&
		r.SearchCount == 0
}

// RewardRecord is the per-user crypto point state stored in the crypto_rewards collection.
type RewardRecord struct {
	DocID               string   `json:"-"`
	UserID              string   `json:"userId"`
	Points              int      `json:"points"`
	LastReviewTimestamp int64    `json:"lastReviewTimestamp"` // epoch ms, 0 = never
	ReviewedJobIDs      []string `json:"reviewedJobIds"`
	AnonymousJobClicks  int      `json:"anonymousJobClicks"`
}

// NewRewardRecord returns the empty reward state for a user.
func NewRewardRecord(userID string) RewardRecord {
	return RewardRecord{UserID: userID, ReviewedJobIDs: []string{}}
}

// Pristine reports whether nothing was ever earned or clicked.
func (r RewardRecord) Pristine() bool {
	return r.Points == 0 && r.LastReviewTimestamp == 0 && len(r.ReviewedJobIDs) == 0 && r.AnonymousJobClicks == 0
}

// HasReviewed reports whether jobID was already awarded.
func (r RewardRecord) HasReviewed(jobID string) bool {
	for _, id := range r.ReviewedJobIDs {
		if id == jobID {
			return true
		}
	}
	return false
}

// RewardStatus is the cash-out view of a RewardRecord.
type RewardStatus struct {
	Points             int           `json:"points"`
	TimeRequirementMet bool          `json:"timeRequirementMet"`
	CanCashOut         bool          `json:"canCashOut"`
	ReviewedJobs       int           `json:"reviewedJobs"`
	IsAnonymous        bool          `json:"isAnonymous"`
	AnonymousJobClicks int           `json:"anonymousJobClicks"`
	RegionRestricted   bool          `json:"regionRestricted"`
	RequiredTime       time.Duration `json:"-"`
	TimeRemaining      time.Duration `json:"-"`
}

// RemainingCounts is the display snapshot of all consumable pools.
type RemainingCounts struct {
	Insights           int `json:"insights"`
	GreaterStrategy    int `json:"greaterStrategy"`
	WarmthSearches     int `json:"warmthSearches"`
	CryptoPoints       int `json:"cryptoPoints"`
	AnonymousJobClicks int `json:"anonymousJobClicks"`
}

// RateLimitRecord is the per-wallet abuse limiter state. Times are epoch ms.
type RateLimitRecord struct {
	Attempts      int   `json:"attempts"`
	Violations    int   `json:"violations"`
	LastAttempt   int64 `json:"lastAttempt"`
	CooldownUntil int64 `json:"cooldownUntil,omitempty"`
	NeedsCaptcha  bool  `json:"needsCaptcha"`
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed           bool          `json:"allowed"`
	NeedsCaptcha      bool          `json:"needsCaptcha"`
	CooldownRemaining time.Duration `json:"-"`
}

// DateOf returns the UTC calendar date of t as YYYY-MM-DD.
func DateOf(t time.Time) string { return t.UTC().Format(time.DateOnly) }
