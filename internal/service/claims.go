package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/earn-hire/internal/errs"
	"github.com/and161185/earn-hire/internal/model"
	"github.com/and161185/earn-hire/internal/wallet"
)

// AttemptLimiter is the claim-attempt limiter used by ClaimService.
type AttemptLimiter interface {
	CheckAttempt(ctx context.Context, key string) model.Decision
	ResetViolations(ctx context.Context, key string) error
}

// ClaimResult reports a confirmed payout.
type ClaimResult struct {
	Wallet string  `json:"wallet"`
	Points int     `json:"points"`
	Amount float64 `json:"amount"`
}

// ClaimService runs a reward cash-out end to end.
type ClaimService struct {
	rewards  RewardAccrual
	limiter  AttemptLimiter
	contract wallet.Contract
	log      *zap.Logger
}

// NewClaimService constructs the service. log may be nil.
func NewClaimService(rewards RewardAccrual, limiter AttemptLimiter, contract wallet.Contract, log *zap.Logger) *ClaimService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ClaimService{rewards: rewards, limiter: limiter, contract: contract, log: log}
}

// Claim checks eligibility and the wallet's attempt limit, submits the payout and
// resets the reward record only once the contract confirms it. A failed or
// unconfirmed claim leaves the record eligible for a retry.
func (s *ClaimService) Claim(ctx context.Context, userID, rawWallet, signature string) (ClaimResult, error) {
	addr, err := wallet.Normalize(rawWallet)
	if err != nil {
		return ClaimResult{}, err
	}
	log := s.log.With(zap.String("user_id", userID), zap.String("wallet", addr.Value))

	st, err := s.rewards.GetStatus(ctx, userID)
	if err != nil {
		return ClaimResult{}, err
	}
	if !st.CanCashOut {
		return ClaimResult{}, errs.ErrNotEligible
	}

	d := s.limiter.CheckAttempt(ctx, addr.Value)
	if !d.Allowed {
		log.Info("claim rate limited", zap.Duration("cooldown", d.CooldownRemaining))
		return ClaimResult{}, &errs.RateLimitError{CooldownRemaining: d.CooldownRemaining, NeedsCaptcha: d.NeedsCaptcha}
	}

	amount := TokenAmount(st.Points)
	ok, err := s.contract.Claim(ctx, wallet.ClaimRequest{Wallet: addr, Amount: amount, Signature: signature})
	if err != nil {
		log.Error("claim transaction failed", zap.Error(err))
		return ClaimResult{}, fmt.Errorf("%w: %v", errs.ErrClaimFailed, err)
	}
	if !ok {
		log.Warn("claim transaction not confirmed")
		return ClaimResult{}, errs.ErrClaimFailed
	}

	if err := s.rewards.ResetOnClaim(ctx, userID); err != nil {
		// Tokens are out; the points will be claimable again until this is repaired.
		log.Error("reset after confirmed claim", zap.Error(err))
		return ClaimResult{}, fmt.Errorf("reset rewards: %w", err)
	}
	if err := s.limiter.ResetViolations(ctx, addr.Value); err != nil {
		log.Warn("reset limiter", zap.Error(err))
	}
	log.Info("claim completed", zap.Int("points", st.Points), zap.Float64("amount", amount))
	return ClaimResult{Wallet: addr.Value, Points: st.Points, Amount: amount}, nil
}
