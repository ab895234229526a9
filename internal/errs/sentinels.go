// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Common sentinels across store/service layers.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates a claim attempt was denied by the abuse limiter.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnknownPlan indicates a plan or product identifier outside the closed set.
	ErrUnknownPlan = errors.New("unknown plan")

	// ErrInvalidArgument indicates malformed caller input (empty user id, bad wallet address).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotEligible indicates the reward record does not satisfy cash-out thresholds.
	ErrNotEligible = errors.New("not eligible for cash-out")

	// ErrClaimFailed indicates the external claim transaction did not succeed.
	ErrClaimFailed = errors.New("claim failed")
)

// RateLimitError carries limiter details alongside ErrRateLimited.
type RateLimitError struct {
	CooldownRemaining time.Duration
	NeedsCaptcha      bool
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry in %s", e.CooldownRemaining.Round(time.Second))
}

// Unwrap lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
