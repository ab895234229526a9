// Package limiter implements the advisory claim-attempt limiter keyed by wallet address.
package limiter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/earn-hire/internal/model"
)

// Store persists per-identifier limiter state.
type Store interface {
	// Load returns the record and whether one exists.
	Load(ctx context.Context, key string) (model.RateLimitRecord, bool, error)
	// Save writes the record.
	Save(ctx context.Context, key string, rec model.RateLimitRecord) error
}

// Config holds limiter thresholds.
type Config struct {
	Window      time.Duration
	MaxAttempts int
	Cooldown    time.Duration
}

// DefaultConfig allows 5 attempts per 5 minutes and cools down for 30 minutes.
func DefaultConfig() Config {
	return Config{Window: 5 * time.Minute, MaxAttempts: 5, Cooldown: 30 * time.Minute}
}

// Retention is how long an idle record stays meaningful.
func (c Config) Retention() time.Duration { return c.Window + c.Cooldown }

// Limiter is a best-effort sliding-window limiter. It is not a security boundary:
// store failures are logged and the attempt is allowed.
type Limiter struct {
	store Store
	cfg   Config
	log   *zap.Logger
	now   func() time.Time
}

// New constructs a limiter. Zero config fields take defaults; log may be nil.
func New(store Store, cfg Config, log *zap.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{store: store, cfg: cfg, log: log, now: time.Now}
}

// Config returns the effective thresholds.
func (l *Limiter) Config() Config { return l.cfg }

// load applies the window reset. Violations, captcha and cooldown carry forward.
func (l *Limiter) load(ctx context.Context, key string, now time.Time) (model.RateLimitRecord, error) {
	rec, ok, err := l.store.Load(ctx, key)
	if err != nil {
		return model.RateLimitRecord{}, err
	}
	nowMs := now.UnixMilli()
	if !ok || nowMs-rec.LastAttempt > l.cfg.Window.Milliseconds() {
		rec.Attempts = 0
		rec.LastAttempt = nowMs
	}
	return rec, nil
}

// CheckAttempt records one attempt for key and reports whether it may proceed.
// The call after MaxAttempts within the window trips a cooldown and requires a captcha.
func (l *Limiter) CheckAttempt(ctx context.Context, key string) model.Decision {
	now := l.now()
	nowMs := now.UnixMilli()
	log := l.log.With(zap.String("identifier", key))

	rec, err := l.load(ctx, key, now)
	if err != nil {
		log.Warn("limiter load failed, allowing", zap.Error(err))
		return model.Decision{Allowed: true}
	}

	if rec.CooldownUntil > nowMs {
		l.save(ctx, key, rec, log)
		return model.Decision{
			Allowed:           false,
			NeedsCaptcha:      rec.NeedsCaptcha,
			CooldownRemaining: time.Duration(rec.CooldownUntil-nowMs) * time.Millisecond,
		}
	}

	rec.Attempts++
	rec.LastAttempt = nowMs
	allowed := true
	if rec.Attempts > l.cfg.MaxAttempts {
		rec.Violations++
		rec.NeedsCaptcha = true
		rec.CooldownUntil = now.Add(l.cfg.Cooldown).UnixMilli()
		rec.Attempts = 0
		allowed = false
		log.Info("claim cooldown started", zap.Int("violations", rec.Violations))
	}
	l.save(ctx, key, rec, log)

	d := model.Decision{Allowed: allowed, NeedsCaptcha: rec.NeedsCaptcha}
	if rec.CooldownUntil > nowMs {
		d.CooldownRemaining = time.Duration(rec.CooldownUntil-nowMs) * time.Millisecond
	}
	return d
}

func (l *Limiter) save(ctx context.Context, key string, rec model.RateLimitRecord, log *zap.Logger) {
	if err := l.store.Save(ctx, key, rec); err != nil {
		log.Warn("limiter save failed", zap.Error(err))
	}
}

// ResetViolations clears attempts, violations, captcha and cooldown for key.
func (l *Limiter) ResetViolations(ctx context.Context, key string) error {
	rec, err := l.load(ctx, key, l.now())
	if err != nil {
		return err
	}
	rec.Attempts = 0
	rec.Violations = 0
	rec.NeedsCaptcha = false
	rec.CooldownUntil = 0
	return l.store.Save(ctx, key, rec)
}

// Inspect returns the stored record without recording an attempt.
func (l *Limiter) Inspect(ctx context.Context, key string) (model.RateLimitRecord, bool, error) {
	return l.store.Load(ctx, key)
}
