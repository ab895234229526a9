package limiter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/and161185/earn-hire/internal/model"
)

// RedisStore shares limiter state across instances. Each record expires after ttl.
type RedisStore struct {
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs the store; ttl should be Config.Retention().
func NewRedisStore(rdb *redis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "earnhire:claimlimit:"
	}
	if ttl <= 0 {
		ttl = DefaultConfig().Retention()
	}
	return &RedisStore{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (s *RedisStore) key(k string) string { return s.keyNS + k }

func (s *RedisStore) Load(ctx context.Context, key string) (model.RateLimitRecord, bool, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.RateLimitRecord{}, false, nil
	}
	if err != nil {
		return model.RateLimitRecord{}, false, err
	}
	var rec model.RateLimitRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return model.RateLimitRecord{}, false, err
	}
	return rec, true, nil
}

// Save refreshes the TTL on every write, extending it to cover an active cooldown.
func (s *RedisStore) Save(ctx context.Context, key string, rec model.RateLimitRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := s.ttl
	if left := time.Until(time.UnixMilli(rec.CooldownUntil)); left > ttl {
		ttl = left
	}
	return s.rdb.Set(ctx, s.key(key), b, ttl).Err()
}
