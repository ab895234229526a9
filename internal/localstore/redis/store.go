// Package redislocal keeps anonymous-session local storage in Redis so the
// migration endpoint can read what a browser recorded before sign-in.
package redislocal

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/and161185/earn-hire/internal/localstore"
)

const defaultPrefix = "earnhire:anon:"

// Sessions hands out per-session stores sharing one client.
type Sessions struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSessions constructs the factory. ttl <= 0 means keys never expire.
func NewSessions(rdb *redis.Client, prefix string, ttl time.Duration) *Sessions {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Sessions{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Session returns the store for one anonymous session id.
func (s *Sessions) Session(id string) localstore.Store {
	return &Store{rdb: s.rdb, ns: s.prefix + id + ":", ttl: s.ttl}
}

// Store is a localstore.Store over Redis string keys.
type Store struct {
	rdb *redis.Client
	ns  string
	ttl time.Duration
}

var _ localstore.Store = (*Store)(nil)

func (s *Store) key(k string) string { return s.ns + k }

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	return s.rdb.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return s.rdb.Del(ctx, full...).Err()
}
