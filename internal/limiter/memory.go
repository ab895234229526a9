package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/earn-hire/internal/model"
)

// MemoryStore keeps limiter state in the process. Construct one per process.
type MemoryStore struct {
	mu        sync.Mutex
	m         map[string]model.RateLimitRecord
	retention time.Duration
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store; Sweep drops records idle longer than retention.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{m: map[string]model.RateLimitRecord{}, retention: retention}
}

func (s *MemoryStore) Load(_ context.Context, key string) (model.RateLimitRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[key]
	return rec, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, rec model.RateLimitRecord) error {
	s.mu.Lock()
	s.m[key] = rec
	s.mu.Unlock()
	return nil
}

// Sweep removes records whose last attempt is older than retention and whose cooldown has lapsed.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int64, error) {
	nowMs := now.UnixMilli()
	cutoff := now.Add(-s.retention).UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rec := range s.m {
		if rec.LastAttempt < cutoff && rec.CooldownUntil <= nowMs {
			delete(s.m, k)
			n++
		}
	}
	return n, nil
}

// Len reports the number of tracked identifiers.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
