// Package localstore models the pre-login key/value storage that holds usage
// recorded before a user signed in.
package localstore

import (
	"context"
	"sync"
	"time"
)

// Fixed keys written by anonymous sessions.
const (
	KeyEntitlements      = "earn-hire-insights"
	KeyRewards           = "earn-hire-crypto-rewards"
	KeyResumeText        = "earn-hire-resume-text"
	KeyAnalysisStatement = "earn-hire-analysis-statement"
	KeySearchActivity    = "earn-hire-search-analysis"
	KeyMigrationFlag     = "earn-hire-migration-completed"
)

// ArtifactKeys lists every key purged after a completed migration.
var ArtifactKeys = []string{
	KeyEntitlements,
	KeyRewards,
	KeyResumeText,
	KeyAnalysisStatement,
	KeySearchActivity,
}

// Store is a string key/value store scoped to one browser or anonymous session.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Memory is a process-local Store.
type Memory struct {
	mu sync.Mutex
	m  map[string]string
}

var _ Store = (*Memory)(nil)

// NewMemory returns a Memory seeded with values.
func NewMemory(values map[string]string) *Memory {
	m := make(map[string]string, len(values))
	for k, v := range values {
		m[k] = v
	}
	return &Memory{m: m}
}

func (s *Memory) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
	return nil
}

func (s *Memory) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.m, k)
	}
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the stored values.
func (s *Memory) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

// MemorySessions hands out one Memory per anonymous session id. A session
// expires ttl after it was last touched and at most maxSessions are held; the
// least recently touched one is evicted to make room.
type MemorySessions struct {
	mu          sync.Mutex
	m           map[string]*memorySession
	ttl         time.Duration
	maxSessions int
	now         func() time.Time
}

type memorySession struct {
	store   *Memory
	touched time.Time
}

// Default limits for MemorySessions.
const (
	DefaultSessionTTL  = 24 * time.Hour
	DefaultMaxSessions = 4096
)

// NewMemorySessions constructs an empty session set. Non-positive limits take the defaults.
func NewMemorySessions(ttl time.Duration, maxSessions int) *MemorySessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &MemorySessions{m: map[string]*memorySession{}, ttl: ttl, maxSessions: maxSessions, now: time.Now}
}

// Session returns the store for id, creating it on first use or after expiry.
func (s *MemorySessions) Session(id string) Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if sess, ok := s.m[id]; ok && now.Before(sess.touched.Add(s.ttl)) {
		sess.touched = now
		return sess.store
	}
	delete(s.m, id)
	if len(s.m) >= s.maxSessions {
		s.evictOldest()
	}
	sess := &memorySession{store: NewMemory(nil), touched: now}
	s.m[id] = sess
	return sess.store
}

func (s *MemorySessions) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, sess := range s.m {
		if oldestID == "" || sess.touched.Before(oldest) {
			oldestID, oldest = id, sess.touched
		}
	}
	delete(s.m, oldestID)
}

// Sweep drops sessions idle for longer than the ttl and reports how many.
func (s *MemorySessions) Sweep(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.m {
		if !now.Before(sess.touched.Add(s.ttl)) {
			delete(s.m, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of live sessions.
func (s *MemorySessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
