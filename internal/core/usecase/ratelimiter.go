package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/rs/zerolog"
)

const defaultRateLimitMaxKeys = 10000

type rateBucket struct {
	count   int
	resetAt time.Time
}

// MemoryRateLimiter keeps one fixed-window counter per key in process memory.
// Counters are not shared between processes, so N instances admit up to N
// times the configured limit.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	maxKeys int
	now     func() time.Time
	logger  zerolog.Logger

	sweeps int64
	swept  int64
}

type RateLimiterStats struct {
	TrackedKeys int
	MaxKeys     int
	Sweeps      int64
	Swept       int64
}

// NewMemoryRateLimiter returns a limiter that sweeps expired buckets whenever
// more than maxKeys keys are tracked. maxKeys <= 0 selects the default.
func NewMemoryRateLimiter(maxKeys int, logger zerolog.Logger) *MemoryRateLimiter {
	if maxKeys <= 0 {
		maxKeys = defaultRateLimitMaxKeys
	}
	return &MemoryRateLimiter{
		buckets: make(map[string]*rateBucket),
		maxKeys: maxKeys,
		now:     time.Now,
		logger:  logger,
	}
}

// Allow counts key under policy. Buckets are scoped by policy name, so one key
// limited by several policies keeps a separate window per policy.
func (l *MemoryRateLimiter) Allow(_ context.Context, key string, policy domain.RateLimitPolicy) (domain.RateLimitDecision, error) {
	return l.Check(policy.Name+":"+key, policy.Limit, policy.Window), nil
}

// Check counts one call for key. A missing or expired bucket starts a new
// window with count 1; otherwise the call is allowed while count <= limit.
func (l *MemoryRateLimiter) Check(key string, limit int, window time.Duration) domain.RateLimitDecision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &rateBucket{resetAt: now.Add(window)}
		l.buckets[key] = b
	}
	// count stops at limit+1 so a hammered key cannot overflow it
	if b.count <= limit {
		b.count++
	}

	decision := domain.RateLimitDecision{
		Allowed: b.count <= limit,
		Limit:   limit,
		ResetAt: b.resetAt,
	}
	if decision.Allowed {
		decision.Remaining = limit - b.count
	}

	if len(l.buckets) > l.maxKeys {
		l.sweepLocked(now)
	}
	return decision
}

func (l *MemoryRateLimiter) sweepLocked(now time.Time) {
	removed := 0
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
			removed++
		}
	}
	l.sweeps++
	l.swept += int64(removed)
	l.logger.Debug().
		Int("removed", removed).
		Int("remaining", len(l.buckets)).
		Int("max_keys", l.maxKeys).
		Msg("rate limiter sweep")
}

func (l *MemoryRateLimiter) Stats() RateLimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return RateLimiterStats{
		TrackedKeys: len(l.buckets),
		MaxKeys:     l.maxKeys,
		Sweeps:      l.sweeps,
		Swept:       l.swept,
	}
}
