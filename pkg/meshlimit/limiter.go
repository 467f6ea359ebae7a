// Package meshlimit implements per-key fixed-window rate limiting keyed by
// an arbitrary string namespace (conventionally "ip:"- or "user:"-prefixed),
// plus administrative blocking and idle-bucket garbage collection. A
// bucket allows up to max events per window and resets to empty all at
// once when the window fully elapses, rather than refilling continuously.
package meshlimit

import (
	"sync"
	"time"

	"github.com/kryptomesh/meshd/internal/constants"
	qerrors "github.com/kryptomesh/meshd/internal/errors"
)

// bucket is a single key's fixed-window counter: it allows up to max events
// within [windowStart, windowStart+window), then resets to empty in one
// step at the next Allow once the window has fully elapsed. Unlike a
// continuous-refill token bucket, a key cannot regain a partial allowance
// part way through a window — it either resets completely or not at all.
type bucket struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	lastUsed    time.Time
	blocked     bool
}

// Limiter enforces a fixed-window request counter per key. Each key gets
// its own mutex so the hot path never contends on a server-wide lock.
type Limiter struct {
	max     int
	window  time.Duration
	mu      sync.RWMutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New constructs a Limiter allowing max events per window for any key.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// NewDefault constructs a Limiter using the server's default rate-limit
// parameters (constants.DefaultRateLimitMax per constants.DefaultRateLimitWindow).
func NewDefault() *Limiter {
	return New(constants.DefaultRateLimitMax, constants.DefaultRateLimitWindow)
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	now := l.now()
	b = &bucket{count: 0, windowStart: now, lastUsed: now}
	l.buckets[key] = b
	return b
}

// Allow reports whether key has capacity remaining in its current window
// and, if so, consumes one unit. A previously blocked key is never allowed
// regardless of its window position. A window that has fully elapsed
// resets the count to zero in one step, per spec's fixed-window bucket.
func (l *Limiter) Allow(key string) error {
	b := l.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	b.lastUsed = now
	if b.blocked {
		return qerrors.NewPolicyError(key, qerrors.ErrRateLimited)
	}

	if now.Sub(b.windowStart) >= l.window {
		b.count = 0
		b.windowStart = now
	}

	if b.count >= l.max {
		return qerrors.NewPolicyError(key, qerrors.ErrRateLimited)
	}
	b.count++
	return nil
}

// Block administratively denies all future Allow calls for key until
// Unblock is called, independent of its remaining window count.
func (l *Limiter) Block(key string) {
	b := l.bucketFor(key)
	b.mu.Lock()
	b.blocked = true
	b.mu.Unlock()
}

// Unblock clears an administrative block on key.
func (l *Limiter) Unblock(key string) {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		return
	}
	b.mu.Lock()
	b.blocked = false
	b.mu.Unlock()
}

// GC removes buckets that have not been touched within
// RateLimiterGCMultiple*window, bounding memory growth from one-shot or
// abandoned keys (e.g. IPs that connected once and never returned).
func (l *Limiter) GC() int {
	cutoff := l.now().Add(-time.Duration(constants.RateLimiterGCMultiple) * l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		stale := b.lastUsed.Before(cutoff) && !b.blocked
		b.mu.Unlock()
		if stale {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys, for metrics and tests.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
