// Package ratelimit implements a fixed-window request limiter keyed by
// caller identity.
package ratelimit

import (
	"sync"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// Bucket tracks request counts for one identifier within the current window.
type Bucket struct {
	Identifier  string
	WindowStart time.Time
	Count       int
	Limit       int
	Window      time.Duration
}

// Result reports the outcome of a limiter check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter holds per-identifier fixed-window buckets. Buckets are created
// lazily on first request and garbage-collected after their window passes.
type Limiter struct {
	buckets map[string]*Bucket
	clock   func() time.Time
	logger  *logging.ChanneledLogger
	Mu      sync.Mutex
}

// NewLimiter creates a limiter using the wall clock.
func NewLimiter(logger *logging.ChanneledLogger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*Bucket),
		clock:   time.Now,
		logger:  logger,
	}
}

// NewLimiterWithClock creates a limiter with an injected clock for tests.
func NewLimiterWithClock(logger *logging.ChanneledLogger, clock func() time.Time) *Limiter {
	return &Limiter{
		buckets: make(map[string]*Bucket),
		clock:   clock,
		logger:  logger,
	}
}

// Check counts one request against the identifier's current window. The
// first limit calls in a window succeed; further calls are rejected until
// the window elapses and the counter resets to zero. Windows are fixed,
// not sliding.
func (l *Limiter) Check(identifier string, limit int, window time.Duration) Result {
	now := l.clock()

	l.Mu.Lock()
	defer l.Mu.Unlock()

	bucket, exists := l.buckets[identifier]
	if !exists || now.Sub(bucket.WindowStart) >= bucket.Window {
		if !exists && len(l.buckets) >= config.MaxTrackedIdentities {
			l.evictOldestLocked()
		}
		bucket = &Bucket{
			Identifier:  identifier,
			WindowStart: now,
			Limit:       limit,
			Window:      window,
		}
		l.buckets[identifier] = bucket
	}

	resetAt := bucket.WindowStart.Add(bucket.Window)
	if bucket.Count >= bucket.Limit {
		if l.logger != nil {
			l.logger.RateLimit().Debug("Request rejected", "identifier", identifier, "count", bucket.Count, "limit", bucket.Limit, "resetAt", resetAt)
		}
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	bucket.Count++
	return Result{
		Allowed:   true,
		Remaining: bucket.Limit - bucket.Count,
		ResetAt:   resetAt,
	}
}

// Peek reports the identifier's current window state without counting a
// request. A missing or elapsed bucket reports the full limit remaining.
func (l *Limiter) Peek(identifier string, limit int, window time.Duration) Result {
	now := l.clock()

	l.Mu.Lock()
	defer l.Mu.Unlock()

	bucket, exists := l.buckets[identifier]
	if !exists || now.Sub(bucket.WindowStart) >= bucket.Window {
		return Result{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}
	}

	remaining := bucket.Limit - bucket.Count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   bucket.Count < bucket.Limit,
		Remaining: remaining,
		ResetAt:   bucket.WindowStart.Add(bucket.Window),
	}
}

// SweepExpired removes buckets whose window has fully elapsed and returns
// the number removed. Called by the cache cleanup worker.
func (l *Limiter) SweepExpired(now time.Time) int {
	l.Mu.Lock()
	defer l.Mu.Unlock()

	removed := 0
	for id, bucket := range l.buckets {
		if now.Sub(bucket.WindowStart) >= bucket.Window {
			delete(l.buckets, id)
			removed++
		}
	}

	if removed > 0 && l.logger != nil {
		l.logger.RateLimit().Debug("Expired buckets swept", "removed", removed, "remaining", len(l.buckets))
	}
	return removed
}

// evictOldestLocked drops the bucket with the earliest window start to
// bound memory under identifier churn. Caller holds Mu.
func (l *Limiter) evictOldestLocked() {
	var oldestID string
	var oldestStart time.Time
	for id, bucket := range l.buckets {
		if oldestID == "" || bucket.WindowStart.Before(oldestStart) {
			oldestID = id
			oldestStart = bucket.WindowStart
		}
	}
	if oldestID != "" {
		delete(l.buckets, oldestID)
	}
}

// Count returns the number of tracked identifiers.
func (l *Limiter) Count() int {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	return len(l.buckets)
}
