package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

func newTestLimiter(start time.Time) (*Limiter, *time.Time) {
	now := start
	limiter := NewLimiterWithClock(nil, func() time.Time { return now })
	return limiter, &now
}

func TestCheckFixedWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter, now := newTestLimiter(base)

	// First 60 calls in the window pass, the 61st is rejected.
	for i := 0; i < 60; i++ {
		*now = base.Add(time.Duration(i) * time.Second)
		result := limiter.Check("user-1", 60, time.Minute)
		require.True(t, result.Allowed, "call %d should pass", i+1)
		assert.Equal(t, 59-i, result.Remaining)
	}

	*now = base.Add(59 * time.Second)
	rejected := limiter.Check("user-1", 60, time.Minute)
	assert.False(t, rejected.Allowed)
	assert.Equal(t, 0, rejected.Remaining)
	assert.Equal(t, base.Add(time.Minute), rejected.ResetAt)

	// Once the window elapses the counter resets to zero.
	*now = base.Add(time.Minute)
	fresh := limiter.Check("user-1", 60, time.Minute)
	assert.True(t, fresh.Allowed)
	assert.Equal(t, 59, fresh.Remaining)
}

func TestCheckIdentifiersIndependent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter, _ := newTestLimiter(base)

	for i := 0; i < 3; i++ {
		limiter.Check("user-a", 3, time.Minute)
	}
	assert.False(t, limiter.Check("user-a", 3, time.Minute).Allowed)
	assert.True(t, limiter.Check("user-b", 3, time.Minute).Allowed)
}

func TestPeekDoesNotCount(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter, _ := newTestLimiter(base)

	for i := 0; i < 5; i++ {
		assert.Equal(t, 2, limiter.Peek("user-1", 2, time.Minute).Remaining)
	}

	limiter.Check("user-1", 2, time.Minute)
	assert.Equal(t, 1, limiter.Peek("user-1", 2, time.Minute).Remaining)
}

func TestSweepExpired(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter, now := newTestLimiter(base)

	limiter.Check("a", 10, time.Minute)
	limiter.Check("b", 10, time.Minute)
	*now = base.Add(30 * time.Second)
	limiter.Check("c", 10, time.Minute)
	require.Equal(t, 3, limiter.Count())

	removed := limiter.SweepExpired(base.Add(61 * time.Second))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, limiter.Count())
}

func TestEvictOldestAtCapacity(t *testing.T) {
	orig := config.MaxTrackedIdentities
	config.MaxTrackedIdentities = 3
	defer func() { config.MaxTrackedIdentities = orig }()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter, now := newTestLimiter(base)

	for i := 0; i < 5; i++ {
		*now = base.Add(time.Duration(i) * time.Second)
		limiter.Check(fmt.Sprintf("id-%d", i), 10, time.Minute)
	}

	assert.Equal(t, 3, limiter.Count())
	// The earliest windows were evicted; the newest identifier kept its count.
	assert.Equal(t, 9, limiter.Peek("id-4", 10, time.Minute).Remaining)
}
