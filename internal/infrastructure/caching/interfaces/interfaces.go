// Package interfaces defines cache operation contracts for the reward engine.
package interfaces

import (
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/types"
)

// UserStateCache defines operations on the canonical per-user snapshot and
// the synchronous idempotency guard.
type UserStateCache interface {
	InitializeUser(snapshot *types.Snapshot, confirmedKeys map[string]bool)
	GetSnapshot(userID string) (types.Snapshot, bool)
	HasSession(userID string) bool
	ApplyGrantIfNew(grant *rewards.Grant) (bool, int)
	ConfirmGrant(userID, activityKey string)
	PendingGrants(userID string) []*rewards.Grant
	PendingTotal(userID string) int
	SetTotal(userID string, total int, reconciledAt time.Time) bool
	SetStreak(userID string, count int) bool
	SetDailyEarned(userID string, earned int) bool
	SetDailyGoal(userID string, targetXP int) bool
	SetTimezone(userID, timezone string) bool
	UpsertProgressRow(row *rewards.ProgressRow) bool
	ClearUser(userID string)
	ActiveUsers() []string
}

// AggregateCache defines operations on cached per-local-day summaries.
type AggregateCache interface {
	GetDailyAggregate(userID, timezone string, now time.Time) (*types.DailyAggregate, bool)
	SetDailyAggregate(aggregate *types.DailyAggregate)
	InvalidateDailyAggregate(userID string)
}

// Cache is the full surface the cache manager provides.
type Cache interface {
	UserStateCache
	AggregateCache
	EvictExpired() int
	Stats() map[string]any
}
