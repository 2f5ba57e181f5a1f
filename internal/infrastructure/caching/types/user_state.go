// Package types defines the canonical in-memory user state structures.
package types

import (
	"sync"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
)

// Snapshot is the single canonical cached view of one signed-in user.
// It is owned exclusively by the cache layer: mutation happens only through
// SessionsStore setter methods, never by reaching into the struct.
type Snapshot struct {
	UserID           string                 `json:"userId"`
	TotalXP          int                    `json:"totalXp"`
	StreakCount      int                    `json:"streakCount"`
	DailyEarned      int                    `json:"dailyEarned"`
	DailyGoalXP      int                    `json:"dailyGoalXp"`
	Timezone         string                 `json:"timezone"`
	HasPremium       bool                   `json:"hasPremium"`
	ProgressRows     []*rewards.ProgressRow `json:"progressRows"`
	LastReconciledAt time.Time              `json:"lastReconciledAt"`
	CreatedAt        time.Time              `json:"createdAt"`
	LastActivity     time.Time              `json:"lastActivity"`
}

// UserStateCache holds the snapshots and the idempotency guard state for
// every active session on this instance.
type UserStateCache struct {
	// Canonical snapshot by user
	Snapshots map[string]*Snapshot

	// Idempotency guard: userID -> activityKey -> credited. Warmed from the
	// durable store on session start, extended locally on each new grant.
	GrantedKeys map[string]map[string]bool

	// Grants applied locally but not yet confirmed by the durable store.
	PendingGrants map[string][]*rewards.Grant

	// Cache metadata
	LastLoaded time.Time
	Mu         sync.RWMutex // Exported for access
}

// DailyAggregate is a cached per-local-day summary. It carries the boundary
// it was computed against; once current time crosses NextBoundary the value
// is stale and must be recomputed, never served.
type DailyAggregate struct {
	UserID       string    `json:"userId"`
	Day          string    `json:"day"` // local calendar day, YYYY-MM-DD
	Timezone     string    `json:"timezone"`
	XPToday      int       `json:"xpToday"`
	LessonsToday int       `json:"lessonsToday"`
	StreakCount  int       `json:"streakCount"`
	NextBoundary time.Time `json:"nextBoundary"` // local midnight ending this day, in UTC
	ComputedAt   time.Time `json:"computedAt"`
}

// AggregateCache holds daily aggregates by user.
type AggregateCache struct {
	Aggregates map[string]*DailyAggregate

	LastLoaded time.Time
	Mu         sync.RWMutex
}
