// Package stores provides concrete cache store implementations
package stores

import (
	"sync"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/types"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
)

// SessionsStore implements user snapshot caching and the synchronous
// idempotency guard. All award decisions happen under one lock, before any
// asynchronous work, so two rapid calls with the same key cannot both pass.
type SessionsStore struct {
	cache  *types.UserStateCache
	mu     sync.RWMutex
	logger *logging.ChanneledLogger
}

// NewSessionsStore creates a new sessions cache store
func NewSessionsStore(logger *logging.ChanneledLogger) *SessionsStore {
	if logger != nil {
		logger.Cache().Info("Initializing sessions cache store")
	}
	return &SessionsStore{
		cache: &types.UserStateCache{
			Snapshots:     make(map[string]*types.Snapshot),
			GrantedKeys:   make(map[string]map[string]bool),
			PendingGrants: make(map[string][]*rewards.Grant),
			LastLoaded:    time.Now().UTC(),
		},
		logger: logger,
	}
}

// InitializeUser installs the hydrated snapshot for a user at session start
// and warms the idempotency guard with the keys the durable store confirms.
func (ss *SessionsStore) InitializeUser(snapshot *types.Snapshot, confirmedKeys map[string]bool) {
	start := time.Now()
	ss.mu.Lock()
	defer ss.mu.Unlock()

	snapshot.CreatedAt = time.Now().UTC()
	snapshot.LastActivity = snapshot.CreatedAt
	ss.cache.Snapshots[snapshot.UserID] = snapshot

	keys := make(map[string]bool, len(confirmedKeys))
	for key := range confirmedKeys {
		keys[key] = true
	}
	ss.cache.GrantedKeys[snapshot.UserID] = keys
	ss.cache.PendingGrants[snapshot.UserID] = nil

	if ss.logger != nil {
		ss.logger.Cache().Info("User snapshot initialized",
			"userId", snapshot.UserID, "knownKeys", len(keys), "duration", time.Since(start))
	}
}

// GetSnapshot returns a copy of the user's snapshot. The copy keeps callers
// from mutating cache-owned state directly.
func (ss *SessionsStore) GetSnapshot(userID string) (types.Snapshot, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	snapshot, exists := ss.cache.Snapshots[userID]
	if !exists {
		return types.Snapshot{}, false
	}

	copied := *snapshot
	copied.ProgressRows = make([]*rewards.ProgressRow, len(snapshot.ProgressRows))
	for i, row := range snapshot.ProgressRows {
		rowCopy := *row
		copied.ProgressRows[i] = &rowCopy
	}
	return copied, true
}

// HasSession reports whether a user currently holds an active snapshot.
func (ss *SessionsStore) HasSession(userID string) bool {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	_, exists := ss.cache.Snapshots[userID]
	return exists
}

// ApplyGrantIfNew is the idempotency guard and the optimistic increment in
// one synchronous step. It returns granted=false with the unchanged total if
// the key is already known, locally or from the durable store.
func (ss *SessionsStore) ApplyGrantIfNew(grant *rewards.Grant) (bool, int) {
	start := time.Now()
	ss.mu.Lock()
	defer ss.mu.Unlock()

	snapshot, exists := ss.cache.Snapshots[grant.UserID]
	if !exists {
		return false, 0
	}

	keys := ss.cache.GrantedKeys[grant.UserID]
	if keys == nil {
		keys = make(map[string]bool)
		ss.cache.GrantedKeys[grant.UserID] = keys
	}

	if keys[grant.ActivityKey] {
		if ss.logger != nil {
			ss.logger.LogCacheOperation("apply_grant", grant.ActivityKey, true, time.Since(start), grant.UserID)
		}
		return false, snapshot.TotalXP
	}

	keys[grant.ActivityKey] = true
	snapshot.TotalXP += grant.Amount
	snapshot.DailyEarned += grant.Amount
	snapshot.LastActivity = time.Now().UTC()
	ss.cache.PendingGrants[grant.UserID] = append(ss.cache.PendingGrants[grant.UserID], grant)

	if ss.logger != nil {
		ss.logger.LogCacheOperation("apply_grant", grant.ActivityKey, false, time.Since(start), grant.UserID)
	}
	return true, snapshot.TotalXP
}

// ConfirmGrant moves a pending grant to confirmed once the durable store has
// acknowledged it (or reported it as a benign duplicate).
func (ss *SessionsStore) ConfirmGrant(userID, activityKey string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	pending := ss.cache.PendingGrants[userID]
	for i, grant := range pending {
		if grant.ActivityKey == activityKey {
			grant.SyncState = rewards.SyncConfirmed
			ss.cache.PendingGrants[userID] = append(pending[:i], pending[i+1:]...)
			return
		}
	}
}

// PendingGrants returns the grants applied locally but not yet confirmed.
func (ss *SessionsStore) PendingGrants(userID string) []*rewards.Grant {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	pending := ss.cache.PendingGrants[userID]
	out := make([]*rewards.Grant, len(pending))
	for i, grant := range pending {
		grantCopy := *grant
		out[i] = &grantCopy
	}
	return out
}

// PendingTotal sums the amounts of all still-pending local grants.
func (ss *SessionsStore) PendingTotal(userID string) int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	total := 0
	for _, grant := range ss.cache.PendingGrants[userID] {
		total += grant.Amount
	}
	return total
}

// SetTotal overwrites the cached total. Reconciliation uses this to correct
// drift; nothing else should.
func (ss *SessionsStore) SetTotal(userID string, total int, reconciledAt time.Time) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	snapshot, exists := ss.cache.Snapshots[userID]
	if !exists {
		return false
	}
	snapshot.TotalXP = total
	snapshot.LastReconciledAt = reconciledAt
	return true
}

// SetStreak updates the cached streak count.
func (ss *SessionsStore) SetStreak(userID string, count int) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	snapshot, exists := ss.cache.Snapshots[userID]
	if !exists {
		return false
	}
	snapshot.StreakCount = count
	snapshot.LastActivity = time.Now().UTC()
	return true
}

// SetDailyEarned replaces the cached daily-earned figure, e.g. after the
// aggregator recomputes across a midnight boundary.
func (ss *SessionsStore) SetDailyEarned(userID string, earned int) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	snapshot, exists := ss.cache.Snapshots[userID]
	if !exists {
		return false
	}
	snapshot.DailyEarned = earned
	return true
}

// SetDailyGoal updates the cached daily goal target.
func (ss *SessionsStore) SetDailyGoal(userID string, targetXP int) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	snapshot, exists := ss.cache.Snapshots[userID]
	if !exists {
		return false
	}
	snapshot.DailyGoalXP = targetXP
	return true
}

// SetTimezone records a timezone change on the snapshot.
func (ss *SessionsStore) SetTimezone(userID, timezone string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	snapshot, exists := ss.cache.Snapshots[userID]
	if !exists {
		return false
	}
	snapshot.Timezone = timezone
	return true
}

// UpsertProgressRow replaces or appends one progress row on the snapshot.
func (ss *SessionsStore) UpsertProgressRow(row *rewards.ProgressRow) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	snapshot, exists := ss.cache.Snapshots[row.UserID]
	if !exists {
		return false
	}

	rowCopy := *row
	for i, existing := range snapshot.ProgressRows {
		if existing.Key() == row.Key() {
			snapshot.ProgressRows[i] = &rowCopy
			snapshot.LastActivity = time.Now().UTC()
			return true
		}
	}
	snapshot.ProgressRows = append(snapshot.ProgressRows, &rowCopy)
	snapshot.LastActivity = time.Now().UTC()
	return true
}

// ClearUser removes all cached state for a user on sign-out.
func (ss *SessionsStore) ClearUser(userID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	delete(ss.cache.Snapshots, userID)
	delete(ss.cache.GrantedKeys, userID)
	delete(ss.cache.PendingGrants, userID)

	if ss.logger != nil {
		ss.logger.Cache().Info("User snapshot cleared", "userId", userID)
	}
}

// ActiveUsers lists users with a live snapshot.
func (ss *SessionsStore) ActiveUsers() []string {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	users := make([]string, 0, len(ss.cache.Snapshots))
	for userID := range ss.cache.Snapshots {
		users = append(users, userID)
	}
	return users
}

// EvictStale drops snapshots idle beyond the TTL, skipping users that still
// carry unconfirmed grants. Returns the number evicted.
func (ss *SessionsStore) EvictStale(ttl time.Duration) int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	cutoff := time.Now().UTC().Add(-ttl)
	evicted := 0
	for userID, snapshot := range ss.cache.Snapshots {
		if snapshot.LastActivity.After(cutoff) {
			continue
		}
		if len(ss.cache.PendingGrants[userID]) > 0 {
			continue
		}
		delete(ss.cache.Snapshots, userID)
		delete(ss.cache.GrantedKeys, userID)
		delete(ss.cache.PendingGrants, userID)
		evicted++
	}

	if evicted > 0 && ss.logger != nil {
		ss.logger.Cache().Info("Evicted stale user snapshots", "count", evicted)
	}
	return evicted
}

// Count returns the number of live snapshots.
func (ss *SessionsStore) Count() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.cache.Snapshots)
}
