// Package manager provides centralized cache operations by delegating to
// specialized stores.
package manager

import (
	"sync"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/interfaces"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/stores"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/types"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// Interface assertion to ensure Manager implements the full cache surface.
var _ interfaces.Cache = (*Manager)(nil)

// Manager delegates cache operations to the sessions and aggregates stores.
type Manager struct {
	Mu              sync.RWMutex
	LastAccessed    map[string]time.Time
	sessionsStore   *stores.SessionsStore
	aggregatesStore *stores.AggregatesStore
	logger          *logging.ChanneledLogger
}

// NewManager creates the cache manager and its stores.
func NewManager(logger *logging.ChanneledLogger) *Manager {
	if logger != nil {
		logger.Cache().Info("Initializing cache manager", "stores", []string{"sessions", "aggregates"})
	}

	return &Manager{
		LastAccessed:    make(map[string]time.Time),
		sessionsStore:   stores.NewSessionsStore(logger),
		aggregatesStore: stores.NewAggregatesStore(logger),
		logger:          logger,
	}
}

func (m *Manager) touch(userID string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.LastAccessed[userID] = time.Now().UTC()
}

// InitializeUser installs a hydrated snapshot at session start.
func (m *Manager) InitializeUser(snapshot *types.Snapshot, confirmedKeys map[string]bool) {
	m.sessionsStore.InitializeUser(snapshot, confirmedKeys)
	m.touch(snapshot.UserID)
}

// GetSnapshot returns a copy of the user's canonical snapshot.
func (m *Manager) GetSnapshot(userID string) (types.Snapshot, bool) {
	m.touch(userID)
	return m.sessionsStore.GetSnapshot(userID)
}

// HasSession reports whether the user has an active snapshot.
func (m *Manager) HasSession(userID string) bool {
	return m.sessionsStore.HasSession(userID)
}

// ApplyGrantIfNew runs the synchronous idempotency check and optimistic
// increment.
func (m *Manager) ApplyGrantIfNew(grant *rewards.Grant) (bool, int) {
	m.touch(grant.UserID)
	return m.sessionsStore.ApplyGrantIfNew(grant)
}

// ConfirmGrant marks a pending grant confirmed.
func (m *Manager) ConfirmGrant(userID, activityKey string) {
	m.sessionsStore.ConfirmGrant(userID, activityKey)
}

// PendingGrants returns copies of all still-pending grants for a user.
func (m *Manager) PendingGrants(userID string) []*rewards.Grant {
	return m.sessionsStore.PendingGrants(userID)
}

// PendingTotal sums the still-pending grant amounts for a user.
func (m *Manager) PendingTotal(userID string) int {
	return m.sessionsStore.PendingTotal(userID)
}

// SetTotal overwrites the cached total; reconciliation only.
func (m *Manager) SetTotal(userID string, total int, reconciledAt time.Time) bool {
	return m.sessionsStore.SetTotal(userID, total, reconciledAt)
}

// SetStreak updates the cached streak count.
func (m *Manager) SetStreak(userID string, count int) bool {
	return m.sessionsStore.SetStreak(userID, count)
}

// SetDailyEarned replaces the cached daily-earned figure.
func (m *Manager) SetDailyEarned(userID string, earned int) bool {
	return m.sessionsStore.SetDailyEarned(userID, earned)
}

// SetDailyGoal updates the cached daily goal target.
func (m *Manager) SetDailyGoal(userID string, targetXP int) bool {
	return m.sessionsStore.SetDailyGoal(userID, targetXP)
}

// SetTimezone records a timezone change on the snapshot.
func (m *Manager) SetTimezone(userID, timezone string) bool {
	m.aggregatesStore.Invalidate(userID)
	return m.sessionsStore.SetTimezone(userID, timezone)
}

// UpsertProgressRow replaces or appends one progress row on the snapshot.
func (m *Manager) UpsertProgressRow(row *rewards.ProgressRow) bool {
	m.touch(row.UserID)
	return m.sessionsStore.UpsertProgressRow(row)
}

// ClearUser removes all cached state for a user on sign-out.
func (m *Manager) ClearUser(userID string) {
	m.sessionsStore.ClearUser(userID)
	m.aggregatesStore.Invalidate(userID)

	m.Mu.Lock()
	delete(m.LastAccessed, userID)
	m.Mu.Unlock()
}

// ActiveUsers lists users with a live snapshot.
func (m *Manager) ActiveUsers() []string {
	return m.sessionsStore.ActiveUsers()
}

// GetDailyAggregate returns a still-valid cached daily aggregate, if any.
func (m *Manager) GetDailyAggregate(userID, timezone string, now time.Time) (*types.DailyAggregate, bool) {
	return m.aggregatesStore.Get(userID, timezone, now)
}

// SetDailyAggregate stores a freshly computed daily aggregate.
func (m *Manager) SetDailyAggregate(aggregate *types.DailyAggregate) {
	m.aggregatesStore.Set(aggregate)
}

// InvalidateDailyAggregate drops the cached aggregate for a user.
func (m *Manager) InvalidateDailyAggregate(userID string) {
	m.aggregatesStore.Invalidate(userID)
}

// EvictExpired runs one eviction pass across both stores.
func (m *Manager) EvictExpired() int {
	evicted := m.sessionsStore.EvictStale(config.UserSnapshotTTL)
	evicted += m.aggregatesStore.EvictExpired(time.Now().UTC())
	return evicted
}

// Stats reports cache sizes for monitoring.
func (m *Manager) Stats() map[string]any {
	m.Mu.RLock()
	tracked := len(m.LastAccessed)
	m.Mu.RUnlock()

	return map[string]any{
		"snapshots":  m.sessionsStore.Count(),
		"aggregates": m.aggregatesStore.Count(),
		"tracked":    tracked,
	}
}
