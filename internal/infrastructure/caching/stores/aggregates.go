package stores

import (
	"sync"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/types"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
)

// AggregatesStore caches per-local-day summaries. A cached value is only
// served while current time sits before the boundary it was computed for and
// the timezone it was computed in still matches.
type AggregatesStore struct {
	cache  *types.AggregateCache
	mu     sync.RWMutex
	logger *logging.ChanneledLogger
}

// NewAggregatesStore creates a new daily aggregate cache store
func NewAggregatesStore(logger *logging.ChanneledLogger) *AggregatesStore {
	if logger != nil {
		logger.Cache().Info("Initializing aggregates cache store")
	}
	return &AggregatesStore{
		cache: &types.AggregateCache{
			Aggregates: make(map[string]*types.DailyAggregate),
			LastLoaded: time.Now().UTC(),
		},
		logger: logger,
	}
}

// Get returns the cached aggregate for a user if it is still valid at `now`
// for the given timezone. A value past its boundary or computed in another
// timezone is treated as a miss and dropped.
func (as *AggregatesStore) Get(userID, timezone string, now time.Time) (*types.DailyAggregate, bool) {
	start := time.Now()
	as.mu.Lock()
	defer as.mu.Unlock()

	aggregate, exists := as.cache.Aggregates[userID]
	if !exists {
		return nil, false
	}

	if !now.Before(aggregate.NextBoundary) || aggregate.Timezone != timezone {
		delete(as.cache.Aggregates, userID)
		if as.logger != nil {
			as.logger.LogCacheOperation("get_daily_aggregate", userID, false, time.Since(start), userID)
		}
		return nil, false
	}

	copied := *aggregate
	if as.logger != nil {
		as.logger.LogCacheOperation("get_daily_aggregate", userID, true, time.Since(start), userID)
	}
	return &copied, true
}

// Set stores a freshly computed aggregate.
func (as *AggregatesStore) Set(aggregate *types.DailyAggregate) {
	as.mu.Lock()
	defer as.mu.Unlock()

	copied := *aggregate
	copied.ComputedAt = time.Now().UTC()
	as.cache.Aggregates[aggregate.UserID] = &copied
}

// Invalidate drops the cached aggregate for a user.
func (as *AggregatesStore) Invalidate(userID string) {
	as.mu.Lock()
	defer as.mu.Unlock()
	delete(as.cache.Aggregates, userID)
}

// EvictExpired drops aggregates whose boundary has passed. Returns the
// number evicted.
func (as *AggregatesStore) EvictExpired(now time.Time) int {
	as.mu.Lock()
	defer as.mu.Unlock()

	evicted := 0
	for userID, aggregate := range as.cache.Aggregates {
		if !now.Before(aggregate.NextBoundary) {
			delete(as.cache.Aggregates, userID)
			evicted++
		}
	}
	return evicted
}

// Count returns the number of cached aggregates.
func (as *AggregatesStore) Count() int {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return len(as.cache.Aggregates)
}
