package services

import (
	"context"
	"fmt"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/events"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/interfaces"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/types"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/messaging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
)

const dayLayout = "2006-01-02"

// AggregateService derives "today" views from absolute timestamps and the
// user's IANA timezone. Boundaries are the user's local midnights, never
// the server clock or UTC days. The clock is injectable for tests.
type AggregateService struct {
	grantRepo    rewards.GrantRepository
	progressRepo rewards.ProgressRepository
	cache        interfaces.Cache
	bus          messaging.Bus
	syncService  *SyncService
	logger       *logging.ChanneledLogger
	perfTracker  *performance.Tracker
	clock        func() time.Time
}

// NewAggregateService creates an aggregate service on the wall clock.
func NewAggregateService(grantRepo rewards.GrantRepository, progressRepo rewards.ProgressRepository, cache interfaces.Cache, bus messaging.Bus, syncService *SyncService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AggregateService {
	return &AggregateService{
		grantRepo:    grantRepo,
		progressRepo: progressRepo,
		cache:        cache,
		bus:          bus,
		syncService:  syncService,
		logger:       logger,
		perfTracker:  perfTracker,
		clock:        time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *AggregateService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// localDay maps an absolute instant to the user's local calendar day and
// the UTC instant of the local midnight that ends it.
func localDay(at time.Time, loc *time.Location) (string, time.Time) {
	local := at.In(loc)
	day := local.Format(dayLayout)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return day, midnight.AddDate(0, 0, 1).UTC()
}

// DailySummary computes (or serves from cache) the user's aggregate for the
// current local day. A cached value is never served once local midnight has
// passed, and a timezone change forces a recompute.
func (s *AggregateService) DailySummary(ctx context.Context, userID string) (*types.DailyAggregate, error) {
	marker := s.perfTracker.StartOperation("aggregate:daily_summary", userID)
	defer marker.Complete()

	snapshot, exists := s.cache.GetSnapshot(userID)
	if !exists {
		err := fmt.Errorf("%w: user %s", rewards.ErrNoSession, userID)
		marker.SetError(err)
		return nil, err
	}

	now := s.clock()
	if cached, ok := s.cache.GetDailyAggregate(userID, snapshot.Timezone, now); ok {
		marker.AddCacheHit()
		return cached, nil
	}
	marker.AddCacheMiss()

	aggregate, err := s.compute(ctx, userID, snapshot.Timezone, now)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	s.cache.SetDailyAggregate(aggregate)
	s.cache.SetDailyEarned(userID, aggregate.XPToday)
	return aggregate, nil
}

// compute rebuilds the aggregate from raw grants, progress rows, and the
// persisted streak state.
func (s *AggregateService) compute(ctx context.Context, userID, timezone string, now time.Time) (*types.DailyAggregate, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		s.logger.Aggregate().Warn("Unknown timezone, falling back to UTC", "userId", userID, "timezone", timezone)
		loc = time.UTC
	}

	day, nextBoundary := localDay(now, loc)
	dayStart := nextBoundary.AddDate(0, 0, -1)

	grants, err := s.grantRepo.GrantsSince(ctx, userID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to read grants for %s: %w", userID, err)
	}
	xpToday := 0
	for _, g := range grants {
		if gDay, _ := localDay(g.CreatedAt, loc); gDay == day {
			xpToday += g.Amount
		}
	}

	// Pending grants live only in the cache until their flush lands.
	for _, g := range s.cache.PendingGrants(userID) {
		if gDay, _ := localDay(g.CreatedAt, loc); gDay == day {
			xpToday += g.Amount
		}
	}

	rows, err := s.progressRepo.ProgressRows(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress for %s: %w", userID, err)
	}
	lessons := map[string]bool{}
	for _, row := range rows {
		if !row.Completed || row.CompletedAt.IsZero() {
			continue
		}
		if rDay, _ := localDay(row.CompletedAt, loc); rDay == day {
			lessons[row.ModuleSlug+":"+row.LessonSlug] = true
		}
	}

	streak, err := s.progressRepo.Streak(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read streak for %s: %w", userID, err)
	}
	streakCount := streak.Count
	if !streakAlive(streak, day, loc, now) {
		streakCount = 0
	}

	aggregate := &types.DailyAggregate{
		UserID:       userID,
		Day:          day,
		Timezone:     loc.String(),
		XPToday:      xpToday,
		LessonsToday: len(lessons),
		StreakCount:  streakCount,
		NextBoundary: nextBoundary,
		ComputedAt:   now.UTC(),
	}

	s.logger.Aggregate().Debug("Daily aggregate computed",
		"userId", userID, "day", day, "xpToday", xpToday, "lessonsToday", aggregate.LessonsToday, "streak", streakCount)
	return aggregate, nil
}

// streakAlive reports whether the persisted streak still counts: it does
// while the last active local day is today or yesterday in the user's
// current timezone.
func streakAlive(streak *rewards.StreakState, today string, loc *time.Location, now time.Time) bool {
	if streak.Count == 0 || streak.LastActiveDay == "" {
		return false
	}
	if streak.LastActiveDay == today {
		return true
	}
	yesterday, _ := localDay(now.AddDate(0, 0, -1), loc)
	return streak.LastActiveDay == yesterday
}

// TouchStreak extends or restarts the streak for activity happening now.
// Same local day is a no-op; consecutive days extend; a gap restarts at 1.
// The updated state goes to the cache, the queue, and the bus.
func (s *AggregateService) TouchStreak(ctx context.Context, userID string) (*rewards.StreakState, error) {
	snapshot, exists := s.cache.GetSnapshot(userID)
	if !exists {
		return nil, fmt.Errorf("%w: user %s", rewards.ErrNoSession, userID)
	}

	loc, err := time.LoadLocation(snapshot.Timezone)
	if err != nil {
		loc = time.UTC
	}

	now := s.clock()
	today, _ := localDay(now, loc)

	streak, err := s.progressRepo.Streak(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read streak for %s: %w", userID, err)
	}

	if streak.LastActiveDay == today && streak.Count > 0 {
		return streak, nil
	}

	yesterday, _ := localDay(now.AddDate(0, 0, -1), loc)
	updated := &rewards.StreakState{
		Count:         1,
		LastActiveDay: today,
		Timezone:      loc.String(),
	}
	if streak.LastActiveDay == yesterday && streak.Count > 0 {
		updated.Count = streak.Count + 1
	}

	s.cache.SetStreak(userID, updated.Count)
	s.cache.InvalidateDailyAggregate(userID)
	if err := s.syncService.EnqueueStreak(userID, updated); err != nil {
		s.logger.LogError(logging.ChannelAggregate, "enqueue_streak", err, userID, nil)
	}

	s.bus.Publish(events.New(events.StreakUpdated, userID, events.StreakPayload{Count: updated.Count}))
	s.logger.Aggregate().Info("Streak updated", "userId", userID, "count", updated.Count, "day", today)
	return updated, nil
}

// ChangeTimezone updates the user's IANA timezone everywhere a boundary
// depends on it. Cached aggregates for the old zone are dropped rather
// than trusted.
func (s *AggregateService) ChangeTimezone(userID, timezone string) error {
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", rewards.ErrValidation, timezone)
	}
	if !s.cache.SetTimezone(userID, timezone) {
		return fmt.Errorf("%w: user %s", rewards.ErrNoSession, userID)
	}
	if err := s.syncService.EnqueueTimezone(userID, timezone); err != nil {
		s.logger.LogError(logging.ChannelAggregate, "enqueue_timezone", err, userID, nil)
	}
	s.logger.Aggregate().Info("Timezone changed", "userId", userID, "timezone", timezone)
	return nil
}
