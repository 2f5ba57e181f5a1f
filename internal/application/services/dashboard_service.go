package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/interfaces"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// DashboardService assembles the sanitized read views served on the public
// endpoints: the leaderboard and the per-user daily dashboard.
type DashboardService struct {
	progressRepo rewards.ProgressRepository
	cache        interfaces.Cache
	aggregates   *AggregateService
	logger       *logging.ChanneledLogger
	perfTracker  *performance.Tracker

	leaderboard    []rewards.LeaderboardRow
	leaderboardAge time.Time
	mu             sync.Mutex
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(progressRepo rewards.ProgressRepository, cache interfaces.Cache, aggregates *AggregateService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *DashboardService {
	return &DashboardService{
		progressRepo: progressRepo,
		cache:        cache,
		aggregates:   aggregates,
		logger:       logger,
		perfTracker:  perfTracker,
	}
}

// Leaderboard returns the top learners by confirmed XP. Rows carry only
// display names and totals. Results are cached briefly because every
// visitor sees the same list.
func (s *DashboardService) Leaderboard(ctx context.Context, limit int) ([]rewards.LeaderboardRow, error) {
	marker := s.perfTracker.StartOperation("dashboard:leaderboard", "")
	defer marker.Complete()

	if limit <= 0 || limit > config.LeaderboardDefaultLimit {
		limit = config.LeaderboardDefaultLimit
	}

	s.mu.Lock()
	if s.leaderboard != nil && time.Since(s.leaderboardAge) < config.LeaderboardCacheTTL && len(s.leaderboard) >= limit {
		rows := s.leaderboard[:limit]
		s.mu.Unlock()
		marker.AddCacheHit()
		return rows, nil
	}
	s.mu.Unlock()
	marker.AddCacheMiss()

	rows, err := s.progressRepo.TotalsByUser(ctx, config.LeaderboardDefaultLimit)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	s.mu.Lock()
	s.leaderboard = rows
	s.leaderboardAge = time.Now()
	s.mu.Unlock()

	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

// DashboardView is the per-user daily summary served to the UI.
type DashboardView struct {
	UserID       string `json:"userId"`
	Day          string `json:"day"`
	Timezone     string `json:"timezone"`
	TotalXP      int    `json:"totalXp"`
	XPToday      int    `json:"xpToday"`
	LessonsToday int    `json:"lessonsToday"`
	StreakCount  int    `json:"streakCount"`
	DailyGoalXP  int    `json:"dailyGoalXp"`
	GoalMet      bool   `json:"goalMet"`
	HasPremium   bool   `json:"hasPremium"`
}

// Dashboard builds the daily view for one signed-in user from the snapshot
// and the timezone-aware aggregate.
func (s *DashboardService) Dashboard(ctx context.Context, userID string) (*DashboardView, error) {
	snapshot, exists := s.cache.GetSnapshot(userID)
	if !exists {
		return nil, fmt.Errorf("%w: user %s", rewards.ErrNoSession, userID)
	}

	aggregate, err := s.aggregates.DailySummary(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &DashboardView{
		UserID:       userID,
		Day:          aggregate.Day,
		Timezone:     aggregate.Timezone,
		TotalXP:      snapshot.TotalXP,
		XPToday:      aggregate.XPToday,
		LessonsToday: aggregate.LessonsToday,
		StreakCount:  aggregate.StreakCount,
		DailyGoalXP:  snapshot.DailyGoalXP,
		GoalMet:      snapshot.DailyGoalXP > 0 && aggregate.XPToday >= snapshot.DailyGoalXP,
		HasPremium:   snapshot.HasPremium,
	}, nil
}
