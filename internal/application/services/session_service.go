package services

import (
	"context"
	"fmt"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/events"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/user"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/interfaces"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/types"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/messaging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// SessionService owns the session lifecycle: snapshot hydration from the
// durable store on sign-in, and teardown on sign-out.
type SessionService struct {
	learnerRepo  user.LearnerRepository
	grantRepo    rewards.GrantRepository
	progressRepo rewards.ProgressRepository
	cache        interfaces.Cache
	bus          messaging.Bus
	syncService  *SyncService
	logger       *logging.ChanneledLogger
	perfTracker  *performance.Tracker
}

// NewSessionService creates a new session service.
func NewSessionService(learnerRepo user.LearnerRepository, grantRepo rewards.GrantRepository, progressRepo rewards.ProgressRepository, cache interfaces.Cache, bus messaging.Bus, syncService *SyncService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SessionService {
	return &SessionService{
		learnerRepo:  learnerRepo,
		grantRepo:    grantRepo,
		progressRepo: progressRepo,
		cache:        cache,
		bus:          bus,
		syncService:  syncService,
		logger:       logger,
		perfTracker:  perfTracker,
	}
}

// Initialize hydrates the canonical snapshot for a signed-in learner from
// the durable store and announces the new session on the bus. Queue entries
// left over from a previous session flush once connectivity allows.
func (s *SessionService) Initialize(ctx context.Context, userID string) (*types.Snapshot, error) {
	marker := s.perfTracker.StartOperation("session:initialize", userID)
	defer marker.Complete()

	learner, err := s.learnerRepo.FindByID(ctx, userID)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load learner %s: %w", userID, err)
	}

	confirmedKeys, err := s.grantRepo.ConfirmedKeys(ctx, userID)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load granted keys for %s: %w", userID, err)
	}
	total, err := s.grantRepo.ConfirmedTotal(ctx, userID)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load total for %s: %w", userID, err)
	}
	rows, err := s.progressRepo.ProgressRows(ctx, userID)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load progress for %s: %w", userID, err)
	}
	streak, err := s.progressRepo.Streak(ctx, userID)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to load streak for %s: %w", userID, err)
	}

	goalXP := config.DefaultDailyGoalXP
	if goal, err := s.progressRepo.DailyGoal(ctx, userID); err == nil && goal != nil {
		goalXP = goal.TargetXP
	}

	// The snapshot timezone is normalized once here. Aggregate cache keys
	// compare it verbatim, so an unresolvable zone must not leak through.
	timezone := learner.Timezone
	if _, err := time.LoadLocation(timezone); err != nil || timezone == "" {
		if timezone != "" {
			s.logger.Auth().Warn("Unknown timezone on profile, using UTC", "userId", userID, "timezone", timezone)
		}
		timezone = "UTC"
	}

	snapshot := &types.Snapshot{
		UserID:       userID,
		TotalXP:      total,
		StreakCount:  streak.Count,
		DailyGoalXP:  goalXP,
		Timezone:     timezone,
		HasPremium:   learner.HasPremium,
		ProgressRows: rows,
	}
	s.cache.InitializeUser(snapshot, confirmedKeys)

	// Grants queued by a previous session but never flushed are re-applied
	// to the cache so the local total counts them while the flush catches up.
	if queued, err := s.syncService.QueuedGrants(ctx, userID); err == nil {
		for _, grant := range queued {
			s.cache.ApplyGrantIfNew(grant)
		}
	} else {
		s.logger.LogError(logging.ChannelSync, "session-queue-rehydrate", err, userID, nil)
	}

	s.bus.Publish(events.New(events.SessionChanged, userID, events.SessionPayload{State: &user.Profile{
		UserID:      learner.ID,
		DisplayName: learner.DisplayName,
		Email:       learner.Email,
		Timezone:    timezone,
	}}))

	s.syncService.FlushUser(ctx, userID)

	s.logger.Auth().Info("Session initialized",
		"userId", userID, "totalXp", total, "grantedKeys", len(confirmedKeys), "progressRows", len(rows), "streak", streak.Count)

	hydrated, _ := s.cache.GetSnapshot(userID)
	return &hydrated, nil
}

// Teardown clears the session on sign-out: scheduled retries are cancelled,
// the snapshot is dropped, session-changed fires with nil state, and every
// listener bound to the old session is detached. Durable queue entries are
// kept for the next session.
func (s *SessionService) Teardown(userID string) {
	s.syncService.CancelUser(userID)
	s.cache.ClearUser(userID)
	s.bus.Publish(events.New(events.SessionChanged, userID, events.SessionPayload{State: nil}))
	s.bus.DetachSession(userID)
	s.logger.Auth().Info("Session torn down", "userId", userID)
}
