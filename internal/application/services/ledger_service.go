package services

import (
	"context"
	"fmt"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/events"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/interfaces"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/messaging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/security"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// StreakTracker extends the streak for activity happening now. The ledger
// calls it after every successful grant so streaks advance with earning.
type StreakTracker interface {
	TouchStreak(ctx context.Context, userID string) (*rewards.StreakState, error)
}

// LedgerService is the single entry point for XP grants. The idempotency
// guard and the optimistic cache increment run synchronously inside the
// cache lock; only then does the grant go to the queue and the bus.
type LedgerService struct {
	cache       interfaces.Cache
	bus         messaging.Bus
	syncService *SyncService
	streaks     StreakTracker
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(cache interfaces.Cache, bus messaging.Bus, syncService *SyncService, streaks StreakTracker, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *LedgerService {
	return &LedgerService{
		cache:       cache,
		bus:         bus,
		syncService: syncService,
		streaks:     streaks,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// AwardRequest carries one reward attempt from a handler.
type AwardRequest struct {
	ActivityKey string            `json:"activityKey" form:"activityKey"`
	Amount      int               `json:"amount" form:"amount"`
	Source      string            `json:"source" form:"source"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ValidateAwardRequest validates an award request before any state change.
func (s *LedgerService) ValidateAwardRequest(req *AwardRequest) error {
	if err := rewards.ValidateActivityKey(req.ActivityKey); err != nil {
		return err
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", rewards.ErrValidation, req.Amount)
	}
	if req.Amount > config.MaxGrantAmount {
		return fmt.Errorf("%w: amount %d exceeds maximum %d", rewards.ErrValidation, req.Amount, config.MaxGrantAmount)
	}
	if req.Source == "" {
		return fmt.Errorf("%w: source is required", rewards.ErrValidation)
	}
	return nil
}

// AwardOnce grants XP for one earnable occurrence. A duplicate activity key
// returns Granted=false with the unchanged total; that outcome is expected,
// not an error. On a new key the cached total is incremented before any
// asynchronous work, the grant is queued for flush, and xp-updated fires.
func (s *LedgerService) AwardOnce(userID string, req *AwardRequest) (*rewards.AwardResult, error) {
	marker := s.perfTracker.StartOperation("ledger:award_once", userID)
	defer marker.Complete()

	if userID == "" {
		err := fmt.Errorf("%w: user id is required", rewards.ErrValidation)
		marker.SetError(err)
		return nil, err
	}
	if err := s.ValidateAwardRequest(req); err != nil {
		marker.SetError(err)
		return nil, err
	}
	if !s.cache.HasSession(userID) {
		marker.SetError(rewards.ErrNoSession)
		return nil, fmt.Errorf("%w: user %s", rewards.ErrNoSession, userID)
	}

	grant := &rewards.Grant{
		ID:          security.GenerateULID(),
		UserID:      userID,
		ActivityKey: req.ActivityKey,
		Amount:      req.Amount,
		Source:      req.Source,
		Metadata:    req.Metadata,
		SyncState:   rewards.SyncPending,
		CreatedAt:   time.Now().UTC(),
	}

	granted, total := s.cache.ApplyGrantIfNew(grant)
	if !granted {
		marker.AddMetadata("duplicate", true)
		s.logger.Ledger().Debug("Duplicate grant absorbed", "userId", userID, "activityKey", req.ActivityKey, "total", total)
		return &rewards.AwardResult{Granted: false, NewTotal: total}, nil
	}

	if err := s.syncService.EnqueueGrant(grant); err != nil {
		// The cache increment stands; reconciliation corrects any residue
		// if the durable write never lands.
		s.logger.LogError(logging.ChannelLedger, "enqueue_grant", err, userID, map[string]any{"activityKey": req.ActivityKey})
	}

	// The grant changes today's earnings, so any cached daily summary is
	// stale from this point on.
	s.cache.InvalidateDailyAggregate(userID)

	s.bus.Publish(events.New(events.XPUpdated, userID, events.XPPayload{
		ActivityKey: req.ActivityKey,
		Amount:      req.Amount,
		NewTotal:    total,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), config.SyncRequestTimeout)
	defer cancel()
	if _, err := s.streaks.TouchStreak(ctx, userID); err != nil {
		s.logger.LogError(logging.ChannelLedger, "touch_streak", err, userID, map[string]any{"activityKey": req.ActivityKey})
	}

	s.logger.Ledger().Info("XP granted", "userId", userID, "activityKey", req.ActivityKey, "amount", req.Amount, "newTotal", total)
	return &rewards.AwardResult{Granted: true, NewTotal: total}, nil
}

// ProgressRequest carries one lesson-step progress update.
type ProgressRequest struct {
	ModuleSlug string `json:"moduleSlug" form:"moduleSlug"`
	LessonSlug string `json:"lessonSlug" form:"lessonSlug"`
	StepID     string `json:"stepId" form:"stepId"`
	Completed  bool   `json:"completed" form:"completed"`
	Score      int    `json:"score" form:"score"`
}

// RecordProgress updates the cached progress row and queues the durable
// write. Redundant updates to the same step coalesce in the queue.
func (s *LedgerService) RecordProgress(userID string, req *ProgressRequest) (*rewards.ProgressRow, error) {
	marker := s.perfTracker.StartOperation("ledger:record_progress", userID)
	defer marker.Complete()

	if req.ModuleSlug == "" || req.LessonSlug == "" || req.StepID == "" {
		err := fmt.Errorf("%w: moduleSlug, lessonSlug and stepId are required", rewards.ErrValidation)
		marker.SetError(err)
		return nil, err
	}
	if !s.cache.HasSession(userID) {
		marker.SetError(rewards.ErrNoSession)
		return nil, fmt.Errorf("%w: user %s", rewards.ErrNoSession, userID)
	}

	row := &rewards.ProgressRow{
		UserID:     userID,
		ModuleSlug: req.ModuleSlug,
		LessonSlug: req.LessonSlug,
		StepID:     req.StepID,
		Completed:  req.Completed,
		Score:      req.Score,
	}
	if req.Completed {
		row.CompletedAt = time.Now().UTC()
	}

	s.cache.UpsertProgressRow(row)
	s.cache.InvalidateDailyAggregate(userID)

	if err := s.syncService.EnqueueProgress(row); err != nil {
		s.logger.LogError(logging.ChannelLedger, "enqueue_progress", err, userID, map[string]any{"resource": row.Key()})
	}

	s.bus.Publish(events.New(events.ProgressUpdated, userID, row))
	return row, nil
}

// SetDailyGoal stores a new per-user daily XP target and emits
// daily-goal-updated with the current earned figure.
func (s *LedgerService) SetDailyGoal(userID string, targetXP int) error {
	if targetXP <= 0 {
		return fmt.Errorf("%w: daily goal must be positive, got %d", rewards.ErrValidation, targetXP)
	}
	if !s.cache.HasSession(userID) {
		return fmt.Errorf("%w: user %s", rewards.ErrNoSession, userID)
	}

	s.cache.SetDailyGoal(userID, targetXP)
	if err := s.syncService.EnqueueDailyGoal(&rewards.DailyGoal{UserID: userID, TargetXP: targetXP}); err != nil {
		s.logger.LogError(logging.ChannelLedger, "enqueue_daily_goal", err, userID, nil)
	}

	snapshot, _ := s.cache.GetSnapshot(userID)
	s.bus.Publish(events.New(events.DailyGoalUpdated, userID, events.DailyGoalPayload{
		TargetXP: targetXP,
		EarnedXP: snapshot.DailyEarned,
	}))
	return nil
}
