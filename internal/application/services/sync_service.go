package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/syncqueue"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/user"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/interfaces"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/security"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// SyncService owns the durable outbound queue. It appends ordered entries
// for every mutating operation and flushes them to the durable store in
// strict per-user sequence order, one in-flight write per user. Flushing
// pauses while the connectivity signal reports offline.
type SyncService struct {
	queueRepo    syncqueue.Repository
	grantRepo    rewards.GrantRepository
	progressRepo rewards.ProgressRepository
	learnerRepo  user.LearnerRepository
	cache        interfaces.Cache
	logger       *logging.ChanneledLogger
	perfTracker  *performance.Tracker

	online    bool
	baseCtx   context.Context
	flushing  map[string]bool
	cancelled map[string]bool
	mu        sync.Mutex
	wg        sync.WaitGroup
}

// NewSyncService creates a new sync service. The service starts online.
func NewSyncService(queueRepo syncqueue.Repository, grantRepo rewards.GrantRepository, progressRepo rewards.ProgressRepository, learnerRepo user.LearnerRepository, cache interfaces.Cache, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SyncService {
	return &SyncService{
		queueRepo:    queueRepo,
		grantRepo:    grantRepo,
		progressRepo: progressRepo,
		learnerRepo:  learnerRepo,
		cache:        cache,
		logger:       logger,
		perfTracker:  perfTracker,
		online:       true,
		baseCtx:      context.Background(),
		flushing:     make(map[string]bool),
		cancelled:    make(map[string]bool),
	}
}

// SetOnline feeds the connectivity signal. Going online kicks a flush for
// every user with queued work; going offline lets in-flight writes finish
// and pauses everything after them.
func (s *SyncService) SetOnline(ctx context.Context, online bool) {
	s.mu.Lock()
	changed := s.online != online
	s.online = online
	s.mu.Unlock()

	if !changed {
		return
	}
	if online {
		s.logger.Sync().Info("Connectivity restored, resuming flush")
		s.FlushAll(ctx)
	} else {
		s.logger.Sync().Info("Connectivity lost, pausing flush")
	}
}

// IsOnline reports the current connectivity signal.
func (s *SyncService) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// EnqueueGrant appends a reward-grant write. Grants never coalesce; each
// activity key is its own durable row.
func (s *SyncService) EnqueueGrant(grant *rewards.Grant) error {
	payload, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal grant %s: %w", grant.ActivityKey, err)
	}
	return s.append(grant.UserID, syncqueue.OpRewardGrant, grant.ActivityKey, payload, false)
}

// EnqueueProgress appends a progress write, coalescing with any still-queued
// write for the same lesson step.
func (s *SyncService) EnqueueProgress(row *rewards.ProgressRow) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal progress row %s: %w", row.Key(), err)
	}
	return s.append(row.UserID, syncqueue.OpProgressUpsert, row.Key(), payload, true)
}

// EnqueueStreak appends a streak write, coalescing queued updates.
func (s *SyncService) EnqueueStreak(userID string, streak *rewards.StreakState) error {
	payload, err := json.Marshal(streak)
	if err != nil {
		return fmt.Errorf("failed to marshal streak for %s: %w", userID, err)
	}
	return s.append(userID, syncqueue.OpStreakUpsert, "streak", payload, true)
}

// EnqueueTimezone appends a profile timezone write, coalescing queued
// updates so rapid edits produce one outbound write.
func (s *SyncService) EnqueueTimezone(userID, timezone string) error {
	payload, err := json.Marshal(map[string]string{"timezone": timezone})
	if err != nil {
		return fmt.Errorf("failed to marshal timezone for %s: %w", userID, err)
	}
	return s.append(userID, syncqueue.OpTimezoneUpdate, "timezone", payload, true)
}

// EnqueueDailyGoal appends a daily-goal write, coalescing queued updates.
func (s *SyncService) EnqueueDailyGoal(goal *rewards.DailyGoal) error {
	payload, err := json.Marshal(goal)
	if err != nil {
		return fmt.Errorf("failed to marshal daily goal for %s: %w", goal.UserID, err)
	}
	return s.append(goal.UserID, syncqueue.OpDailyGoal, "daily-goal", payload, true)
}

func (s *SyncService) append(userID string, op syncqueue.OperationType, resourceKey string, payload []byte, coalesce bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.SyncRequestTimeout)
	defer cancel()

	// Sequence allocation and append run under the service lock so that
	// per-user sequence numbers stay monotonic under concurrent callers.
	s.mu.Lock()
	defer s.mu.Unlock()

	if coalesce {
		existing, err := s.queueRepo.FindQueued(ctx, userID, op, resourceKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := s.queueRepo.ReplacePayload(ctx, existing.ID, payload); err == nil {
				s.logger.Sync().Debug("Queued write coalesced", "userId", userID, "operation", string(op), "resource", resourceKey, "sequence", existing.Sequence)
				return nil
			}
			// The entry went in-flight between lookup and replace; fall
			// through and append a fresh entry after it.
		}
	}

	maxSeq, err := s.queueRepo.MaxSequence(ctx, userID)
	if err != nil {
		return err
	}

	entry := &syncqueue.Entry{
		ID:            security.GenerateULID(),
		UserID:        userID,
		Sequence:      maxSeq + 1,
		OperationType: op,
		ResourceKey:   resourceKey,
		Payload:       payload,
		Status:        syncqueue.StatusQueued,
		NextRetryAt:   time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.queueRepo.Append(ctx, entry); err != nil {
		return err
	}

	s.logger.Sync().Debug("Entry queued", "userId", userID, "operation", string(op), "resource", resourceKey, "sequence", entry.Sequence)
	return nil
}

// Start runs the periodic flush loop until the context is cancelled.
func (s *SyncService) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if recovered, err := s.RecoverStranded(ctx); err != nil {
		s.logger.LogError(logging.ChannelSync, "recover_stranded", err, "", nil)
	} else if recovered > 0 {
		s.logger.Sync().Warn("Requeued stranded in-flight entries", "count", recovered)
	}

	ticker := time.NewTicker(config.SyncFlushInterval)
	defer ticker.Stop()

	s.logger.Sync().Info("Sync flush loop started", "interval", config.SyncFlushInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Sync().Info("Sync flush loop stopping")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.FlushAll(ctx)
		}
	}
}

// FlushAll starts a flush for every user with queued work. Users flush
// independently; a user already flushing is skipped.
func (s *SyncService) FlushAll(ctx context.Context) {
	if !s.IsOnline() {
		return
	}

	users, err := s.queueRepo.PendingUsers(ctx)
	if err != nil {
		s.logger.LogError(logging.ChannelSync, "pending_users", err, "", nil)
		return
	}

	for _, userID := range users {
		s.flushUserAsync(ctx, userID)
	}
}

// FlushUser kicks an asynchronous flush for one user, used after enqueue
// when the caller wants the write on its way immediately.
func (s *SyncService) FlushUser(ctx context.Context, userID string) {
	if s.IsOnline() {
		s.flushUserAsync(ctx, userID)
	}
}

func (s *SyncService) flushUserAsync(_ context.Context, userID string) {
	s.mu.Lock()
	if s.flushing[userID] {
		s.mu.Unlock()
		return
	}
	s.flushing[userID] = true
	delete(s.cancelled, userID)
	// The drain runs on the service's own context, not the caller's: a
	// handler's request context is cancelled the moment the response is
	// written, and a flush must not die with it.
	drainCtx := s.baseCtx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.flushing, userID)
			s.mu.Unlock()
		}()
		s.drainUser(drainCtx, userID)
	}()
}

// RecoverStranded requeues entries a previous process left in flight.
func (s *SyncService) RecoverStranded(ctx context.Context) (int, error) {
	return s.queueRepo.RequeueInFlight(ctx)
}

// drainUser processes the user's queue strictly in sequence order, one
// entry in flight at a time, until nothing is ready or flushing pauses.
func (s *SyncService) drainUser(ctx context.Context, userID string) {
	marker := s.perfTracker.StartOperation("sync:flush_user", userID)
	defer marker.Complete()

	processed := 0
	for {
		if ctx.Err() != nil || !s.IsOnline() || s.isCancelled(userID) {
			break
		}

		entry, err := s.queueRepo.NextForUser(ctx, userID)
		if err != nil {
			s.logger.LogError(logging.ChannelSync, "next_for_user", err, userID, nil)
			break
		}
		if entry == nil {
			break
		}

		if err := s.queueRepo.MarkInFlight(ctx, entry.ID); err != nil {
			s.logger.LogError(logging.ChannelSync, "mark_in_flight", err, userID, nil)
			break
		}

		if err := s.execute(ctx, entry); err != nil {
			s.handleFailure(ctx, entry, err)
			break
		}

		if err := s.queueRepo.Delete(ctx, entry.ID); err != nil {
			s.logger.LogError(logging.ChannelSync, "delete_entry", err, userID, nil)
			break
		}
		processed++
	}

	marker.AddMetadata("processed", processed)
	if processed > 0 {
		s.logger.Sync().Info("Flush complete", "userId", userID, "processed", processed)
	}
}

// execute performs one durable write. A uniqueness conflict on a grant is
// the authoritative duplicate signal and confirms the local entry without
// any further increment.
func (s *SyncService) execute(ctx context.Context, entry *syncqueue.Entry) error {
	opCtx, cancel := context.WithTimeout(ctx, config.SyncRequestTimeout)
	defer cancel()

	switch entry.OperationType {
	case syncqueue.OpRewardGrant:
		var grant rewards.Grant
		if err := json.Unmarshal(entry.Payload, &grant); err != nil {
			return fmt.Errorf("corrupt grant payload in entry %s: %w", entry.ID, err)
		}
		err := s.grantRepo.Insert(opCtx, &grant)
		if err == nil || isDuplicate(err) {
			s.cache.ConfirmGrant(entry.UserID, grant.ActivityKey)
			if isDuplicate(err) {
				s.logger.Sync().Info("Grant already known to store, confirmed locally", "userId", entry.UserID, "activityKey", grant.ActivityKey)
			}
			return nil
		}
		return err

	case syncqueue.OpProgressUpsert:
		var row rewards.ProgressRow
		if err := json.Unmarshal(entry.Payload, &row); err != nil {
			return fmt.Errorf("corrupt progress payload in entry %s: %w", entry.ID, err)
		}
		return s.progressRepo.UpsertProgress(opCtx, &row)

	case syncqueue.OpStreakUpsert:
		var streak rewards.StreakState
		if err := json.Unmarshal(entry.Payload, &streak); err != nil {
			return fmt.Errorf("corrupt streak payload in entry %s: %w", entry.ID, err)
		}
		return s.progressRepo.UpsertStreak(opCtx, entry.UserID, &streak)

	case syncqueue.OpDailyGoal:
		var goal rewards.DailyGoal
		if err := json.Unmarshal(entry.Payload, &goal); err != nil {
			return fmt.Errorf("corrupt daily goal payload in entry %s: %w", entry.ID, err)
		}
		return s.progressRepo.UpsertDailyGoal(opCtx, &goal)

	case syncqueue.OpTimezoneUpdate:
		var fields map[string]string
		if err := json.Unmarshal(entry.Payload, &fields); err != nil {
			return fmt.Errorf("corrupt timezone payload in entry %s: %w", entry.ID, err)
		}
		return s.learnerRepo.UpdateTimezone(opCtx, entry.UserID, fields["timezone"])

	default:
		return fmt.Errorf("unknown operation type %q in entry %s", entry.OperationType, entry.ID)
	}
}

// handleFailure schedules a retry with exponential backoff and jitter, or
// marks the entry failed once attempts are exhausted. Failed entries stay
// visible through Status and the manual retry trigger.
func (s *SyncService) handleFailure(ctx context.Context, entry *syncqueue.Entry, cause error) {
	attempts := entry.Attempts + 1

	if attempts >= config.SyncMaxAttempts {
		if err := s.queueRepo.MarkFailed(ctx, entry.ID); err != nil {
			s.logger.LogError(logging.ChannelSync, "mark_failed", err, entry.UserID, nil)
			return
		}
		s.logger.Sync().Error("Entry exhausted retries, marked failed",
			"userId", entry.UserID, "operation", string(entry.OperationType), "sequence", entry.Sequence, "attempts", attempts, "cause", cause.Error())
		return
	}

	delay := retryDelay(attempts)
	nextRetry := time.Now().UTC().Add(delay)
	if err := s.queueRepo.MarkQueuedForRetry(ctx, entry.ID, attempts, nextRetry); err != nil {
		s.logger.LogError(logging.ChannelSync, "mark_queued_for_retry", err, entry.UserID, nil)
		return
	}

	s.logger.Sync().Warn("Flush failed, retry scheduled",
		"userId", entry.UserID, "operation", string(entry.OperationType), "sequence", entry.Sequence,
		"attempt", attempts, "nextRetryIn", delay, "cause", fmt.Errorf("%w: %v", rewards.ErrSyncFailure, cause).Error())
}

// retryDelay computes the jittered backoff delay for the given attempt
// count by stepping a fresh exponential policy forward.
func retryDelay(attempts int) time.Duration {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = config.SyncInitialInterval
	policy.MaxInterval = config.SyncMaxInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.2
	policy.MaxElapsedTime = 0
	policy.Reset()

	delay := policy.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = policy.NextBackOff()
	}
	return delay
}

func isDuplicate(err error) bool {
	return err != nil && errors.Is(err, rewards.ErrDuplicateGrant)
}

// Status reports the degraded-sync indicator for one user.
type SyncStatus struct {
	UserID   string             `json:"userId"`
	Online   bool               `json:"online"`
	Pending  int                `json:"pending"`
	Failed   []*syncqueue.Entry `json:"failed,omitempty"`
	Degraded bool               `json:"degraded"`
}

// QueuedGrants decodes the reward grants still waiting in the user's queue,
// in sequence order. Session hydration re-applies them to the cache so the
// local total counts work from a previous session that never flushed.
func (s *SyncService) QueuedGrants(ctx context.Context, userID string) ([]*rewards.Grant, error) {
	pending, err := s.queueRepo.PendingByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var grants []*rewards.Grant
	for _, entry := range pending {
		if entry.OperationType != syncqueue.OpRewardGrant {
			continue
		}
		var grant rewards.Grant
		if err := json.Unmarshal(entry.Payload, &grant); err != nil {
			s.logger.LogError(logging.ChannelSync, "queued-grant-decode", err, userID,
				map[string]any{"sequence": entry.Sequence})
			continue
		}
		grants = append(grants, &grant)
	}
	return grants, nil
}

// Status summarizes the user's queue health for the sync indicator.
func (s *SyncService) Status(ctx context.Context, userID string) (*SyncStatus, error) {
	pending, err := s.queueRepo.PendingByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	failed, err := s.queueRepo.FailedEntries(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &SyncStatus{
		UserID:   userID,
		Online:   s.IsOnline(),
		Pending:  len(pending),
		Failed:   failed,
		Degraded: len(failed) > 0,
	}, nil
}

// RetryFailed is the manual retry trigger: failed entries go back to queued
// with a clean attempt count and a flush is kicked immediately.
func (s *SyncService) RetryFailed(ctx context.Context, userID string) (int, error) {
	requeued, err := s.queueRepo.RequeueFailed(ctx, userID)
	if err != nil {
		return 0, err
	}
	if requeued > 0 {
		s.logger.Sync().Info("Failed entries requeued by manual retry", "userId", userID, "count", requeued)
		s.FlushUser(ctx, userID)
	}
	return requeued, nil
}

// CancelUser abandons scheduled work for a user on sign-out. Durable queue
// entries remain for the next session; only this session's timers and any
// not-yet-started flush are dropped.
func (s *SyncService) CancelUser(userID string) {
	s.mu.Lock()
	s.cancelled[userID] = true
	s.mu.Unlock()
}

func (s *SyncService) isCancelled(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[userID]
}

// Wait blocks until all in-flight flush goroutines finish, used at shutdown.
func (s *SyncService) Wait() {
	s.wg.Wait()
}
