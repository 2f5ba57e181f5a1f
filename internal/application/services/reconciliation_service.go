package services

import (
	"context"
	"fmt"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/interfaces"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// ReconciliationService audits the cached XP total against the durable
// store. The expected total is the sum of remotely confirmed grants plus
// grants still pending locally; anything else is drift and gets corrected.
type ReconciliationService struct {
	grantRepo   rewards.GrantRepository
	cache       interfaces.Cache
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewReconciliationService creates a new reconciliation service.
func NewReconciliationService(grantRepo rewards.GrantRepository, cache interfaces.Cache, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *ReconciliationService {
	return &ReconciliationService{
		grantRepo:   grantRepo,
		cache:       cache,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// ReconcileResult is the diagnostic outcome of one audit.
type ReconcileResult struct {
	UserID      string `json:"userId"`
	CachedTotal int    `json:"cachedTotal"`
	RemoteTotal int    `json:"remoteTotal"`
	Difference  int    `json:"difference"`
	IsValid     bool   `json:"isValid"`
}

// Reconcile recomputes the expected total for one user and corrects the
// cache on mismatch. RemoteTotal in the result is the recomputed expected
// value (confirmed remote plus pending local), the value the cache is set
// to when drift is found.
func (s *ReconciliationService) Reconcile(ctx context.Context, userID string) (*ReconcileResult, error) {
	marker := s.perfTracker.StartOperation("reconcile:audit", userID)
	defer marker.Complete()

	snapshot, exists := s.cache.GetSnapshot(userID)
	if !exists {
		err := fmt.Errorf("%w: user %s", rewards.ErrNoSession, userID)
		marker.SetError(err)
		return nil, err
	}

	confirmed, err := s.grantRepo.ConfirmedTotal(ctx, userID)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to read confirmed total for %s: %w", userID, err)
	}

	expected := confirmed + s.cache.PendingTotal(userID)
	difference := snapshot.TotalXP - expected

	result := &ReconcileResult{
		UserID:      userID,
		CachedTotal: snapshot.TotalXP,
		RemoteTotal: expected,
		Difference:  difference,
		IsValid:     difference == 0,
	}

	now := time.Now().UTC()
	if result.IsValid {
		s.cache.SetTotal(userID, snapshot.TotalXP, now)
		s.logger.Reconcile().Debug("Audit clean", "userId", userID, "total", snapshot.TotalXP)
		return result, nil
	}

	s.cache.SetTotal(userID, expected, now)
	s.logger.LogDrift(userID, snapshot.TotalXP, expected, difference)
	marker.AddMetadata("drift", difference)
	return result, nil
}

// ReconcileActive audits every user with a live snapshot.
func (s *ReconciliationService) ReconcileActive(ctx context.Context) {
	for _, userID := range s.cache.ActiveUsers() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Reconcile(ctx, userID); err != nil {
			s.logger.LogError(logging.ChannelReconcile, "reconcile_user", err, userID, nil)
		}
	}
}

// Start runs the periodic audit loop until the context is cancelled.
func (s *ReconciliationService) Start(ctx context.Context) {
	ticker := time.NewTicker(config.ReconcileInterval)
	defer ticker.Stop()

	s.logger.Reconcile().Info("Reconciliation loop started", "interval", config.ReconcileInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Reconcile().Info("Reconciliation loop stopping")
			return
		case <-ticker.C:
			s.ReconcileActive(ctx)
		}
	}
}
