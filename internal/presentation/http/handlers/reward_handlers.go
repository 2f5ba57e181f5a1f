// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LinguaQuest/linguaquest-go/internal/application/services"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/rewards"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/internal/presentation/http/middleware"
)

// RewardHandlers contains the reward and progress mutation handlers
type RewardHandlers struct {
	ledgerService *services.LedgerService
	logger        *logging.ChanneledLogger
	perfTracker   *performance.Tracker
}

// NewRewardHandlers creates reward handlers with injected dependencies
func NewRewardHandlers(ledgerService *services.LedgerService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *RewardHandlers {
	return &RewardHandlers{
		ledgerService: ledgerService,
		logger:        logger,
		perfTracker:   perfTracker,
	}
}

// respondServiceError maps domain sentinel errors to sanitized JSON responses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rewards.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, rewards.ErrNoSession):
		c.JSON(http.StatusConflict, gin.H{"error": "no active session; sign in first"})
	case errors.Is(err, rewards.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
	case errors.Is(err, rewards.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "request quota exceeded"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// PostReward handles POST /api/v1/rewards - the idempotent XP grant
func (h *RewardHandlers) PostReward(c *gin.Context) {
	userID := middleware.UserID(c)
	start := time.Now()
	marker := h.perfTracker.StartOperation("post_reward_request", userID)
	defer marker.Complete()

	var req services.AwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.ledgerService.AwardOnce(userID, &req)
	if err != nil {
		marker.SetError(err)
		respondServiceError(c, err)
		return
	}

	marker.SetSuccess(true)
	h.logger.Ledger().Debug("Reward request handled",
		"userId", userID, "activityKey", req.ActivityKey, "granted", result.Granted, "duration", time.Since(start))

	c.JSON(http.StatusOK, result)
}

// PostProgress handles POST /api/v1/progress - lesson step progress upsert
func (h *RewardHandlers) PostProgress(c *gin.Context) {
	userID := middleware.UserID(c)
	marker := h.perfTracker.StartOperation("post_progress_request", userID)
	defer marker.Complete()

	var req services.ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	row, err := h.ledgerService.RecordProgress(userID, &req)
	if err != nil {
		marker.SetError(err)
		respondServiceError(c, err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, row)
}

// PutDailyGoal handles PUT /api/v1/goal - daily XP target configuration
func (h *RewardHandlers) PutDailyGoal(c *gin.Context) {
	userID := middleware.UserID(c)

	var req struct {
		TargetXP int `json:"targetXp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.ledgerService.SetDailyGoal(userID, req.TargetXP); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"targetXp": req.TargetXP})
}
