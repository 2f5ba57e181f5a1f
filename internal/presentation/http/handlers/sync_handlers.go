package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LinguaQuest/linguaquest-go/internal/application/services"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/internal/presentation/http/middleware"
)

// SyncHandlers contains the degraded-sync indicator handlers
type SyncHandlers struct {
	syncService           *services.SyncService
	reconciliationService *services.ReconciliationService
	logger                *logging.ChanneledLogger
	perfTracker           *performance.Tracker
}

// NewSyncHandlers creates sync handlers with injected dependencies
func NewSyncHandlers(syncService *services.SyncService, reconciliationService *services.ReconciliationService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SyncHandlers {
	return &SyncHandlers{
		syncService:           syncService,
		reconciliationService: reconciliationService,
		logger:                logger,
		perfTracker:           perfTracker,
	}
}

// GetSyncStatus handles GET /api/v1/sync/status - queue health for the
// degraded-sync indicator
func (h *SyncHandlers) GetSyncStatus(c *gin.Context) {
	userID := middleware.UserID(c)
	status, err := h.syncService.Status(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// PostSyncRetry handles POST /api/v1/sync/retry - the manual retry trigger
// for entries that exhausted their backoff
func (h *SyncHandlers) PostSyncRetry(c *gin.Context) {
	userID := middleware.UserID(c)
	marker := h.perfTracker.StartOperation("post_sync_retry_request", userID)
	defer marker.Complete()

	requeued, err := h.syncService.RetryFailed(c.Request.Context(), userID)
	if err != nil {
		marker.SetError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"requeued": requeued})
}

// PutConnectivity handles PUT /api/v1/sync/connectivity - the online/offline
// signal feeding the flush loop
func (h *SyncHandlers) PutConnectivity(c *gin.Context) {
	var req struct {
		Online bool `json:"online"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	h.syncService.SetOnline(c.Request.Context(), req.Online)
	c.JSON(http.StatusOK, gin.H{"online": req.Online})
}

// PostReconcile handles POST /api/v1/reconcile - an on-demand audit of the
// cached total against the durable store
func (h *SyncHandlers) PostReconcile(c *gin.Context) {
	userID := middleware.UserID(c)
	marker := h.perfTracker.StartOperation("post_reconcile_request", userID)
	defer marker.Complete()

	result, err := h.reconciliationService.Reconcile(c.Request.Context(), userID)
	if err != nil {
		marker.SetError(err)
		respondServiceError(c, err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, result)
}
