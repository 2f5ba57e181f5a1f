package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LinguaQuest/linguaquest-go/internal/application/services"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/internal/presentation/http/middleware"
)

// DashboardHandlers contains the public read-view handlers
type DashboardHandlers struct {
	dashboardService *services.DashboardService
	logger           *logging.ChanneledLogger
	perfTracker      *performance.Tracker
}

// NewDashboardHandlers creates dashboard handlers with injected dependencies
func NewDashboardHandlers(dashboardService *services.DashboardService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *DashboardHandlers {
	return &DashboardHandlers{
		dashboardService: dashboardService,
		logger:           logger,
		perfTracker:      perfTracker,
	}
}

// GetLeaderboard handles GET /api/v1/leaderboard - top learners by XP
func (h *DashboardHandlers) GetLeaderboard(c *gin.Context) {
	marker := h.perfTracker.StartOperation("get_leaderboard_request", middleware.UserID(c))
	defer marker.Complete()

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	rows, err := h.dashboardService.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		marker.SetError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
}

// GetDashboard handles GET /api/v1/dashboard - the per-user daily summary
func (h *DashboardHandlers) GetDashboard(c *gin.Context) {
	userID := middleware.UserID(c)
	start := time.Now()
	marker := h.perfTracker.StartOperation("get_dashboard_request", userID)
	defer marker.Complete()

	view, err := h.dashboardService.Dashboard(c.Request.Context(), userID)
	if err != nil {
		marker.SetError(err)
		respondServiceError(c, err)
		return
	}

	marker.SetSuccess(true)
	h.logger.Aggregate().Debug("Dashboard served", "userId", userID, "day", view.Day, "duration", time.Since(start))
	c.JSON(http.StatusOK, view)
}
