package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/monitoring"
)

// SystemHandlers exposes operational health views
type SystemHandlers struct {
	monitor *monitoring.SystemMonitor
	logger  *logging.ChanneledLogger
}

// NewSystemHandlers creates system handlers with injected dependencies
func NewSystemHandlers(monitor *monitoring.SystemMonitor, logger *logging.ChanneledLogger) *SystemHandlers {
	return &SystemHandlers{monitor: monitor, logger: logger}
}

// GetSystemHealth handles GET /api/v1/system/health - a consolidated view
// of cache, queue, and request-path health
func (h *SystemHandlers) GetSystemHealth(c *gin.Context) {
	snapshot, err := h.monitor.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.LogError(logging.ChannelPerf, "system_health", err, "", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
