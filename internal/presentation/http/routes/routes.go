// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LinguaQuest/linguaquest-go/internal/application/container"
	"github.com/LinguaQuest/linguaquest-go/internal/presentation/http/handlers"
	"github.com/LinguaQuest/linguaquest-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	sessionHandlers := handlers.NewSessionHandlers(container.AuthService, container.SessionService, container.AggregateService, container.Logger, container.PerfTracker)
	rewardHandlers := handlers.NewRewardHandlers(container.LedgerService, container.Logger, container.PerfTracker)
	dashboardHandlers := handlers.NewDashboardHandlers(container.DashboardService, container.Logger, container.PerfTracker)
	syncHandlers := handlers.NewSyncHandlers(container.SyncService, container.ReconciliationService, container.Logger, container.PerfTracker)
	systemHandlers := handlers.NewSystemHandlers(container.Monitor, container.Logger)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	// Account endpoints; register/login are rate-limited by client address
	// since no identity exists yet
	auth := api.Group("/auth")
	{
		auth.POST("/register", middleware.RateLimit(container.RateLimiter, container.Logger, true), sessionHandlers.PostRegister)
		auth.POST("/login", middleware.RateLimit(container.RateLimiter, container.Logger, true), sessionHandlers.PostLogin)

		// Refresh validates its own token so recently-expired sessions can
		// still renew; the auth middleware would 401 them first.
		auth.POST("/refresh", sessionHandlers.PostRefresh)

		authed := auth.Group("")
		authed.Use(middleware.RequireAuth(container.AuthService))
		{
			authed.POST("/logout", sessionHandlers.PostLogout)
			authed.GET("/profile", sessionHandlers.GetProfile)
			authed.PUT("/timezone", sessionHandlers.PutTimezone)
		}
	}

	// Public read endpoints, rate-limited per identity with address fallback
	reads := api.Group("")
	reads.Use(middleware.OptionalAuth(container.AuthService), middleware.RateLimit(container.RateLimiter, container.Logger, true))
	{
		reads.GET("/leaderboard", dashboardHandlers.GetLeaderboard)
	}

	// Signed-in endpoints
	private := api.Group("")
	private.Use(middleware.RequireAuth(container.AuthService))
	{
		private.POST("/rewards", rewardHandlers.PostReward)
		private.POST("/progress", rewardHandlers.PostProgress)
		private.PUT("/goal", rewardHandlers.PutDailyGoal)

		private.GET("/dashboard", middleware.RateLimit(container.RateLimiter, container.Logger, false), dashboardHandlers.GetDashboard)

		private.GET("/sync/status", syncHandlers.GetSyncStatus)
		private.POST("/sync/retry", syncHandlers.PostSyncRetry)
		private.PUT("/sync/connectivity", syncHandlers.PutConnectivity)
		private.POST("/reconcile", syncHandlers.PostReconcile)

		private.GET("/system/health", systemHandlers.GetSystemHealth)
	}

	return r
}
