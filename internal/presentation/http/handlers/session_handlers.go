package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LinguaQuest/linguaquest-go/internal/application/services"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/performance"
	"github.com/LinguaQuest/linguaquest-go/internal/presentation/http/middleware"
)

// SessionHandlers contains the account and session lifecycle handlers
type SessionHandlers struct {
	authService      *services.AuthService
	sessionService   *services.SessionService
	aggregateService *services.AggregateService
	logger           *logging.ChanneledLogger
	perfTracker      *performance.Tracker
}

// NewSessionHandlers creates session handlers with injected dependencies
func NewSessionHandlers(authService *services.AuthService, sessionService *services.SessionService, aggregateService *services.AggregateService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SessionHandlers {
	return &SessionHandlers{
		authService:      authService,
		sessionService:   sessionService,
		aggregateService: aggregateService,
		logger:           logger,
		perfTracker:      perfTracker,
	}
}

// PostRegister handles POST /api/v1/auth/register - account creation
func (h *SessionHandlers) PostRegister(c *gin.Context) {
	start := time.Now()
	marker := h.perfTracker.StartOperation("post_register_request", "")
	defer marker.Complete()

	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		marker.SetError(err)
		respondServiceError(c, err)
		return
	}

	if _, err := h.sessionService.Initialize(c.Request.Context(), result.Profile.UserID); err != nil {
		marker.SetError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initialize session"})
		return
	}

	marker.SetSuccess(true)
	h.logger.Auth().Info("Account registered", "userId", result.Profile.UserID, "duration", time.Since(start))
	c.JSON(http.StatusCreated, result)
}

// PostLogin handles POST /api/v1/auth/login - credential sign-in
func (h *SessionHandlers) PostLogin(c *gin.Context) {
	marker := h.perfTracker.StartOperation("post_login_request", "")
	defer marker.Complete()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		marker.SetError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !result.Success {
		c.JSON(http.StatusUnauthorized, gin.H{"error": result.Error})
		return
	}

	if _, err := h.sessionService.Initialize(c.Request.Context(), result.Profile.UserID); err != nil {
		marker.SetError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initialize session"})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, result)
}

// PostRefresh handles POST /api/v1/auth/refresh - the single
// refresh-and-retry allowed on an expired session token. The route skips
// the auth middleware because the presented token may already be past its
// expiry; a dedicated decode bounds how stale it is allowed to be.
func (h *SessionHandlers) PostRefresh(c *gin.Context) {
	profile, err := h.authService.DecodeRefreshToken(middleware.BearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired or missing"})
		return
	}
	result, err := h.authService.RefreshToken(c.Request.Context(), profile.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PostLogout handles POST /api/v1/auth/logout - session teardown
func (h *SessionHandlers) PostLogout(c *gin.Context) {
	userID := middleware.UserID(c)
	h.sessionService.Teardown(userID)
	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}

// PutTimezone handles PUT /api/v1/auth/timezone - IANA timezone change,
// recomputing every boundary that depended on the old zone
func (h *SessionHandlers) PutTimezone(c *gin.Context) {
	userID := middleware.UserID(c)

	var req struct {
		Timezone string `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.aggregateService.ChangeTimezone(userID, req.Timezone); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timezone": req.Timezone})
}

// GetProfile handles GET /api/v1/auth/profile - decoded session identity
func (h *SessionHandlers) GetProfile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profile": middleware.Profile(c)})
}
