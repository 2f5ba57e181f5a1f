package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/LinguaQuest/linguaquest-go/internal/application/services"
	"github.com/LinguaQuest/linguaquest-go/internal/domain/user"
)

const (
	// ContextUserID is the gin context key carrying the authenticated user id.
	ContextUserID = "userID"
	// ContextProfile is the gin context key carrying the decoded profile.
	ContextProfile = "profile"
)

// RequireAuth validates the bearer token and stores the learner identity on
// the request context. Requests without a valid session get 401.
func RequireAuth(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		profile, err := authService.DecodeSessionToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired or missing"})
			return
		}

		c.Set(ContextUserID, profile.UserID)
		c.Set(ContextProfile, profile)
		c.Next()
	}
}

// OptionalAuth decodes the bearer token when present but lets anonymous
// requests through. Used on public read endpoints so the rate limiter can
// key on identity when it has one.
func OptionalAuth(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := BearerToken(c); token != "" {
			if profile, err := authService.DecodeSessionToken(token); err == nil {
				c.Set(ContextUserID, profile.UserID)
				c.Set(ContextProfile, profile)
			}
		}
		c.Next()
	}
}

// UserID returns the authenticated user id from the request context.
func UserID(c *gin.Context) string {
	if id, exists := c.Get(ContextUserID); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// Profile returns the decoded profile from the request context, or nil.
func Profile(c *gin.Context) *user.Profile {
	if p, exists := c.Get(ContextProfile); exists {
		if profile, ok := p.(*user.Profile); ok {
			return profile
		}
	}
	return nil
}

// BearerToken extracts the bearer token from the Authorization header, or
// returns the empty string.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
