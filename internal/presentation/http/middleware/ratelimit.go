package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/ratelimit"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// RateLimit guards an endpoint with the fixed-window limiter. The window
// is keyed by authenticated identity. allowIPFallback decides what happens
// to anonymous requests: endpoints reachable without credentials (register,
// login, public reads) key them by client address, everything else rejects.
func RateLimit(limiter *ratelimit.Limiter, logger *logging.ChanneledLogger, allowIPFallback bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := UserID(c)
		if identifier == "" {
			if !allowIPFallback {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
				return
			}
			identifier = "ip:" + c.ClientIP()
		}

		result := limiter.Check(identifier, config.PublicReadLimit, config.PublicReadWindow)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := time.Until(result.ResetAt)
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			logger.RateLimit().Info("Request rejected", "identifier", identifier, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "request quota exceeded",
				"retryAfter": retryAfter.Round(time.Second).String(),
			})
			return
		}

		c.Next()
	}
}
