package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CheckoutRateLimit throttles checkout per user. Limiter failures fail open:
// checkout is idempotent, so letting a burst through is cheaper than refusing
// paying users because Redis blinked.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.checkoutLimiter.Enabled() {
			c.Next()
			return
		}

		allowed, err := s.checkoutLimiter.AllowUser(c.Request.Context(), callerUserID(c))
		if err != nil {
			s.log.Warn("checkout rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", "1")
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}
