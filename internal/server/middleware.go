package server

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerRequestID      = "X-Request-ID"
	headerUserID         = "X-User-ID"
	headerSchedulerToken = "X-Scheduler-Token"

	ctxUserID = "user_id"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, id)
		c.Next()
	}
}

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// UserRequired trusts the authenticating gateway in front of this service to
// have populated X-User-ID.
func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(headerUserID))
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// SchedulerTokenRequired gates the collaborator trigger endpoints behind the
// shared token. An unset token disables the endpoints entirely.
func (s *Server) SchedulerTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := s.cfg.SchedulerToken
		if expected == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		got := strings.TrimSpace(c.GetHeader(headerSchedulerToken))
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func callerUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
