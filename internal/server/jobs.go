package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// The jobs endpoints let the external scheduler trigger one pass without
// shell access. Runs are serialized by the distributed job lock, so a
// double-fired trigger degrades to a no-op.

func (s *Server) TriggerResetPeriod(c *gin.Context) {
	if err := s.scheduler.RunResetPeriod(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) TriggerThresholdCheck(c *gin.Context) {
	if err := s.scheduler.RunThresholdCheck(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
