package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) DeliverReceipt(c *gin.Context) {
	resp, err := s.deliverySvc.Deliver(c.Request.Context(), c.Param("id"), callerUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
