package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	commercedomain "github.com/fabworks/cbbstore/internal/commerce/domain"
)

func (s *Server) Checkout(c *gin.Context) {
	var req commercedomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, commercedomain.ErrInvalidRequest)
		return
	}
	req.UserID = callerUserID(c)

	receipt, err := s.commerceSvc.Checkout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

func (s *Server) GetReceipt(c *gin.Context) {
	receipt, err := s.commerceSvc.GetReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Receipts are private to their buyer.
	if receipt.UserID != callerUserID(c) {
		AbortWithError(c, commercedomain.ErrReceiptNotFound)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

func (s *Server) ListReceipts(c *gin.Context) {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		AbortWithError(c, commercedomain.ErrInvalidRequest)
		return
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		AbortWithError(c, commercedomain.ErrInvalidRequest)
		return
	}

	receipts, err := s.commerceSvc.GetPurchaseHistory(c.Request.Context(), callerUserID(c), limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

func parseQueryInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
