package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pooldomain "github.com/fabworks/cbbstore/internal/pool/domain"
	"github.com/fabworks/cbbstore/pkg/money"
)

func (s *Server) GetPoolStatus(c *gin.Context) {
	status, err := s.poolSvc.GetPoolStatus(c.Request.Context(), callerUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) ListLedgerEntries(c *gin.Context) {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		AbortWithError(c, pooldomain.ErrInvalidAmount)
		return
	}

	entries, err := s.poolSvc.ListLedgerEntries(c.Request.Context(), callerUserID(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type setOnDemandLimitRequest struct {
	// LimitUSD is a decimal string; null removes the cap.
	LimitUSD *string `json:"limit_usd"`
}

func (s *Server) SetOnDemandLimit(c *gin.Context) {
	var req setOnDemandLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, pooldomain.ErrInvalidAmount)
		return
	}

	var limitCents *int64
	if req.LimitUSD != nil {
		cents, err := money.ParseUSD(*req.LimitUSD)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		limitCents = &cents
	}

	status, err := s.poolSvc.SetOnDemandLimit(c.Request.Context(), callerUserID(c), limitCents)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

type allocateCreditsRequest struct {
	UserID   string `json:"user_id"`
	PlanName string `json:"plan_name"`
}

// AllocateCredits is the billing-event collaborator's entry point, invoked on
// subscription activation and renewal.
func (s *Server) AllocateCredits(c *gin.Context) {
	var req allocateCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, pooldomain.ErrInvalidAmount)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		AbortWithError(c, pooldomain.ErrInvalidAmount)
		return
	}

	status, err := s.poolSvc.AllocateSubscriptionCredits(c.Request.Context(), req.UserID, req.PlanName)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
