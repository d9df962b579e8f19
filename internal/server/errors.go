package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	commercedomain "github.com/fabworks/cbbstore/internal/commerce/domain"
	deliverydomain "github.com/fabworks/cbbstore/internal/delivery/domain"
	pooldomain "github.com/fabworks/cbbstore/internal/pool/domain"
	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
	"github.com/fabworks/cbbstore/pkg/money"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}

	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}

	case errors.Is(err, pooldomain.ErrInsufficientBalance):
		// 402 so callers can distinguish "top up" from plain bad requests.
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_balance",
			Message: "insufficient balance",
		}

	case errors.Is(err, deliverydomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}

	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}

	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}

	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, pooldomain.ErrAccountingUnavailable),
		errors.Is(err, deliverydomain.ErrExternalService):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, registrydomain.ErrInvalidRequirement),
		errors.Is(err, commercedomain.ErrInvalidRequest),
		errors.Is(err, pooldomain.ErrInvalidAmount),
		errors.Is(err, pooldomain.ErrUnknownPlan),
		errors.Is(err, money.ErrInvalidAmount):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, registrydomain.ErrCandidateNotFound),
		errors.Is(err, commercedomain.ErrReceiptNotFound),
		errors.Is(err, pooldomain.ErrPoolNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
