// Package domain defines how a receipt is exchanged for time-limited access
// to the purchased artifacts.
package domain

import (
	"context"
	"errors"
	"time"
)

// AccessRef is one signed, expiring download reference.
type AccessRef struct {
	CBBID     string    `json:"cbb_id"`
	Version   string    `json:"version"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type DeliveryResponse struct {
	ReceiptID   string      `json:"receipt_id"`
	Items       []AccessRef `json:"items"`
	DeliveredAt time.Time   `json:"delivered_at"`
}

// Signer mints time-limited access references against the external object
// store. Implementations must bound their own network calls.
type Signer interface {
	SignedURL(ctx context.Context, objectKey string) (string, time.Time, error)
}

type Service interface {
	// Deliver converts a receipt into signed access references. Repeat calls
	// re-mint URLs but never change the receipt beyond the first
	// delivered_at stamp. Balances are never touched here.
	Deliver(ctx context.Context, receiptID, callerUserID string) (*DeliveryResponse, error)
}

var (
	ErrForbidden       = errors.New("forbidden")
	ErrExternalService = errors.New("external_service_error")
)
