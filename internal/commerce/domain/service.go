package domain

import (
	"context"
	"errors"
	"time"

	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
	"gorm.io/gorm"
)

// CheckoutRequest is one logical purchase attempt. The caller owns the
// idempotency key; retrying with the same key can never double-charge.
type CheckoutRequest struct {
	UserID         string                   `json:"-"`
	WorkspaceID    string                   `json:"workspace_id"`
	JobID          string                   `json:"job_id"`
	Items          []registrydomain.ItemRef `json:"items"`
	IdempotencyKey string                   `json:"idempotency_key"`
}

type ReceiptItemView struct {
	CBBID    string `json:"cbb_id"`
	Version  string `json:"version"`
	PriceUSD string `json:"price_usd"`
}

// ReceiptView is the API shape of a receipt. receipt_id is the caller-visible
// ULID, not the internal row id.
type ReceiptView struct {
	ReceiptID     string            `json:"receipt_id"`
	UserID        string            `json:"user_id"`
	WorkspaceID   string            `json:"workspace_id"`
	JobID         string            `json:"job_id"`
	Items         []ReceiptItemView `json:"items"`
	TotalPriceUSD string            `json:"total_price_usd"`
	Status        ReceiptStatus     `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	DeliveredAt   *time.Time        `json:"delivered_at"`
}

type Service interface {
	// Checkout debits the user's pool and persists a receipt as one atomic
	// unit. Replays with the same (user, idempotency key) return the original
	// receipt without re-debiting.
	Checkout(ctx context.Context, req CheckoutRequest) (*ReceiptView, error)

	GetReceipt(ctx context.Context, receiptID string) (*ReceiptView, error)
	GetPurchaseHistory(ctx context.Context, userID string, limit, offset int) ([]ReceiptView, error)

	// GetReceiptRecord exposes the stored row for delivery's ownership and
	// item checks.
	GetReceiptRecord(ctx context.Context, receiptID string) (*Receipt, error)

	// MarkDelivered stamps delivered_at once; later deliveries of the same
	// receipt leave the timestamp untouched.
	MarkDelivered(ctx context.Context, receiptID string, at time.Time) error
}

type Repository interface {
	// InsertIgnoreDuplicate inserts the receipt unless the
	// (user_id, idempotency_key) slot is already taken, reporting whether
	// this attempt won.
	InsertIgnoreDuplicate(ctx context.Context, db *gorm.DB, receipt *Receipt) (bool, error)

	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, userID, key string) (*Receipt, error)
	FindByNumber(ctx context.Context, db *gorm.DB, receiptNumber string) (*Receipt, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]Receipt, error)
	MarkDelivered(ctx context.Context, db *gorm.DB, receiptNumber string, at time.Time) error
}

var (
	ErrReceiptNotFound = errors.New("receipt_not_found")
	ErrInvalidRequest  = errors.New("invalid_checkout_request")
)
