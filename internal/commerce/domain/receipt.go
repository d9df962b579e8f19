// Package domain contains the purchase records produced by checkout.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ReceiptStatus marks the terminal outcome of a checkout attempt.
type ReceiptStatus string

const (
	ReceiptStatusCompleted ReceiptStatus = "completed"
	ReceiptStatusFailed    ReceiptStatus = "failed"
)

// ReceiptItem snapshots one purchased (cbb_id, version) with the price that
// was charged. Catalog prices can change later; the receipt keeps the truth.
type ReceiptItem struct {
	CBBID      string `json:"cbb_id"`
	Version    string `json:"version"`
	PriceCents int64  `json:"price_cents"`
}

// Receipt is the durable record of a checkout. The unique index on
// (user_id, idempotency_key) is what makes checkout replay-safe: the
// database, not application code, decides which concurrent attempt wins.
type Receipt struct {
	ID             snowflake.ID                     `gorm:"primaryKey"`
	ReceiptNumber  string                           `gorm:"type:text;not null;uniqueIndex"`
	UserID         string                           `gorm:"type:text;not null;index;uniqueIndex:ux_receipts_user_idem,priority:1"`
	WorkspaceID    string                           `gorm:"type:text;not null"`
	JobID          string                           `gorm:"type:text;not null"`
	IdempotencyKey string                           `gorm:"type:text;not null;uniqueIndex:ux_receipts_user_idem,priority:2"`
	Items          datatypes.JSONSlice[ReceiptItem] `gorm:"type:jsonb;not null"`
	TotalCents     int64                            `gorm:"not null"`
	Status         ReceiptStatus                    `gorm:"type:text;not null"`
	CreatedAt      time.Time                        `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeliveredAt    *time.Time                       `gorm:""`
}

// TableName sets the database table name.
func (Receipt) TableName() string { return "receipts" }
