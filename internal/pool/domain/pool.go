// Package domain contains the per-user balance models: the dual-bucket USD
// pool and its append-only ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// USDPool is a user's balance: a prepaid monthly allowance bucket plus a
// metered on-demand bucket for overage. Exactly one row per user. The
// version column makes every balance write an explicit compare-and-swap.
type USDPool struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	UserID             string       `gorm:"type:text;not null;uniqueIndex"`
	PlanName           string       `gorm:"type:text;not null"`
	IncludedCents      int64        `gorm:"not null"`
	IncludedTotalCents int64        `gorm:"not null"`
	OnDemandCents      int64        `gorm:"not null;default:0"`
	OnDemandLimitCents *int64       `gorm:""`
	LastResetAt        time.Time    `gorm:"not null"`
	NextResetAt        time.Time    `gorm:"not null;index"`
	Version            int64        `gorm:"not null;default:0"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (USDPool) TableName() string { return "usd_pools" }

// OnDemandHeadroom returns how much overage capacity remains, or a negative
// sentinel when the pool is uncapped.
func (p *USDPool) OnDemandHeadroom() int64 {
	if p.OnDemandLimitCents == nil {
		return -1
	}
	headroom := *p.OnDemandLimitCents - p.OnDemandCents
	if headroom < 0 {
		return 0
	}
	return headroom
}

// CanCover reports whether a charge of amount cents fits within the included
// balance plus, when permitted, the remaining on-demand capacity.
func (p *USDPool) CanCover(amount int64, onDemandAllowed bool) bool {
	if amount <= p.IncludedCents {
		return true
	}
	if !onDemandAllowed {
		return false
	}
	remainder := amount - p.IncludedCents
	if p.OnDemandLimitCents == nil {
		return true
	}
	return p.OnDemandCents+remainder <= *p.OnDemandLimitCents
}

// EntryType classifies ledger entries.
type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
	EntryTypeReset  EntryType = "reset"
)

// LedgerEntry is an immutable audit record of one balance mutation. Rows are
// append-only; corrections happen through new entries, never updates.
type LedgerEntry struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	UserID              string       `gorm:"type:text;not null;index"`
	Type                EntryType    `gorm:"type:text;not null"`
	AmountCents         int64        `gorm:"not null"`
	IncludedBeforeCents int64        `gorm:"not null"`
	IncludedAfterCents  int64        `gorm:"not null"`
	OnDemandBeforeCents int64        `gorm:"not null"`
	OnDemandAfterCents  int64        `gorm:"not null"`
	Reason              string       `gorm:"type:text;not null"`
	CreatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "usd_ledger_entries" }
