package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// PoolStatus is the API shape of a pool, with decimal USD amounts.
type PoolStatus struct {
	UserID            string    `json:"user_id"`
	PlanName          string    `json:"plan_name"`
	IncludedUSD       string    `json:"included_usd_balance"`
	IncludedTotalUSD  string    `json:"included_usd_total"`
	OnDemandUSD       string    `json:"on_demand_usd"`
	OnDemandLimitUSD  *string   `json:"on_demand_limit_usd"`
	LastResetAt       time.Time `json:"last_reset_at"`
	NextResetAt       time.Time `json:"next_reset_at"`
}

type Service interface {
	GetPoolStatus(ctx context.Context, userID string) (*PoolStatus, error)

	// HasEnoughBalance answers the pre-checkout affordability question
	// without mutating anything.
	HasEnoughBalance(ctx context.Context, userID string, amountCents int64, onDemandAllowed bool) (bool, error)

	// Debit atomically moves amountCents out of the pool, spilling into the
	// on-demand bucket when the included balance runs short. It either fully
	// commits (balances moved, ledger entry appended) or leaves no trace.
	Debit(ctx context.Context, userID string, amountCents int64, reason string, onDemandAllowed bool) error

	// DebitTx is Debit running inside the caller's transaction, so checkout
	// can bind the debit to its receipt insert as one atomic unit.
	DebitTx(ctx context.Context, tx *gorm.DB, userID string, amountCents int64, reason string, onDemandAllowed bool) error

	// AllocateSubscriptionCredits tops the included bucket up to the plan
	// quota. Invoked by the billing-event collaborator on activation and
	// renewal; creates the pool on first use.
	AllocateSubscriptionCredits(ctx context.Context, userID, planName string) (*PoolStatus, error)

	// ResetPeriod re-allocates the plan quota and advances the period window
	// by one month. Whether the on-demand bucket clears too is plan policy.
	ResetPeriod(ctx context.Context, userID, planName string) (*PoolStatus, error)

	SetOnDemandLimit(ctx context.Context, userID string, limitCents *int64) (*PoolStatus, error)

	ListLedgerEntries(ctx context.Context, userID string, limit int) ([]LedgerEntry, error)
}

type Repository interface {
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*USDPool, error)
	Insert(ctx context.Context, db *gorm.DB, pool *USDPool) error

	// UpdateCAS writes the pool's mutable fields guarded by the version
	// column; it reports false when another writer won the race.
	UpdateCAS(ctx context.Context, db *gorm.DB, pool *USDPool, expectedVersion int64) (bool, error)

	InsertEntry(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	ListEntries(ctx context.Context, db *gorm.DB, userID string, limit int) ([]LedgerEntry, error)

	FindDueForReset(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]USDPool, error)
	ListAll(ctx context.Context, db *gorm.DB, offset, limit int) ([]USDPool, error)
}

var (
	ErrPoolNotFound          = errors.New("pool_not_found")
	ErrInsufficientBalance   = errors.New("insufficient_balance")
	ErrUnknownPlan           = errors.New("unknown_plan")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrAccountingUnavailable = errors.New("accounting_unavailable")
)
