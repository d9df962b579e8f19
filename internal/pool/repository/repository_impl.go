package repository

import (
	"context"
	"errors"
	"time"

	pooldomain "github.com/fabworks/cbbstore/internal/pool/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pooldomain.Repository {
	return &repo{}
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*pooldomain.USDPool, error) {
	var out pooldomain.USDPool
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pooldomain.ErrPoolNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, pool *pooldomain.USDPool) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usd_pools (
			id, user_id, plan_name, included_cents, included_total_cents, on_demand_cents,
			on_demand_limit_cents, last_reset_at, next_reset_at, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pool.ID,
		pool.UserID,
		pool.PlanName,
		pool.IncludedCents,
		pool.IncludedTotalCents,
		pool.OnDemandCents,
		pool.OnDemandLimitCents,
		pool.LastResetAt,
		pool.NextResetAt,
		pool.Version,
		pool.CreatedAt,
		pool.UpdatedAt,
	).Error
}

func (r *repo) UpdateCAS(ctx context.Context, db *gorm.DB, pool *pooldomain.USDPool, expectedVersion int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE usd_pools SET
			plan_name = ?,
			included_cents = ?,
			included_total_cents = ?,
			on_demand_cents = ?,
			on_demand_limit_cents = ?,
			last_reset_at = ?,
			next_reset_at = ?,
			version = version + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`,
		pool.PlanName,
		pool.IncludedCents,
		pool.IncludedTotalCents,
		pool.OnDemandCents,
		pool.OnDemandLimitCents,
		pool.LastResetAt,
		pool.NextResetAt,
		pool.ID,
		expectedVersion,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *pooldomain.LedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usd_ledger_entries (
			id, user_id, type, amount_cents, included_before_cents, included_after_cents,
			on_demand_before_cents, on_demand_after_cents, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.Type,
		entry.AmountCents,
		entry.IncludedBeforeCents,
		entry.IncludedAfterCents,
		entry.OnDemandBeforeCents,
		entry.OnDemandAfterCents,
		entry.Reason,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, userID string, limit int) ([]pooldomain.LedgerEntry, error) {
	var out []pooldomain.LedgerEntry
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *repo) FindDueForReset(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]pooldomain.USDPool, error) {
	var out []pooldomain.USDPool
	err := db.WithContext(ctx).
		Where("next_reset_at <= ?", now).
		Order("next_reset_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB, offset, limit int) ([]pooldomain.USDPool, error) {
	var out []pooldomain.USDPool
	err := db.WithContext(ctx).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
