package repository

import (
	"context"
	"errors"
	"time"

	commercedomain "github.com/fabworks/cbbstore/internal/commerce/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() commercedomain.Repository {
	return &repo{}
}

func (r *repo) InsertIgnoreDuplicate(ctx context.Context, db *gorm.DB, receipt *commercedomain.Receipt) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO receipts (
			id, receipt_number, user_id, workspace_id, job_id, idempotency_key,
			items, total_cents, status, created_at, delivered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, idempotency_key) DO NOTHING`,
		receipt.ID,
		receipt.ReceiptNumber,
		receipt.UserID,
		receipt.WorkspaceID,
		receipt.JobID,
		receipt.IdempotencyKey,
		receipt.Items,
		receipt.TotalCents,
		receipt.Status,
		receipt.CreatedAt,
		receipt.DeliveredAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, userID, key string) (*commercedomain.Receipt, error) {
	var out commercedomain.Receipt
	err := db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, commercedomain.ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, receiptNumber string) (*commercedomain.Receipt, error) {
	var out commercedomain.Receipt
	err := db.WithContext(ctx).
		Where("receipt_number = ?", receiptNumber).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, commercedomain.ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]commercedomain.Receipt, error) {
	var out []commercedomain.Receipt
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

func (r *repo) MarkDelivered(ctx context.Context, db *gorm.DB, receiptNumber string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE receipts SET delivered_at = ? WHERE receipt_number = ? AND delivered_at IS NULL`,
		at,
		receiptNumber,
	).Error
}
