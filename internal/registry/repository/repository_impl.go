package repository

import (
	"context"
	"errors"

	registrydomain "github.com/fabworks/cbbstore/internal/registry/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() registrydomain.Repository {
	return &repo{}
}

func (r *repo) FindByCBBID(ctx context.Context, db *gorm.DB, cbbID string) ([]registrydomain.CBBCandidate, error) {
	var out []registrydomain.CBBCandidate
	err := db.WithContext(ctx).
		Where("cbb_id = ?", cbbID).
		Find(&out).Error
	return out, err
}

func (r *repo) FindByNameSubstring(ctx context.Context, db *gorm.DB, name string) ([]registrydomain.CBBCandidate, error) {
	var out []registrydomain.CBBCandidate
	err := db.WithContext(ctx).
		Where("LOWER(name) LIKE ?", "%"+name+"%").
		Find(&out).Error
	return out, err
}

func (r *repo) FindAll(ctx context.Context, db *gorm.DB) ([]registrydomain.CBBCandidate, error) {
	var out []registrydomain.CBBCandidate
	err := db.WithContext(ctx).Find(&out).Error
	return out, err
}

func (r *repo) FindExact(ctx context.Context, db *gorm.DB, cbbID, version string) (*registrydomain.CBBCandidate, error) {
	var out registrydomain.CBBCandidate
	err := db.WithContext(ctx).
		Where("cbb_id = ? AND version = ?", cbbID, version).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, registrydomain.ErrCandidateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repo) FindPopular(ctx context.Context, db *gorm.DB, limit int) ([]registrydomain.CBBCandidate, error) {
	var out []registrydomain.CBBCandidate
	err := db.WithContext(ctx).
		Order("purchase_count DESC, cbb_id ASC, version DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *repo) IncrementPurchaseCount(ctx context.Context, db *gorm.DB, cbbID, version string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE cbb_candidates SET purchase_count = purchase_count + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE cbb_id = ? AND version = ?`,
		cbbID,
		version,
	).Error
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, candidate *registrydomain.CBBCandidate) error {
	return db.WithContext(ctx).Create(candidate).Error
}
