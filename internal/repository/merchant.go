package repository

import (
	"affiliate-commission/internal/model"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type MerchantRepository interface {
	Create(ctx context.Context, tx *gorm.DB, merchant *model.Merchant) error
	Update(ctx context.Context, tx *gorm.DB, merchant *model.Merchant) error
	FindByDomain(ctx context.Context, domain string) (*model.Merchant, error)
	FindByUserEmail(ctx context.Context, email string) (*model.Merchant, error)
	DomainTaken(ctx context.Context, domain, exceptMerchantID string) (bool, error)
}

type merchantRepoImpl struct {
	db *gorm.DB
}

func NewMerchantRepository(db *gorm.DB) MerchantRepository {
	return &merchantRepoImpl{
		db: db,
	}
}

func (r *merchantRepoImpl) Create(ctx context.Context, tx *gorm.DB, merchant *model.Merchant) error {
	return tx.WithContext(ctx).Create(merchant).Error
}

func (r *merchantRepoImpl) Update(ctx context.Context, tx *gorm.DB, merchant *model.Merchant) error {
	result := tx.WithContext(ctx).
		Model(&model.Merchant{}).
		Where("id = ?", merchant.ID).
		Updates(map[string]interface{}{
			"domain":       merchant.Domain,
			"display_name": merchant.DisplayName,
			"updated_at":   time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *merchantRepoImpl) FindByDomain(ctx context.Context, domain string) (*model.Merchant, error) {
	var merchant model.Merchant
	err := r.db.WithContext(ctx).
		Where("domain = ?", domain).
		First(&merchant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &merchant, nil
}

func (r *merchantRepoImpl) FindByUserEmail(ctx context.Context, email string) (*model.Merchant, error) {
	var merchant model.Merchant
	err := r.db.WithContext(ctx).
		Joins("JOIN users ON users.id = merchants.user_id").
		Where("users.email = ?", email).
		First(&merchant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &merchant, nil
}

func (r *merchantRepoImpl) DomainTaken(ctx context.Context, domain, exceptMerchantID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.Merchant{}).
		Where("domain = ?", domain)
	if exceptMerchantID != "" {
		query = query.Where("id <> ?", exceptMerchantID)
	}
	err := query.Count(&count).Error

	return count > 0, err
}
