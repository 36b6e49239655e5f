package repository

import (
	"affiliate-commission/internal/model"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AffiliateRepository interface {
	FindByUserAndMerchant(ctx context.Context, tx *gorm.DB, userID, merchantID string) (*model.Affiliate, error)
	LockByUserAndMerchant(ctx context.Context, tx *gorm.DB, userID, merchantID string) (*model.Affiliate, error)
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, affiliate *model.Affiliate) (bool, error)
	SetDiscountCode(ctx context.Context, tx *gorm.DB, affiliateID, code string) error
	FindByIDAndMerchant(ctx context.Context, affiliateID, merchantID string) (*model.Affiliate, error)
	FindPayee(ctx context.Context, affiliateID string) (*model.Payee, error)
}

type affiliateRepoImpl struct {
	db *gorm.DB
}

func NewAffiliateRepository(db *gorm.DB) AffiliateRepository {
	return &affiliateRepoImpl{
		db: db,
	}
}

func (r *affiliateRepoImpl) FindByUserAndMerchant(ctx context.Context, tx *gorm.DB, userID, merchantID string) (*model.Affiliate, error) {
	return r.findByUserAndMerchant(tx.WithContext(ctx), userID, merchantID)
}

// LockByUserAndMerchant reads the latest committed row under a row lock, so a
// caller that lost an insert race sees the winner's row.
func (r *affiliateRepoImpl) LockByUserAndMerchant(ctx context.Context, tx *gorm.DB, userID, merchantID string) (*model.Affiliate, error) {
	return r.findByUserAndMerchant(
		tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}),
		userID, merchantID,
	)
}

func (r *affiliateRepoImpl) findByUserAndMerchant(query *gorm.DB, userID, merchantID string) (*model.Affiliate, error) {
	var affiliate model.Affiliate
	err := query.
		Where("user_id = ? AND merchant_id = ?", userID, merchantID).
		First(&affiliate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &affiliate, nil
}

// CreateIfAbsent inserts the affiliate unless the (user, merchant) pair
// already exists. It reports whether this call created the row.
func (r *affiliateRepoImpl) CreateIfAbsent(ctx context.Context, tx *gorm.DB, affiliate *model.Affiliate) (bool, error) {
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "merchant_id"}},
			DoNothing: true,
		}).
		Create(affiliate)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *affiliateRepoImpl) SetDiscountCode(ctx context.Context, tx *gorm.DB, affiliateID, code string) error {
	return tx.WithContext(ctx).
		Model(&model.Affiliate{}).
		Where("id = ?", affiliateID).
		Updates(map[string]interface{}{
			"discount_code": code,
			"updated_at":    time.Now(),
		}).Error
}

func (r *affiliateRepoImpl) FindByIDAndMerchant(ctx context.Context, affiliateID, merchantID string) (*model.Affiliate, error) {
	var affiliate model.Affiliate
	err := r.db.WithContext(ctx).
		Where("id = ? AND merchant_id = ?", affiliateID, merchantID).
		First(&affiliate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &affiliate, nil
}

func (r *affiliateRepoImpl) FindPayee(ctx context.Context, affiliateID string) (*model.Payee, error) {
	var payee model.Payee
	err := r.db.WithContext(ctx).
		Table("affiliates").
		Select("affiliates.id AS affiliate_id, affiliates.merchant_id, users.email, users.name").
		Joins("JOIN users ON users.id = affiliates.user_id").
		Where("affiliates.id = ?", affiliateID).
		Take(&payee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &payee, nil
}
