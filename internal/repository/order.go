package repository

import (
	"affiliate-commission/internal/model"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository interface {
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, order *model.Order) (bool, error)
	LockByID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error)
	UpdateUnpaid(ctx context.Context, tx *gorm.DB, order *model.Order) (bool, error)
	FindByID(ctx context.Context, orderID string) (*model.Order, error)
	ListDispatchable(ctx context.Context, affiliateID string) ([]*model.Order, error)

	Claim(ctx context.Context, orderID string) (bool, error)
	MarkPaid(ctx context.Context, orderID, reference string) (bool, error)
	ReleaseClaim(ctx context.Context, orderID, lastError string, flag bool) (bool, error)
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	ClearFlag(ctx context.Context, orderID, merchantID string) (bool, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

// CreateIfAbsent inserts the order unless its external id is already stored.
// It reports whether this call created the row.
func (r *orderRepoImpl) CreateIfAbsent(ctx context.Context, tx *gorm.DB, order *model.Order) (bool, error) {
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(order)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *orderRepoImpl) LockByID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// UpdateUnpaid overwrites the financial fields of an order that has not been
// picked up for payout yet. The owning merchant never changes.
func (r *orderRepoImpl) UpdateUnpaid(ctx context.Context, tx *gorm.DB, order *model.Order) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND payout_status = ?", order.ID, model.PayoutStatusUnpaid).
		Updates(map[string]interface{}{
			"affiliate_id":    order.AffiliateID,
			"subtotal":        order.Subtotal,
			"discount_code":   order.DiscountCode,
			"commission_owed": order.CommissionOwed,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *orderRepoImpl) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", orderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) ListDispatchable(ctx context.Context, affiliateID string) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Where("payout_status = ?", model.PayoutStatusUnpaid).
		Where("payout_flagged = ?", false).
		Order("created_at").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	return orders, nil
}

// Claim moves an order from unpaid to processing. It returns false when the
// order was not unpaid, meaning another worker owns it or it is settled.
func (r *orderRepoImpl) Claim(ctx context.Context, orderID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND payout_status = ?", orderID, model.PayoutStatusUnpaid).
		Updates(map[string]interface{}{
			"payout_status": model.PayoutStatusProcessing,
			"claimed_at":    time.Now(),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *orderRepoImpl) MarkPaid(ctx context.Context, orderID, reference string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND payout_status = ?", orderID, model.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"payout_status":     model.PayoutStatusPaid,
			"payout_reference":  reference,
			"last_payout_error": "",
			"paid_at":           now,
			"updated_at":        now,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// ReleaseClaim returns a processing order to unpaid after a failed settlement
// and counts the attempt.
func (r *orderRepoImpl) ReleaseClaim(ctx context.Context, orderID, lastError string, flag bool) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND payout_status = ?", orderID, model.PayoutStatusProcessing).
		Updates(map[string]interface{}{
			"payout_status":     model.PayoutStatusUnpaid,
			"payout_attempts":   gorm.Expr("payout_attempts + ?", 1),
			"payout_flagged":    flag,
			"last_payout_error": truncate(lastError, 512),
			"claimed_at":        nil,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// ReleaseStale returns orders whose claim is older than claimedBefore to
// unpaid. Their worker is presumed dead.
func (r *orderRepoImpl) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("payout_status = ? AND claimed_at < ?", model.PayoutStatusProcessing, claimedBefore).
		Updates(map[string]interface{}{
			"payout_status":     model.PayoutStatusUnpaid,
			"last_payout_error": "claim expired",
			"claimed_at":        nil,
			"updated_at":        time.Now(),
		})

	return result.RowsAffected, result.Error
}

func (r *orderRepoImpl) ClearFlag(ctx context.Context, orderID, merchantID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND merchant_id = ?", orderID, merchantID).
		Where("payout_status = ? AND payout_flagged = ?", model.PayoutStatusUnpaid, true).
		Updates(map[string]interface{}{
			"payout_flagged":  false,
			"payout_attempts": 0,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
