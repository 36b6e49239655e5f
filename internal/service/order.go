package service

import (
	"affiliate-commission/internal/dto"
	"affiliate-commission/internal/metrics"
	"affiliate-commission/internal/model"
	"affiliate-commission/internal/repository"
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IngestResult tells what ProcessOrder did with a delivery.
type IngestResult string

const (
	IngestCreated IngestResult = "created"
	IngestUpdated IngestResult = "updated"
	// IngestFrozen means the order was already picked up for payout and the
	// delivery was acknowledged without changing it.
	IngestFrozen IngestResult = "frozen"
)

type OrderService interface {
	ProcessOrder(ctx context.Context, event dto.OrderEvent) (IngestResult, error)
}

type orderServiceImpl struct {
	db               *gorm.DB
	merchantRepo     repository.MerchantRepository
	userRepo         repository.UserRepository
	affiliateRepo    repository.AffiliateRepository
	orderRepo        repository.OrderRepository
	affiliateService AffiliateService
	defaultRate      decimal.Decimal
	logger           *zap.Logger
}

func NewOrderService(
	db *gorm.DB,
	merchantRepo repository.MerchantRepository,
	userRepo repository.UserRepository,
	affiliateRepo repository.AffiliateRepository,
	orderRepo repository.OrderRepository,
	affiliateService AffiliateService,
	defaultRate decimal.Decimal,
	logger *zap.Logger,
) OrderService {
	return &orderServiceImpl{
		db:               db,
		merchantRepo:     merchantRepo,
		userRepo:         userRepo,
		affiliateRepo:    affiliateRepo,
		orderRepo:        orderRepo,
		affiliateService: affiliateService,
		defaultRate:      defaultRate,
		logger:           logger,
	}
}

// ProcessOrder records one order delivery. Deliveries of the same order id
// converge on a single row; the customer becomes an affiliate of the
// merchant on first sight.
func (s *orderServiceImpl) ProcessOrder(ctx context.Context, event dto.OrderEvent) (IngestResult, error) {
	in, err := ValidateOrderEvent(event)
	if err != nil {
		metrics.OrdersIngested.WithLabelValues("rejected").Inc()
		return "", err
	}

	merchant, err := s.merchantRepo.FindByDomain(ctx, in.MerchantDomain)
	if err != nil {
		metrics.OrdersIngested.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("find merchant by domain: %w", err)
	}
	if merchant == nil {
		metrics.OrdersIngested.WithLabelValues("rejected").Inc()
		return "", &NotFoundError{Resource: "merchant", Key: in.MerchantDomain}
	}

	var (
		result IngestResult
		reg    *Registration
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.orderRepo.LockByID(ctx, tx, in.OrderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if err := checkOwner(existing, merchant.ID); err != nil {
			return err
		}

		affiliate, r, err := s.resolveAffiliate(ctx, tx, merchant, in)
		if err != nil {
			return err
		}
		reg = r

		order := &model.Order{
			ID:             in.OrderID,
			MerchantID:     merchant.ID,
			AffiliateID:    &affiliate.ID,
			Subtotal:       in.Subtotal,
			DiscountCode:   in.DiscountCode,
			CommissionOwed: Commission(in.Subtotal, affiliate.CommissionRate),
			PayoutStatus:   model.PayoutStatusUnpaid,
		}
		result, err = s.upsertOrder(ctx, tx, order)
		return err
	})
	if err != nil {
		var (
			createErr *AffiliateCreateError
			verr      *ValidationError
		)
		if errors.As(err, &createErr) || errors.As(err, &verr) {
			metrics.OrdersIngested.WithLabelValues("rejected").Inc()
		} else {
			metrics.OrdersIngested.WithLabelValues("failed").Inc()
		}
		return "", err
	}

	metrics.OrdersIngested.WithLabelValues(string(result)).Inc()
	s.logger.Info("order ingested",
		zap.String("order_id", in.OrderID),
		zap.String("merchant_id", merchant.ID),
		zap.String("result", string(result)),
	)

	s.affiliateService.NotifyCreated(ctx, merchant, reg)
	return result, nil
}

func (s *orderServiceImpl) resolveAffiliate(ctx context.Context, tx *gorm.DB, merchant *model.Merchant, in ValidOrder) (*model.Affiliate, *Registration, error) {
	user, err := s.userRepo.FindByEmail(ctx, tx, in.CustomerEmail)
	if err != nil {
		return nil, nil, fmt.Errorf("find user by email: %w", err)
	}
	if user != nil {
		affiliate, err := s.affiliateRepo.FindByUserAndMerchant(ctx, tx, user.ID, merchant.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("find affiliate: %w", err)
		}
		if affiliate != nil {
			return affiliate, nil, nil
		}
	}

	reg, err := s.affiliateService.Register(ctx, tx, merchant, in.CustomerEmail, in.CustomerName, s.defaultRate)
	if err != nil {
		return nil, nil, err
	}
	return reg.Affiliate, reg, nil
}

func (s *orderServiceImpl) upsertOrder(ctx context.Context, tx *gorm.DB, order *model.Order) (IngestResult, error) {
	created, err := s.orderRepo.CreateIfAbsent(ctx, tx, order)
	if err != nil {
		return "", fmt.Errorf("store order in db: %w", err)
	}
	if created {
		return IngestCreated, nil
	}

	existing, err := s.orderRepo.LockByID(ctx, tx, order.ID)
	if err != nil {
		return "", fmt.Errorf("lock order: %w", err)
	}
	if existing == nil {
		return "", fmt.Errorf("order %s: %w", order.ID, ErrConflict)
	}
	if err := checkOwner(existing, order.MerchantID); err != nil {
		return "", err
	}
	if existing.PayoutStatus != model.PayoutStatusUnpaid {
		return IngestFrozen, nil
	}

	updated, err := s.orderRepo.UpdateUnpaid(ctx, tx, order)
	if err != nil {
		return "", fmt.Errorf("update order in db: %w", err)
	}
	if !updated {
		// claimed by a worker between the read and the update
		return IngestFrozen, nil
	}
	return IngestUpdated, nil
}

// checkOwner rejects a delivery for an order id another merchant already
// recorded.
func checkOwner(existing *model.Order, merchantID string) error {
	if existing == nil || existing.MerchantID == merchantID {
		return nil
	}
	verr := &ValidationError{}
	verr.Add("order_id", "belongs to another merchant")
	return verr
}

// Commission is subtotal × rate rounded half away from zero to cents.
func Commission(subtotal, rate decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(rate).Round(2)
}
