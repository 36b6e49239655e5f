package service

import (
	"affiliate-commission/internal/client"
	"affiliate-commission/internal/dto"
	"affiliate-commission/internal/metrics"
	"affiliate-commission/internal/model"
	"affiliate-commission/internal/notification"
	"affiliate-commission/internal/repository"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Registration is the outcome of AffiliateService.Register.
type Registration struct {
	User      *model.User
	Affiliate *model.Affiliate
	// Created is true only for the call that inserted the affiliate row.
	Created bool
}

type AffiliateService interface {
	// Register returns the affiliate of email at merchant, creating the user
	// and the affiliate when missing. It runs inside the caller's tx.
	Register(ctx context.Context, tx *gorm.DB, merchant *model.Merchant, email, name string, rate decimal.Decimal) (*Registration, error)
	// RegisterAffiliate is Register in its own transaction, followed by the
	// welcome notification.
	RegisterAffiliate(ctx context.Context, merchant *model.Merchant, req dto.AffiliateRequest) (*Registration, error)
	NotifyCreated(ctx context.Context, merchant *model.Merchant, reg *Registration)
}

type affiliateServiceImpl struct {
	db            *gorm.DB
	userRepo      repository.UserRepository
	affiliateRepo repository.AffiliateRepository
	discounts     client.DiscountClient
	publisher     notification.Publisher
	logger        *zap.Logger
}

func NewAffiliateService(
	db *gorm.DB,
	userRepo repository.UserRepository,
	affiliateRepo repository.AffiliateRepository,
	discounts client.DiscountClient,
	publisher notification.Publisher,
	logger *zap.Logger,
) AffiliateService {
	return &affiliateServiceImpl{
		db:            db,
		userRepo:      userRepo,
		affiliateRepo: affiliateRepo,
		discounts:     discounts,
		publisher:     publisher,
		logger:        logger,
	}
}

func (s *affiliateServiceImpl) Register(
	ctx context.Context,
	tx *gorm.DB,
	merchant *model.Merchant,
	email, name string,
	rate decimal.Decimal,
) (*Registration, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if err := ValidateAffiliateInput(email, name, rate); err != nil {
		return nil, &AffiliateCreateError{Reason: "invalid input", Err: err}
	}

	user, err := s.findOrCreateUser(ctx, tx, email, name)
	if err != nil {
		return nil, err
	}

	affiliate, err := s.affiliateRepo.FindByUserAndMerchant(ctx, tx, user.ID, merchant.ID)
	if err != nil {
		return nil, fmt.Errorf("find affiliate: %w", err)
	}
	if affiliate != nil {
		return &Registration{User: user, Affiliate: affiliate}, nil
	}

	affiliate = &model.Affiliate{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		MerchantID:     merchant.ID,
		CommissionRate: rate,
	}
	created, err := s.affiliateRepo.CreateIfAbsent(ctx, tx, affiliate)
	if err != nil {
		return nil, fmt.Errorf("store affiliate in db: %w", err)
	}
	if !created {
		winner, err := s.resolveConflict(ctx, tx, user.ID, merchant.ID)
		if err != nil {
			return nil, err
		}
		return &Registration{User: user, Affiliate: winner}, nil
	}

	code, err := s.discounts.CreateDiscountCode(ctx, merchant.Domain)
	if err != nil {
		return nil, &AffiliateCreateError{Reason: "discount code not issued", Err: err}
	}
	if err := s.affiliateRepo.SetDiscountCode(ctx, tx, affiliate.ID, code); err != nil {
		return nil, fmt.Errorf("store discount code: %w", err)
	}
	affiliate.DiscountCode = code

	metrics.AffiliatesRegistered.Inc()
	s.logger.Info("affiliate registered",
		zap.String("affiliate_id", affiliate.ID),
		zap.String("merchant_id", merchant.ID),
		zap.String("user_id", user.ID),
	)

	return &Registration{User: user, Affiliate: affiliate, Created: true}, nil
}

func (s *affiliateServiceImpl) RegisterAffiliate(ctx context.Context, merchant *model.Merchant, req dto.AffiliateRequest) (*Registration, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(string(req.CommissionRate)))
	if err != nil {
		verr := &ValidationError{}
		verr.Add("commission_rate", "must be numeric")
		return nil, verr
	}

	var reg *Registration
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = s.Register(ctx, tx, merchant, req.Email, req.Name, rate)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.NotifyCreated(ctx, merchant, reg)
	return reg, nil
}

// NotifyCreated publishes the welcome event for a freshly created affiliate.
// Call it only after the registering transaction committed. Failures are
// logged and never reach the caller.
func (s *affiliateServiceImpl) NotifyCreated(ctx context.Context, merchant *model.Merchant, reg *Registration) {
	if reg == nil || !reg.Created {
		return
	}

	event := notification.AffiliateCreated{
		AffiliateID:    reg.Affiliate.ID,
		MerchantID:     merchant.ID,
		MerchantName:   merchant.DisplayName,
		Email:          reg.User.Email,
		Name:           reg.User.Name,
		DiscountCode:   reg.Affiliate.DiscountCode,
		CommissionRate: reg.Affiliate.CommissionRate.Mul(decimal.NewFromInt(100)).String() + "%",
		OccurredAt:     time.Now().UTC(),
	}
	if err := s.publisher.PublishAffiliateCreated(ctx, event); err != nil {
		metrics.NotificationErrors.Inc()
		s.logger.Error("failed to publish affiliate created",
			zap.String("affiliate_id", reg.Affiliate.ID),
			zap.Error(err),
		)
	}
}

// findOrCreateUser tolerates a concurrent creator of the same email: the
// insert turns into a no-op and the winner's row is read back.
func (s *affiliateServiceImpl) findOrCreateUser(ctx context.Context, tx *gorm.DB, email, name string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, tx, email)
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if user != nil {
		return user, nil
	}

	user = &model.User{
		ID:    uuid.NewString(),
		Email: email,
		Name:  name,
		Type:  model.UserTypeAffiliate,
	}
	created, err := s.userRepo.CreateIfAbsent(ctx, tx, user)
	if err != nil {
		return nil, fmt.Errorf("store user in db: %w", err)
	}
	if created {
		return user, nil
	}

	user, err = s.userRepo.LockByEmail(ctx, tx, email)
	if err != nil {
		return nil, fmt.Errorf("read concurrent user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", email, ErrConflict)
	}
	return user, nil
}

func (s *affiliateServiceImpl) resolveConflict(ctx context.Context, tx *gorm.DB, userID, merchantID string) (*model.Affiliate, error) {
	winner, err := s.affiliateRepo.LockByUserAndMerchant(ctx, tx, userID, merchantID)
	if err != nil {
		return nil, fmt.Errorf("read concurrent affiliate: %w", err)
	}
	if winner == nil {
		return nil, fmt.Errorf("affiliate of user %s: %w", userID, ErrConflict)
	}

	s.logger.Debug("affiliate created concurrently, reusing",
		zap.String("affiliate_id", winner.ID),
	)
	return winner, nil
}
