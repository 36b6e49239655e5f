package service

import (
	"affiliate-commission/internal/dto"
	"affiliate-commission/internal/model"
	"affiliate-commission/internal/repository"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type MerchantService interface {
	Register(ctx context.Context, req dto.MerchantRequest) (*model.Merchant, error)
	Update(ctx context.Context, merchant *model.Merchant, req dto.MerchantRequest) (*model.Merchant, error)
	FindByEmail(ctx context.Context, email string) (*model.Merchant, error)
	FindByDomain(ctx context.Context, domain string) (*model.Merchant, error)
	Authenticate(ctx context.Context, email, apiKey string) (*model.Merchant, error)
}

type merchantServiceImpl struct {
	db           *gorm.DB
	userRepo     repository.UserRepository
	merchantRepo repository.MerchantRepository
	logger       *zap.Logger
}

func NewMerchantService(
	db *gorm.DB,
	userRepo repository.UserRepository,
	merchantRepo repository.MerchantRepository,
	logger *zap.Logger,
) MerchantService {
	return &merchantServiceImpl{
		db:           db,
		userRepo:     userRepo,
		merchantRepo: merchantRepo,
		logger:       logger,
	}
}

// Register creates the merchant owner user and the merchant in one
// transaction. The api key is stored as the user's password hash.
func (s *merchantServiceImpl) Register(ctx context.Context, req dto.MerchantRequest) (*model.Merchant, error) {
	in, verr := ValidateMerchantRequest(req)
	if err := s.checkUnique(ctx, verr, in, "", ""); err != nil {
		return nil, err
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.APIKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}

	user := &model.User{
		ID:       uuid.NewString(),
		Email:    in.Email,
		Name:     in.Name,
		Type:     model.UserTypeMerchant,
		Password: string(hash),
	}
	merchant := &model.Merchant{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Domain:      in.Domain,
		DisplayName: in.Name,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.userRepo.CreateIfAbsent(ctx, tx, user)
		if err != nil {
			return fmt.Errorf("store user in db: %w", err)
		}
		if !created {
			return uniqueViolation("email")
		}

		if err := s.merchantRepo.Create(ctx, tx, merchant); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return uniqueViolation("domain")
			}
			return fmt.Errorf("store merchant in db: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("merchant registered",
		zap.String("merchant_id", merchant.ID),
		zap.String("domain", merchant.Domain),
	)
	return merchant, nil
}

func (s *merchantServiceImpl) Update(ctx context.Context, merchant *model.Merchant, req dto.MerchantRequest) (*model.Merchant, error) {
	in, verr := ValidateMerchantRequest(req)
	if err := s.checkUnique(ctx, verr, in, merchant.UserID, merchant.ID); err != nil {
		return nil, err
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.APIKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}

	updated := *merchant
	updated.Domain = in.Domain
	updated.DisplayName = in.Name

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.userRepo.Update(ctx, tx, &model.User{
			ID:       merchant.UserID,
			Email:    in.Email,
			Name:     in.Name,
			Password: string(hash),
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return uniqueViolation("email")
		}
		if err != nil {
			return fmt.Errorf("update user in db: %w", err)
		}

		err = s.merchantRepo.Update(ctx, tx, &updated)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return uniqueViolation("domain")
		}
		if err != nil {
			return fmt.Errorf("update merchant in db: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

func (s *merchantServiceImpl) FindByEmail(ctx context.Context, email string) (*model.Merchant, error) {
	merchant, err := s.merchantRepo.FindByUserEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("find merchant by email: %w", err)
	}
	if merchant == nil {
		return nil, &NotFoundError{Resource: "merchant", Key: email}
	}
	return merchant, nil
}

func (s *merchantServiceImpl) FindByDomain(ctx context.Context, domain string) (*model.Merchant, error) {
	merchant, err := s.merchantRepo.FindByDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("find merchant by domain: %w", err)
	}
	if merchant == nil {
		return nil, &NotFoundError{Resource: "merchant", Key: domain}
	}
	return merchant, nil
}

// Authenticate returns the merchant owning email when apiKey matches, and
// nil otherwise.
func (s *merchantServiceImpl) Authenticate(ctx context.Context, email, apiKey string) (*model.Merchant, error) {
	user, err := s.userRepo.FindByEmail(ctx, s.db, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if user == nil || user.Type != model.UserTypeMerchant {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(apiKey)) != nil {
		return nil, nil
	}

	merchant, err := s.merchantRepo.FindByUserEmail(ctx, user.Email)
	if err != nil {
		return nil, fmt.Errorf("find merchant by email: %w", err)
	}
	return merchant, nil
}

// checkUnique adds uniqueness violations to verr. The transaction still
// relies on the unique indexes for requests that race past this check.
func (s *merchantServiceImpl) checkUnique(ctx context.Context, verr *ValidationError, in ValidMerchant, exceptUserID, exceptMerchantID string) error {
	if in.Domain != "" {
		taken, err := s.merchantRepo.DomainTaken(ctx, in.Domain, exceptMerchantID)
		if err != nil {
			return fmt.Errorf("check domain: %w", err)
		}
		if taken {
			verr.Add("domain", "has already been taken")
		}
	}
	if in.Email != "" {
		taken, err := s.userRepo.EmailTaken(ctx, in.Email, exceptUserID)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			verr.Add("email", "has already been taken")
		}
	}
	return nil
}

func uniqueViolation(field string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: "has already been taken"}}}
}
