package service_test

import (
	"affiliate-commission/internal/dto"
	"affiliate-commission/internal/model"
	"affiliate-commission/internal/repository"
	"affiliate-commission/internal/service"
	"affiliate-commission/internal/testutil"
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// staleAffiliateRepo misses the first lookup, as a request that read just
// before a concurrent insert committed would.
type staleAffiliateRepo struct {
	repository.AffiliateRepository
	missed bool
}

func (r *staleAffiliateRepo) FindByUserAndMerchant(ctx context.Context, tx *gorm.DB, userID, merchantID string) (*model.Affiliate, error) {
	if !r.missed {
		r.missed = true
		return nil, nil
	}
	return r.AffiliateRepository.FindByUserAndMerchant(ctx, tx, userID, merchantID)
}

// staleUserRepo misses the first email lookup in the same way.
type staleUserRepo struct {
	repository.UserRepository
	missed bool
}

func (r *staleUserRepo) FindByEmail(ctx context.Context, tx *gorm.DB, email string) (*model.User, error) {
	if !r.missed {
		r.missed = true
		return nil, nil
	}
	return r.UserRepository.FindByEmail(ctx, tx, email)
}

func register(t *testing.T, f *fixture, merchant *model.Merchant, email string) (*service.Registration, error) {
	t.Helper()

	var reg *service.Registration
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = f.affiliates.Register(context.Background(), tx, merchant, email, "Jane Doe", decimal.RequireFromString("0.15"))
		return err
	})
	return reg, err
}

func TestAffiliateRegister_CreatesUserAndAffiliate(t *testing.T) {
	f := newFixture(t)
	merchant := testutil.CreateMerchant(t, f.db, "shop.example.com", "owner@shop.example.com", "key")

	reg, err := register(t, f, merchant, "Jane@Example.com")
	require.NoError(t, err)

	assert.True(t, reg.Created)
	assert.Equal(t, "jane@example.com", reg.User.Email)
	assert.Equal(t, model.UserTypeAffiliate, reg.User.Type)
	assert.Equal(t, merchant.ID, reg.Affiliate.MerchantID)
	assert.Equal(t, "AFF-1", reg.Affiliate.DiscountCode)
	assert.True(t, reg.Affiliate.CommissionRate.Equal(decimal.RequireFromString("0.15")))

	var stored model.Affiliate
	require.NoError(t, f.db.First(&stored, "id = ?", reg.Affiliate.ID).Error)
	assert.Equal(t, "AFF-1", stored.DiscountCode)
}

func TestAffiliateRegister_Idempotent(t *testing.T) {
	f := newFixture(t)
	merchant := testutil.CreateMerchant(t, f.db, "shop.example.com", "owner@shop.example.com", "key")

	first, err := register(t, f, merchant, "jane@example.com")
	require.NoError(t, err)
	second, err := register(t, f, merchant, "jane@example.com")
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Affiliate.ID, second.Affiliate.ID)
	assert.Equal(t, 1, f.discounts.CallCount())
	assert.EqualValues(t, 1, testutil.Count(t, f.db, &model.Affiliate{}))
	assert.EqualValues(t, 1, testutil.Count(t, f.db, &model.User{}, "type = ?", model.UserTypeAffiliate))
}

func TestAffiliateRegister_SameUserAcrossMerchants(t *testing.T) {
	f := newFixture(t)
	shopA := testutil.CreateMerchant(t, f.db, "a.example.com", "owner@a.example.com", "key")
	shopB := testutil.CreateMerchant(t, f.db, "b.example.com", "owner@b.example.com", "key")

	regA, err := register(t, f, shopA, "jane@example.com")
	require.NoError(t, err)
	regB, err := register(t, f, shopB, "jane@example.com")
	require.NoError(t, err)

	assert.Equal(t, regA.User.ID, regB.User.ID)
	assert.NotEqual(t, regA.Affiliate.ID, regB.Affiliate.ID)
	assert.EqualValues(t, 2, testutil.Count(t, f.db, &model.Affiliate{}))
}

func TestAffiliateRegister_MerchantOwnerCanBecomeAffiliate(t *testing.T) {
	f := newFixture(t)
	shopA := testutil.CreateMerchant(t, f.db, "a.example.com", "owner@a.example.com", "key")
	shopB := testutil.CreateMerchant(t, f.db, "b.example.com", "owner@b.example.com", "key")

	reg, err := register(t, f, shopB, "owner@a.example.com")
	require.NoError(t, err)

	assert.True(t, reg.Created)
	assert.Equal(t, model.UserTypeMerchant, reg.User.Type)
	assert.Equal(t, shopA.UserID, reg.User.ID)
}

func TestAffiliateRegister_LostRaceReusesWinner(t *testing.T) {
	f := newFixture(t)
	merchant := testutil.CreateMerchant(t, f.db, "shop.example.com", "owner@shop.example.com", "key")
	winner := testutil.CreateAffiliate(t, f.db, merchant, "jane@example.com", decimal.RequireFromString("0.2"))

	affiliates := service.NewAffiliateService(
		f.db,
		f.userRepo,
		&staleAffiliateRepo{AffiliateRepository: f.affiliateRepo},
		f.discounts,
		f.publisher,
		zaptest.NewLogger(t),
	)

	var reg *service.Registration
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = affiliates.Register(context.Background(), tx, merchant, "jane@example.com", "Jane", decimal.RequireFromString("0.1"))
		return err
	})
	require.NoError(t, err)

	assert.False(t, reg.Created)
	assert.Equal(t, winner.ID, reg.Affiliate.ID)
	assert.True(t, reg.Affiliate.CommissionRate.Equal(decimal.RequireFromString("0.2")))
	assert.Zero(t, f.discounts.CallCount(), "the losing request must not issue a code")
	assert.EqualValues(t, 1, testutil.Count(t, f.db, &model.Affiliate{}))
}

func TestAffiliateRegister_LostUserRaceReusesWinner(t *testing.T) {
	f := newFixture(t)
	shopA := testutil.CreateMerchant(t, f.db, "a.example.com", "owner@a.example.com", "key")
	shopB := testutil.CreateMerchant(t, f.db, "b.example.com", "owner@b.example.com", "key")

	affiliates := service.NewAffiliateService(
		f.db,
		&staleUserRepo{UserRepository: f.userRepo},
		f.affiliateRepo,
		f.discounts,
		f.publisher,
		zaptest.NewLogger(t),
	)

	var reg *service.Registration
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = affiliates.Register(context.Background(), tx, shopB, "owner@a.example.com", "Owner", decimal.RequireFromString("0.1"))
		return err
	})
	require.NoError(t, err)

	assert.True(t, reg.Created)
	assert.Equal(t, shopA.UserID, reg.User.ID)
	assert.Equal(t, shopB.ID, reg.Affiliate.MerchantID)
	assert.EqualValues(t, 1, testutil.Count(t, f.db, &model.User{}, "email = ?", "owner@a.example.com"))
}

func TestAffiliateRegister_IssuerFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	merchant := testutil.CreateMerchant(t, f.db, "shop.example.com", "owner@shop.example.com", "key")
	f.discounts.Err = errors.New("discount api unavailable")

	_, err := f.affiliates.RegisterAffiliate(context.Background(), merchant, dto.AffiliateRequest{
		Email:          "jane@example.com",
		Name:           "Jane",
		CommissionRate: "0.1",
	})

	var createErr *service.AffiliateCreateError
	require.ErrorAs(t, err, &createErr)
	assert.Zero(t, testutil.Count(t, f.db, &model.Affiliate{}))
	assert.Zero(t, testutil.Count(t, f.db, &model.User{}, "type = ?", model.UserTypeAffiliate))
	assert.Empty(t, f.publisher.Published())
}

func TestAffiliateRegister_InvalidInput(t *testing.T) {
	f := newFixture(t)
	merchant := testutil.CreateMerchant(t, f.db, "shop.example.com", "owner@shop.example.com", "key")

	tests := []struct {
		name  string
		email string
		rate  string
		field string
	}{
		{name: "bad email", email: "not-an-email", rate: "0.1", field: "email"},
		{name: "rate above one", email: "jane@example.com", rate: "1.5", field: "commission_rate"},
		{name: "negative rate", email: "jane@example.com", rate: "-0.1", field: "commission_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.db.Transaction(func(tx *gorm.DB) error {
				_, err := f.affiliates.Register(context.Background(), tx, merchant, tt.email, "Jane", decimal.RequireFromString(tt.rate))
				return err
			})

			var createErr *service.AffiliateCreateError
			require.ErrorAs(t, err, &createErr)
			var verr *service.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}

	assert.Zero(t, f.discounts.CallCount())
	assert.Zero(t, testutil.Count(t, f.db, &model.Affiliate{}))
}

func TestRegisterAffiliate_PublishesAfterCommit(t *testing.T) {
	f := newFixture(t)
	merchant := testutil.CreateMerchant(t, f.db, "shop.example.com", "owner@shop.example.com", "key")
	req := dto.AffiliateRequest{Email: "jane@example.com", Name: "Jane", CommissionRate: "0.05"}

	reg, err := f.affiliates.RegisterAffiliate(context.Background(), merchant, req)
	require.NoError(t, err)
	_, err = f.affiliates.RegisterAffiliate(context.Background(), merchant, req)
	require.NoError(t, err)

	events := f.publisher.Published()
	require.Len(t, events, 1)
	assert.Equal(t, reg.Affiliate.ID, events[0].AffiliateID)
	assert.Equal(t, "jane@example.com", events[0].Email)
	assert.Equal(t, "AFF-1", events[0].DiscountCode)
	assert.Equal(t, "5%", events[0].CommissionRate)
}

func TestRegisterAffiliate_PublishFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	merchant := testutil.CreateMerchant(t, f.db, "shop.example.com", "owner@shop.example.com", "key")
	f.publisher.Err = errors.New("broker down")

	reg, err := f.affiliates.RegisterAffiliate(context.Background(), merchant, dto.AffiliateRequest{
		Email: "jane@example.com", Name: "Jane", CommissionRate: "0.05",
	})
	require.NoError(t, err)
	assert.True(t, reg.Created)
}

func TestRegisterAffiliate_NonNumericRate(t *testing.T) {
	f := newFixture(t)
	merchant := testutil.CreateMerchant(t, f.db, "shop.example.com", "owner@shop.example.com", "key")

	_, err := f.affiliates.RegisterAffiliate(context.Background(), merchant, dto.AffiliateRequest{
		Email: "jane@example.com", Name: "Jane", CommissionRate: "ten",
	})

	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "commission_rate", verr.Fields[0].Field)
}
