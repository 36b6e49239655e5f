package service_test

import (
	"affiliate-commission/internal/repository"
	"affiliate-commission/internal/service"
	"affiliate-commission/internal/testutil"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	discounts *testutil.FakeDiscounts
	publisher *testutil.FakePublisher
	gateway   *testutil.FakeGateway
	queue     *testutil.FakeQueue

	userRepo      repository.UserRepository
	merchantRepo  repository.MerchantRepository
	affiliateRepo repository.AffiliateRepository
	orderRepo     repository.OrderRepository

	merchants  service.MerchantService
	affiliates service.AffiliateService
	orders     service.OrderService
	payouts    service.PayoutService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithAttempts(t, 3)
}

func newFixtureWithAttempts(t *testing.T, maxAttempts int) *fixture {
	t.Helper()

	log := zaptest.NewLogger(t)
	f := &fixture{
		db:        testutil.NewTestDB(t),
		discounts: &testutil.FakeDiscounts{},
		publisher: &testutil.FakePublisher{},
		gateway:   &testutil.FakeGateway{},
		queue:     &testutil.FakeQueue{},
	}

	f.userRepo = repository.NewUserRepository(f.db)
	f.merchantRepo = repository.NewMerchantRepository(f.db)
	f.affiliateRepo = repository.NewAffiliateRepository(f.db)
	f.orderRepo = repository.NewOrderRepository(f.db)

	f.merchants = service.NewMerchantService(f.db, f.userRepo, f.merchantRepo, log)
	f.affiliates = service.NewAffiliateService(f.db, f.userRepo, f.affiliateRepo, f.discounts, f.publisher, log)
	f.orders = service.NewOrderService(
		f.db,
		f.merchantRepo,
		f.userRepo,
		f.affiliateRepo,
		f.orderRepo,
		f.affiliates,
		decimal.RequireFromString("0.10"),
		log,
	)
	f.payouts = service.NewPayoutService(
		f.affiliateRepo,
		f.orderRepo,
		f.queue,
		f.gateway,
		service.PayoutOptions{MaxAttempts: maxAttempts, ProcessingLease: 30 * time.Minute},
		log,
	)
	return f
}
