package testutil

import (
	"affiliate-commission/internal/client"
	"affiliate-commission/internal/config"
	"affiliate-commission/internal/model"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewTestDB opens a migrated sqlite database private to the test. A single
// connection serializes transactions the way row locks would.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dialector, err := client.Dialector(config.Database{
		Driver: "sqlite",
		URL:    filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000",
	})
	require.NoError(t, err)

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, client.Migrate(db))
	return db
}

// CreateMerchant stores a merchant whose owner authenticates with
// email and apiKey.
func CreateMerchant(t *testing.T, db *gorm.DB, domain, email, apiKey string) *model.Merchant {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.MinCost)
	require.NoError(t, err)

	user := &model.User{
		ID:       uuid.NewString(),
		Email:    email,
		Name:     domain,
		Type:     model.UserTypeMerchant,
		Password: string(hash),
	}
	require.NoError(t, db.Create(user).Error)

	merchant := &model.Merchant{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Domain:      domain,
		DisplayName: domain,
	}
	require.NoError(t, db.Create(merchant).Error)
	return merchant
}

func CreateAffiliate(t *testing.T, db *gorm.DB, merchant *model.Merchant, email string, rate decimal.Decimal) *model.Affiliate {
	t.Helper()

	user := &model.User{
		ID:    uuid.NewString(),
		Email: email,
		Name:  email,
		Type:  model.UserTypeAffiliate,
	}
	require.NoError(t, db.Create(user).Error)

	affiliate := &model.Affiliate{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		MerchantID:     merchant.ID,
		CommissionRate: rate,
		DiscountCode:   "CODE-" + user.ID[:8],
	}
	require.NoError(t, db.Create(affiliate).Error)
	return affiliate
}

func CreateOrder(t *testing.T, db *gorm.DB, affiliate *model.Affiliate, orderID, commission string) *model.Order {
	t.Helper()

	order := &model.Order{
		ID:             orderID,
		MerchantID:     affiliate.MerchantID,
		AffiliateID:    &affiliate.ID,
		Subtotal:       decimal.RequireFromString(commission).Mul(decimal.NewFromInt(10)),
		DiscountCode:   affiliate.DiscountCode,
		CommissionOwed: decimal.RequireFromString(commission),
		PayoutStatus:   model.PayoutStatusUnpaid,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func ReloadOrder(t *testing.T, db *gorm.DB, orderID string) *model.Order {
	t.Helper()

	var order model.Order
	require.NoError(t, db.Where("id = ?", orderID).First(&order).Error)
	return &order
}

// Count returns the number of rows of m's table matching the optional
// where clause.
func Count(t *testing.T, db *gorm.DB, m interface{}, where ...interface{}) int64 {
	t.Helper()

	query := db.Model(m)
	if len(where) > 0 {
		query = query.Where(where[0], where[1:]...)
	}

	var n int64
	require.NoError(t, query.Count(&n).Error)
	return n
}
