package repository_test

import (
	"affiliate-commission/internal/model"
	"affiliate-commission/internal/repository"
	"affiliate-commission/internal/testutil"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCreateIfAbsent(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewUserRepository(db)
	ctx := context.Background()

	first := &model.User{ID: uuid.NewString(), Email: "jane@example.com", Name: "Jane", Type: model.UserTypeAffiliate}
	created, err := repo.CreateIfAbsent(ctx, db, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := &model.User{ID: uuid.NewString(), Email: "jane@example.com", Name: "Other", Type: model.UserTypeAffiliate}
	created, err = repo.CreateIfAbsent(ctx, db, second)
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := repo.FindByEmail(ctx, db, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)

	missing, err := repo.FindByEmail(ctx, db, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAffiliateCreateIfAbsent_UniquePerUserAndMerchant(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewAffiliateRepository(db)
	ctx := context.Background()
	merchant := testutil.CreateMerchant(t, db, "shop.example.com", "owner@shop.example.com", "key")
	existing := testutil.CreateAffiliate(t, db, merchant, "jane@example.com", decimal.RequireFromString("0.1"))

	dup := &model.Affiliate{
		ID:             uuid.NewString(),
		UserID:         existing.UserID,
		MerchantID:     merchant.ID,
		CommissionRate: decimal.RequireFromString("0.5"),
	}
	created, err := repo.CreateIfAbsent(ctx, db, dup)
	require.NoError(t, err)
	assert.False(t, created)

	locked, err := repo.LockByUserAndMerchant(ctx, db, existing.UserID, merchant.ID)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, locked.ID)
	assert.EqualValues(t, 1, testutil.Count(t, db, &model.Affiliate{}))
}

func TestAffiliateFindPayee(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewAffiliateRepository(db)
	merchant := testutil.CreateMerchant(t, db, "shop.example.com", "owner@shop.example.com", "key")
	affiliate := testutil.CreateAffiliate(t, db, merchant, "jane@example.com", decimal.RequireFromString("0.1"))

	payee, err := repo.FindPayee(context.Background(), affiliate.ID)
	require.NoError(t, err)
	require.NotNil(t, payee)
	assert.Equal(t, affiliate.ID, payee.AffiliateID)
	assert.Equal(t, merchant.ID, payee.MerchantID)
	assert.Equal(t, "jane@example.com", payee.Email)

	payee, err = repo.FindPayee(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, payee)
}

func TestOrderPayoutStateMachine(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()
	merchant := testutil.CreateMerchant(t, db, "shop.example.com", "owner@shop.example.com", "key")
	affiliate := testutil.CreateAffiliate(t, db, merchant, "jane@example.com", decimal.RequireFromString("0.1"))
	testutil.CreateOrder(t, db, affiliate, "A", "10.00")

	// paid requires processing
	ok, err := repo.MarkPaid(ctx, "A", "ref")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Claim(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)

	// a second claim loses
	ok, err = repo.Claim(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ReleaseClaim(ctx, "A", "gateway timeout", false)
	require.NoError(t, err)
	assert.True(t, ok)

	order := testutil.ReloadOrder(t, db, "A")
	assert.Equal(t, model.PayoutStatusUnpaid, order.PayoutStatus)
	assert.Equal(t, 1, order.PayoutAttempts)
	assert.Equal(t, "gateway timeout", order.LastPayoutError)

	ok, err = repo.Claim(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.MarkPaid(ctx, "A", "ref-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// paid is terminal
	for _, step := range []func() (bool, error){
		func() (bool, error) { return repo.Claim(ctx, "A") },
		func() (bool, error) { return repo.ReleaseClaim(ctx, "A", "late failure", true) },
		func() (bool, error) { return repo.MarkPaid(ctx, "A", "ref-2") },
	} {
		ok, err := step()
		require.NoError(t, err)
		assert.False(t, ok)
	}

	order = testutil.ReloadOrder(t, db, "A")
	assert.Equal(t, model.PayoutStatusPaid, order.PayoutStatus)
	assert.Equal(t, "ref-1", order.PayoutReference)
	assert.False(t, order.PayoutFlagged)
}

func TestOrderUpdateUnpaid(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()
	merchant := testutil.CreateMerchant(t, db, "shop.example.com", "owner@shop.example.com", "key")
	affiliate := testutil.CreateAffiliate(t, db, merchant, "jane@example.com", decimal.RequireFromString("0.1"))
	order := testutil.CreateOrder(t, db, affiliate, "A", "10.00")

	order.Subtotal = decimal.RequireFromString("300")
	order.CommissionOwed = decimal.RequireFromString("30")
	ok, err := repo.UpdateUnpaid(ctx, db, order)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "30.00", testutil.ReloadOrder(t, db, "A").CommissionOwed.StringFixed(2))

	_, err = repo.Claim(ctx, "A")
	require.NoError(t, err)

	order.CommissionOwed = decimal.RequireFromString("99")
	ok, err = repo.UpdateUnpaid(ctx, db, order)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "30.00", testutil.ReloadOrder(t, db, "A").CommissionOwed.StringFixed(2))
}

func TestOrderListDispatchable(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewOrderRepository(db)
	ctx := context.Background()
	merchant := testutil.CreateMerchant(t, db, "shop.example.com", "owner@shop.example.com", "key")
	affiliate := testutil.CreateAffiliate(t, db, merchant, "jane@example.com", decimal.RequireFromString("0.1"))
	testutil.CreateOrder(t, db, affiliate, "unpaid", "1")
	testutil.CreateOrder(t, db, affiliate, "claimed", "1")
	testutil.CreateOrder(t, db, affiliate, "flagged", "1")

	_, err := repo.Claim(ctx, "claimed")
	require.NoError(t, err)
	_, err = repo.Claim(ctx, "flagged")
	require.NoError(t, err)
	_, err = repo.ReleaseClaim(ctx, "flagged", "rejected", true)
	require.NoError(t, err)

	orders, err := repo.ListDispatchable(ctx, affiliate.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "unpaid", orders[0].ID)

	ok, err := repo.ClearFlag(ctx, "flagged", "other-merchant")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ClearFlag(ctx, "flagged", merchant.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	orders, err = repo.ListDispatchable(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestMerchantLookups(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewMerchantRepository(db)
	ctx := context.Background()
	merchant := testutil.CreateMerchant(t, db, "shop.example.com", "owner@shop.example.com", "key")

	byDomain, err := repo.FindByDomain(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, merchant.ID, byDomain.ID)

	byEmail, err := repo.FindByUserEmail(ctx, "owner@shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, merchant.ID, byEmail.ID)

	taken, err := repo.DomainTaken(ctx, "shop.example.com", "")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.DomainTaken(ctx, "shop.example.com", merchant.ID)
	require.NoError(t, err)
	assert.False(t, taken)
}
