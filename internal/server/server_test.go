package server_test

import (
	"affiliate-commission/internal/model"
	"affiliate-commission/internal/repository"
	"affiliate-commission/internal/server"
	"affiliate-commission/internal/service"
	"affiliate-commission/internal/testutil"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type testServer struct {
	db    *gorm.DB
	queue *testutil.FakeQueue
	srv   *server.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := zaptest.NewLogger(t)
	db := testutil.NewTestDB(t)
	queue := &testutil.FakeQueue{}

	userRepo := repository.NewUserRepository(db)
	merchantRepo := repository.NewMerchantRepository(db)
	affiliateRepo := repository.NewAffiliateRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	merchants := service.NewMerchantService(db, userRepo, merchantRepo, log)
	affiliates := service.NewAffiliateService(db, userRepo, affiliateRepo, &testutil.FakeDiscounts{}, &testutil.FakePublisher{}, log)
	orders := service.NewOrderService(db, merchantRepo, userRepo, affiliateRepo, orderRepo, affiliates, decimal.RequireFromString("0.10"), log)
	payouts := service.NewPayoutService(affiliateRepo, orderRepo, queue, &testutil.FakeGateway{},
		service.PayoutOptions{MaxAttempts: 3, ProcessingLease: time.Minute}, log)

	return &testServer{
		db:    db,
		queue: queue,
		srv:   server.NewServer(orders, merchants, affiliates, payouts, log),
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string, auth ...string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

const orderJSON = `{
	"order_id": "1001",
	"subtotal_price": 100.00,
	"merchant_domain": "shop.example.com",
	"discount_code": "SPRING",
	"customer_email": "jane@example.com",
	"customer_name": "Jane"
}`

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestOrderWebhook(t *testing.T) {
	ts := newTestServer(t)
	testutil.CreateMerchant(t, ts.db, "shop.example.com", "owner@shop.example.com", "key")

	rec := ts.do(t, http.MethodPost, "/api/webhook/orders", orderJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"ok","result":"created"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/webhook/orders", orderJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","result":"updated"}`, rec.Body.String())

	assert.EqualValues(t, 1, testutil.Count(t, ts.db, &model.Order{}))
	assert.Equal(t, "10.00", testutil.ReloadOrder(t, ts.db, "1001").CommissionOwed.StringFixed(2))
}

func TestOrderWebhook_ValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	testutil.CreateMerchant(t, ts.db, "shop.example.com", "owner@shop.example.com", "key")

	rec := ts.do(t, http.MethodPost, "/api/webhook/orders", `{"order_id":"1","subtotal_price":"x","merchant_domain":"shop.example.com","discount_code":"D","customer_email":"jane@example.com","customer_name":"Jane"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "validation failed", body["message"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"field": "subtotal_price", "message": "must be numeric"},
	}, body["errors"])
}

func TestOrderWebhook_UnknownMerchant(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/webhook/orders", orderJSON)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, testutil.Count(t, ts.db, &model.User{}))
}

func TestOrderWebhook_MalformedBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/webhook/orders", `{"order_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMerchantRegistration(t *testing.T) {
	ts := newTestServer(t)
	payload := `{"domain":"shop.example.com","name":"Shop","email":"owner@example.com","api_key":"secret"}`

	rec := ts.do(t, http.MethodPost, "/api/merchants", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "shop.example.com", decode(t, rec)["domain"])

	rec = ts.do(t, http.MethodPost, "/api/merchants", payload)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Len(t, decode(t, rec)["errors"], 2)
}

func TestMerchantRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	testutil.CreateMerchant(t, ts.db, "shop.example.com", "owner@shop.example.com", "key")
	payload := `{"email":"jane@example.com","name":"Jane","commission_rate":"0.2"}`

	rec := ts.do(t, http.MethodPost, "/api/merchant/affiliates", payload)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/merchant/affiliates", payload, "owner@shop.example.com", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/merchant/affiliates", payload, "owner@shop.example.com", "key")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "0.2", body["commission_rate"])
	assert.Equal(t, "AFF-1", body["discount_code"])

	rec = ts.do(t, http.MethodPost, "/api/merchant/affiliates", payload, "owner@shop.example.com", "key")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEnrollAffiliate_InvalidRate(t *testing.T) {
	ts := newTestServer(t)
	testutil.CreateMerchant(t, ts.db, "shop.example.com", "owner@shop.example.com", "key")

	rec := ts.do(t, http.MethodPost, "/api/merchant/affiliates",
		`{"email":"jane@example.com","name":"Jane","commission_rate":2}`,
		"owner@shop.example.com", "key")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"field": "commission_rate", "message": "must be between 0 and 1"},
	}, decode(t, rec)["errors"])
}

func TestPayoutEndpoint(t *testing.T) {
	ts := newTestServer(t)
	merchant := testutil.CreateMerchant(t, ts.db, "shop.example.com", "owner@shop.example.com", "key")
	affiliate := testutil.CreateAffiliate(t, ts.db, merchant, "jane@example.com", decimal.RequireFromString("0.1"))
	testutil.CreateOrder(t, ts.db, affiliate, "A", "10.00")
	testutil.CreateOrder(t, ts.db, affiliate, "B", "2.00")

	rec := ts.do(t, http.MethodPost, "/api/merchant/affiliates/"+affiliate.ID+"/payout", "", "owner@shop.example.com", "key")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decode(t, rec)["enqueued"])
	assert.Len(t, ts.queue.Drain(), 2)

	rec = ts.do(t, http.MethodPost, "/api/merchant/affiliates/unknown/payout", "", "owner@shop.example.com", "key")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPayoutResetEndpoint(t *testing.T) {
	ts := newTestServer(t)
	merchant := testutil.CreateMerchant(t, ts.db, "shop.example.com", "owner@shop.example.com", "key")
	affiliate := testutil.CreateAffiliate(t, ts.db, merchant, "jane@example.com", decimal.RequireFromString("0.1"))
	testutil.CreateOrder(t, ts.db, affiliate, "A", "10.00")
	require.NoError(t, ts.db.Model(&model.Order{}).Where("id = ?", "A").
		Updates(map[string]interface{}{"payout_flagged": true, "payout_attempts": 3}).Error)

	rec := ts.do(t, http.MethodPost, "/api/merchant/orders/A/payout-reset", "", "owner@shop.example.com", "key")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, testutil.ReloadOrder(t, ts.db, "A").PayoutFlagged)

	rec = ts.do(t, http.MethodPost, "/api/merchant/orders/A/payout-reset", "", "owner@shop.example.com", "key")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateMerchant(t *testing.T) {
	ts := newTestServer(t)
	testutil.CreateMerchant(t, ts.db, "shop.example.com", "owner@shop.example.com", "key")

	rec := ts.do(t, http.MethodPut, "/api/merchant",
		`{"domain":"new.example.com","name":"New","email":"owner@shop.example.com","api_key":"key2"}`,
		"owner@shop.example.com", "key")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "new.example.com", decode(t, rec)["domain"])

	rec = ts.do(t, http.MethodPut, "/api/merchant", `{}`, "owner@shop.example.com", "key2")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
