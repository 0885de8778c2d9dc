package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apporder "github.com/storefront/backend/internal/application/order"
	apppayment "github.com/storefront/backend/internal/application/payment"
	"github.com/storefront/backend/internal/application/query"
	"github.com/storefront/backend/internal/application/reconciliation"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/storefront/backend/internal/infrastructure/cache"
	"github.com/storefront/backend/internal/infrastructure/gateway"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/storefront/backend/internal/interfaces/http/router"
	"github.com/storefront/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"
	"gorm.io/gorm"
)

const stripeSecret = "whsec_api_test"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
	Meta    *dto.Meta       `json:"meta"`
}

type api struct {
	engine  *gin.Engine
	db      *gorm.DB
	gateway *testutil.MockGateway
	claims  *cache.InMemoryIdempotencyStore
	store   testutil.Fixture
	variant uuid.UUID
}

func newAPI(t *testing.T, limiter *middleware.KeyedLimiter, dbCheck func(context.Context) error) *api {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	ledgerStore := testutil.NewLedgerStore(t, db)
	gw := testutil.NewMockGateway(t)
	claims := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = claims.Close() })

	orders := apporder.NewService(ledgerStore, gw, nil)
	payments := apppayment.NewService(ledgerStore, gw, nil)
	queries := query.NewService(ledgerStore, persistence.NewGormOrderProjections(db), nil)
	engine := reconciliation.NewEngine(reconciliation.EngineConfig{
		Sources: []webhook.Source{gateway.NewStripeWebhookSource(stripeSecret)},
		Store:   ledgerStore,
		Gateway: gw,
		Orders:  orders,
		Claims:  claims,
	})

	if dbCheck == nil {
		dbCheck = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}

	e, err := router.NewEngine(router.Config{
		ServiceName:    "storefront-test",
		CORS:           middleware.DefaultCORSConfig(),
		MaxBodySize:    1 << 20,
		WebhookLimiter: limiter,
	}, router.Handlers{
		Orders:   handler.NewOrderHandler(orders),
		Payments: handler.NewPaymentHandler(payments),
		Queries:  handler.NewQueryHandler(queries),
		Webhooks: handler.NewWebhookHandler(engine),
		System:   handler.NewSystemHandler("storefront", "test", handler.HealthCheck{Name: "database", Check: dbCheck}),
	})
	require.NoError(t, err)

	a := &api{engine: e, db: db, gateway: gw, claims: claims, store: testutil.SeedStore(t, db, testutil.StoreOptions{})}
	a.variant = testutil.SeedVariant(t, db, a.store, testutil.VariantOptions{Price: 4999, Stock: 10})
	return a
}

func (a *api) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.StoreHeader, a.store.StoreID.String())
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func (a *api) createOrder(t *testing.T) apporder.OrderResponse {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"customer_id": a.store.CustomerID,
		"items":       []map[string]any{{"variant_id": a.variant, "quantity": 1}},
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var o apporder.OrderResponse
	decode(t, w, &o)
	return o
}

func signedStripeEvent(t *testing.T, id, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id": id, "object": "event", "type": eventType, "created": time.Now().Unix(),
		"data": map[string]json.RawMessage{"object": raw},
	})
	require.NoError(t, err)
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload: payload, Secret: stripeSecret, Timestamp: time.Now(),
	})
	return payload, signed.Header
}

func TestHealth(t *testing.T) {
	a := newAPI(t, nil, nil)
	w := a.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"healthy"`)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	down := newAPI(t, nil, func(context.Context) error { return errors.New("connection refused") })
	w = down.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestOrders_StoreScope(t *testing.T) {
	a := newAPI(t, nil, nil)

	w := a.do(t, http.MethodGet, "/api/v1/orders", nil, map[string]string{middleware.StoreHeader: ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeMissingStore, decode(t, w, nil).Error.Code)

	o := a.createOrder(t)
	w = a.do(t, http.MethodGet, "/api/v1/orders/"+o.ID.String(), nil, map[string]string{middleware.StoreHeader: uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, decode(t, w, nil).Error.Code)
}

func TestOrders_Lifecycle(t *testing.T) {
	a := newAPI(t, nil, nil)
	o := a.createOrder(t)
	assert.Equal(t, int64(4999), o.GrandTotal)
	assert.Equal(t, 9, testutil.VariantStock(t, a.db, a.variant))
	base := "/api/v1/orders/" + o.ID.String()

	w := a.do(t, http.MethodGet, base, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/orders?page=1&page_size=10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []apporder.OrderResponse
	env := decode(t, w, &list)
	assert.Len(t, list, 1)
	require.NotNil(t, env.Meta)
	assert.Equal(t, int64(1), env.Meta.Total)

	w = a.do(t, http.MethodPost, base+"/status", map[string]string{"status": "shipped"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidTransition, decode(t, w, nil).Error.Code)

	w = a.do(t, http.MethodPatch, base, `{"status":"delivered"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, decode(t, w, nil).Error.Code)

	w = a.do(t, http.MethodPatch, base, `{"metadata":{"gift":"yes"}}`, map[string]string{handler.ActorHeader: "alice"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated apporder.OrderResponse
	decode(t, w, &updated)
	assert.Equal(t, "yes", updated.Metadata["gift"])

	w = a.do(t, http.MethodPost, base+"/cancel", map[string]string{"reason": "changed mind"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 10, testutil.VariantStock(t, a.db, a.variant))

	w = a.do(t, http.MethodGet, base+"/timeline", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var timeline []query.TimelineEntry
	decode(t, w, &timeline)
	require.NotEmpty(t, timeline)
	assert.Equal(t, "cancelled", timeline[len(timeline)-1].ToStatus)
}

func TestOrders_RequestValidation(t *testing.T) {
	a := newAPI(t, nil, nil)

	w := a.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"customer_id": a.store.CustomerID,
		"items":       []map[string]any{{"variant_id": a.variant, "quantity": 0}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w, nil)
	assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)
	assert.NotEmpty(t, env.Error.Details)
	assert.NotEmpty(t, env.Error.RequestID)

	w = a.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/orders?status=lost", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayments_IntentConfirmRefund(t *testing.T) {
	a := newAPI(t, nil, nil)
	o := a.createOrder(t)

	a.gateway.On("CreateIntent", mock.Anything, mock.Anything).
		Return(testutil.Intent("pi_api", payment.StatusPending, o.GrandTotal, o.Currency, o.ID, o.StoreID), nil).Once()
	w := a.do(t, http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/payment-intents", nil, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var intent apppayment.PaymentResponse
	decode(t, w, &intent)
	assert.Equal(t, "pi_api_secret", intent.ClientSecret)

	a.gateway.On("ConfirmIntent", mock.Anything, "pi_api", "pm_card").
		Return(testutil.Intent("pi_api", payment.StatusSucceeded, o.GrandTotal, o.Currency, o.ID, o.StoreID), nil).Once()
	w = a.do(t, http.MethodPost, "/api/v1/payments/pi_api/confirm", map[string]string{"payment_method": "pm_card"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/cancel", map[string]string{"reason": "too late"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	a.gateway.On("Refund", mock.Anything, mock.MatchedBy(func(req payment.RefundRequest) bool { return req.Amount == 2000 })).
		Return(&payment.GatewayRefund{ID: "re_api", Amount: 2000, Status: payment.RefundStatusSucceeded}, nil).Once()
	w = a.do(t, http.MethodPost, "/api/v1/payments/pi_api/refunds", map[string]any{"amount": 2000, "reason": "damaged"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/v1/payments/pi_api/refunds", map[string]any{"amount": 3000}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "only 29.99 remains refundable")

	w = a.do(t, http.MethodGet, "/api/v1/payments/pi_api/refunds", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var refunds []apppayment.RefundResponse
	decode(t, w, &refunds)
	require.Len(t, refunds, 1)
	assert.Equal(t, "re_api", refunds[0].GatewayRefundID)

	w = a.do(t, http.MethodGet, "/api/v1/orders/"+o.ID.String()+"/payments", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var payments []apppayment.PaymentResponse
	decode(t, w, &payments)
	require.Len(t, payments, 1)
	assert.Empty(t, payments[0].ClientSecret)
}

func TestPayments_GatewayFailureIs502(t *testing.T) {
	a := newAPI(t, nil, nil)
	o := a.createOrder(t)

	a.gateway.On("CreateIntent", mock.Anything, mock.Anything).
		Return(nil, shared.NewGatewayError("create intent", errors.New("api_connection_error"))).Once()
	w := a.do(t, http.MethodPost, "/api/v1/orders/"+o.ID.String()+"/payment-intents", nil, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, dto.ErrCodeGateway, decode(t, w, nil).Error.Code)
}

func TestWebhooks(t *testing.T) {
	a := newAPI(t, nil, nil)
	o := a.createOrder(t)
	payload, sig := signedStripeEvent(t, "evt_api", gateway.EventPaymentIntentSucceeded, map[string]any{
		"id": "pi_hook", "object": "payment_intent", "amount": o.GrandTotal, "currency": o.Currency, "status": "succeeded",
		"metadata": map[string]string{
			payment.MetadataOrderID: o.ID.String(),
			payment.MetadataStoreID: o.StoreID.String(),
		},
	})
	hook := func(source string, body []byte, signature string) *httptest.ResponseRecorder {
		return a.do(t, http.MethodPost, "/api/v1/webhooks/"+source, body, map[string]string{
			"Stripe-Signature":     signature,
			middleware.StoreHeader: "",
		})
	}

	w := hook("stripe", payload, "t=1,v1=bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeSignatureInvalid, decode(t, w, nil).Error.Code)

	w = hook("paypal", payload, sig)
	assert.Equal(t, http.StatusNotFound, w.Code)

	claim, err := a.claims.Claim(context.Background(), "stripe:evt_api", time.Minute)
	require.NoError(t, err)
	require.Equal(t, shared.ClaimAcquired, claim)
	w = hook("stripe", payload, sig)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NoError(t, a.claims.Release(context.Background(), "stripe:evt_api"))

	w = hook("stripe", payload, sig)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result reconciliation.Result
	decode(t, w, &result)
	assert.True(t, result.Processed)
	assert.Equal(t, webhook.OutcomeApplied, result.Outcome)

	w = hook("stripe", payload, sig)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &result)
	assert.Equal(t, webhook.OutcomeAlreadyApplied, result.Outcome)

	w = a.do(t, http.MethodGet, "/api/v1/orders/"+o.ID.String(), nil, nil)
	var got apporder.OrderResponse
	decode(t, w, &got)
	assert.Equal(t, "confirmed", got.Status)
}

func TestWebhooks_RateLimitedPerSource(t *testing.T) {
	a := newAPI(t, middleware.NewKeyedLimiter(1, 1), nil)

	w := a.do(t, http.MethodPost, "/api/v1/webhooks/stripe", `{}`, map[string]string{"Stripe-Signature": "t=1,v1=bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/webhooks/stripe", `{}`, map[string]string{"Stripe-Signature": "t=1,v1=bad"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w = a.do(t, http.MethodPost, "/api/v1/webhooks/carrier", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "each source has its own bucket")
}

func TestQueries_AnalyticsAndExport(t *testing.T) {
	a := newAPI(t, nil, nil)
	o := a.createOrder(t)
	today := time.Now().Format("2006-01-02")

	w := a.do(t, http.MethodGet, "/api/v1/orders/analytics?from="+today+"&to="+today, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var analytics query.AnalyticsResponse
	decode(t, w, &analytics)
	assert.Equal(t, int64(1), analytics.OrderCount)
	assert.Equal(t, int64(1), analytics.OrdersByStatus["pending"])

	w = a.do(t, http.MethodGet, "/api/v1/orders/analytics?from=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/orders/export?status=pending", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], o.OrderNumber))

	w = a.do(t, http.MethodGet, "/api/v1/orders/export?status=lost", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"))
}
