package reconciliation_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/application/ledger"
	apporder "github.com/storefront/backend/internal/application/order"
	apppayment "github.com/storefront/backend/internal/application/payment"
	"github.com/storefront/backend/internal/application/reconciliation"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/storefront/backend/internal/infrastructure/cache"
	"github.com/storefront/backend/internal/infrastructure/gateway"
	"github.com/storefront/backend/internal/infrastructure/webhooks"
	"github.com/storefront/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"
)

const (
	stripeSecret  = "whsec_engine_test"
	carrierSecret = "carrier_secret"
)

type recordedWebhook struct {
	source, eventType, outcome string
}

type metricsRecorder struct {
	mu      sync.Mutex
	records []recordedWebhook
}

func (m *metricsRecorder) RecordWebhook(_ context.Context, source, eventType, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, recordedWebhook{source, eventType, outcome})
}

type harness struct {
	store    ledger.Store
	gateway  *testutil.MockGateway
	orders   *apporder.Service
	payments *apppayment.Service
	claims   *cache.InMemoryIdempotencyStore
	metrics  *metricsRecorder
	engine   *reconciliation.Engine
	fixture  testutil.Fixture
	order    *apporder.OrderResponse
}

// newHarness places a 49.99 order and wires an engine with a stripe and a
// carrier source
func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	store := testutil.NewLedgerStore(t, db)
	gw := testutil.NewMockGateway(t)
	h := &harness{
		store:    store,
		gateway:  gw,
		orders:   apporder.NewService(store, gw, nil),
		payments: apppayment.NewService(store, gw, nil),
		claims:   cache.NewInMemoryIdempotencyStore(),
		metrics:  &metricsRecorder{},
		fixture:  testutil.SeedStore(t, db, testutil.StoreOptions{}),
	}
	t.Cleanup(func() { _ = h.claims.Close() })

	h.engine = reconciliation.NewEngine(reconciliation.EngineConfig{
		Sources: []webhook.Source{
			gateway.NewStripeWebhookSource(stripeSecret),
			webhooks.NewCarrierSource("carrier", carrierSecret),
		},
		Store:   store,
		Gateway: gw,
		Orders:  h.orders,
		Claims:  h.claims,
		Metrics: h.metrics,
	})

	variant := testutil.SeedVariant(t, db, h.fixture, testutil.VariantOptions{Price: 4999, Stock: 5})
	o, err := h.orders.CreateOrder(context.Background(), h.fixture.StoreID, apporder.CreateOrderRequest{
		CustomerID: h.fixture.CustomerID,
		Items:      []apporder.CreateOrderItemInput{{VariantID: variant, Quantity: 1}},
	})
	require.NoError(t, err)
	h.order = o
	return h
}

func (h *harness) openIntent(t *testing.T, id string) {
	t.Helper()
	h.gateway.On("CreateIntent", mock.Anything, mock.Anything).
		Return(testutil.Intent(id, payment.StatusPending, h.order.GrandTotal, h.order.Currency, h.order.ID, h.order.StoreID), nil).Once()
	_, err := h.payments.CreateIntent(context.Background(), h.fixture.StoreID, h.order.ID, apppayment.CreateIntentRequest{})
	require.NoError(t, err)
}

func (h *harness) orderStatus(t *testing.T) *apporder.OrderResponse {
	t.Helper()
	o, err := h.orders.GetOrder(context.Background(), h.fixture.StoreID, h.order.ID)
	require.NoError(t, err)
	return o
}

func stripeEvent(t *testing.T, id, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id":      id,
		"object":  "event",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]json.RawMessage{"object": raw},
	})
	require.NoError(t, err)
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    stripeSecret,
		Timestamp: time.Now(),
	})
	return payload, signed.Header
}

func (h *harness) intentEvent(t *testing.T, eventID, eventType, intentID, status string, withOrder bool) ([]byte, string) {
	t.Helper()
	object := map[string]any{
		"id":       intentID,
		"object":   "payment_intent",
		"amount":   h.order.GrandTotal,
		"currency": h.order.Currency,
		"status":   status,
	}
	if withOrder {
		object["metadata"] = map[string]string{
			payment.MetadataOrderID: h.order.ID.String(),
			payment.MetadataStoreID: h.order.StoreID.String(),
		}
	}
	return stripeEvent(t, eventID, eventType, object)
}

func (h *harness) carrierEvent(t *testing.T, eventID, eventType string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":       eventID,
		"type":     eventType,
		"order_id": h.order.ID.String(),
		"data":     map[string]any{"carrier": "ups", "tracking_number": "1Z999"},
	})
	require.NoError(t, err)
	return payload, webhooks.Sign(carrierSecret, payload)
}

func TestProcess_DoubleDeliveryAppliesOnce(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "pi_1")
	ctx := context.Background()
	payload, sig := h.intentEvent(t, "evt_1", gateway.EventPaymentIntentSucceeded, "pi_1", "succeeded", true)

	first, err := h.engine.Process(ctx, gateway.StripeSourceName, payload, sig)
	require.NoError(t, err)
	assert.True(t, first.Processed)
	assert.Equal(t, webhook.OutcomeApplied, first.Outcome)
	assert.Equal(t, "evt_1", first.EventID)

	o := h.orderStatus(t)
	assert.Equal(t, string(order.StatusConfirmed), o.Status)
	confirmedAt := o.ConfirmedAt

	second, err := h.engine.Process(ctx, gateway.StripeSourceName, payload, sig)
	require.NoError(t, err)
	assert.True(t, second.Processed)
	assert.Equal(t, webhook.OutcomeAlreadyApplied, second.Outcome)

	// A distinct event reporting the same status is absorbed by the ledger
	other, otherSig := h.intentEvent(t, "evt_2", gateway.EventPaymentIntentSucceeded, "pi_1", "succeeded", true)
	third, err := h.engine.Process(ctx, gateway.StripeSourceName, other, otherSig)
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeAlreadyApplied, third.Outcome)

	o = h.orderStatus(t)
	assert.Equal(t, string(order.StatusConfirmed), o.Status)
	assert.Equal(t, confirmedAt.Unix(), o.ConfirmedAt.Unix())

	receipts, err := h.store.Repositories().Receipts().FindByOrder(ctx, h.order.ID)
	require.NoError(t, err)
	assert.Len(t, receipts, 2, "one receipt per distinct event")
}

func TestProcess_InvalidSignatureChangesNothing(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "pi_sig")
	payload, _ := h.intentEvent(t, "evt_sig", gateway.EventPaymentIntentSucceeded, "pi_sig", "succeeded", true)

	_, err := h.engine.Process(context.Background(), gateway.StripeSourceName, payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, shared.ErrSignatureInvalid)

	assert.Equal(t, string(order.StatusPending), h.orderStatus(t).Status)
	p, err := h.payments.GetPayment(context.Background(), h.fixture.StoreID, "pi_sig")
	require.NoError(t, err)
	assert.Equal(t, string(payment.StatusPending), p.Status)

	receipts, err := h.store.Repositories().Receipts().FindByOrder(context.Background(), h.order.ID)
	require.NoError(t, err)
	assert.Empty(t, receipts)

	require.Len(t, h.metrics.records, 1)
	assert.Equal(t, "signature_invalid", h.metrics.records[0].outcome)
}

func TestProcess_UnknownSource(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Process(context.Background(), "paypal", []byte(`{}`), "sig")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, ok := h.engine.Source("paypal")
	assert.False(t, ok)
	src, ok := h.engine.Source("carrier")
	require.True(t, ok)
	assert.Equal(t, webhooks.CarrierSignatureHeader, src.SignatureHeader())
}

func TestProcess_InFlightDeliveryConflicts(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "pi_busy")
	payload, sig := h.intentEvent(t, "evt_busy", gateway.EventPaymentIntentSucceeded, "pi_busy", "succeeded", true)

	claim, err := h.claims.Claim(context.Background(), "stripe:evt_busy", time.Minute)
	require.NoError(t, err)
	require.Equal(t, shared.ClaimAcquired, claim)

	_, err = h.engine.Process(context.Background(), gateway.StripeSourceName, payload, sig)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, string(order.StatusPending), h.orderStatus(t).Status)
}

// racingStore makes order-locked work lose an optimistic lock race after it
// ran, so the transaction rolls back the way a concurrent writer would force
type racingStore struct {
	ledger.Store
	races int
}

func (s *racingStore) WithinOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ledger.Repositories, *order.Order) error) error {
	return s.Store.WithinOrderLock(ctx, orderID, func(repos ledger.Repositories, o *order.Order) error {
		if err := fn(repos, o); err != nil {
			return err
		}
		if s.races > 0 {
			s.races--
			return shared.NewStaleVersionError("order", orderID)
		}
		return nil
	})
}

func TestProcess_LostVersionRaceIsRedelivered(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "pi_race")
	engine := reconciliation.NewEngine(reconciliation.EngineConfig{
		Sources: []webhook.Source{gateway.NewStripeWebhookSource(stripeSecret)},
		Store:   &racingStore{Store: h.store, races: 1},
		Gateway: h.gateway,
		Orders:  h.orders,
		Claims:  h.claims,
		Metrics: h.metrics,
	})
	ctx := context.Background()
	payload, sig := h.intentEvent(t, "evt_race", gateway.EventPaymentIntentSucceeded, "pi_race", "succeeded", true)

	_, err := engine.Process(ctx, gateway.StripeSourceName, payload, sig)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrRetryable)
	assert.True(t, shared.IsRetryable(err))
	assert.Equal(t, string(order.StatusPending), h.orderStatus(t).Status)
	receipts, err := h.store.Repositories().Receipts().FindByOrder(ctx, h.order.ID)
	require.NoError(t, err)
	assert.Empty(t, receipts)

	result, err := engine.Process(ctx, gateway.StripeSourceName, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeApplied, result.Outcome)
	assert.Equal(t, string(order.StatusConfirmed), h.orderStatus(t).Status)

	outcomes := make([]string, 0, len(h.metrics.records))
	for _, r := range h.metrics.records {
		outcomes = append(outcomes, r.outcome)
	}
	assert.Equal(t, []string{"retry", string(webhook.OutcomeApplied)}, outcomes)
}

func TestProcess_WebhookBeforeIntentCreatesShadowPayment(t *testing.T) {
	h := newHarness(t)
	payload, sig := h.intentEvent(t, "evt_early", gateway.EventPaymentIntentSucceeded, "pi_early", "succeeded", true)

	result, err := h.engine.Process(context.Background(), gateway.StripeSourceName, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeApplied, result.Outcome)

	p, err := h.payments.GetPayment(context.Background(), h.fixture.StoreID, "pi_early")
	require.NoError(t, err)
	assert.Equal(t, string(payment.StatusSucceeded), p.Status)
	assert.Equal(t, int64(4999), p.Amount)
	assert.Equal(t, string(order.StatusConfirmed), h.orderStatus(t).Status)
}

func TestProcess_GatewayEnrichmentFailureIsRedeliverable(t *testing.T) {
	h := newHarness(t)
	payload, sig := h.intentEvent(t, "evt_bare", gateway.EventPaymentIntentSucceeded, "pi_bare", "succeeded", false)
	ctx := context.Background()

	h.gateway.On("GetIntent", mock.Anything, "pi_bare").
		Return(nil, shared.NewGatewayError("get intent", assert.AnError)).Once()

	result, err := h.engine.Process(ctx, gateway.StripeSourceName, payload, sig)
	require.NoError(t, err)
	assert.False(t, result.Processed)
	assert.Equal(t, webhook.OutcomeRejected, result.Outcome)
	assert.Equal(t, string(order.StatusPending), h.orderStatus(t).Status)

	h.gateway.On("GetIntent", mock.Anything, "pi_bare").
		Return(testutil.Intent("pi_bare", payment.StatusSucceeded, h.order.GrandTotal, h.order.Currency, h.order.ID, h.order.StoreID), nil).Once()

	result, err = h.engine.Process(ctx, gateway.StripeSourceName, payload, sig)
	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.Equal(t, webhook.OutcomeApplied, result.Outcome)
	assert.Equal(t, string(order.StatusConfirmed), h.orderStatus(t).Status)
}

func TestProcess_PaymentForCancelledOrderIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.orders.CancelOrder(ctx, h.fixture.StoreID, h.order.ID, "out of stock", "api")
	require.NoError(t, err)

	payload, sig := h.intentEvent(t, "evt_late", gateway.EventPaymentIntentSucceeded, "pi_late", "succeeded", true)
	result, err := h.engine.Process(ctx, gateway.StripeSourceName, payload, sig)
	require.NoError(t, err)
	assert.False(t, result.Processed)
	assert.Equal(t, webhook.OutcomeRejected, result.Outcome)
	assert.Equal(t, string(order.StatusCancelled), h.orderStatus(t).Status)

	again, err := h.engine.Process(ctx, gateway.StripeSourceName, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeAlreadyApplied, again.Outcome, "rejected deliveries are not reprocessed")
}

func TestProcess_ChargeRefunded(t *testing.T) {
	h := newHarness(t)
	h.openIntent(t, "pi_ref")
	ctx := context.Background()

	payload, sig := h.intentEvent(t, "evt_paid", gateway.EventPaymentIntentSucceeded, "pi_ref", "succeeded", true)
	_, err := h.engine.Process(ctx, gateway.StripeSourceName, payload, sig)
	require.NoError(t, err)

	refundID := uuid.New()
	refunded, refundedSig := stripeEvent(t, "evt_refund", gateway.EventChargeRefunded, map[string]any{
		"id":              "ch_1",
		"object":          "charge",
		"amount":          4999,
		"amount_refunded": 2000,
		"currency":        "usd",
		"payment_intent":  "pi_ref",
		"refunds": map[string]any{
			"object": "list",
			"data": []map[string]any{{
				"id":       "re_1",
				"object":   "refund",
				"amount":   2000,
				"status":   "succeeded",
				"metadata": map[string]string{payment.MetadataRefundID: refundID.String()},
			}},
		},
	})

	result, err := h.engine.Process(ctx, gateway.StripeSourceName, refunded, refundedSig)
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeApplied, result.Outcome)

	o := h.orderStatus(t)
	assert.Equal(t, string(order.StatusPartiallyRefunded), o.Status)
	assert.Equal(t, int64(2000), o.RefundedTotal)

	remaining, err := h.payments.RemainingRefundable(ctx, h.fixture.StoreID, "pi_ref")
	require.NoError(t, err)
	assert.Equal(t, int64(2999), remaining)

	refunds, err := h.payments.ListRefunds(ctx, h.fixture.StoreID, "pi_ref")
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, "re_1", refunds[0].GatewayRefundID)
}

func (h *harness) chargeRefunded(t *testing.T, eventID, intentID string, refundID uuid.UUID) ([]byte, string) {
	t.Helper()
	return stripeEvent(t, eventID, gateway.EventChargeRefunded, map[string]any{
		"id":              "ch_" + intentID,
		"object":          "charge",
		"amount":          4999,
		"amount_refunded": 2000,
		"currency":        "usd",
		"payment_intent":  intentID,
		"refunds": map[string]any{
			"object": "list",
			"data": []map[string]any{{
				"id":       "re_" + intentID,
				"object":   "refund",
				"amount":   2000,
				"status":   "succeeded",
				"metadata": map[string]string{payment.MetadataRefundID: refundID.String()},
			}},
		},
	})
}

func TestProcess_ChargeRefundedSettlesLocalRefund(t *testing.T) {
	tests := []struct {
		name        string
		gatewayErr  error
		localStatus payment.RefundStatus
	}{
		{"aborted call", fmt.Errorf("stripe: failed to refund: %w", context.Canceled), payment.RefundStatusPending},
		{"recorded rejection", fmt.Errorf("stripe: refund: %w: %w", payment.ErrRejected, assert.AnError), payment.RefundStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.openIntent(t, "pi_r")
			ctx := context.Background()

			paid, paidSig := h.intentEvent(t, "evt_paid", gateway.EventPaymentIntentSucceeded, "pi_r", "succeeded", true)
			_, err := h.engine.Process(ctx, gateway.StripeSourceName, paid, paidSig)
			require.NoError(t, err)

			h.gateway.On("Refund", mock.Anything, mock.Anything).
				Return(nil, shared.NewGatewayError("refund", tt.gatewayErr)).Once()
			amount := int64(2000)
			_, err = h.payments.RequestRefund(ctx, h.fixture.StoreID, "pi_r", apppayment.RefundRequest{Amount: &amount})
			require.ErrorIs(t, err, shared.ErrGateway)

			local, err := h.payments.ListRefunds(ctx, h.fixture.StoreID, "pi_r")
			require.NoError(t, err)
			require.Len(t, local, 1)
			require.Equal(t, string(tt.localStatus), local[0].Status)

			payload, sig := h.chargeRefunded(t, "evt_refunded", "pi_r", local[0].ID)
			result, err := h.engine.Process(ctx, gateway.StripeSourceName, payload, sig)
			require.NoError(t, err)
			assert.Equal(t, webhook.OutcomeApplied, result.Outcome)

			refunds, err := h.payments.ListRefunds(ctx, h.fixture.StoreID, "pi_r")
			require.NoError(t, err)
			require.Len(t, refunds, 1, "the provider's refund is the local one")
			assert.Equal(t, local[0].ID, refunds[0].ID)
			assert.Equal(t, string(payment.RefundStatusSucceeded), refunds[0].Status)
			assert.Equal(t, "re_pi_r", refunds[0].GatewayRefundID)
			assert.Empty(t, refunds[0].FailureReason)

			p, err := h.payments.GetPayment(ctx, h.fixture.StoreID, "pi_r")
			require.NoError(t, err)
			assert.Equal(t, string(payment.StatusPartiallyRefunded), p.Status)
			assert.Equal(t, int64(2000), p.RefundedAmount)

			remaining, err := h.payments.RemainingRefundable(ctx, h.fixture.StoreID, "pi_r")
			require.NoError(t, err)
			assert.Equal(t, int64(2999), remaining)
		})
	}
}

func TestProcess_CarrierDrivesFulfillment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	storeID := h.fixture.StoreID

	_, err := h.orders.ApplyPaymentResult(ctx, h.order.ID, payment.StatusSucceeded, 0, "webhook:stripe")
	require.NoError(t, err)
	_, err = h.orders.TransitionStatus(ctx, storeID, h.order.ID, order.StatusProcessing, "operator:ops", "")
	require.NoError(t, err)

	delivered, sig := h.carrierEvent(t, "c_1", webhooks.EventShipmentDelivered)
	result, err := h.engine.Process(ctx, "carrier", delivered, sig)
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeApplied, result.Outcome)

	o := h.orderStatus(t)
	assert.Equal(t, string(order.StatusDelivered), o.Status)
	assert.NotNil(t, o.ShippedAt, "delivery implies shipment")

	late, lateSig := h.carrierEvent(t, "c_2", webhooks.EventShipmentInTransit)
	result, err = h.engine.Process(ctx, "carrier", late, lateSig)
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeStale, result.Outcome)
	assert.Equal(t, string(order.StatusDelivered), h.orderStatus(t).Status)
}

func TestProcess_CarrierOnUnpaidOrderIsRejected(t *testing.T) {
	h := newHarness(t)
	payload, sig := h.carrierEvent(t, "c_early", webhooks.EventShipmentInTransit)

	result, err := h.engine.Process(context.Background(), "carrier", payload, sig)
	require.NoError(t, err)
	assert.False(t, result.Processed)
	assert.Equal(t, webhook.OutcomeRejected, result.Outcome)
	assert.Equal(t, string(order.StatusPending), h.orderStatus(t).Status)
}
