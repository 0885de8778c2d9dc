package payment_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	apporder "github.com/storefront/backend/internal/application/order"
	apppayment "github.com/storefront/backend/internal/application/payment"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	gateway  *testutil.MockGateway
	orders   *apporder.Service
	payments *apppayment.Service
	store    testutil.Fixture
	order    *apporder.OrderResponse
}

// newFixture places a 49.99 order with no tax or shipping
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	ledgerStore := testutil.NewLedgerStore(t, db)
	gw := testutil.NewMockGateway(t)
	f := &fixture{
		gateway:  gw,
		orders:   apporder.NewService(ledgerStore, gw, nil),
		payments: apppayment.NewService(ledgerStore, gw, nil),
		store:    testutil.SeedStore(t, db, testutil.StoreOptions{}),
	}
	variant := testutil.SeedVariant(t, db, f.store, testutil.VariantOptions{Price: 4999, Stock: 5})
	o, err := f.orders.CreateOrder(context.Background(), f.store.StoreID, apporder.CreateOrderRequest{
		CustomerID: f.store.CustomerID,
		Items:      []apporder.CreateOrderItemInput{{VariantID: variant, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(4999), o.GrandTotal)
	f.order = o
	return f
}

func (f *fixture) intent(id string, status payment.Status) *payment.Intent {
	return testutil.Intent(id, status, f.order.GrandTotal, f.order.Currency, f.order.ID, f.order.StoreID)
}

func (f *fixture) createIntent(t *testing.T, id string) *apppayment.PaymentResponse {
	t.Helper()
	f.gateway.On("CreateIntent", mock.Anything, mock.AnythingOfType("payment.CreateIntentRequest")).
		Return(f.intent(id, payment.StatusPending), nil).Once()
	resp, err := f.payments.CreateIntent(context.Background(), f.store.StoreID, f.order.ID, apppayment.CreateIntentRequest{})
	require.NoError(t, err)
	return resp
}

// settle creates and confirms an intent so the order is paid
func (f *fixture) settle(t *testing.T, id string) {
	t.Helper()
	f.createIntent(t, id)
	f.gateway.On("ConfirmIntent", mock.Anything, id, "pm_card").
		Return(f.intent(id, payment.StatusSucceeded), nil).Once()
	resp, err := f.payments.ConfirmIntent(context.Background(), f.store.StoreID, id, apppayment.ConfirmIntentRequest{PaymentMethod: "pm_card"})
	require.NoError(t, err)
	require.Equal(t, string(payment.StatusSucceeded), resp.Status)
}

func TestCreateIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gateway.On("CreateIntent", mock.Anything, mock.MatchedBy(func(req payment.CreateIntentRequest) bool {
		return req.Amount == 4999 &&
			req.Currency == "usd" &&
			req.IdempotencyKey == fmt.Sprintf("order:%s:attempt:1", f.order.ID) &&
			req.Metadata[payment.MetadataOrderID] == f.order.ID.String()
	})).Return(f.intent("pi_1", payment.StatusPending), nil).Once()

	first, err := f.payments.CreateIntent(ctx, f.store.StoreID, f.order.ID, apppayment.CreateIntentRequest{})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", first.ID)
	assert.Equal(t, "pi_1_secret", first.ClientSecret)
	assert.Equal(t, string(payment.StatusPending), first.Status)

	second, err := f.payments.CreateIntent(ctx, f.store.StoreID, f.order.ID, apppayment.CreateIntentRequest{})
	require.NoError(t, err, "an open intent is reused without calling the gateway")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ClientSecret, second.ClientSecret)

	list, err := f.payments.ListPaymentsForOrder(ctx, f.store.StoreID, f.order.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Empty(t, list[0].ClientSecret, "secrets are only returned on creation")
}

func TestCreateIntent_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("paid order", func(t *testing.T) {
		f := newFixture(t)
		f.settle(t, "pi_paid")
		_, err := f.payments.CreateIntent(ctx, f.store.StoreID, f.order.ID, apppayment.CreateIntentRequest{})
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("other store", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.payments.CreateIntent(ctx, uuid.New(), f.order.ID, apppayment.CreateIntentRequest{})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("gateway failure", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.On("CreateIntent", mock.Anything, mock.Anything).
			Return(nil, shared.NewGatewayError("create intent", assert.AnError)).Once()
		_, err := f.payments.CreateIntent(ctx, f.store.StoreID, f.order.ID, apppayment.CreateIntentRequest{})
		assert.ErrorIs(t, err, shared.ErrGateway)

		list, err := f.payments.ListPaymentsForOrder(ctx, f.store.StoreID, f.order.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestConfirmIntent_SucceededConfirmsOrder(t *testing.T) {
	f := newFixture(t)
	f.settle(t, "pi_ok")

	o, err := f.orders.GetOrder(context.Background(), f.store.StoreID, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusConfirmed), o.Status)
	assert.Equal(t, string(payment.StatusSucceeded), o.PaymentStatus)
	assert.NotNil(t, o.ConfirmedAt)

	_, err = f.payments.ConfirmIntent(context.Background(), f.store.StoreID, "pi_ok", apppayment.ConfirmIntentRequest{PaymentMethod: "pm_card"})
	assert.ErrorIs(t, err, shared.ErrConflict, "a settled payment cannot be confirmed again")
}

func TestConfirmIntent_FailureKeepsOrderPending(t *testing.T) {
	f := newFixture(t)
	f.createIntent(t, "pi_declined")

	declined := f.intent("pi_declined", payment.StatusFailed)
	declined.FailureCode = "card_declined"
	declined.FailureMessage = "Your card was declined."
	f.gateway.On("ConfirmIntent", mock.Anything, "pi_declined", "pm_bad").Return(declined, nil).Once()

	resp, err := f.payments.ConfirmIntent(context.Background(), f.store.StoreID, "pi_declined", apppayment.ConfirmIntentRequest{PaymentMethod: "pm_bad"})
	require.NoError(t, err)
	assert.Equal(t, string(payment.StatusFailed), resp.Status)
	assert.Equal(t, "card_declined", resp.FailureCode)

	o, err := f.orders.GetOrder(context.Background(), f.store.StoreID, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusPending), o.Status)
	assert.True(t, o.PaymentFailed)
}

func TestRequestRefund_Partial(t *testing.T) {
	f := newFixture(t)
	f.settle(t, "pi_refund")
	ctx := context.Background()

	f.gateway.On("Refund", mock.Anything, mock.MatchedBy(func(req payment.RefundRequest) bool {
		return req.PaymentID == "pi_refund" && req.Amount == 2000 &&
			req.IdempotencyKey == "refund:"+req.RefundID.String()
	})).Return(&payment.GatewayRefund{
		ID: "re_1", PaymentID: "pi_refund", Amount: 2000, Currency: "usd", Status: payment.RefundStatusSucceeded,
	}, nil).Once()

	amount := int64(2000)
	refund, err := f.payments.RequestRefund(ctx, f.store.StoreID, "pi_refund", apppayment.RefundRequest{Amount: &amount, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), refund.Amount)
	assert.Equal(t, "re_1", refund.GatewayRefundID)
	assert.Equal(t, string(payment.RefundStatusSucceeded), refund.Status)
	assert.NotNil(t, refund.CompletedAt)

	remaining, err := f.payments.RemainingRefundable(ctx, f.store.StoreID, "pi_refund")
	require.NoError(t, err)
	assert.Equal(t, int64(2999), remaining)

	tooMuch := int64(3000)
	_, err = f.payments.RequestRefund(ctx, f.store.StoreID, "pi_refund", apppayment.RefundRequest{Amount: &tooMuch})
	assert.ErrorIs(t, err, shared.ErrValidation)

	refunds, err := f.payments.ListRefunds(ctx, f.store.StoreID, "pi_refund")
	require.NoError(t, err)
	assert.Len(t, refunds, 1)
}

func TestRequestRefund_FullByDefault(t *testing.T) {
	f := newFixture(t)
	f.settle(t, "pi_full")

	f.gateway.On("Refund", mock.Anything, mock.MatchedBy(func(req payment.RefundRequest) bool {
		return req.Amount == 4999
	})).Return(&payment.GatewayRefund{ID: "re_full", Amount: 4999, Status: payment.RefundStatusPending}, nil).Once()

	refund, err := f.payments.RequestRefund(context.Background(), f.store.StoreID, "pi_full", apppayment.RefundRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(4999), refund.Amount)
	assert.Equal(t, string(payment.RefundStatusPending), refund.Status)

	remaining, err := f.payments.RemainingRefundable(context.Background(), f.store.StoreID, "pi_full")
	require.NoError(t, err)
	assert.Zero(t, remaining, "a pending refund still claims its amount")
}

func TestRequestRefund_GatewayOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("rejection fails the refund", func(t *testing.T) {
		f := newFixture(t)
		f.settle(t, "pi_rej")
		f.gateway.On("Refund", mock.Anything, mock.Anything).
			Return(nil, shared.NewGatewayError("refund", fmt.Errorf("stripe: refund: %w: %w", payment.ErrRejected, assert.AnError))).Once()

		_, err := f.payments.RequestRefund(ctx, f.store.StoreID, "pi_rej", apppayment.RefundRequest{})
		assert.ErrorIs(t, err, shared.ErrGateway)
		assert.ErrorIs(t, err, payment.ErrRejected)

		refunds, err := f.payments.ListRefunds(ctx, f.store.StoreID, "pi_rej")
		require.NoError(t, err)
		require.Len(t, refunds, 1)
		assert.Equal(t, string(payment.RefundStatusFailed), refunds[0].Status)

		remaining, err := f.payments.RemainingRefundable(ctx, f.store.StoreID, "pi_rej")
		require.NoError(t, err)
		assert.Equal(t, int64(4999), remaining)
	})

	t.Run("timeout leaves the refund pending", func(t *testing.T) {
		f := newFixture(t)
		f.settle(t, "pi_slow")
		f.gateway.On("Refund", mock.Anything, mock.Anything).
			Return(nil, shared.NewGatewayError("refund", fmt.Errorf("stripe: refund: %w", context.DeadlineExceeded))).Once()

		_, err := f.payments.RequestRefund(ctx, f.store.StoreID, "pi_slow", apppayment.RefundRequest{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		refunds, err := f.payments.ListRefunds(ctx, f.store.StoreID, "pi_slow")
		require.NoError(t, err)
		require.Len(t, refunds, 1)
		assert.Equal(t, string(payment.RefundStatusPending), refunds[0].Status)
	})

	for name, cause := range map[string]error{
		"aborted call leaves the refund pending":    context.Canceled,
		"transport error leaves the refund pending": errors.New("connection reset by peer"),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.settle(t, "pi_unknown")
			f.gateway.On("Refund", mock.Anything, mock.Anything).
				Return(nil, shared.NewGatewayError("refund", fmt.Errorf("stripe: failed to refund: %w", cause))).Once()

			_, err := f.payments.RequestRefund(ctx, f.store.StoreID, "pi_unknown", apppayment.RefundRequest{})
			assert.ErrorIs(t, err, shared.ErrGateway)

			refunds, err := f.payments.ListRefunds(ctx, f.store.StoreID, "pi_unknown")
			require.NoError(t, err)
			require.Len(t, refunds, 1)
			assert.Equal(t, string(payment.RefundStatusPending), refunds[0].Status)
			assert.Empty(t, refunds[0].FailureReason)

			remaining, err := f.payments.RemainingRefundable(ctx, f.store.StoreID, "pi_unknown")
			require.NoError(t, err)
			assert.Equal(t, int64(0), remaining, "the open refund still reserves the amount")
		})
	}

	t.Run("unsettled payment", func(t *testing.T) {
		f := newFixture(t)
		f.createIntent(t, "pi_open")
		_, err := f.payments.RequestRefund(ctx, f.store.StoreID, "pi_open", apppayment.RefundRequest{})
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		f := newFixture(t)
		f.settle(t, "pi_zero")
		zero := int64(0)
		_, err := f.payments.RequestRefund(ctx, f.store.StoreID, "pi_zero", apppayment.RefundRequest{Amount: &zero})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestGetPayment_IsStoreScoped(t *testing.T) {
	f := newFixture(t)
	f.createIntent(t, "pi_scoped")

	_, err := f.payments.GetPayment(context.Background(), uuid.New(), "pi_scoped")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.payments.GetPayment(context.Background(), f.store.StoreID, "pi_missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
