package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func stripeEvent(t *testing.T, id, eventType string, object any) []byte {
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
	return payload
}

func sign(payload []byte, secret string) string {
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestStripeWebhookSource_Verify(t *testing.T) {
	src := NewStripeWebhookSource(testWebhookSecret)
	payload := stripeEvent(t, "evt_1", EventPaymentIntentSucceeded, map[string]any{"id": "pi_1"})

	t.Run("valid signature", func(t *testing.T) {
		evt, err := src.Verify(payload, sign(payload, testWebhookSecret))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", evt.ID)
		assert.Equal(t, StripeSourceName, evt.Source)
		assert.Equal(t, EventPaymentIntentSucceeded, evt.Type)
		assert.JSONEq(t, `{"id":"pi_1"}`, string(evt.Data))
		assert.Equal(t, "stripe:evt_1", evt.IdempotencyKey())
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := src.Verify(payload, sign(payload, "whsec_other"))
		assert.ErrorIs(t, err, shared.ErrSignatureInvalid)
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := sign(payload, testWebhookSecret)
		tampered := stripeEvent(t, "evt_1", EventPaymentIntentSucceeded, map[string]any{"id": "pi_2"})
		_, err := src.Verify(tampered, header)
		assert.ErrorIs(t, err, shared.ErrSignatureInvalid)
	})

	t.Run("expired timestamp", func(t *testing.T) {
		signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
			Payload:   payload,
			Secret:    testWebhookSecret,
			Timestamp: time.Now().Add(-time.Hour),
		})
		_, err := src.Verify(payload, signed.Header)
		assert.ErrorIs(t, err, shared.ErrSignatureInvalid)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := src.Verify(payload, "")
		assert.ErrorIs(t, err, shared.ErrSignatureInvalid)
	})

	t.Run("unconfigured secret", func(t *testing.T) {
		_, err := NewStripeWebhookSource("").Verify(payload, sign(payload, ""))
		assert.ErrorIs(t, err, shared.ErrSignatureInvalid)
	})
}

func TestStripeWebhookSource_ToDomainEvent_PaymentIntent(t *testing.T) {
	src := NewStripeWebhookSource(testWebhookSecret)
	orderID := uuid.New()

	tests := []struct {
		eventType string
		object    map[string]any
		want      payment.Status
	}{
		{EventPaymentIntentSucceeded, map[string]any{"status": "succeeded"}, payment.StatusSucceeded},
		{EventPaymentIntentProcessing, map[string]any{"status": "processing"}, payment.StatusProcessing},
		{EventPaymentIntentCanceled, map[string]any{"status": "canceled"}, payment.StatusCancelled},
		{EventPaymentIntentFailed, map[string]any{
			"status":             "requires_payment_method",
			"last_payment_error": map[string]any{"code": "card_declined", "message": "declined"},
		}, payment.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			tt.object["id"] = "pi_1"
			tt.object["amount"] = 4999
			tt.object["currency"] = "usd"
			tt.object["metadata"] = map[string]string{payment.MetadataOrderID: orderID.String()}
			payload := stripeEvent(t, "evt_"+tt.eventType, tt.eventType, tt.object)

			evt, err := src.Verify(payload, sign(payload, testWebhookSecret))
			require.NoError(t, err)
			de, err := src.ToDomainEvent(evt)
			require.NoError(t, err)

			assert.Equal(t, webhook.KindPaymentStatus, de.Kind)
			assert.Equal(t, "pi_1", de.PaymentID)
			assert.Equal(t, tt.want, de.PaymentStatus)
			assert.Equal(t, int64(4999), de.Amount)
			assert.Equal(t, "usd", de.Currency)
			assert.Equal(t, orderID.String(), de.Metadata[payment.MetadataOrderID])
			if tt.want == payment.StatusFailed {
				assert.Equal(t, "card_declined", de.FailureCode)
				assert.Equal(t, "declined", de.FailureMessage)
			}
		})
	}
}

func TestStripeWebhookSource_ToDomainEvent_ChargeRefunded(t *testing.T) {
	src := NewStripeWebhookSource(testWebhookSecret)
	localID := uuid.New()
	payload := stripeEvent(t, "evt_refund", EventChargeRefunded, map[string]any{
		"id":              "ch_1",
		"object":          "charge",
		"amount":          4999,
		"amount_refunded": 2000,
		"currency":        "usd",
		"payment_intent":  "pi_1",
		"refunds": map[string]any{
			"object": "list",
			"data": []map[string]any{{
				"id":       "re_1",
				"object":   "refund",
				"amount":   2000,
				"status":   "succeeded",
				"metadata": map[string]string{payment.MetadataRefundID: localID.String()},
			}},
		},
	})

	evt, err := src.Verify(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	de, err := src.ToDomainEvent(evt)
	require.NoError(t, err)

	assert.Equal(t, webhook.KindRefund, de.Kind)
	assert.Equal(t, "pi_1", de.PaymentID)
	assert.Equal(t, int64(2000), de.AmountRefunded)
	require.Len(t, de.Refunds, 1)
	assert.Equal(t, "re_1", de.Refunds[0].GatewayRefundID)
	assert.Equal(t, localID, de.Refunds[0].LocalRefundID)
	assert.Equal(t, int64(2000), de.Refunds[0].Amount)
	assert.Equal(t, payment.RefundStatusSucceeded, de.Refunds[0].Status)
}

func TestStripeWebhookSource_ToDomainEvent_RefundUpdated(t *testing.T) {
	src := NewStripeWebhookSource(testWebhookSecret)
	evt := &webhook.Event{
		ID:     "evt_2",
		Source: StripeSourceName,
		Type:   EventRefundUpdated,
		Data:   []byte(`{"id":"re_1","object":"refund","amount":500,"status":"failed","failure_reason":"expired_or_canceled_card","payment_intent":"pi_1"}`),
	}
	de, err := src.ToDomainEvent(evt)
	require.NoError(t, err)
	assert.Equal(t, webhook.KindRefund, de.Kind)
	assert.Equal(t, int64(0), de.AmountRefunded)
	require.Len(t, de.Refunds, 1)
	assert.Equal(t, payment.RefundStatusFailed, de.Refunds[0].Status)
	assert.Equal(t, "expired_or_canceled_card", de.Refunds[0].FailureReason)
}

func TestStripeWebhookSource_ToDomainEvent_Rejections(t *testing.T) {
	src := NewStripeWebhookSource(testWebhookSecret)

	de, err := src.ToDomainEvent(&webhook.Event{Type: "customer.created", Data: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, webhook.KindIgnored, de.Kind)

	_, err = src.ToDomainEvent(&webhook.Event{Type: EventChargeRefunded, Data: []byte(`{"id":"ch_1"}`)})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = src.ToDomainEvent(&webhook.Event{Type: EventPaymentIntentSucceeded, Data: []byte(`not json`)})
	assert.ErrorIs(t, err, shared.ErrValidation)
}
