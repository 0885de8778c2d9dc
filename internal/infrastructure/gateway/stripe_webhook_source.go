package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/stripe/stripe-go/v81"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"
)

// StripeSourceName is the webhook source name Stripe deliveries are posted under
const StripeSourceName = "stripe"

// Stripe event types reconciled into the ledger
const (
	EventPaymentIntentSucceeded  = "payment_intent.succeeded"
	EventPaymentIntentProcessing = "payment_intent.processing"
	EventPaymentIntentFailed     = "payment_intent.payment_failed"
	EventPaymentIntentCanceled   = "payment_intent.canceled"
	EventChargeRefunded          = "charge.refunded"
	EventChargeRefundUpdated     = "charge.refund.updated"
	EventRefundUpdated           = "refund.updated"
)

var intentEventStatus = map[string]payment.Status{
	EventPaymentIntentSucceeded:  payment.StatusSucceeded,
	EventPaymentIntentProcessing: payment.StatusProcessing,
	EventPaymentIntentFailed:     payment.StatusFailed,
	EventPaymentIntentCanceled:   payment.StatusCancelled,
}

// StripeWebhookSource verifies Stripe-Signature headers and translates
// payment intent and refund events
type StripeWebhookSource struct {
	secret    string
	tolerance time.Duration
}

var _ webhook.Source = (*StripeWebhookSource)(nil)

// NewStripeWebhookSource creates a source verifying deliveries with secret
func NewStripeWebhookSource(secret string) *StripeWebhookSource {
	return &StripeWebhookSource{secret: secret, tolerance: stripewebhook.DefaultTolerance}
}

// Name returns the source name
func (s *StripeWebhookSource) Name() string { return StripeSourceName }

// Kind returns the source family
func (s *StripeWebhookSource) Kind() webhook.SourceKind { return webhook.SourceKindPaymentProvider }

// SignatureHeader returns the header Stripe signs deliveries in
func (s *StripeWebhookSource) SignatureHeader() string { return "Stripe-Signature" }

// Verify checks the signature and timestamp tolerance and parses the event
func (s *StripeWebhookSource) Verify(payload []byte, signature string) (*webhook.Event, error) {
	if s.secret == "" {
		return nil, shared.NewSignatureInvalidError(stripewebhook.ErrNoValidSignature)
	}
	evt, err := stripewebhook.ConstructEventWithOptions(payload, signature, s.secret, stripewebhook.ConstructEventOptions{
		Tolerance:                s.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, shared.NewSignatureInvalidError(err)
	}

	out := &webhook.Event{
		ID:        evt.ID,
		Source:    StripeSourceName,
		Type:      string(evt.Type),
		CreatedAt: time.Unix(evt.Created, 0).UTC(),
	}
	if evt.Data != nil {
		out.Data = evt.Data.Raw
	}
	return out, nil
}

// ToDomainEvent translates a verified Stripe event
func (s *StripeWebhookSource) ToDomainEvent(evt *webhook.Event) (*webhook.DomainEvent, error) {
	if status, ok := intentEventStatus[evt.Type]; ok {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data, &pi); err != nil {
			return nil, shared.NewValidationError("invalid payment intent payload: %v", err)
		}
		if pi.ID == "" {
			return nil, shared.NewValidationError("payment intent payload has no id")
		}
		de := &webhook.DomainEvent{
			Kind:          webhook.KindPaymentStatus,
			PaymentID:     pi.ID,
			PaymentStatus: status,
			Amount:        pi.Amount,
			Currency:      string(pi.Currency),
			Metadata:      pi.Metadata,
		}
		if pi.LastPaymentError != nil {
			de.FailureCode = string(pi.LastPaymentError.Code)
			de.FailureMessage = pi.LastPaymentError.Msg
		}
		return de, nil
	}

	switch evt.Type {
	case EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data, &ch); err != nil {
			return nil, shared.NewValidationError("invalid charge payload: %v", err)
		}
		if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
			return nil, shared.NewValidationError("charge %s carries no payment intent", ch.ID)
		}
		de := &webhook.DomainEvent{
			Kind:           webhook.KindRefund,
			PaymentID:      ch.PaymentIntent.ID,
			Amount:         ch.Amount,
			Currency:       string(ch.Currency),
			AmountRefunded: ch.AmountRefunded,
			Metadata:       ch.Metadata,
		}
		if ch.Refunds != nil {
			for _, r := range ch.Refunds.Data {
				de.Refunds = append(de.Refunds, refundReport(r))
			}
		}
		return de, nil

	case EventChargeRefundUpdated, EventRefundUpdated:
		var r stripe.Refund
		if err := json.Unmarshal(evt.Data, &r); err != nil {
			return nil, shared.NewValidationError("invalid refund payload: %v", err)
		}
		if r.PaymentIntent == nil || r.PaymentIntent.ID == "" {
			return nil, shared.NewValidationError("refund %s carries no payment intent", r.ID)
		}
		return &webhook.DomainEvent{
			Kind:      webhook.KindRefund,
			PaymentID: r.PaymentIntent.ID,
			Currency:  string(r.Currency),
			Refunds:   []webhook.RefundReport{refundReport(&r)},
		}, nil
	}

	return &webhook.DomainEvent{Kind: webhook.KindIgnored}, nil
}

func refundReport(r *stripe.Refund) webhook.RefundReport {
	report := webhook.RefundReport{
		GatewayRefundID: r.ID,
		Amount:          r.Amount,
		Status:          MapRefundStatus(r.Status),
		FailureReason:   string(r.FailureReason),
	}
	if raw, ok := r.Metadata[payment.MetadataRefundID]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			report.LocalRefundID = id
		}
	}
	return report
}
