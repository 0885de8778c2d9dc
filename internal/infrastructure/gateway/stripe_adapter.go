// Package gateway implements the payment gateway port on top of Stripe.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Metrics records gateway call outcomes
type Metrics interface {
	RecordGatewayCall(ctx context.Context, operation, outcome string, duration time.Duration)
	RecordIntentCreated(ctx context.Context, currency string)
	RecordRefundRequested(ctx context.Context, currency string)
}

// Outcomes reported to Metrics
const (
	outcomeOK       = "ok"
	outcomeDeclined = "declined"
	outcomeError    = "error"
	outcomeTimeout  = "timeout"
)

// StripeAdapter implements payment.Gateway with the Stripe Payment Intents API
type StripeAdapter struct {
	config  *StripeConfig
	api     *client.API
	metrics Metrics
	logger  *zap.Logger
}

var _ payment.Gateway = (*StripeAdapter)(nil)

// Option configures a StripeAdapter
type Option func(*StripeAdapter)

// WithBackend routes API calls through backend instead of the default HTTP
// backend
func WithBackend(backend stripe.Backend) Option {
	return func(a *StripeAdapter) {
		a.api = &client.API{}
		a.api.Init(a.config.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	}
}

// WithMetrics records call latency and outcomes on m
func WithMetrics(m Metrics) Option {
	return func(a *StripeAdapter) {
		a.metrics = m
	}
}

// NewStripeAdapter creates a new Stripe gateway adapter
func NewStripeAdapter(config *StripeConfig, logger *zap.Logger, opts ...Option) (*StripeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &StripeAdapter{config: config, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if a.api == nil {
		a.api = client.New(config.SecretKey, nil)
	}
	return a, nil
}

// CreateIntent creates a payment intent for an order
func (a *StripeAdapter) CreateIntent(ctx context.Context, req payment.CreateIntentRequest) (*payment.Intent, error) {
	if req.Amount <= 0 {
		return nil, shared.NewValidationError("intent amount must be positive")
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = a.config.DefaultCurrency
	}

	a.logger.Debug("Creating Stripe payment intent",
		zap.String("order_id", req.OrderID.String()),
		zap.Int64("amount", req.Amount),
		zap.String("currency", currency))

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.CustomerEmail != "" {
		params.AddMetadata("customer_ref", req.CustomerEmail)
	}

	var pi *stripe.PaymentIntent
	err := a.call(ctx, "create_intent", req.IdempotencyKey, &params.Params, func() error {
		var err error
		pi, err = a.api.PaymentIntents.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	if a.metrics != nil {
		a.metrics.RecordIntentCreated(ctx, currency)
	}

	a.logger.Info("Stripe payment intent created",
		zap.String("order_id", req.OrderID.String()),
		zap.String("intent_id", pi.ID),
		zap.String("status", string(pi.Status)))

	return toIntent(pi), nil
}

// ConfirmIntent confirms an intent with a payment method. A card decline is
// not an error: the intent is returned in the failed status.
func (a *StripeAdapter) ConfirmIntent(ctx context.Context, intentID, paymentMethodRef string) (*payment.Intent, error) {
	params := &stripe.PaymentIntentConfirmParams{}
	if paymentMethodRef != "" {
		params.PaymentMethod = stripe.String(paymentMethodRef)
	}

	var pi *stripe.PaymentIntent
	err := a.call(ctx, "confirm_intent", "confirm:"+intentID+":"+paymentMethodRef, &params.Params, func() error {
		var err error
		pi, err = a.api.PaymentIntents.Confirm(intentID, params)
		return err
	})
	if err != nil {
		if declined := declinedIntent(err); declined != nil {
			a.logger.Info("Stripe payment declined",
				zap.String("intent_id", intentID),
				zap.String("failure_code", declined.FailureCode))
			return declined, nil
		}
		return nil, err
	}
	return toIntent(pi), nil
}

// CancelIntent cancels an open intent
func (a *StripeAdapter) CancelIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	params := &stripe.PaymentIntentCancelParams{}

	var pi *stripe.PaymentIntent
	err := a.call(ctx, "cancel_intent", "cancel:"+intentID, &params.Params, func() error {
		var err error
		pi, err = a.api.PaymentIntents.Cancel(intentID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("Stripe payment intent cancelled", zap.String("intent_id", intentID))
	return toIntent(pi), nil
}

// GetIntent retrieves an intent
func (a *StripeAdapter) GetIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	params := &stripe.PaymentIntentParams{}

	var pi *stripe.PaymentIntent
	err := a.call(ctx, "get_intent", "", &params.Params, func() error {
		var err error
		pi, err = a.api.PaymentIntents.Get(intentID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

// Refund refunds part or all of a captured intent
func (a *StripeAdapter) Refund(ctx context.Context, req payment.RefundRequest) (*payment.GatewayRefund, error) {
	if req.Amount <= 0 {
		return nil, shared.NewValidationError("refund amount must be positive")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentID),
		Amount:        stripe.Int64(req.Amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.AddMetadata(payment.MetadataRefundID, req.RefundID.String())
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	var r *stripe.Refund
	err := a.call(ctx, "refund", req.IdempotencyKey, &params.Params, func() error {
		var err error
		r, err = a.api.Refunds.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &payment.GatewayRefund{
		ID:            r.ID,
		PaymentID:     req.PaymentID,
		Amount:        r.Amount,
		Currency:      string(r.Currency),
		Status:        MapRefundStatus(r.Status),
		FailureReason: string(r.FailureReason),
	}
	if a.metrics != nil {
		a.metrics.RecordRefundRequested(ctx, out.Currency)
	}

	a.logger.Info("Stripe refund created",
		zap.String("intent_id", req.PaymentID),
		zap.String("refund_id", r.ID),
		zap.Int64("amount", r.Amount),
		zap.String("status", string(r.Status)))
	return out, nil
}

// call runs fn under the configured timeout with a client span, and maps its
// error. A call that runs out of time is reported as context.DeadlineExceeded.
func (a *StripeAdapter) call(ctx context.Context, op, idempotencyKey string, params *stripe.Params, fn func() error) (err error) {
	callCtx, cancel := context.WithTimeout(ctx, a.config.timeout())
	defer cancel()

	callCtx, span := telemetry.StartSpan(callCtx, "stripe."+op,
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute("payment.gateway", "stripe"))

	params.Context = callCtx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	start := time.Now()
	callErr := fn()
	if callErr != nil {
		err = a.mapError(callCtx, op, callErr)
	}
	telemetry.EndSpan(span, err)

	if a.metrics != nil {
		a.metrics.RecordGatewayCall(ctx, op, outcomeOf(callCtx, callErr), time.Since(start))
	}
	return err
}

func (a *StripeAdapter) mapError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		a.logger.Warn("Stripe call timed out", zap.String("operation", op))
		return shared.NewGatewayError(op, fmt.Errorf("stripe: %s: %w", op, context.DeadlineExceeded))
	}

	var se *stripe.Error
	if errors.As(err, &se) {
		level := zap.ErrorLevel
		if se.Type == stripe.ErrorTypeCard {
			level = zap.InfoLevel
		}
		a.logger.Log(level, "Stripe API error",
			zap.String("operation", op),
			zap.String("type", string(se.Type)),
			zap.String("code", string(se.Code)),
			zap.Int("http_status", se.HTTPStatusCode),
			zap.String("request_id", se.RequestID))
		if rejected(se) {
			return shared.NewGatewayError(op, fmt.Errorf("stripe: %s: %w: %w", op, payment.ErrRejected, err))
		}
		return shared.NewGatewayError(op, fmt.Errorf("stripe: %s: %w", op, err))
	}

	a.logger.Error("Stripe call failed", zap.String("operation", op), zap.Error(err))
	return shared.NewGatewayError(op, fmt.Errorf("stripe: failed to %s: %w", op, err))
}

// rejected reports whether Stripe answered with a definite refusal. Rate
// limits, idempotency conflicts and server errors leave the outcome open.
func rejected(se *stripe.Error) bool {
	switch se.HTTPStatusCode {
	case http.StatusConflict, http.StatusTooManyRequests:
		return false
	}
	return se.HTTPStatusCode >= http.StatusBadRequest && se.HTTPStatusCode < http.StatusInternalServerError
}

func outcomeOf(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return outcomeTimeout
	}
	var se *stripe.Error
	if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
		return outcomeDeclined
	}
	return outcomeError
}

// declinedIntent returns the failed intent carried by a card error, if any
func declinedIntent(err error) *payment.Intent {
	var se *stripe.Error
	if !errors.As(err, &se) || se.Type != stripe.ErrorTypeCard || se.PaymentIntent == nil {
		return nil
	}
	intent := toIntent(se.PaymentIntent)
	intent.Status = payment.StatusFailed
	intent.FailureCode = string(se.Code)
	intent.FailureMessage = se.Msg
	return intent
}

func toIntent(pi *stripe.PaymentIntent) *payment.Intent {
	intent := &payment.Intent{
		ID:             pi.ID,
		Status:         MapIntentStatus(pi),
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		ClientSecret:   pi.ClientSecret,
		Metadata:       maps.Clone(pi.Metadata),
	}
	if pi.LastPaymentError != nil {
		intent.FailureCode = string(pi.LastPaymentError.Code)
		intent.FailureMessage = pi.LastPaymentError.Msg
	}
	return intent
}

// MapIntentStatus maps a Stripe intent to the local payment status. An intent
// back in requires_payment_method after an attempt is reported as failed.
func MapIntentStatus(pi *stripe.PaymentIntent) payment.Status {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return payment.StatusSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return payment.StatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return payment.StatusCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return payment.StatusFailed
		}
	}
	return payment.StatusPending
}

// MapRefundStatus maps a Stripe refund status to the local refund status
func MapRefundStatus(s stripe.RefundStatus) payment.RefundStatus {
	switch s {
	case stripe.RefundStatusSucceeded:
		return payment.RefundStatusSucceeded
	case stripe.RefundStatusFailed:
		return payment.RefundStatusFailed
	case stripe.RefundStatusCanceled:
		return payment.RefundStatusCancelled
	}
	return payment.RefundStatusPending
}
