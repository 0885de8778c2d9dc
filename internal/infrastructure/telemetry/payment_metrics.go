package telemetry

import (
	"context"
	"time"

	"github.com/storefront/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// OutboxCounter reports outbox entries by status
type OutboxCounter interface {
	CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error)
}

// PaymentMetrics holds the payment and reconciliation instruments
type PaymentMetrics struct {
	intentsCreated  *Counter
	refundsCreated  *Counter
	webhookEvents   *Counter
	webhookDuration *Histogram
	gatewayCalls    *Counter
	gatewayLatency  *Histogram
	registration    metric.Registration
	logger          *zap.Logger
}

// NewPaymentMetrics creates the payment instruments on meter
func NewPaymentMetrics(meter metric.Meter, logger *zap.Logger) (*PaymentMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &PaymentMetrics{logger: logger}
	var err error

	if m.intentsCreated, err = NewCounter(meter, "payment_intents_created_total", "Payment intents created at the gateway", "{intent}"); err != nil {
		return nil, err
	}
	if m.refundsCreated, err = NewCounter(meter, "payment_refunds_requested_total", "Refunds submitted to the gateway", "{refund}"); err != nil {
		return nil, err
	}
	if m.webhookEvents, err = NewCounter(meter, "webhook_events_total", "Webhook deliveries by source, type and outcome", "{event}"); err != nil {
		return nil, err
	}
	if m.webhookDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "webhook_processing_duration_seconds",
		Description: "Time to verify and reconcile a webhook delivery",
		Unit:        "s",
		Boundaries:  DurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.gatewayCalls, err = NewCounter(meter, "payment_gateway_calls_total", "Payment gateway calls by operation and outcome", "{call}"); err != nil {
		return nil, err
	}
	if m.gatewayLatency, err = NewHistogram(meter, HistogramOpts{
		Name:        "payment_gateway_latency_seconds",
		Description: "Payment gateway call latency",
		Unit:        "s",
		Boundaries:  DurationBuckets,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordWebhook records one processed webhook delivery
func (m *PaymentMetrics) RecordWebhook(ctx context.Context, source, eventType, outcome string, duration time.Duration) {
	m.webhookEvents.Inc(ctx,
		AttrSource.String(source),
		AttrEventType.String(eventType),
		AttrOutcome.String(outcome),
	)
	m.webhookDuration.RecordDuration(ctx, duration, AttrSource.String(source))
}

// RecordGatewayCall records the latency and outcome of a gateway call
func (m *PaymentMetrics) RecordGatewayCall(ctx context.Context, operation, outcome string, duration time.Duration) {
	m.gatewayCalls.Inc(ctx, AttrOperation.String(operation), AttrOutcome.String(outcome))
	m.gatewayLatency.RecordDuration(ctx, duration, AttrOperation.String(operation))
}

// RecordIntentCreated counts a newly created payment intent
func (m *PaymentMetrics) RecordIntentCreated(ctx context.Context, currency string) {
	m.intentsCreated.Inc(ctx, AttrCurrency.String(currency))
}

// RecordRefundRequested counts a refund submitted to the gateway
func (m *PaymentMetrics) RecordRefundRequested(ctx context.Context, currency string) {
	m.refundsCreated.Inc(ctx, AttrCurrency.String(currency))
}

// ObserveOutbox reports the outbox backlog by status on every collection
func (m *PaymentMetrics) ObserveOutbox(meter metric.Meter, outbox OutboxCounter) error {
	backlog, err := meter.Int64ObservableGauge("outbox_entries",
		metric.WithDescription("Outbox entries by status"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}
	m.registration, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		counts, err := outbox.CountByStatus(ctx)
		if err != nil {
			m.logger.Warn("Failed to count outbox entries", zap.Error(err))
			return nil
		}
		for _, status := range []shared.OutboxStatus{
			shared.OutboxStatusPending,
			shared.OutboxStatusProcessing,
			shared.OutboxStatusFailed,
			shared.OutboxStatusDead,
		} {
			o.ObserveInt64(backlog, counts[status], metric.WithAttributes(AttrStatus.String(string(status))))
		}
		return nil
	}, backlog)
	return err
}

// Stop unregisters the outbox observer
func (m *PaymentMetrics) Stop() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
