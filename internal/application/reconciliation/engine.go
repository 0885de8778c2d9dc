package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/application/ledger"
	apporder "github.com/storefront/backend/internal/application/order"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/webhook"
	"go.uber.org/zap"
)

// Metrics records webhook processing outcomes
type Metrics interface {
	RecordWebhook(ctx context.Context, source, eventType, outcome string, duration time.Duration)
}

// Result contains the result of processing a webhook
type Result struct {
	Source    string          `json:"source"`
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Processed bool            `json:"processed"`
	Outcome   webhook.Outcome `json:"outcome"`
	Message   string          `json:"message,omitempty"`
}

// Engine verifies webhook deliveries and reconciles them into the ledger
type Engine struct {
	sources map[string]webhook.Source
	store   ledger.Store
	gateway payment.Gateway
	orders  *apporder.Service
	claims  shared.IdempotencyStore
	cfg     shared.IdempotencyConfig
	metrics Metrics
	logger  *zap.Logger
}

// EngineConfig contains the dependencies of an Engine
type EngineConfig struct {
	Sources     []webhook.Source
	Store       ledger.Store
	Gateway     payment.Gateway
	Orders      *apporder.Service
	Claims      shared.IdempotencyStore
	Idempotency shared.IdempotencyConfig
	Metrics     Metrics
	Logger      *zap.Logger
}

// NewEngine creates a new reconciliation engine
func NewEngine(cfg EngineConfig) *Engine {
	sources := make(map[string]webhook.Source, len(cfg.Sources))
	for _, src := range cfg.Sources {
		sources[src.Name()] = src
	}
	if cfg.Idempotency.TTL == 0 || cfg.Idempotency.Lease == 0 {
		cfg.Idempotency = shared.DefaultIdempotencyConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		sources: sources,
		store:   cfg.Store,
		gateway: cfg.Gateway,
		orders:  cfg.Orders,
		claims:  cfg.Claims,
		cfg:     cfg.Idempotency,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Source returns a registered source by name
func (e *Engine) Source(name string) (webhook.Source, bool) {
	src, ok := e.sources[name]
	return src, ok
}

// Process verifies and applies one delivery. Returned errors are either a
// signature failure, a retryable failure the sender should redeliver, or a
// conflict for a delivery that is still being processed.
func (e *Engine) Process(ctx context.Context, sourceName string, payload []byte, signature string) (*Result, error) {
	start := time.Now()
	src, ok := e.sources[sourceName]
	if !ok {
		return nil, shared.NewNotFoundError("webhook source", sourceName)
	}

	evt, err := src.Verify(payload, signature)
	if err != nil {
		e.logger.Warn("Webhook signature verification failed",
			zap.String("source", sourceName),
			zap.Error(err))
		e.record(ctx, sourceName, "unknown", "signature_invalid", start)
		if shared.CodeOf(err) == shared.CodeSignatureInvalid {
			return nil, err
		}
		return nil, shared.NewSignatureInvalidError(err)
	}

	log := e.logger.With(
		zap.String("source", evt.Source),
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type))
	result := &Result{Source: evt.Source, EventID: evt.ID, EventType: evt.Type}

	key := evt.IdempotencyKey()
	claim, err := e.claims.Claim(ctx, key, e.cfg.Lease)
	if err != nil {
		log.Error("Failed to claim webhook event", zap.Error(err))
		return nil, shared.NewRetryableError("idempotency store unavailable", err)
	}
	switch claim {
	case shared.ClaimCompleted:
		log.Debug("Duplicate webhook delivery")
		result.Processed = true
		result.Outcome = webhook.OutcomeAlreadyApplied
		result.Message = "duplicate delivery"
		e.record(ctx, evt.Source, evt.Type, string(result.Outcome), start)
		return result, nil
	case shared.ClaimInFlight:
		log.Info("Webhook event is already being processed")
		return nil, shared.NewConflictError("event %s is being processed", evt.ID)
	}

	receipt, err := e.apply(ctx, src, evt)
	if err != nil {
		return e.handleFailure(ctx, log, evt, key, result, err, start)
	}

	if err := e.claims.Complete(ctx, key, e.cfg.TTL); err != nil {
		log.Warn("Failed to complete webhook claim", zap.Error(err))
	}
	e.saveReceipt(ctx, log, receipt)

	result.Processed = receipt.Outcome != webhook.OutcomeIgnored
	result.Outcome = receipt.Outcome
	result.Message = receipt.Detail
	log.Info("Webhook processed", zap.String("outcome", string(receipt.Outcome)))
	e.record(ctx, evt.Source, evt.Type, string(receipt.Outcome), start)
	return result, nil
}

func (e *Engine) handleFailure(ctx context.Context, log *zap.Logger, evt *webhook.Event, key string, result *Result, err error, start time.Time) (*Result, error) {
	switch {
	case errors.Is(err, shared.ErrStaleVersion):
		// Lost an optimistic lock race; the next delivery sees the winner's state.
		log.Warn("Webhook raced a concurrent ledger update, sender should retry", zap.Error(err))
		e.release(ctx, log, key)
		e.record(ctx, evt.Source, evt.Type, "retry", start)
		return nil, shared.NewRetryableError("webhook raced a concurrent update", err)

	case errors.Is(err, shared.ErrGateway):
		// Enrichment needs the gateway; acknowledge and let a later delivery
		// or the synchronous path create the record.
		log.Warn("Gateway unavailable while reconciling webhook", zap.Error(err))
		e.release(ctx, log, key)
		result.Processed = false
		result.Outcome = webhook.OutcomeRejected
		result.Message = err.Error()
		e.record(ctx, evt.Source, evt.Type, "gateway_error", start)
		return result, nil

	case errors.Is(err, shared.ErrInvalidTransition), errors.Is(err, shared.ErrConflict),
		errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrNotFound):
		log.Error("Webhook rejected by ledger, acknowledging", zap.Error(err))
		if cerr := e.claims.Complete(ctx, key, e.cfg.TTL); cerr != nil {
			log.Warn("Failed to complete webhook claim", zap.Error(cerr))
		}
		receipt := webhook.NewReceipt(evt, webhook.OutcomeRejected)
		receipt.Detail = err.Error()
		e.saveReceipt(ctx, log, receipt)
		result.Processed = false
		result.Outcome = webhook.OutcomeRejected
		result.Message = err.Error()
		e.record(ctx, evt.Source, evt.Type, string(webhook.OutcomeRejected), start)
		return result, nil
	}

	log.Error("Failed to reconcile webhook, sender should retry", zap.Error(err))
	e.release(ctx, log, key)
	e.record(ctx, evt.Source, evt.Type, "retry", start)
	if shared.IsRetryable(err) {
		return nil, err
	}
	return nil, shared.NewRetryableError("failed to persist webhook event", err)
}

func (e *Engine) apply(ctx context.Context, src webhook.Source, evt *webhook.Event) (*webhook.Receipt, error) {
	de, err := src.ToDomainEvent(evt)
	if err != nil {
		return nil, err
	}
	actor := "webhook:" + evt.Source
	receipt := webhook.NewReceipt(evt, webhook.OutcomeIgnored)
	receipt.PaymentID = de.PaymentID
	receipt.OrderID = de.OrderID

	switch de.Kind {
	case webhook.KindPaymentStatus:
		p, err := e.findOrShadow(ctx, de)
		if err != nil {
			return nil, err
		}
		receipt.OrderID = p.OrderID
		outcome, err := e.applyPaymentStatus(ctx, p, de, actor)
		if err != nil {
			return nil, err
		}
		receipt.Outcome = toReceiptOutcome(outcome)

	case webhook.KindRefund:
		p, err := e.findOrShadow(ctx, de)
		if err != nil {
			return nil, err
		}
		receipt.OrderID = p.OrderID
		outcome, err := e.applyRefund(ctx, p, de, actor)
		if err != nil {
			return nil, err
		}
		receipt.Outcome = toReceiptOutcome(outcome)

	case webhook.KindOrderStatus:
		outcome, err := e.applyOrderStatus(ctx, de)
		if err != nil {
			return nil, err
		}
		receipt.Outcome = outcome

	case webhook.KindOrderNote:
		if err := e.applyOrderNote(ctx, de); err != nil {
			return nil, err
		}
		receipt.Outcome = webhook.OutcomeApplied

	default:
		e.logger.Info("Unhandled webhook event type",
			zap.String("source", evt.Source),
			zap.String("event_type", evt.Type))
		receipt.Detail = "event type not handled"
	}
	return receipt, nil
}

// findOrShadow returns the payment for the event's intent, creating a pending
// shadow row when the webhook arrives before the synchronous create recorded it
func (e *Engine) findOrShadow(ctx context.Context, de *webhook.DomainEvent) (*payment.Payment, error) {
	p, err := e.store.Repositories().Payments().FindByID(ctx, de.PaymentID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	orderID, hasOrder := payment.MetadataUUID(de.Metadata, payment.MetadataOrderID)
	amount, currency := de.Amount, de.Currency
	if !hasOrder || amount <= 0 || currency == "" {
		intent, err := e.gateway.GetIntent(ctx, de.PaymentID)
		if err != nil {
			return nil, err
		}
		if !hasOrder {
			orderID, hasOrder = intent.OrderID()
		}
		amount, currency = intent.Amount, intent.Currency
	}
	if !hasOrder {
		return nil, shared.NewValidationError("payment %s carries no order reference", de.PaymentID)
	}

	o, err := e.store.Repositories().Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	shadow, err := payment.NewShadowPayment(de.PaymentID, o.ID, o.StoreID, amount, currency)
	if err != nil {
		return nil, err
	}
	shadow.MergeMetadata(de.Metadata)

	var stored *payment.Payment
	err = e.store.Execute(ctx, func(repos ledger.Repositories) error {
		row, created, err := repos.Payments().CreateIfAbsent(ctx, shadow)
		if err != nil {
			return err
		}
		if created {
			e.logger.Info("Created shadow payment from webhook",
				zap.String("payment_id", row.ID),
				zap.String("order_id", row.OrderID.String()))
		}
		stored = row
		return nil
	})
	return stored, err
}

func (e *Engine) applyPaymentStatus(ctx context.Context, p *payment.Payment, de *webhook.DomainEvent, actor string) (payment.Outcome, error) {
	var outcome payment.Outcome
	err := e.store.WithinOrderLock(ctx, p.OrderID, func(repos ledger.Repositories, o *order.Order) error {
		locked, err := repos.Payments().FindByID(ctx, p.ID)
		if err != nil {
			return err
		}
		outcome, err = ledger.ApplyPaymentStatus(ctx, repos, o, locked, ledger.StatusReport{
			Status:         de.PaymentStatus,
			FailureCode:    de.FailureCode,
			FailureMessage: de.FailureMessage,
		}, actor)
		return err
	})
	return outcome, err
}

func (e *Engine) applyRefund(ctx context.Context, p *payment.Payment, de *webhook.DomainEvent, actor string) (payment.Outcome, error) {
	outcome := payment.OutcomeAlreadyApplied
	err := e.store.WithinOrderLock(ctx, p.OrderID, func(repos ledger.Repositories, o *order.Order) error {
		locked, err := repos.Payments().FindByID(ctx, p.ID)
		if err != nil {
			return err
		}
		if locked.Status.IsOpen() {
			// A refund implies the charge was captured even if the success
			// event has not arrived yet.
			if _, err := ledger.ApplyPaymentStatus(ctx, repos, o, locked, ledger.StatusReport{Status: payment.StatusSucceeded}, actor); err != nil {
				return err
			}
		}
		for _, report := range de.Refunds {
			if err := upsertRefund(ctx, repos, locked, report); err != nil {
				return err
			}
		}
		if de.AmountRefunded <= 0 {
			return nil
		}
		outcome, err = ledger.ApplyRefundTotal(ctx, repos, o, locked, de.AmountRefunded, actor)
		return err
	})
	return outcome, err
}

func upsertRefund(ctx context.Context, repos ledger.Repositories, p *payment.Payment, report webhook.RefundReport) error {
	r, err := repos.Refunds().FindByGatewayID(ctx, report.GatewayRefundID)
	if errors.Is(err, shared.ErrNotFound) && report.LocalRefundID != uuid.Nil {
		r, err = repos.Refunds().FindByID(ctx, report.LocalRefundID)
	}
	if errors.Is(err, shared.ErrNotFound) {
		r, err = payment.NewExternalRefund(p, report.GatewayRefundID, report.Amount, report.Status)
		if err != nil {
			return err
		}
		if err := repos.Refunds().Save(ctx, r); err != nil {
			return err
		}
		if r.Status.IsTerminal() {
			return repos.Outbox().Save(ctx, payment.NewRefundCompletedEvent(r))
		}
		return nil
	}
	if err != nil {
		return err
	}
	if r.PaymentID != p.ID {
		return shared.NewConflictError("refund %s belongs to payment %s", r.ID, r.PaymentID)
	}

	previous := r.Status
	r.AttachGatewayID(report.GatewayRefundID)
	if err := r.ApplyStatus(report.Status, report.FailureReason); err != nil {
		return err
	}
	if err := repos.Refunds().Save(ctx, r); err != nil {
		return err
	}
	if r.Status != previous && r.Status.IsTerminal() {
		return repos.Outbox().Save(ctx, payment.NewRefundCompletedEvent(r))
	}
	return nil
}

var fulfillmentRank = map[order.Status]int{
	order.StatusPending:    0,
	order.StatusConfirmed:  1,
	order.StatusProcessing: 2,
	order.StatusShipped:    3,
	order.StatusDelivered:  4,
}

func (e *Engine) applyOrderStatus(ctx context.Context, de *webhook.DomainEvent) (webhook.Outcome, error) {
	o, err := e.store.Repositories().Orders().FindByID(ctx, de.OrderID)
	if err != nil {
		return "", err
	}
	if o.Status == de.OrderStatus {
		return webhook.OutcomeAlreadyApplied, nil
	}
	current, known := fulfillmentRank[o.Status]
	target, ok := fulfillmentRank[de.OrderStatus]
	if ok && known && target < current {
		return webhook.OutcomeStale, nil
	}

	// Carriers may report delivery without an in-transit scan
	if de.OrderStatus == order.StatusDelivered && o.Status == order.StatusProcessing {
		if _, err := e.orders.TransitionStatus(ctx, o.StoreID, o.ID, order.StatusShipped, de.Actor, "shipped (implied by delivery)"); err != nil {
			return "", err
		}
	}
	if _, err := e.orders.TransitionStatus(ctx, o.StoreID, o.ID, de.OrderStatus, de.Actor, de.Note); err != nil {
		return "", err
	}
	return webhook.OutcomeApplied, nil
}

func (e *Engine) applyOrderNote(ctx context.Context, de *webhook.DomainEvent) error {
	return e.store.WithinOrderLock(ctx, de.OrderID, func(repos ledger.Repositories, o *order.Order) error {
		if err := o.AddNote(de.Actor, de.Note); err != nil {
			return err
		}
		return repos.Orders().Save(ctx, o)
	})
}

func (e *Engine) release(ctx context.Context, log *zap.Logger, key string) {
	if err := e.claims.Release(ctx, key); err != nil {
		log.Warn("Failed to release webhook claim", zap.Error(err))
	}
}

func (e *Engine) saveReceipt(ctx context.Context, log *zap.Logger, receipt *webhook.Receipt) {
	if err := e.store.Repositories().Receipts().Record(ctx, receipt); err != nil {
		log.Warn("Failed to record webhook receipt", zap.Error(err))
	}
}

func (e *Engine) record(ctx context.Context, source, eventType, outcome string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordWebhook(ctx, source, eventType, outcome, time.Since(start))
	}
}

func toReceiptOutcome(o payment.Outcome) webhook.Outcome {
	switch o {
	case payment.OutcomeApplied:
		return webhook.OutcomeApplied
	case payment.OutcomeStale:
		return webhook.OutcomeStale
	}
	return webhook.OutcomeAlreadyApplied
}
