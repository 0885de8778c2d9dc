package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/application/ledger"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Service manages payment intents and refunds for orders
type Service struct {
	store   ledger.Store
	gateway payment.Gateway
	logger  *zap.Logger
}

// NewService creates a new payment service
func NewService(store ledger.Store, gateway payment.Gateway, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, gateway: gateway, logger: logger}
}

// CreateIntent returns a payment intent for a pending order. An open intent is
// reused; otherwise a new one is created with an attempt-scoped idempotency key
// and upserted by intent ID.
func (s *Service) CreateIntent(ctx context.Context, storeID, orderID uuid.UUID, req CreateIntentRequest) (*PaymentResponse, error) {
	repos := s.store.Repositories()
	o, err := repos.Orders().FindByIDForStore(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending {
		return nil, shared.NewConflictError("order %s is %s and cannot take a new payment", o.OrderNumber, o.Status)
	}

	existing, err := repos.Payments().FindByOrder(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		if p.Status.IsSettled() {
			return nil, shared.NewConflictError("order %s is already paid", o.OrderNumber)
		}
	}
	for _, p := range existing {
		if p.Status.IsOpen() && p.Amount == o.GrandTotal {
			return s.reuseIntent(ctx, p)
		}
	}

	attempts, err := repos.Payments().CountByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	intent, err := s.gateway.CreateIntent(ctx, payment.CreateIntentRequest{
		OrderID:        o.ID,
		StoreID:        o.StoreID,
		OrderNumber:    o.OrderNumber,
		Amount:         o.GrandTotal,
		Currency:       o.Currency,
		CustomerEmail:  req.CustomerRef,
		Description:    "Order " + o.OrderNumber,
		IdempotencyKey: fmt.Sprintf("order:%s:attempt:%d", o.ID, attempts+1),
		Metadata: map[string]string{
			payment.MetadataOrderID:     o.ID.String(),
			payment.MetadataStoreID:     o.StoreID.String(),
			payment.MetadataOrderNumber: o.OrderNumber,
		},
	})
	if err != nil {
		s.logger.Error("Failed to create payment intent",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		return nil, err
	}

	var stored *payment.Payment
	err = s.store.Execute(ctx, func(repos ledger.Repositories) error {
		p, err := payment.NewPayment(intent.ID, o.ID, o.StoreID, intent.Amount, intent.Currency, payment.StatusPending)
		if err != nil {
			return err
		}
		p.ClientSecret = intent.ClientSecret
		p.MergeMetadata(intent.Metadata)

		row, created, err := repos.Payments().CreateIfAbsent(ctx, p)
		if err != nil {
			return err
		}
		if !created {
			if err := row.Adopt(o.ID, o.StoreID, intent.Amount, intent.ClientSecret); err != nil {
				return err
			}
			if err := repos.Payments().Save(ctx, row); err != nil {
				return err
			}
		}
		stored = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment intent created",
		zap.String("order_id", orderID.String()),
		zap.String("payment_id", stored.ID),
		zap.Int64("amount", stored.Amount))

	resp := ToPaymentResponse(stored, true)
	return &resp, nil
}

func (s *Service) reuseIntent(ctx context.Context, p *payment.Payment) (*PaymentResponse, error) {
	if p.ClientSecret == "" {
		intent, err := s.gateway.GetIntent(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		err = s.store.WithinPaymentLock(ctx, p.ID, func(repos ledger.Repositories, locked *payment.Payment) error {
			if err := locked.Adopt(p.OrderID, p.StoreID, p.Amount, intent.ClientSecret); err != nil {
				return err
			}
			p = locked
			return repos.Payments().Save(ctx, locked)
		})
		if err != nil {
			return nil, err
		}
	}
	resp := ToPaymentResponse(p, true)
	return &resp, nil
}

// ConfirmIntent confirms an intent at the gateway and applies the returned
// status through the same transition the webhook engine uses
func (s *Service) ConfirmIntent(ctx context.Context, storeID uuid.UUID, paymentID string, req ConfirmIntentRequest) (*PaymentResponse, error) {
	p, err := s.findPayment(ctx, storeID, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.Status.IsOpen() {
		return nil, shared.NewConflictError("payment %s is %s", p.ID, p.Status)
	}

	intent, err := s.gateway.ConfirmIntent(ctx, paymentID, req.PaymentMethod)
	if err != nil {
		s.logger.Error("Failed to confirm payment intent",
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return nil, err
	}

	var updated *payment.Payment
	err = s.store.WithinOrderLock(ctx, p.OrderID, func(repos ledger.Repositories, o *order.Order) error {
		locked, err := repos.Payments().FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		updated = locked
		_, err = ledger.ApplyPaymentStatus(ctx, repos, o, locked, ledger.StatusReport{
			Status:         intent.Status,
			FailureCode:    intent.FailureCode,
			FailureMessage: intent.FailureMessage,
		}, "payment:confirm")
		return err
	})
	if err != nil {
		return nil, err
	}

	resp := ToPaymentResponse(updated, false)
	return &resp, nil
}

// RequestRefund reserves a pending refund in the ledger and submits it to the
// gateway. Only a definite processor rejection fails the refund. Timeouts,
// aborted calls and transport errors leave it pending for webhook
// reconciliation. Every gateway failure is returned to the caller.
func (s *Service) RequestRefund(ctx context.Context, storeID uuid.UUID, paymentID string, req RefundRequest) (*RefundResponse, error) {
	p, err := s.findPayment(ctx, storeID, paymentID)
	if err != nil {
		return nil, err
	}
	var amount int64
	if req.Amount != nil {
		if *req.Amount <= 0 {
			return nil, shared.NewValidationError("refund amount must be positive")
		}
		amount = *req.Amount
	}

	var refund *payment.Refund
	err = s.store.WithinOrderLock(ctx, p.OrderID, func(repos ledger.Repositories, _ *order.Order) error {
		locked, err := repos.Payments().FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		existing, err := repos.Refunds().FindByPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		r, err := payment.NewRefund(locked, existing, amount, req.Reason)
		if err != nil {
			return err
		}
		if err := repos.Refunds().Save(ctx, r); err != nil {
			return err
		}
		refund = r
		return repos.Outbox().Save(ctx, payment.NewRefundRequestedEvent(r))
	})
	if err != nil {
		return nil, err
	}

	gr, gwErr := s.gateway.Refund(ctx, payment.RefundRequest{
		PaymentID:      paymentID,
		RefundID:       refund.ID,
		Amount:         refund.Amount,
		Reason:         refund.Reason,
		IdempotencyKey: "refund:" + refund.ID.String(),
	})
	if gwErr != nil {
		if !errors.Is(gwErr, payment.ErrRejected) {
			s.logger.Warn("Refund outcome unknown, leaving pending for reconciliation",
				zap.String("payment_id", paymentID),
				zap.String("refund_id", refund.ID.String()),
				zap.Error(gwErr))
			return nil, gwErr
		}
		s.logger.Error("Refund rejected by gateway",
			zap.String("payment_id", paymentID),
			zap.String("refund_id", refund.ID.String()),
			zap.Error(gwErr))
		if err := s.finishRefund(ctx, refund.ID, "", payment.RefundStatusFailed, gwErr.Error()); err != nil {
			s.logger.Error("Failed to mark refund failed", zap.String("refund_id", refund.ID.String()), zap.Error(err))
		}
		return nil, gwErr
	}

	if err := s.finishRefund(ctx, refund.ID, gr.ID, gr.Status, gr.FailureReason); err != nil {
		return nil, err
	}
	stored, err := s.store.Repositories().Refunds().FindByID(ctx, refund.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refund submitted",
		zap.String("payment_id", paymentID),
		zap.String("refund_id", stored.ID.String()),
		zap.String("gateway_refund_id", stored.GatewayRefundID),
		zap.Int64("amount", stored.Amount))

	resp := ToRefundResponse(stored)
	return &resp, nil
}

// finishRefund records the gateway's answer. Payment totals are left to the
// charge.refunded webhook which carries the cumulative amount.
func (s *Service) finishRefund(ctx context.Context, refundID uuid.UUID, gatewayID string, status payment.RefundStatus, reason string) error {
	return s.store.Execute(ctx, func(repos ledger.Repositories) error {
		r, err := repos.Refunds().FindByID(ctx, refundID)
		if err != nil {
			return err
		}
		wasTerminal := r.Status.IsTerminal()
		r.AttachGatewayID(gatewayID)
		if status != "" && status != payment.RefundStatusPending {
			if err := r.ApplyStatus(status, reason); err != nil {
				return err
			}
		}
		if err := repos.Refunds().Save(ctx, r); err != nil {
			return err
		}
		if !wasTerminal && r.Status.IsTerminal() {
			return repos.Outbox().Save(ctx, payment.NewRefundCompletedEvent(r))
		}
		return nil
	})
}

// GetPayment returns a payment of the store
func (s *Service) GetPayment(ctx context.Context, storeID uuid.UUID, paymentID string) (*PaymentResponse, error) {
	p, err := s.findPayment(ctx, storeID, paymentID)
	if err != nil {
		return nil, err
	}
	resp := ToPaymentResponse(p, false)
	return &resp, nil
}

// ListPaymentsForOrder returns every payment attempt of an order
func (s *Service) ListPaymentsForOrder(ctx context.Context, storeID, orderID uuid.UUID) ([]PaymentResponse, error) {
	repos := s.store.Repositories()
	if _, err := repos.Orders().FindByIDForStore(ctx, storeID, orderID); err != nil {
		return nil, err
	}
	payments, err := repos.Payments().FindByOrder(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]PaymentResponse, len(payments))
	for i, p := range payments {
		out[i] = ToPaymentResponse(p, false)
	}
	return out, nil
}

// ListRefunds returns the refunds of a payment
func (s *Service) ListRefunds(ctx context.Context, storeID uuid.UUID, paymentID string) ([]RefundResponse, error) {
	if _, err := s.findPayment(ctx, storeID, paymentID); err != nil {
		return nil, err
	}
	refunds, err := s.store.Repositories().Refunds().FindByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	out := make([]RefundResponse, len(refunds))
	for i, r := range refunds {
		out[i] = ToRefundResponse(r)
	}
	return out, nil
}

// RemainingRefundable returns the amount of a payment still open to refunds
func (s *Service) RemainingRefundable(ctx context.Context, storeID uuid.UUID, paymentID string) (int64, error) {
	p, err := s.findPayment(ctx, storeID, paymentID)
	if err != nil {
		return 0, err
	}
	refunds, err := s.store.Repositories().Refunds().FindByPayment(ctx, paymentID)
	if err != nil {
		return 0, err
	}
	return payment.RemainingRefundable(p, refunds), nil
}

func (s *Service) findPayment(ctx context.Context, storeID uuid.UUID, paymentID string) (*payment.Payment, error) {
	p, err := s.store.Repositories().Payments().FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.StoreID != storeID {
		return nil, shared.NewNotFoundError("payment", paymentID)
	}
	return p, nil
}
