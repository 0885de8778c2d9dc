package ledger

import (
	"context"

	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
)

// StatusReport is a payment status as reported by the gateway
type StatusReport struct {
	Status         payment.Status
	FailureCode    string
	FailureMessage string
}

// ApplyPaymentStatus applies a reported status to p and folds the result into o.
// It is shared by synchronous confirmation and webhook reconciliation so both
// paths move the ledger the same way. o must be locked before p; o may be nil
// when the payment has no known order yet.
func ApplyPaymentStatus(ctx context.Context, repos Repositories, o *order.Order, p *payment.Payment, report StatusReport, actor string) (payment.Outcome, error) {
	if report.Status == payment.StatusSucceeded && o != nil && p.Status != payment.StatusSucceeded {
		if err := ensureNoOtherSettled(ctx, repos, o, p); err != nil {
			return "", err
		}
	}

	var (
		outcome payment.Outcome
		err     error
	)
	if report.Status == payment.StatusFailed {
		outcome, err = p.MarkFailed(report.FailureCode, report.FailureMessage)
	} else {
		outcome, err = p.Transition(report.Status)
	}
	if err != nil {
		return "", err
	}
	if !outcome.Changed() {
		return outcome, nil
	}
	if err := repos.Payments().Save(ctx, p); err != nil {
		return "", err
	}
	if o != nil {
		if err := foldIntoOrder(ctx, repos, o, p, actor); err != nil {
			return "", err
		}
	}
	if err := FlushEvents(ctx, repos, p); err != nil {
		return "", err
	}
	return outcome, nil
}

// ApplyRefundTotal records the gateway's cumulative refunded amount for p and
// moves o to refunded or partially_refunded
func ApplyRefundTotal(ctx context.Context, repos Repositories, o *order.Order, p *payment.Payment, cumulative int64, actor string) (payment.Outcome, error) {
	outcome, err := p.ApplyRefundTotal(cumulative)
	if err != nil {
		return "", err
	}
	if !outcome.Changed() {
		return outcome, nil
	}
	if err := repos.Payments().Save(ctx, p); err != nil {
		return "", err
	}
	if o != nil {
		if err := foldIntoOrder(ctx, repos, o, p, actor); err != nil {
			return "", err
		}
	}
	if err := FlushEvents(ctx, repos, p); err != nil {
		return "", err
	}
	return outcome, nil
}

func foldIntoOrder(ctx context.Context, repos Repositories, o *order.Order, p *payment.Payment, actor string) error {
	changed, err := o.ApplyPaymentResult(p.Status, p.RefundedAmount, actor)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := repos.Orders().Save(ctx, o); err != nil {
		return err
	}
	return FlushEvents(ctx, repos, o)
}

func ensureNoOtherSettled(ctx context.Context, repos Repositories, o *order.Order, p *payment.Payment) error {
	payments, err := repos.Payments().FindByOrder(ctx, o.StoreID, o.ID)
	if err != nil {
		return err
	}
	for _, other := range payments {
		if other.ID != p.ID && other.Status.IsSettled() {
			return shared.NewConflictError("order %s already settled by payment %s", o.OrderNumber, other.ID)
		}
	}
	return nil
}
