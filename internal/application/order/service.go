package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/storefront/backend/internal/application/ledger"
	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// Service drives the order state machine
type Service struct {
	store    ledger.Store
	gateway  payment.Gateway
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new order service
func NewService(store ledger.Store, gateway payment.Gateway, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		gateway:  gateway,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// CreateOrder prices the requested variants from the catalog, reserves stock
// and persists a pending order
func (s *Service) CreateOrder(ctx context.Context, storeID uuid.UUID, req CreateOrderRequest) (*OrderResponse, error) {
	if len(req.Items) == 0 {
		return nil, shared.NewValidationError("order must contain at least one item")
	}

	cat := s.store.Repositories().Catalog()
	profile, err := cat.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !profile.Active {
		return nil, shared.NewValidationError("store %s is not accepting orders", storeID)
	}
	if _, err := cat.GetCustomer(ctx, storeID, req.CustomerID); err != nil {
		return nil, err
	}

	var address valueobject.ShippingAddress
	if req.ShippingAddress != nil {
		address, err = valueobject.NewShippingAddress(*req.ShippingAddress)
		if err != nil {
			return nil, shared.NewValidationError("%v", err)
		}
	}

	var created *order.Order
	err = s.store.Execute(ctx, func(repos ledger.Repositories) error {
		items, reservations, err := s.priceItems(ctx, repos.Catalog(), storeID, req.Items)
		if err != nil {
			return err
		}
		var subtotal int64
		for _, item := range items {
			subtotal += item.Subtotal()
		}

		o, err := order.NewOrder(storeID, req.CustomerID, order.NewOrderNumber(s.now()), profile.Currency,
			items, profile.ShippingFor(subtotal), address, req.Metadata)
		if err != nil {
			return err
		}
		if err := repos.Catalog().Reserve(ctx, storeID, reservations); err != nil {
			return err
		}
		if err := repos.Orders().Create(ctx, o); err != nil {
			return err
		}
		if err := ledger.FlushEvents(ctx, repos, o); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("store_id", storeID.String()),
		zap.String("order_id", created.ID.String()),
		zap.String("order_number", created.OrderNumber),
		zap.Int64("grand_total", created.GrandTotal),
		zap.String("currency", created.Currency))

	resp := ToOrderResponse(created)
	return &resp, nil
}

func (s *Service) priceItems(ctx context.Context, cat catalog.Catalog, storeID uuid.UUID, inputs []CreateOrderItemInput) ([]*order.Item, []catalog.Reservation, error) {
	ids := make([]uuid.UUID, 0, len(inputs))
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, nil, shared.NewValidationError("quantity must be positive")
		}
		ids = append(ids, in.VariantID)
	}
	variants, err := cat.GetVariants(ctx, storeID, ids)
	if err != nil {
		return nil, nil, err
	}

	items := make([]*order.Item, 0, len(inputs))
	reservations := make([]catalog.Reservation, 0, len(inputs))
	for _, in := range inputs {
		v, ok := variants[in.VariantID]
		if !ok {
			return nil, nil, shared.NewValidationError("variant %s is not sold by this store", in.VariantID)
		}
		if !v.Active {
			return nil, nil, shared.NewValidationError("variant %s is not active", v.SKU)
		}
		if v.Stock < in.Quantity {
			return nil, nil, shared.NewValidationError("insufficient stock for %s: %d available", v.SKU, v.Stock)
		}
		item, err := order.NewItem(v.ProductID, v.ID, v.SKU, v.Name, in.Quantity, v.Price, v.TaxRate, v.Discount*int64(in.Quantity))
		if err != nil {
			return nil, nil, err
		}
		items = append(items, item)
		reservations = append(reservations, catalog.Reservation{VariantID: v.ID, Quantity: in.Quantity})
	}
	return items, reservations, nil
}

// GetOrder returns an order of the store
func (s *Service) GetOrder(ctx context.Context, storeID, orderID uuid.UUID) (*OrderResponse, error) {
	o, err := s.store.Repositories().Orders().FindByIDForStore(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(o)
	return &resp, nil
}

// ListOrders returns a page of the store's orders
func (s *Service) ListOrders(ctx context.Context, storeID uuid.UUID, filter ListOrdersFilter) ([]OrderResponse, int64, error) {
	f := order.Filter{Filter: shared.DefaultFilter(), CustomerID: filter.CustomerID}
	if filter.Page > 0 {
		f.Page = filter.Page
	}
	if filter.PageSize > 0 {
		f.PageSize = filter.PageSize
	}
	if filter.OrderBy != "" {
		f.OrderBy = filter.OrderBy
	}
	if filter.OrderDir != "" {
		f.OrderDir = filter.OrderDir
	}
	if filter.Status != "" {
		status := order.Status(filter.Status)
		if !status.IsValid() {
			return nil, 0, shared.NewValidationError("invalid order status %q", filter.Status)
		}
		f.Status = status
	}

	orders, total, err := s.store.Repositories().Orders().List(ctx, storeID, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = ToOrderResponse(o)
	}
	return out, total, nil
}

// TransitionStatus moves an order along a fulfillment edge. The second of two
// racing transitions observes the first one's result under the row lock and
// either no-ops or fails with a conflict.
func (s *Service) TransitionStatus(ctx context.Context, storeID, orderID uuid.UUID, target order.Status, actor, note string) (*OrderResponse, error) {
	if !target.IsValid() {
		return nil, shared.NewValidationError("invalid order status %q", target)
	}

	current, err := s.store.Repositories().Orders().FindByIDForStore(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status == target {
		resp := ToOrderResponse(current)
		return &resp, nil
	}
	if current.Status.IsTerminal() {
		return nil, shared.NewInvalidTransitionError("order", current.Status, target)
	}
	if target == order.StatusCancelled {
		return s.CancelOrder(ctx, storeID, orderID, note, actor)
	}
	if target.IsRefund() {
		return nil, shared.NewValidationError("refund statuses are set by payment reconciliation")
	}
	if !current.Status.CanTransitionTo(target) {
		return nil, shared.NewInvalidTransitionError("order", current.Status, target)
	}

	var updated *order.Order
	err = s.withOrder(ctx, storeID, orderID, func(repos ledger.Repositories, o *order.Order) error {
		updated = o
		if o.Status == target {
			return nil
		}
		if o.Status != current.Status {
			return shared.NewConflictError("order %s changed to %s concurrently", o.OrderNumber, o.Status)
		}
		if err := o.TransitionTo(target, actor, note); err != nil {
			return err
		}
		if err := repos.Orders().Save(ctx, o); err != nil {
			return err
		}
		return ledger.FlushEvents(ctx, repos, o)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order status changed",
		zap.String("order_id", orderID.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("actor", actor))

	resp := ToOrderResponse(updated)
	return &resp, nil
}

// ApplyPaymentResult folds a payment status into the order under its lock
func (s *Service) ApplyPaymentResult(ctx context.Context, orderID uuid.UUID, status payment.Status, refundedTotal int64, actor string) (bool, error) {
	var changed bool
	err := s.store.WithinOrderLock(ctx, orderID, func(repos ledger.Repositories, o *order.Order) error {
		var err error
		changed, err = o.ApplyPaymentResult(status, refundedTotal, actor)
		if err != nil || !changed {
			return err
		}
		if err := repos.Orders().Save(ctx, o); err != nil {
			return err
		}
		return ledger.FlushEvents(ctx, repos, o)
	})
	return changed, err
}

// CancelOrder cancels an unpaid order. Open intents are cancelled at the
// gateway first, outside the transaction; the ledger is then re-checked under
// the order lock so a payment that succeeded meanwhile wins.
func (s *Service) CancelOrder(ctx context.Context, storeID, orderID uuid.UUID, reason, actor string) (*OrderResponse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, shared.NewValidationError("cancel reason is required")
	}

	repos := s.store.Repositories()
	o, err := repos.Orders().FindByIDForStore(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == order.StatusCancelled {
		resp := ToOrderResponse(o)
		return &resp, nil
	}
	if !o.Status.IsCancellable() {
		return nil, shared.NewInvalidTransitionError("order", o.Status, order.StatusCancelled)
	}
	payments, err := repos.Payments().FindByOrder(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}

	cancelledAtGateway := make(map[string]bool)
	for _, p := range payments {
		if p.Status.IsSettled() {
			return nil, shared.NewConflictError("order %s has a settled payment and must be refunded", o.OrderNumber)
		}
		if !p.Status.IsOpen() {
			continue
		}
		intent, err := s.gateway.CancelIntent(ctx, p.ID)
		if err != nil {
			s.logger.Warn("Failed to cancel payment intent",
				zap.String("order_id", orderID.String()),
				zap.String("payment_id", p.ID),
				zap.Error(err))
			return nil, err
		}
		if intent.Status.IsSettled() {
			return nil, shared.NewConflictError("payment %s succeeded before the order could be cancelled", p.ID)
		}
		cancelledAtGateway[p.ID] = true
	}

	var cancelled *order.Order
	err = s.withOrder(ctx, storeID, orderID, func(repos ledger.Repositories, o *order.Order) error {
		cancelled = o
		if o.Status == order.StatusCancelled {
			return nil
		}
		current, err := repos.Payments().FindByOrder(ctx, storeID, orderID)
		if err != nil {
			return err
		}
		for _, p := range current {
			if p.Status.IsSettled() {
				return shared.NewConflictError("order %s has a settled payment and must be refunded", o.OrderNumber)
			}
			if !p.Status.IsOpen() {
				continue
			}
			if !cancelledAtGateway[p.ID] {
				return shared.NewConflictError("payment %s was created while cancelling", p.ID)
			}
			if _, err := p.Transition(payment.StatusCancelled); err != nil {
				return err
			}
			if err := repos.Payments().Save(ctx, p); err != nil {
				return err
			}
			if err := ledger.FlushEvents(ctx, repos, p); err != nil {
				return err
			}
		}

		if err := o.Cancel(reason, actor); err != nil {
			return err
		}
		if err := repos.Orders().Save(ctx, o); err != nil {
			return err
		}
		if err := repos.Catalog().Release(ctx, o.StoreID, reservationsFor(o)); err != nil {
			return err
		}
		return ledger.FlushEvents(ctx, repos, o)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order cancelled",
		zap.String("order_id", orderID.String()),
		zap.String("actor", actor),
		zap.String("reason", reason))

	resp := ToOrderResponse(cancelled)
	return &resp, nil
}

// UpdateOrder applies a whitelisted admin update
func (s *Service) UpdateOrder(ctx context.Context, storeID, orderID uuid.UUID, cmd UpdateOrderCommand, actor string) (*OrderResponse, error) {
	if err := s.validate.Struct(cmd); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, shared.NewValidationError("invalid field %s: %s", verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, shared.NewValidationError("%v", err)
	}
	var address *valueobject.ShippingAddress
	if cmd.ShippingAddress != nil {
		a, err := valueobject.NewShippingAddress(*cmd.ShippingAddress)
		if err != nil {
			return nil, shared.NewValidationError("%v", err)
		}
		address = &a
	}

	var updated *order.Order
	err := s.withOrder(ctx, storeID, orderID, func(repos ledger.Repositories, o *order.Order) error {
		updated = o
		if address != nil {
			if err := o.ChangeShippingAddress(*address); err != nil {
				return err
			}
		}
		if len(cmd.Metadata) > 0 {
			o.MergeMetadata(cmd.Metadata)
		}
		if cmd.InternalNote != nil {
			if err := o.AddNote(actor, *cmd.InternalNote); err != nil {
				return err
			}
		}
		return repos.Orders().Save(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(updated)
	return &resp, nil
}

// withOrder runs fn under the order lock after checking store ownership
func (s *Service) withOrder(ctx context.Context, storeID, orderID uuid.UUID, fn func(repos ledger.Repositories, o *order.Order) error) error {
	return s.store.WithinOrderLock(ctx, orderID, func(repos ledger.Repositories, o *order.Order) error {
		if o.StoreID != storeID {
			return shared.NewNotFoundError("order", orderID)
		}
		return fn(repos, o)
	})
}

func reservationsFor(o *order.Order) []catalog.Reservation {
	out := make([]catalog.Reservation, len(o.Items))
	for i, item := range o.Items {
		out[i] = catalog.Reservation{VariantID: item.VariantID, Quantity: item.Quantity}
	}
	return out
}
