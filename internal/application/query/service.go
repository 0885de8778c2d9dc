package query

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/application/ledger"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// RevenueTotals aggregates settled orders in a period
type RevenueTotals struct {
	PaidOrders int64
	Gross      int64
	Refunded   int64
}

// ExportFilter narrows the orders streamed by ExportCSV
type ExportFilter struct {
	Status order.Status
	From   *time.Time
	To     *time.Time
}

// ExportRow is one order in an export
type ExportRow struct {
	OrderNumber   string
	Status        string
	PaymentStatus string
	CustomerID    uuid.UUID
	Currency      string
	Subtotal      int64
	TaxTotal      int64
	ShippingTotal int64
	DiscountTotal int64
	GrandTotal    int64
	RefundedTotal int64
	CreatedAt     time.Time
}

// Projections are the read-side aggregates computed by the database
type Projections interface {
	StatusCounts(ctx context.Context, storeID uuid.UUID, from, to time.Time) (map[order.Status]int64, error)
	RevenueTotals(ctx context.Context, storeID uuid.UUID, from, to time.Time) (RevenueTotals, error)
	// StreamOrders calls fn for every matching order in creation order
	StreamOrders(ctx context.Context, storeID uuid.UUID, filter ExportFilter, fn func(ExportRow) error) error
}

// Service answers read-only questions about orders
type Service struct {
	store       ledger.Store
	projections Projections
	logger      *zap.Logger
}

// NewService creates a new query service
func NewService(store ledger.Store, projections Projections, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, projections: projections, logger: logger}
}

// Timeline merges status notes, payment and refund milestones and webhook
// receipts of an order, oldest first
func (s *Service) Timeline(ctx context.Context, storeID, orderID uuid.UUID) ([]TimelineEntry, error) {
	repos := s.store.Repositories()
	o, err := repos.Orders().FindByIDForStore(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}

	notes, err := repos.Orders().FindNotes(ctx, orderID)
	if err != nil {
		return nil, err
	}
	payments, err := repos.Payments().FindByOrder(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}
	refunds, err := repos.Refunds().FindByOrder(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}
	receipts, err := repos.Receipts().FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	entries := make([]TimelineEntry, 0, len(notes)+2*len(payments)+2*len(refunds)+len(receipts))
	for _, n := range notes {
		entries = append(entries, TimelineEntry{
			Kind:       EntryStatus,
			At:         n.CreatedAt,
			Actor:      n.Actor,
			FromStatus: string(n.FromStatus),
			ToStatus:   string(n.ToStatus),
			Note:       n.Note,
		})
	}
	for _, p := range payments {
		entries = append(entries, TimelineEntry{
			Kind:      EntryPayment,
			At:        p.CreatedAt,
			Reference: p.ID,
			Amount:    p.Amount,
			Note:      "payment intent created",
		})
		if p.UpdatedAt.After(p.CreatedAt) {
			entries = append(entries, TimelineEntry{
				Kind:      EntryPayment,
				At:        p.UpdatedAt,
				Reference: p.ID,
				Amount:    p.Amount,
				ToStatus:  string(p.Status),
				Note:      "payment " + string(p.Status),
			})
		}
	}
	for _, r := range refunds {
		entries = append(entries, TimelineEntry{
			Kind:      EntryRefund,
			At:        r.CreatedAt,
			Reference: r.ID.String(),
			Amount:    r.Amount,
			Note:      "refund requested " + valueobject.FormatMinor(r.Amount, o.Currency),
		})
		if r.CompletedAt != nil {
			entries = append(entries, TimelineEntry{
				Kind:      EntryRefund,
				At:        *r.CompletedAt,
				Reference: r.ID.String(),
				Amount:    r.Amount,
				ToStatus:  string(r.Status),
				Note:      "refund " + string(r.Status),
			})
		}
	}
	for _, rc := range receipts {
		entries = append(entries, TimelineEntry{
			Kind:      EntryWebhook,
			At:        rc.ReceivedAt,
			Actor:     "webhook:" + rc.Source,
			Reference: rc.EventID,
			Note:      rc.EventType + " " + string(rc.Outcome),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].At.Before(entries[j].At)
	})
	return entries, nil
}

// Analytics summarises a store's orders created in [from, to)
func (s *Service) Analytics(ctx context.Context, storeID uuid.UUID, from, to time.Time) (*AnalyticsResponse, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !from.Before(to) {
		return nil, shared.NewValidationError("from must be before to")
	}

	profile, err := s.store.Repositories().Catalog().GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	counts, err := s.projections.StatusCounts(ctx, storeID, from, to)
	if err != nil {
		return nil, err
	}
	totals, err := s.projections.RevenueTotals(ctx, storeID, from, to)
	if err != nil {
		return nil, err
	}

	byStatus := make(map[string]int64, len(order.AllStatuses))
	var orderCount int64
	for _, status := range order.AllStatuses {
		byStatus[string(status)] = counts[status]
		orderCount += counts[status]
	}

	return &AnalyticsResponse{
		StoreID:           storeID,
		From:              from,
		To:                to,
		Currency:          profile.Currency,
		OrderCount:        orderCount,
		OrdersByStatus:    byStatus,
		PaidOrderCount:    totals.PaidOrders,
		GrossRevenue:      totals.Gross,
		RefundedTotal:     totals.Refunded,
		NetRevenue:        totals.Gross - totals.Refunded,
		AverageOrderValue: valueobject.Average(totals.Gross, totals.PaidOrders),
	}, nil
}

var exportHeader = []string{
	"order_number", "status", "payment_status", "customer_id", "currency",
	"subtotal", "tax_total", "shipping_total", "discount_total", "grand_total",
	"refunded_total", "created_at",
}

// ExportCSV streams the store's orders as CSV to w and returns the row count
func (s *Service) ExportCSV(ctx context.Context, storeID uuid.UUID, filter ExportFilter, w io.Writer) (int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return 0, shared.NewValidationError("invalid order status %q", filter.Status)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}
	rows := 0
	err := s.projections.StreamOrders(ctx, storeID, filter, func(r ExportRow) error {
		rows++
		return cw.Write([]string{
			r.OrderNumber,
			r.Status,
			r.PaymentStatus,
			r.CustomerID.String(),
			r.Currency,
			valueobject.DecimalString(r.Subtotal, r.Currency),
			valueobject.DecimalString(r.TaxTotal, r.Currency),
			valueobject.DecimalString(r.ShippingTotal, r.Currency),
			valueobject.DecimalString(r.DiscountTotal, r.Currency),
			valueobject.DecimalString(r.GrandTotal, r.Currency),
			valueobject.DecimalString(r.RefundedTotal, r.Currency),
			r.CreatedAt.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return rows, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, err
	}

	s.logger.Info("Orders exported",
		zap.String("store_id", storeID.String()),
		zap.Int("rows", rows))
	return rows, nil
}
