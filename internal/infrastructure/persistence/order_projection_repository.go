package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/application/query"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// settledPaymentStatuses are the order payment statuses that count as revenue
var settledPaymentStatuses = []payment.Status{
	payment.StatusSucceeded,
	payment.StatusPartiallyRefunded,
	payment.StatusRefunded,
}

// GormOrderProjections implements query.Projections with aggregate SQL
type GormOrderProjections struct {
	db *gorm.DB
}

// NewGormOrderProjections creates a new GormOrderProjections
func NewGormOrderProjections(db *gorm.DB) *GormOrderProjections {
	return &GormOrderProjections{db: db}
}

// StatusCounts counts a store's orders created in [from, to) by status
func (p *GormOrderProjections) StatusCounts(ctx context.Context, storeID uuid.UUID, from, to time.Time) (map[order.Status]int64, error) {
	type statusCount struct {
		Status order.Status
		Count  int64
	}
	var results []statusCount
	if err := p.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Select("status, count(*) as count").
		Where("store_id = ? AND created_at >= ? AND created_at < ?", storeID, from, to).
		Group("status").
		Scan(&results).Error; err != nil {
		return nil, wrapDBError("count orders by status", err)
	}

	counts := make(map[order.Status]int64, len(results))
	for _, r := range results {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// RevenueTotals sums settled orders created in [from, to)
func (p *GormOrderProjections) RevenueTotals(ctx context.Context, storeID uuid.UUID, from, to time.Time) (query.RevenueTotals, error) {
	var row struct {
		PaidOrders int64
		Gross      int64
		Refunded   int64
	}
	if err := p.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Select("count(*) as paid_orders, coalesce(sum(grand_total), 0) as gross, coalesce(sum(refunded_total), 0) as refunded").
		Where("store_id = ? AND created_at >= ? AND created_at < ?", storeID, from, to).
		Where("payment_status IN ?", settledPaymentStatuses).
		Scan(&row).Error; err != nil {
		return query.RevenueTotals{}, wrapDBError("sum order revenue", err)
	}
	return query.RevenueTotals{
		PaidOrders: row.PaidOrders,
		Gross:      row.Gross,
		Refunded:   row.Refunded,
	}, nil
}

// StreamOrders walks the matching orders row by row in creation order
func (p *GormOrderProjections) StreamOrders(ctx context.Context, storeID uuid.UUID, filter query.ExportFilter, fn func(query.ExportRow) error) error {
	q := p.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Select("order_number, status, payment_status, customer_id, currency, subtotal, tax_total, shipping_total, discount_total, grand_total, refunded_total, created_at").
		Where("store_id = ?", storeID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at < ?", *filter.To)
	}

	rows, err := q.Order("created_at ASC").Order("id ASC").Rows()
	if err != nil {
		return wrapDBError("stream orders", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r query.ExportRow
		if err := rows.Scan(
			&r.OrderNumber, &r.Status, &r.PaymentStatus, &r.CustomerID, &r.Currency,
			&r.Subtotal, &r.TaxTotal, &r.ShippingTotal, &r.DiscountTotal, &r.GrandTotal,
			&r.RefundedTotal, &r.CreatedAt,
		); err != nil {
			return wrapDBError("scan order row", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return wrapDBError("stream orders", rows.Err())
}

var _ query.Projections = (*GormOrderProjections)(nil)
