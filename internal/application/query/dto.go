package query

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind classifies timeline entries
type EntryKind string

const (
	EntryStatus  EntryKind = "status"
	EntryPayment EntryKind = "payment"
	EntryRefund  EntryKind = "refund"
	EntryWebhook EntryKind = "webhook"
)

// TimelineEntry is one event in an order's history
type TimelineEntry struct {
	Kind       EntryKind `json:"kind"`
	At         time.Time `json:"at"`
	Actor      string    `json:"actor,omitempty"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	Reference  string    `json:"reference,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Note       string    `json:"note,omitempty"`
}

// AnalyticsRequest represents query parameters for store analytics
type AnalyticsRequest struct {
	From time.Time `form:"from" time_format:"2006-01-02"`
	To   time.Time `form:"to" time_format:"2006-01-02"`
}

// AnalyticsResponse summarises orders for a period
type AnalyticsResponse struct {
	StoreID           uuid.UUID        `json:"store_id"`
	From              time.Time        `json:"from"`
	To                time.Time        `json:"to"`
	Currency          string           `json:"currency"`
	OrderCount        int64            `json:"order_count"`
	OrdersByStatus    map[string]int64 `json:"orders_by_status"`
	PaidOrderCount    int64            `json:"paid_order_count"`
	GrossRevenue      int64            `json:"gross_revenue"`
	RefundedTotal     int64            `json:"refunded_total"`
	NetRevenue        int64            `json:"net_revenue"`
	AverageOrderValue int64            `json:"average_order_value"`
}
