// Package models contains GORM persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities carry no GORM tags
// 2. Persistence models contain all GORM annotations and table mappings
// 3. ToDomain / FromDomain mappers convert between the two
// 4. Repositories read and write persistence models only
//
// Structure:
// - base.go: shared columns (BaseModel, StoreAggregateModel)
// - order.go: orders, order_items, order_status_notes
// - payment.go: payments, refunds
// - webhook.go: webhook_receipts
// - catalog.go: stores, customers, product_variants
// - outbox.go: outbox_events for reliable event delivery
package models
