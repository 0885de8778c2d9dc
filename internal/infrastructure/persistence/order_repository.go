package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// orderUpdateColumns are the mutable order columns; items and totals are
// fixed at creation
var orderUpdateColumns = []string{
	"refunded_total", "status", "payment_status", "payment_failed",
	"shipping_address", "cancel_reason", "metadata",
	"confirmed_at", "shipped_at", "delivered_at", "cancelled_at",
	"version", "updated_at",
}

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db   *gorm.DB
	inTx bool
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID finds an order by its ID. Inside a ledger transaction the row is locked.
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	q := r.db.WithContext(ctx)
	if r.inTx {
		q = forUpdate(q)
	}
	var m models.OrderModel
	if err := q.Preload("Items", orderItems).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFoundOr("find order", "order", id, err)
	}
	return m.ToDomain(), nil
}

// FindByIDForStore finds an order by ID within a store
func (r *GormOrderRepository) FindByIDForStore(ctx context.Context, storeID, id uuid.UUID) (*order.Order, error) {
	var m models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items", orderItems).
		Where("store_id = ? AND id = ?", storeID, id).
		First(&m).Error; err != nil {
		return nil, notFoundOr("find order", "order", id, err)
	}
	return m.ToDomain(), nil
}

// FindByOrderNumber finds an order by its number within a store
func (r *GormOrderRepository) FindByOrderNumber(ctx context.Context, storeID uuid.UUID, orderNumber string) (*order.Order, error) {
	var m models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items", orderItems).
		Where("store_id = ? AND order_number = ?", storeID, orderNumber).
		First(&m).Error; err != nil {
		return nil, notFoundOr("find order", "order", orderNumber, err)
	}
	return m.ToDomain(), nil
}

// List returns a page of a store's orders and the total match count
func (r *GormOrderRepository) List(ctx context.Context, storeID uuid.UUID, filter order.Filter) ([]*order.Order, int64, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.OrderModel{}).Where("store_id = ?", storeID), filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrapDBError("count orders", err)
	}

	var rows []models.OrderModel
	if err := query.
		Preload("Items", orderItems).
		Clauses(sortClause(filter.OrderBy, filter.OrderDir, orderSortColumns, "created_at")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, wrapDBError("list orders", err)
	}

	orders := make([]*order.Order, len(rows))
	for i := range rows {
		orders[i] = rows[i].ToDomain()
	}
	return orders, total, nil
}

func (r *GormOrderRepository) applyFilter(query *gorm.DB, filter order.Filter) *gorm.DB {
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != uuid.Nil {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	return query
}

// Create inserts a new order with its items and initial notes
func (r *GormOrderRepository) Create(ctx context.Context, o *order.Order) error {
	m := models.OrderModelFromDomain(o)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return wrapDBError("create order", err)
	}
	return r.appendNotes(ctx, o)
}

// Save updates the order if its version still matches the stored one, bumps
// the version and appends pending timeline notes
func (r *GormOrderRepository) Save(ctx context.Context, o *order.Order) error {
	expected := o.Version
	m := models.OrderModelFromDomain(o)
	m.Version = expected + 1
	m.UpdatedAt = time.Now()

	result := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("id = ? AND version = ?", o.ID, expected).
		Select(orderUpdateColumns).
		Updates(m)
	if result.Error != nil {
		return wrapDBError("save order", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewStaleVersionError("order", o.ID)
	}

	o.Version = m.Version
	o.UpdatedAt = m.UpdatedAt
	return r.appendNotes(ctx, o)
}

func (r *GormOrderRepository) appendNotes(ctx context.Context, o *order.Order) error {
	notes := o.PendingNotes()
	if len(notes) == 0 {
		return nil
	}
	rows := make([]*models.StatusNoteModel, len(notes))
	for i, n := range notes {
		rows[i] = models.StatusNoteModelFromDomain(n)
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return wrapDBError("append order notes", err)
	}
	o.ClearPendingNotes()
	return nil
}

// FindNotes returns the order's timeline notes, oldest first
func (r *GormOrderRepository) FindNotes(ctx context.Context, orderID uuid.UUID) ([]*order.StatusNote, error) {
	var rows []models.StatusNoteModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, wrapDBError("find order notes", err)
	}
	notes := make([]*order.StatusNote, len(rows))
	for i := range rows {
		notes[i] = rows[i].ToDomain()
	}
	return notes, nil
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

var _ order.Repository = (*GormOrderRepository)(nil)
