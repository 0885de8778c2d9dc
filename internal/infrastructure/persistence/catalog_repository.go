package persistence

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCatalog implements catalog.Catalog over the stores, customers and
// product_variants tables
type GormCatalog struct {
	db   *gorm.DB
	inTx bool
}

// NewGormCatalog creates a new GormCatalog
func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

// GetStore returns the store profile
func (c *GormCatalog) GetStore(ctx context.Context, storeID uuid.UUID) (*catalog.StoreProfile, error) {
	var m models.StoreModel
	if err := c.db.WithContext(ctx).First(&m, "id = ?", storeID).Error; err != nil {
		return nil, notFoundOr("find store", "store", storeID, err)
	}
	return m.ToDomain(), nil
}

// GetCustomer returns a customer of the store
func (c *GormCatalog) GetCustomer(ctx context.Context, storeID, customerID uuid.UUID) (*catalog.Customer, error) {
	var m models.CustomerModel
	if err := c.db.WithContext(ctx).
		Where("store_id = ? AND id = ?", storeID, customerID).
		First(&m).Error; err != nil {
		return nil, notFoundOr("find customer", "customer", customerID, err)
	}
	return m.ToDomain(), nil
}

// GetVariants returns the store's variants among variantIDs
func (c *GormCatalog) GetVariants(ctx context.Context, storeID uuid.UUID, variantIDs []uuid.UUID) (map[uuid.UUID]*catalog.VariantSnapshot, error) {
	out := make(map[uuid.UUID]*catalog.VariantSnapshot, len(variantIDs))
	if len(variantIDs) == 0 {
		return out, nil
	}
	var rows []models.ProductVariantModel
	if err := c.db.WithContext(ctx).
		Where("store_id = ? AND id IN ?", storeID, variantIDs).
		Find(&rows).Error; err != nil {
		return nil, wrapDBError("find variants", err)
	}
	for i := range rows {
		out[rows[i].ID] = rows[i].ToDomain()
	}
	return out, nil
}

// Reserve decrements stock for all items or none. Rows are updated in ID
// order so concurrent reservations lock them consistently.
func (c *GormCatalog) Reserve(ctx context.Context, storeID uuid.UUID, items []catalog.Reservation) error {
	return c.inTransaction(ctx, func(tx *gorm.DB) error {
		for _, item := range sortedReservations(items) {
			result := tx.Model(&models.ProductVariantModel{}).
				Where("id = ? AND store_id = ? AND stock >= ?", item.VariantID, storeID, item.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", item.Quantity))
			if result.Error != nil {
				return wrapDBError("reserve stock", result.Error)
			}
			if result.RowsAffected == 0 {
				return shared.NewValidationError("insufficient stock for variant %s", item.VariantID)
			}
		}
		return nil
	})
}

// Release returns reserved stock
func (c *GormCatalog) Release(ctx context.Context, storeID uuid.UUID, items []catalog.Reservation) error {
	return c.inTransaction(ctx, func(tx *gorm.DB) error {
		for _, item := range sortedReservations(items) {
			if err := tx.Model(&models.ProductVariantModel{}).
				Where("id = ? AND store_id = ?", item.VariantID, storeID).
				UpdateColumn("stock", gorm.Expr("stock + ?", item.Quantity)).Error; err != nil {
				return wrapDBError("release stock", err)
			}
		}
		return nil
	})
}

func (c *GormCatalog) inTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if c.inTx {
		return fn(c.db.WithContext(ctx))
	}
	return c.db.WithContext(ctx).Transaction(fn)
}

func sortedReservations(items []catalog.Reservation) []catalog.Reservation {
	sorted := make([]catalog.Reservation, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].VariantID.String() < sorted[j].VariantID.String()
	})
	return sorted
}

var _ catalog.Catalog = (*GormCatalog)(nil)
