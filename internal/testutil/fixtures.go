package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Fixture is a seeded store with one customer
type Fixture struct {
	StoreID    uuid.UUID
	CustomerID uuid.UUID
	Currency   string
}

// StoreOptions tunes a seeded store
type StoreOptions struct {
	Currency              string
	FlatShipping          int64
	FreeShippingThreshold int64
	Inactive              bool
}

// SeedStore inserts an active store and a customer
func SeedStore(t *testing.T, db *gorm.DB, opts StoreOptions) Fixture {
	t.Helper()
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	now := time.Now()
	store := models.StoreModel{
		BaseModel:             models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Name:                  "Test Store",
		Currency:              opts.Currency,
		FlatShipping:          opts.FlatShipping,
		FreeShippingThreshold: opts.FreeShippingThreshold,
		Active:                !opts.Inactive,
	}
	require.NoError(t, db.Create(&store).Error)

	customer := models.CustomerModel{
		BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		StoreID:   store.ID,
		Email:     "buyer@example.com",
		Name:      "Test Buyer",
	}
	require.NoError(t, db.Create(&customer).Error)

	return Fixture{StoreID: store.ID, CustomerID: customer.ID, Currency: opts.Currency}
}

// VariantOptions describes a seeded product variant
type VariantOptions struct {
	SKU      string
	Price    int64
	TaxRate  string
	Discount int64
	Stock    int
	Inactive bool
}

// SeedVariant inserts a product variant for the fixture's store
func SeedVariant(t *testing.T, db *gorm.DB, f Fixture, opts VariantOptions) uuid.UUID {
	t.Helper()
	if opts.SKU == "" {
		opts.SKU = "SKU-" + uuid.NewString()[:8]
	}
	rate := decimal.Zero
	if opts.TaxRate != "" {
		rate = decimal.RequireFromString(opts.TaxRate)
	}
	now := time.Now()
	v := models.ProductVariantModel{
		BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		ProductID: uuid.New(),
		StoreID:   f.StoreID,
		SKU:       opts.SKU,
		Name:      "Product " + opts.SKU,
		Price:     opts.Price,
		TaxRate:   rate,
		Discount:  opts.Discount,
		Stock:     opts.Stock,
		Active:    !opts.Inactive,
	}
	require.NoError(t, db.Create(&v).Error)
	return v.ID
}

// VariantStock reads the current stock of a variant
func VariantStock(t *testing.T, db *gorm.DB, variantID uuid.UUID) int {
	t.Helper()
	var v models.ProductVariantModel
	require.NoError(t, db.First(&v, "id = ?", variantID).Error)
	return v.Stock
}
