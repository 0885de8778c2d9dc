package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/catalog"
)

// StoreModel is the persistence model for a store (tenant)
type StoreModel struct {
	BaseModel
	Name                  string `gorm:"type:varchar(200);not null"`
	Currency              string `gorm:"type:varchar(3);not null"`
	FlatShipping          int64  `gorm:"not null;default:0"`
	FreeShippingThreshold int64  `gorm:"not null;default:0"`
	Active                bool   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StoreModel) TableName() string {
	return "stores"
}

// ToDomain converts the persistence model to a catalog StoreProfile
func (m *StoreModel) ToDomain() *catalog.StoreProfile {
	return &catalog.StoreProfile{
		ID:                    m.ID,
		Name:                  m.Name,
		Currency:              m.Currency,
		FlatShipping:          m.FlatShipping,
		FreeShippingThreshold: m.FreeShippingThreshold,
		Active:                m.Active,
	}
}

// CustomerModel is the persistence model for a store customer
type CustomerModel struct {
	BaseModel
	StoreID uuid.UUID `gorm:"type:uuid;not null;index"`
	Email   string    `gorm:"type:varchar(255);not null"`
	Name    string    `gorm:"type:varchar(200)"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a catalog Customer
func (m *CustomerModel) ToDomain() *catalog.Customer {
	return &catalog.Customer{
		ID:      m.ID,
		StoreID: m.StoreID,
		Email:   m.Email,
		Name:    m.Name,
	}
}

// ProductVariantModel is the persistence model for a sellable variant and its stock
type ProductVariantModel struct {
	BaseModel
	ProductID uuid.UUID       `gorm:"type:uuid;not null;index"`
	StoreID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	SKU       string          `gorm:"type:varchar(64);not null"`
	Name      string          `gorm:"type:varchar(200);not null"`
	Price     int64           `gorm:"not null"`
	TaxRate   decimal.Decimal `gorm:"type:decimal(6,4);not null;default:0"`
	Discount  int64           `gorm:"not null;default:0"`
	Stock     int             `gorm:"not null;default:0"`
	Active    bool            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductVariantModel) TableName() string {
	return "product_variants"
}

// ToDomain converts the persistence model to a catalog VariantSnapshot
func (m *ProductVariantModel) ToDomain() *catalog.VariantSnapshot {
	return &catalog.VariantSnapshot{
		ID:        m.ID,
		ProductID: m.ProductID,
		StoreID:   m.StoreID,
		SKU:       m.SKU,
		Name:      m.Name,
		Price:     m.Price,
		TaxRate:   m.TaxRate,
		Discount:  m.Discount,
		Stock:     m.Stock,
		Active:    m.Active,
	}
}
