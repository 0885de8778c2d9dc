package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
)

// BaseModel provides common persistence fields for uuid-keyed rows.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// StoreAggregateModel provides the columns of store-scoped aggregate roots,
// including the optimistic lock version
type StoreAggregateModel struct {
	BaseModel
	StoreID uuid.UUID `gorm:"type:uuid;not null;index"`
	Version int       `gorm:"not null;default:1"`
}

// FromDomainStoreAggregateRoot populates StoreAggregateModel from a domain StoreAggregateRoot
func (m *StoreAggregateModel) FromDomainStoreAggregateRoot(a shared.StoreAggregateRoot) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.StoreID = a.StoreID
	m.Version = a.Version
}

// ToDomainStoreAggregateRoot builds a domain StoreAggregateRoot from the model
func (m *StoreAggregateModel) ToDomainStoreAggregateRoot() shared.StoreAggregateRoot {
	return shared.StoreAggregateRoot{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: m.BaseModel.ToDomain(),
			Versioned:  shared.Versioned{Version: m.Version},
		},
		StoreID: m.StoreID,
	}
}
