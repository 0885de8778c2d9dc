package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var paymentUpdateColumns = []string{
	"order_id", "store_id", "status", "refunded_amount", "client_secret",
	"gateway_metadata", "failure_code", "failure_message", "shadow",
	"version", "updated_at",
}

// GormPaymentRepository implements payment.Repository using GORM
type GormPaymentRepository struct {
	db   *gorm.DB
	inTx bool
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment by its intent ID. Inside a ledger transaction the
// row is locked.
func (r *GormPaymentRepository) FindByID(ctx context.Context, id string) (*payment.Payment, error) {
	q := r.db.WithContext(ctx)
	if r.inTx {
		q = forUpdate(q)
	}
	var m models.PaymentModel
	if err := q.First(&m, "id = ?", id).Error; err != nil {
		return nil, notFoundOr("find payment", "payment", id, err)
	}
	return m.ToDomain(), nil
}

// FindByOrder returns all payment attempts for an order, oldest first
func (r *GormPaymentRepository) FindByOrder(ctx context.Context, storeID, orderID uuid.UUID) ([]*payment.Payment, error) {
	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND order_id = ?", storeID, orderID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, wrapDBError("find payments", err)
	}
	payments := make([]*payment.Payment, len(rows))
	for i := range rows {
		payments[i] = rows[i].ToDomain()
	}
	return payments, nil
}

// CountByOrder returns the number of payment attempts made for an order
func (r *GormPaymentRepository) CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("order_id = ?", orderID).
		Count(&count).Error; err != nil {
		return 0, wrapDBError("count payments", err)
	}
	return count, nil
}

// CreateIfAbsent inserts p unless the intent is already stored. It returns the
// stored row and whether this call created it.
func (r *GormPaymentRepository) CreateIfAbsent(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	m := models.PaymentModelFromDomain(p)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(m)
	if result.Error != nil {
		return nil, false, wrapDBError("create payment", result.Error)
	}
	if result.RowsAffected == 1 {
		return p, true, nil
	}
	stored, err := r.FindByID(ctx, p.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

// Save persists p if its version still matches and bumps the version
func (r *GormPaymentRepository) Save(ctx context.Context, p *payment.Payment) error {
	expected := p.Version
	m := models.PaymentModelFromDomain(p)
	m.Version = expected + 1
	m.UpdatedAt = time.Now()

	result := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("id = ? AND version = ?", p.ID, expected).
		Select(paymentUpdateColumns).
		Updates(m)
	if result.Error != nil {
		return wrapDBError("save payment", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewStaleVersionError("payment", p.ID)
	}
	p.Version = m.Version
	p.UpdatedAt = m.UpdatedAt
	return nil
}

// GormRefundRepository implements payment.RefundRepository using GORM
type GormRefundRepository struct {
	db *gorm.DB
}

// NewGormRefundRepository creates a new GormRefundRepository
func NewGormRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// FindByID finds a refund by its ID
func (r *GormRefundRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.Refund, error) {
	var m models.RefundModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFoundOr("find refund", "refund", id, err)
	}
	return m.ToDomain(), nil
}

// FindByGatewayID finds a refund by the processor's refund ID
func (r *GormRefundRepository) FindByGatewayID(ctx context.Context, gatewayRefundID string) (*payment.Refund, error) {
	var m models.RefundModel
	if err := r.db.WithContext(ctx).First(&m, "gateway_refund_id = ?", gatewayRefundID).Error; err != nil {
		return nil, notFoundOr("find refund", "refund", gatewayRefundID, err)
	}
	return m.ToDomain(), nil
}

// FindByPayment returns a payment's refunds, oldest first
func (r *GormRefundRepository) FindByPayment(ctx context.Context, paymentID string) ([]*payment.Refund, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("payment_id = ?", paymentID))
}

// FindByOrder returns the refunds of every payment of an order, oldest first
func (r *GormRefundRepository) FindByOrder(ctx context.Context, storeID, orderID uuid.UUID) ([]*payment.Refund, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("store_id = ? AND order_id = ?", storeID, orderID))
}

func (r *GormRefundRepository) find(_ context.Context, query *gorm.DB) ([]*payment.Refund, error) {
	var rows []models.RefundModel
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, wrapDBError("find refunds", err)
	}
	refunds := make([]*payment.Refund, len(rows))
	for i := range rows {
		refunds[i] = rows[i].ToDomain()
	}
	return refunds, nil
}

// Save inserts or updates a refund
func (r *GormRefundRepository) Save(ctx context.Context, refund *payment.Refund) error {
	refund.UpdatedAt = time.Now()
	m := &models.RefundModel{}
	m.FromDomain(refund)
	return wrapDBError("save refund", r.db.WithContext(ctx).Save(m).Error)
}

var (
	_ payment.Repository       = (*GormPaymentRepository)(nil)
	_ payment.RefundRepository = (*GormRefundRepository)(nil)
)
