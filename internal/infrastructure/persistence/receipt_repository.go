package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormReceiptRepository implements webhook.ReceiptRepository using GORM
type GormReceiptRepository struct {
	db *gorm.DB
}

// NewGormReceiptRepository creates a new GormReceiptRepository
func NewGormReceiptRepository(db *gorm.DB) *GormReceiptRepository {
	return &GormReceiptRepository{db: db}
}

// Record inserts r unless a receipt for the same source and event exists
func (r *GormReceiptRepository) Record(ctx context.Context, receipt *webhook.Receipt) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(models.WebhookReceiptModelFromDomain(receipt)).Error
	return wrapDBError("record webhook receipt", err)
}

// FindByOrder returns the receipts that touched an order, oldest first
func (r *GormReceiptRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*webhook.Receipt, error) {
	var rows []models.WebhookReceiptModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("received_at ASC").
		Find(&rows).Error; err != nil {
		return nil, wrapDBError("find webhook receipts", err)
	}
	return receiptsToDomain(rows), nil
}

// ListRecent returns the latest receipts, optionally for one source
func (r *GormReceiptRepository) ListRecent(ctx context.Context, source string, limit int) ([]*webhook.Receipt, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := r.db.WithContext(ctx)
	if source != "" {
		query = query.Where("source = ?", source)
	}
	var rows []models.WebhookReceiptModel
	if err := query.Order("received_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, wrapDBError("list webhook receipts", err)
	}
	return receiptsToDomain(rows), nil
}

func receiptsToDomain(rows []models.WebhookReceiptModel) []*webhook.Receipt {
	receipts := make([]*webhook.Receipt, len(rows))
	for i := range rows {
		receipts[i] = rows[i].ToDomain()
	}
	return receipts
}

var _ webhook.ReceiptRepository = (*GormReceiptRepository)(nil)
