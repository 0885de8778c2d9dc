package persistence

import (
	"errors"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels lists every table owned by the service, in dependency order
func AllModels() []any {
	return []any{
		&models.StoreModel{},
		&models.CustomerModel{},
		&models.ProductVariantModel{},
		&models.OrderModel{},
		&models.OrderItemModel{},
		&models.StatusNoteModel{},
		&models.PaymentModel{},
		&models.RefundModel{},
		&models.WebhookReceiptModel{},
		&models.OutboxEvent{},
	}
}

// wrapDBError passes domain errors through and turns driver errors into
// retryable ones
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.NewRetryableError(op, err)
}

// notFoundOr maps gorm's record-not-found to a domain not-found error
func notFoundOr(op, entity string, id any, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.NewNotFoundError(entity, id)
	}
	return wrapDBError(op, err)
}

// forUpdate adds a row lock on dialects that support it. sqlite serializes
// writers at the transaction level instead.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
