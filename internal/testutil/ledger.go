package testutil

import (
	"testing"

	"github.com/storefront/backend/internal/infrastructure/event"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"gorm.io/gorm"
)

// NewLedgerStore returns a ledger store over db whose outbox serializer knows
// every domain event
func NewLedgerStore(t *testing.T, db *gorm.DB) *persistence.GormLedgerStore {
	t.Helper()
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	return persistence.NewGormLedgerStore(db, serializer)
}
