package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/application/ledger"
	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/webhook"
	"gorm.io/gorm"
)

// GormLedgerStore implements ledger.Store. Every callback runs in one database
// transaction; rows loaded through the transactional repositories are locked
// on dialects that support SELECT ... FOR UPDATE.
type GormLedgerStore struct {
	db         *gorm.DB
	serializer Serializer
	readRepos  *gormRepositories
}

// NewGormLedgerStore creates a ledger store over db. serializer encodes the
// domain events written to the outbox.
func NewGormLedgerStore(db *gorm.DB, serializer Serializer) *GormLedgerStore {
	return &GormLedgerStore{
		db:         db,
		serializer: serializer,
		readRepos:  newGormRepositories(db, serializer, false),
	}
}

// Repositories returns non-transactional repositories for reads
func (s *GormLedgerStore) Repositories() ledger.Repositories {
	return s.readRepos
}

// Execute runs fn within a database transaction
func (s *GormLedgerStore) Execute(ctx context.Context, fn func(repos ledger.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newGormRepositories(tx, s.serializer, true))
	})
}

// WithinOrderLock loads the order holding its row lock and runs fn in the
// same transaction
func (s *GormLedgerStore) WithinOrderLock(ctx context.Context, orderID uuid.UUID, fn func(repos ledger.Repositories, o *order.Order) error) error {
	return s.Execute(ctx, func(repos ledger.Repositories) error {
		o, err := repos.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		return fn(repos, o)
	})
}

// WithinPaymentLock loads the payment holding its row lock and runs fn in the
// same transaction
func (s *GormLedgerStore) WithinPaymentLock(ctx context.Context, paymentID string, fn func(repos ledger.Repositories, p *payment.Payment) error) error {
	return s.Execute(ctx, func(repos ledger.Repositories) error {
		p, err := repos.Payments().FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		return fn(repos, p)
	})
}

type gormRepositories struct {
	orders   *GormOrderRepository
	payments *GormPaymentRepository
	refunds  *GormRefundRepository
	receipts *GormReceiptRepository
	catalog  *GormCatalog
	outbox   *OutboxWriter
}

func newGormRepositories(db *gorm.DB, serializer Serializer, inTx bool) *gormRepositories {
	return &gormRepositories{
		orders:   &GormOrderRepository{db: db, inTx: inTx},
		payments: &GormPaymentRepository{db: db, inTx: inTx},
		refunds:  NewGormRefundRepository(db),
		receipts: NewGormReceiptRepository(db),
		catalog:  &GormCatalog{db: db, inTx: inTx},
		outbox:   NewOutboxWriter(db, serializer),
	}
}

func (r *gormRepositories) Orders() order.Repository { return r.orders }
func (r *gormRepositories) Payments() payment.Repository { return r.payments }
func (r *gormRepositories) Refunds() payment.RefundRepository { return r.refunds }
func (r *gormRepositories) Receipts() webhook.ReceiptRepository { return r.receipts }
func (r *gormRepositories) Catalog() catalog.Catalog { return r.catalog }
func (r *gormRepositories) Outbox() ledger.EventSaver { return r.outbox }

var _ ledger.Store = (*GormLedgerStore)(nil)
