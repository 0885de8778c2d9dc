package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/storefront/backend/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database owns the gorm handle and its connection pool
type Database struct {
	DB   *gorm.DB
	pool *sql.DB
}

// Option adjusts the gorm configuration used by Open
type Option func(*gorm.Config)

// WithLogger routes gorm's statement log to l
func WithLogger(l logger.Interface) Option {
	return func(c *gorm.Config) { c.Logger = l }
}

// Open connects to the configured database, applies the pool limits and
// pings it. Supported drivers are postgres and sqlite.
func Open(ctx context.Context, cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		// sqlite connections are cheap and statement caching holds locks
		PrepareStmt: cfg.Driver != "sqlite",
	}
	for _, opt := range opts {
		opt(gormCfg)
	}

	gdb, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	db, err := wrap(gdb)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	db.pool.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(SQLiteDSN(cfg.DBName)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func wrap(gdb *gorm.DB) (*Database, error) {
	pool, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}
	return &Database{DB: gdb, pool: pool}, nil
}

// SQLiteDSN returns a DSN for a file-backed sqlite database. Transactions
// take the write lock up front so concurrent read-modify-write cycles
// serialize instead of failing with SQLITE_BUSY.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on"
}

func (d *Database) Ping(ctx context.Context) error {
	if err := d.pool.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (d *Database) Close() error { return d.pool.Close() }

// Stats reports connection pool usage
func (d *Database) Stats() sql.DBStats { return d.pool.Stats() }

// AutoMigrate creates or updates every table this service owns. Postgres
// schemas come from the SQL migrations; this serves sqlite and tests.
func (d *Database) AutoMigrate(ctx context.Context) error {
	return d.DB.WithContext(ctx).AutoMigrate(AllModels()...)
}
