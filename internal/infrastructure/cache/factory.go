package cache

import (
	"fmt"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ClaimStoreOption configures NewClaimStore
type ClaimStoreOption func(*claimStoreOptions)

type claimStoreOptions struct {
	logger   *zap.Logger
	fallback bool
}

// WithLogger sets the logger used to report which backend was chosen
func WithLogger(logger *zap.Logger) ClaimStoreOption {
	return func(o *claimStoreOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to
// process-local claims. Enabled by default.
func WithInMemoryFallback(allow bool) ClaimStoreOption {
	return func(o *claimStoreOptions) {
		o.fallback = allow
	}
}

// NewClaimStore returns the webhook claim store for cfg. Redis is used when
// enabled; in-memory claims are only shared within one process.
func NewClaimStore(cfg config.RedisConfig, opts ...ClaimStoreOption) (shared.IdempotencyStore, error) {
	o := claimStoreOptions{logger: zap.NewNop(), fallback: true}
	for _, opt := range opts {
		opt(&o)
	}

	if !cfg.Enabled {
		o.logger.Info("Redis disabled, webhook claims are process-local")
		return NewInMemoryIdempotencyStore(), nil
	}

	store, err := NewRedisIdempotencyStore(RedisConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	switch {
	case err == nil:
		o.logger.Info("Webhook claims stored in Redis",
			zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)))
		return store, nil
	case !o.fallback:
		return nil, fmt.Errorf("redis claim store unavailable: %w", err)
	}

	o.logger.Warn("Redis unreachable, webhook claims are process-local", zap.Error(err))
	return NewInMemoryIdempotencyStore(), nil
}
