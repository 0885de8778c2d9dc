package cache

import (
	"testing"

	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewClaimStore_Disabled(t *testing.T) {
	store, err := NewClaimStore(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	require.NoError(t, store.Close())
}

// Port 1 refuses connections, so the ping fails fast.
func unreachable() config.RedisConfig {
	return config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
}

func TestNewClaimStore_Fallback(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	store, err := NewClaimStore(unreachable(), WithLogger(zap.New(core)))
	require.NoError(t, err)
	assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	assert.Equal(t, 1, logs.FilterMessage("Redis unreachable, webhook claims are process-local").Len())
	require.NoError(t, store.Close())
}

func TestNewClaimStore_RedisRequired(t *testing.T) {
	store, err := NewClaimStore(unreachable(), WithInMemoryFallback(false), WithLogger(nil))
	require.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "redis claim store unavailable")
}
