package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"STOREFRONT_APP_NAME",
	"STOREFRONT_APP_ENV",
	"STOREFRONT_APP_PORT",
	"STOREFRONT_DATABASE_DRIVER",
	"STOREFRONT_DATABASE_HOST",
	"STOREFRONT_DATABASE_PORT",
	"STOREFRONT_DATABASE_PASSWORD",
	"STOREFRONT_DATABASE_SSLMODE",
	"STOREFRONT_DATABASE_MAX_OPEN_CONNS",
	"STOREFRONT_DATABASE_MAX_IDLE_CONNS",
	"STOREFRONT_REDIS_ENABLED",
	"STOREFRONT_STRIPE_SECRET_KEY",
	"STOREFRONT_STRIPE_WEBHOOK_SECRET",
	"STOREFRONT_STRIPE_IS_TEST_MODE",
	"STOREFRONT_WEBHOOKS_LEASE",
	"STOREFRONT_WEBHOOKS_IDEMPOTENCY_TTL",
	"STOREFRONT_WEBHOOKS_CUSTOM_NAME",
	"STOREFRONT_WEBHOOKS_CUSTOM_SECRET",
	"STOREFRONT_TELEMETRY_SAMPLING_RATIO",
}

// clearEnv blanks every variable the tests touch; viper treats empty values as unset
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := LoadFrom(t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, "storefront", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "storefront", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, 2*time.Second, cfg.Event.PollInterval)
		assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodySize)
		assert.Equal(t, float64(50), cfg.HTTP.WebhookRateLimit)
		assert.Equal(t, "usd", cfg.Stripe.DefaultCurrency)
		assert.Equal(t, 10*time.Second, cfg.Stripe.Timeout)
		assert.Equal(t, 24*time.Hour, cfg.Webhooks.IdempotencyTTL)
		assert.Equal(t, 2*time.Minute, cfg.Webhooks.Lease)
		assert.Equal(t, "X-Webhook-Signature", cfg.Webhooks.CustomHeader)
		assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, "storefront.notifications", cfg.Kafka.Topic)
	})

	t.Run("loads values from environment variables with STOREFRONT prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOREFRONT_APP_NAME", "shop-api")
		t.Setenv("STOREFRONT_APP_PORT", "9000")
		t.Setenv("STOREFRONT_DATABASE_HOST", "db.internal")
		t.Setenv("STOREFRONT_DATABASE_PORT", "5433")
		t.Setenv("STOREFRONT_REDIS_ENABLED", "true")
		t.Setenv("STOREFRONT_STRIPE_SECRET_KEY", "sk_test_123")
		t.Setenv("STOREFRONT_WEBHOOKS_LEASE", "30s")

		cfg, err := LoadFrom(t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, "shop-api", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
		assert.Equal(t, 30*time.Second, cfg.Webhooks.Lease)
	})

	t.Run("reads config.toml and lets env override it", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		content := `
[app]
name = "from-file"
port = "7000"

[webhooks]
carrier_secret = "carrier-secret"

[kafka]
enabled = true
brokers = ["k1:9092", "k2:9092"]
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600))
		t.Setenv("STOREFRONT_APP_PORT", "7100")

		cfg, err := LoadFrom(dir)
		require.NoError(t, err)

		assert.Equal(t, "from-file", cfg.App.Name)
		assert.Equal(t, "7100", cfg.App.Port)
		assert.Equal(t, "carrier-secret", cfg.Webhooks.CarrierSecret)
		assert.True(t, cfg.Kafka.Enabled)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOREFRONT_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("STOREFRONT_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := LoadFrom(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects unknown database driver", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOREFRONT_DATABASE_DRIVER", "mysql")

		_, err := LoadFrom(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("custom webhook source needs a secret", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOREFRONT_WEBHOOKS_CUSTOM_NAME", "marketplace")

		_, err := LoadFrom(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "webhooks.custom_secret")
	})

	t.Run("lease must be shorter than idempotency ttl", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOREFRONT_WEBHOOKS_LEASE", "2h")
		t.Setenv("STOREFRONT_WEBHOOKS_IDEMPOTENCY_TTL", "1h")

		_, err := LoadFrom(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "webhooks.lease")
	})

	t.Run("rejects sampling ratio out of range", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOREFRONT_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := LoadFrom(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOREFRONT_APP_ENV", "production")
		t.Setenv("STOREFRONT_DATABASE_PASSWORD", "secure-password")
		t.Setenv("STOREFRONT_DATABASE_SSLMODE", "require")
		t.Setenv("STOREFRONT_STRIPE_SECRET_KEY", "sk_live_abc")
		t.Setenv("STOREFRONT_STRIPE_WEBHOOK_SECRET", "whsec_abc")
	}

	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "valid production config"},
		{name: "requires database password", env: map[string]string{"STOREFRONT_DATABASE_PASSWORD": ""}, wantErr: "database.password is required"},
		{name: "requires ssl", env: map[string]string{"STOREFRONT_DATABASE_SSLMODE": "disable"}, wantErr: "database.sslmode"},
		{name: "requires stripe secret key", env: map[string]string{"STOREFRONT_STRIPE_SECRET_KEY": ""}, wantErr: "stripe.secret_key"},
		{name: "requires stripe webhook secret", env: map[string]string{"STOREFRONT_STRIPE_WEBHOOK_SECRET": ""}, wantErr: "stripe.webhook_secret"},
		{name: "forbids stripe test mode", env: map[string]string{"STOREFRONT_STRIPE_IS_TEST_MODE": "true"}, wantErr: "is_test_mode"},
		{name: "forbids sqlite", env: map[string]string{"STOREFRONT_DATABASE_DRIVER": "sqlite"}, wantErr: "sqlite in production"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setValidProductionBase(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadFrom(t.TempDir())
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "production", cfg.App.Env)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "/testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", cfg.RedisAddr())
}
