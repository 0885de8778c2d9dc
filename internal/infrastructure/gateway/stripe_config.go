package gateway

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTimeout bounds every gateway call when no timeout is configured
const DefaultTimeout = 10 * time.Second

// StripeConfig holds configuration for the Stripe payment gateway
type StripeConfig struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx or sk_live_xxx)
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`

	// IsTestMode indicates if using Stripe test mode
	IsTestMode bool `json:"is_test_mode" mapstructure:"is_test_mode"`

	// DefaultCurrency is used when a request carries no currency
	DefaultCurrency string `json:"default_currency" mapstructure:"default_currency"`

	// Timeout bounds each call to the Stripe API
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Validate validates the Stripe configuration
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}

	if c.IsTestMode {
		if !strings.HasPrefix(c.SecretKey, "sk_test") {
			return fmt.Errorf("stripe: test mode enabled but secret key is not a test key")
		}
	} else if !strings.HasPrefix(c.SecretKey, "sk_live") {
		return fmt.Errorf("stripe: live mode enabled but secret key is not a live key")
	}

	if c.DefaultCurrency == "" {
		return fmt.Errorf("stripe: default currency is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("stripe: timeout must not be negative")
	}
	return nil
}

func (c *StripeConfig) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
