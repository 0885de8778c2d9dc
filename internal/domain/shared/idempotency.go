package shared

import (
	"context"
	"time"
)

// ClaimResult is the outcome of trying to reserve an idempotency key
type ClaimResult int

const (
	// ClaimAcquired means the caller now owns the key and must Complete or Release it
	ClaimAcquired ClaimResult = iota
	// ClaimInFlight means another worker holds the key and has not finished
	ClaimInFlight
	// ClaimCompleted means the key was already processed successfully
	ClaimCompleted
)

// String returns the claim result name for logging
func (r ClaimResult) String() string {
	switch r {
	case ClaimAcquired:
		return "acquired"
	case ClaimInFlight:
		return "in_flight"
	case ClaimCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// IdempotencyStore guards webhook event processing against duplicate, possibly
// concurrent, deliveries. Keys are independent of the ledger database.
type IdempotencyStore interface {
	// Claim reserves key for lease. A crashed worker's claim expires after lease.
	Claim(ctx context.Context, key string, lease time.Duration) (ClaimResult, error)

	// Complete marks a claimed key as processed for ttl
	Complete(ctx context.Context, key string, ttl time.Duration) error

	// Release drops a claim so a redelivery can be processed
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a completed key suppresses redelivery
	TTL time.Duration
	// Lease bounds how long an in-flight claim blocks concurrent deliveries
	Lease time.Duration
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:   24 * time.Hour,
		Lease: 2 * time.Minute,
	}
}
