package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := NewNotFoundError("order", "123")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))

	wrapped := fmt.Errorf("loading: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestDomainError_Retryable(t *testing.T) {
	assert.True(t, IsRetryable(NewGatewayError("refund", context.DeadlineExceeded)))
	assert.True(t, IsRetryable(NewRetryableError("db down", errors.New("conn refused"))))
	assert.False(t, IsRetryable(NewSignatureInvalidError(nil)))
	assert.False(t, IsRetryable(NewValidationError("bad")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestDomainError_UnwrapsCause(t *testing.T) {
	err := NewGatewayError("create intent", context.DeadlineExceeded)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "payment gateway create intent failed")
}

func TestStaleVersionError(t *testing.T) {
	err := fmt.Errorf("save: %w", NewStaleVersionError("order", "123"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.True(t, errors.Is(err, ErrStaleVersion))
	assert.False(t, errors.Is(NewConflictError("already paid"), ErrStaleVersion))
	assert.False(t, IsRetryable(err))
}

func TestClaimResult_String(t *testing.T) {
	assert.Equal(t, "acquired", ClaimAcquired.String())
	assert.Equal(t, "in_flight", ClaimInFlight.String())
	assert.Equal(t, "completed", ClaimCompleted.String())
}
