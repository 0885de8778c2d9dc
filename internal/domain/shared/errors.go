package shared

import (
	"errors"
	"fmt"
)

// Error codes shared by every bounded context. Handlers map them to HTTP statuses.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeConflict          = "CONFLICT"
	CodeSignatureInvalid  = "SIGNATURE_INVALID"
	CodeGateway           = "GATEWAY_ERROR"
	CodeRetryable         = "RETRYABLE"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError carrying the same code, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of message.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Retryable reports whether the caller's transport should try again later
func (e *DomainError) Retryable() bool {
	return e.Code == CodeGateway || e.Code == CodeRetryable
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Sentinels for errors.Is comparisons
var (
	ErrValidation        = NewDomainError(CodeValidation, "Invalid input")
	ErrNotFound          = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidTransition = NewDomainError(CodeInvalidTransition, "Transition not allowed")
	ErrConflict          = NewDomainError(CodeConflict, "Resource was modified by another process")
	ErrSignatureInvalid  = NewDomainError(CodeSignatureInvalid, "Webhook signature invalid")
	ErrGateway           = NewDomainError(CodeGateway, "Payment gateway failure")
	ErrRetryable         = NewDomainError(CodeRetryable, "Temporary failure, retry later")
)

// NewValidationError reports malformed or inconsistent input
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewNotFoundError reports a missing entity
func NewNotFoundError(entity string, id any) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s %v not found", entity, id))
}

// NewInvalidTransitionError reports a state machine precondition violation
func NewInvalidTransitionError(entity string, from, to any) *DomainError {
	return NewDomainError(CodeInvalidTransition, fmt.Sprintf("cannot transition %s from %v to %v", entity, from, to))
}

// NewConflictError reports a lost race or a precondition that needs a different flow
func NewConflictError(format string, args ...any) *DomainError {
	return NewDomainError(CodeConflict, fmt.Sprintf(format, args...))
}

// ErrStaleVersion is the cause of every conflict raised by a version-checked save
var ErrStaleVersion = errors.New("stale aggregate version")

// NewStaleVersionError reports an optimistic lock lost to a concurrent writer.
// It is a conflict; errors.Is(err, ErrStaleVersion) tells it apart from a
// business rule rejection.
func NewStaleVersionError(entity string, id any) *DomainError {
	return &DomainError{Code: CodeConflict, Message: fmt.Sprintf("%s %v was modified concurrently", entity, id), Cause: ErrStaleVersion}
}

// NewSignatureInvalidError reports an untrusted webhook payload
func NewSignatureInvalidError(cause error) *DomainError {
	return &DomainError{Code: CodeSignatureInvalid, Message: "webhook signature verification failed", Cause: cause}
}

// NewGatewayError wraps an upstream processor failure
func NewGatewayError(operation string, cause error) *DomainError {
	return &DomainError{Code: CodeGateway, Message: "payment gateway " + operation + " failed", Cause: cause}
}

// NewRetryableError wraps a transient infrastructure failure
func NewRetryableError(message string, cause error) *DomainError {
	return &DomainError{Code: CodeRetryable, Message: message, Cause: cause}
}

// IsRetryable reports whether err, anywhere in its chain, asks for a retry
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable()
	}
	return false
}

// CodeOf returns the domain error code carried by err, or "" for foreign errors
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
