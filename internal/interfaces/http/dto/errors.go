package dto

import "net/http"

// Error codes returned in the response envelope. Domain errors keep their own
// code; the transport adds the ones that never reach a service.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeSignatureInvalid  = "SIGNATURE_INVALID"
	ErrCodeGateway           = "GATEWAY_ERROR"
	ErrCodeRetryable         = "RETRYABLE"
)

// Transport error codes
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeMissingStore    = "STORE_REQUIRED"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeValidation:        http.StatusBadRequest,
	ErrCodeNotFound:          http.StatusNotFound,
	ErrCodeInvalidTransition: http.StatusUnprocessableEntity,
	ErrCodeConflict:          http.StatusConflict,
	ErrCodeSignatureInvalid:  http.StatusBadRequest,
	ErrCodeGateway:           http.StatusBadGateway,
	ErrCodeRetryable:         http.StatusServiceUnavailable,

	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeMissingStore:    http.StatusBadRequest,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// errorCodeAliases folds older or library-specific spellings into the
// canonical codes clients switch on
var errorCodeAliases = map[string]string{
	"INVALID_INPUT":        ErrCodeValidation,
	"INVALID_STATE":        ErrCodeInvalidTransition,
	"CONCURRENCY_CONFLICT": ErrCodeConflict,
	"ALREADY_EXISTS":       ErrCodeConflict,
	"RATE_LIMIT_EXCEEDED":  ErrCodeRateLimited,
	"UNAVAILABLE":          ErrCodeRetryable,
}

// NormalizeErrorCode returns the canonical spelling of code. Canonical and
// unknown codes are returned unchanged.
func NormalizeErrorCode(code string) string {
	if canonical, ok := errorCodeAliases[code]; ok {
		return canonical
	}
	return code
}
