package metaapi

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType classifies an upstream Graph API failure.
type ErrorType string

const (
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeTransient ErrorType = "transient"
	ErrorTypePermanent ErrorType = "permanent"
)

// Platform error codes, as documented for the Marketing API error envelope.
//
// 4, 17, 32, 613 are the rate-limit family (app, user, page, and custom
// throttling). 190 is an expired or invalidated access token. 1, 2, 341,
// 368 are momentary upstream failures worth retrying as-is.
var (
	rateLimitCodes = map[int]bool{4: true, 17: true, 32: true, 613: true}
	transientCodes = map[int]bool{1: true, 2: true, 341: true, 368: true}
)

const codeAuthExpired = 190

// Error represents a structured Graph API error with classification.
type Error struct {
	Type       ErrorType
	Code       int    // platform error code from the response envelope
	Subcode    int    // platform error subcode, when present
	Message    string // upstream message, sanitized before logging
	StatusCode int    // HTTP status of the response
	RetryAfter time.Duration // upstream wait hint, zero when absent
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))
	if e.Code > 0 {
		parts = append(parts, fmt.Sprintf("code=%d", e.Code))
	}
	if e.Subcode > 0 {
		parts = append(parts, fmt.Sprintf("subcode=%d", e.Subcode))
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface. Auth errors
// are not retryable here; the client handles token refresh separately
// before giving up on them.
func (e *Error) IsRetryable() bool {
	return e.Type == ErrorTypeRateLimit || e.Type == ErrorTypeTransient
}

// RetryDelayHint implements the retry.DelayHinter interface, surfacing the
// Retry-After header from rate-limit responses.
func (e *Error) RetryDelayHint() (time.Duration, bool) {
	if e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// classifyCode maps a platform error code to an ErrorType.
func classifyCode(code int) ErrorType {
	switch {
	case rateLimitCodes[code]:
		return ErrorTypeRateLimit
	case code == codeAuthExpired:
		return ErrorTypeAuth
	case transientCodes[code]:
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// newAPIError builds an Error from a decoded platform error envelope.
func newAPIError(code, subcode, statusCode int, message string, retryAfter time.Duration) *Error {
	return &Error{
		Type:       classifyCode(code),
		Code:       code,
		Subcode:    subcode,
		Message:    message,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
	}
}

// newTransportError wraps a network-level failure. Connectivity blips are
// treated as transient; the retry loop bounds them like any other.
func newTransportError(err error) *Error {
	return &Error{
		Type:    ErrorTypeTransient,
		Message: "request failed",
		Cause:   err,
	}
}

// IsAuthError reports whether err is an expired-token error.
func IsAuthError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Type == ErrorTypeAuth
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypePermanent
}
