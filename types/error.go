package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a unified error code across modelmux.
type ErrorCode string

const (
	ErrAuth             ErrorCode = "AUTH_ERROR"
	ErrForbidden        ErrorCode = "FORBIDDEN_ERROR"
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST_ERROR"
	ErrRateLimit        ErrorCode = "RATE_LIMIT"
	ErrQuotaExceeded    ErrorCode = "QUOTA_EXCEEDED"
	ErrServer           ErrorCode = "SERVER_ERROR"
	ErrTimeout          ErrorCode = "TIMEOUT_ERROR"
	ErrNetwork          ErrorCode = "NETWORK_ERROR"
	ErrProviderDown     ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrModelNotFound    ErrorCode = "MODEL_NOT_FOUND"
	ErrInvalidMetadata  ErrorCode = "INVALID_MODEL_METADATA"
	ErrNoModels         ErrorCode = "NO_MODELS_REGISTERED"
	ErrSelectionFailed  ErrorCode = "MODEL_SELECTION_FAILED"
	ErrProvider         ErrorCode = "PROVIDER_ERROR"
	ErrRetriesExhausted ErrorCode = "MAX_RETRIES_EXCEEDED"
	ErrUnknown          ErrorCode = "UNKNOWN_ERROR"
)

// retryableCodes lists the codes the orchestrator retries until exhaustion.
var retryableCodes = map[ErrorCode]bool{
	ErrRateLimit: true,
	ErrServer:    true,
	ErrTimeout:   true,
	ErrNetwork:   true,
}

// Error is the structured error every provider and the orchestrator produce.
// Retryable drives the orchestrator's retry loop; RetryAfter, when non-zero,
// overrides the exponential backoff delay.
type Error struct {
	Code       ErrorCode     `json:"code"`
	Message    string        `json:"message"`
	HTTPStatus int           `json:"http_status,omitempty"`
	Retryable  bool          `json:"retryable"`
	Provider   string        `json:"provider,omitempty"`
	Model      string        `json:"model,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Cause      error         `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
// Retryability defaults to the taxonomy's value for the code.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: retryableCodes[code]}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable overrides the retryable flag.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithModel sets the model id.
func (e *Error) WithModel(model string) *Error {
	e.Model = model
	return e
}

// WithRetryAfter records the provider's retry hint.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AsError converts any error into a *Error, wrapping unknown errors
// under ErrUnknown so callers always see the unified taxonomy.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(ErrUnknown, err.Error()).WithCause(err)
}
