package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vaamx/modelmux/types"
)

// MapHTTPError converts a vendor HTTP error status into the unified
// taxonomy. The mapping is canonical across providers:
//
//	401 -> AUTH_ERROR            403 -> FORBIDDEN_ERROR
//	400 -> INVALID_REQUEST_ERROR 404 -> MODEL_NOT_FOUND
//	429 -> RATE_LIMIT (retryable, honors Retry-After)
//	5xx -> SERVER_ERROR (retryable)
//
// Anything else becomes PROVIDER_ERROR, non-retryable.
func MapHTTPError(providerName string, status int, body string, header http.Header) *types.Error {
	msg := fmt.Sprintf("%s returned status %d", providerName, status)
	if body != "" {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}

	var err *types.Error
	switch {
	case status == http.StatusUnauthorized:
		err = types.NewError(types.ErrAuth, msg)
	case status == http.StatusForbidden:
		err = types.NewError(types.ErrForbidden, msg)
	case status == http.StatusBadRequest:
		err = types.NewError(types.ErrInvalidRequest, msg)
	case status == http.StatusNotFound:
		err = types.NewError(types.ErrModelNotFound, msg)
	case status == http.StatusTooManyRequests:
		err = types.NewError(types.ErrRateLimit, msg)
		if d, ok := parseRetryAfter(header); ok {
			err = err.WithRetryAfter(d)
		}
	case status >= 500:
		err = types.NewError(types.ErrServer, msg)
	default:
		err = types.NewError(types.ErrProvider, msg)
	}
	return err.WithHTTPStatus(status).WithProvider(providerName)
}

// MapTransportError converts a connection-level failure into the taxonomy:
// deadline and timeout failures become TIMEOUT_ERROR, cancellation is
// passed through, anything else is NETWORK_ERROR. All but cancellation are
// retryable.
func MapTransportError(providerName string, err error) *types.Error {
	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrTimeout, "request canceled").
			WithRetryable(false).
			WithProvider(providerName).
			WithCause(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, "request deadline exceeded").
			WithProvider(providerName).
			WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewError(types.ErrTimeout, "request timed out").
			WithProvider(providerName).
			WithCause(err)
	}
	return types.NewError(types.ErrNetwork, "connection failed").
		WithProvider(providerName).
		WithCause(err)
}

// parseRetryAfter reads the Retry-After header, seconds form only; the
// HTTP-date form is rare on LLM APIs and not worth the parsing surface.
func parseRetryAfter(header http.Header) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
