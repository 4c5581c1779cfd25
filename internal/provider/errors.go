package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
)

// Resend error names that a later attempt can succeed on.
var transientCodes = map[string]struct{}{
	"rate_limit_exceeded":   {},
	"application_error":     {},
	"internal_server_error": {},
}

// ProviderError is a failed send. Code carries the provider's error name when the
// response had one, e.g. "validation_error".
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("resend")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " %d", e.StatusCode)
	}
	if code := strings.TrimSpace(e.Code); code != "" {
		fmt.Fprintf(&b, " %s", code)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		fmt.Fprintf(&b, ": %s", msg)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newHTTPError(statusCode int, code string, message string) *ProviderError {
	code = strings.TrimSpace(code)
	_, transientCode := transientCodes[code]
	return &ProviderError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Transient:  transientCode || isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

// IsTransient reports whether the same message could be sent on a later attempt.
func IsTransient(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// FailureReason maps a send error onto a low-cardinality label for metrics.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrValidation):
		return "invalid_message"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		return "internal"
	}
	switch {
	case providerErr.StatusCode == 0:
		return "provider_unreachable"
	case providerErr.StatusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case providerErr.Transient:
		return "provider_unavailable"
	default:
		return "provider_rejected"
	}
}
