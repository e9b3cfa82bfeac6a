package llms

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// AdapterError is a failure reported by an LLM backend, carrying enough
// classification for the caller to decide whether a retry is worthwhile.
type AdapterError struct {
	// Provider names the backend, e.g. "openai".
	Provider string
	// StatusCode is the HTTP status when the failure was an HTTP response,
	// zero otherwise.
	StatusCode int
	Err        error
}

func (e *AdapterError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s adapter failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s adapter failed: %v", e.Provider, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying: timeouts,
// network-level failures and 5xx responses are, 4xx responses are not.
func (e *AdapterError) Retryable() bool {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return false
	}
	if e.StatusCode >= 500 {
		return true
	}

	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr)
}

// IsRetryable reports whether err should be retried. Errors that carry no
// classification are treated as non-retryable, except deadline expiry which
// is always retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
