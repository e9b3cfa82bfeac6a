package llms

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
)

func TestAdapterErrorRetryableByStatus(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, tc := range cases {
		err := &AdapterError{Provider: "openai", StatusCode: tc.status, Err: errors.New("boom")}
		if err.Retryable() != tc.retryable {
			t.Fatalf("status %d: expected retryable=%v", tc.status, tc.retryable)
		}
	}
}

func TestAdapterErrorRetryableOnTimeout(t *testing.T) {
	err := &AdapterError{Provider: "gemini", Err: fmt.Errorf("stream: %w", context.DeadlineExceeded)}
	if !err.Retryable() {
		t.Fatalf("expected a deadline expiry to be retryable")
	}
}

func TestIsRetryableUnwrapsAdapterErrors(t *testing.T) {
	wrapped := fmt.Errorf("turn failed: %w", &AdapterError{Provider: "openai", StatusCode: http.StatusBadGateway, Err: errors.New("upstream")})
	if !IsRetryable(wrapped) {
		t.Fatalf("expected a wrapped 502 to be retryable")
	}
}

func TestIsRetryableDefaultsToPermanent(t *testing.T) {
	if IsRetryable(errors.New("unclassified")) {
		t.Fatalf("expected an unclassified error to be permanent")
	}
	if IsRetryable(nil) {
		t.Fatalf("expected nil to be non-retryable")
	}
}

func TestIsRetryableNetworkErrors(t *testing.T) {
	var netErr net.Error = &net.OpError{Op: "dial", Err: &timeoutError{}}
	if !IsRetryable(fmt.Errorf("request: %w", netErr)) {
		t.Fatalf("expected a network error to be retryable")
	}
	if !IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("expected a bare deadline expiry to be retryable")
	}
}

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
