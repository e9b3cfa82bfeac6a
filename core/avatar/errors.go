package avatar

import (
	"errors"
	"fmt"
	"net"
)

// DispatchError is a failed vendor API call, keeping the HTTP status around
// so callers can separate client mistakes from transient server failures.
type DispatchError struct {
	// Op names the vendor operation, e.g. "streaming.task".
	Op string
	// StatusCode is zero for network-level failures.
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Temporary reports whether the failure is transient: 5xx responses and
// network-level errors are, 4xx responses are not.
func (e *DispatchError) Temporary() bool {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return false
	}
	if e.StatusCode >= 500 {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr)
}

// IsTemporary reports whether err is a transient dispatch failure. Errors
// with no classification default to temporary, matching how network-level
// failures present.
func IsTemporary(err error) bool {
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		return dispatchErr.Temporary()
	}
	return true
}
