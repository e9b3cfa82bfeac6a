package orchestration

import (
	"fmt"
)

// InvalidStateError is returned when a session operation is attempted in a
// state that does not allow it.
type InvalidStateError struct {
	Op    string
	State SessionState
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s while the session is %s", e.Op, e.State)
}

// MissingTokenError is returned by Start when no avatar handle exists and no
// session token was provided to construct one.
type MissingTokenError struct{}

func (e *MissingTokenError) Error() string {
	return "a session token is required to construct an avatar handle"
}

// QuotaExhaustedError blocks session start when no streaming credits remain.
type QuotaExhaustedError struct{}

func (e *QuotaExhaustedError) Error() string {
	return "no streaming credits remaining"
}

// QuotaDeclinedError is returned when the remaining credits were below the
// low-credit threshold and the confirmation callback declined to proceed.
type QuotaDeclinedError struct {
	Credits int
}

func (e *QuotaDeclinedError) Error() string {
	return fmt.Sprintf("session start declined at %d remaining credit(s)", e.Credits)
}

// ConfigRejectedError is returned when the vendor rejected the session
// configuration payload.
type ConfigRejectedError struct {
	Err error
}

func (e *ConfigRejectedError) Error() string {
	return fmt.Sprintf("session configuration rejected: %v", e.Err)
}

func (e *ConfigRejectedError) Unwrap() error { return e.Err }
