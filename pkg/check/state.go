package check

import (
	"errors"
	"fmt"
)

// State is a status reported by the on-device backend while a check runs.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCanceled
	StateOffline
	StateNoPasswords
	StateSignedOut
	StateQuotaLimit
	StateQuotaLimitAccountCheck
	StateUnknownError
)

var stateNames = map[State]string{
	StateIdle:                   "idle",
	StateRunning:                "running",
	StateCanceled:               "canceled",
	StateOffline:                "error_offline",
	StateNoPasswords:            "error_no_passwords",
	StateSignedOut:              "error_signed_out",
	StateQuotaLimit:             "error_quota_limit",
	StateQuotaLimitAccountCheck: "error_quota_limit_account_check",
	StateUnknownError:           "error_unknown",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further progress follows this state.
// Only StateRunning is transient.
func (s State) Terminal() bool {
	return s != StateRunning
}

// Failure reports whether the state ends the check without counts.
func (s State) Failure() bool {
	return s.Terminal() && s != StateIdle
}

// StateError is the error carried by a Result when the on-device backend
// finished in a failure state.
type StateError struct {
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("password check failed: %s", e.State)
}

// Is matches another StateError with the same state.
func (e *StateError) Is(target error) bool {
	var other *StateError
	if !errors.As(target, &other) {
		return false
	}
	return other.State == e.State
}

var (
	// ErrSignedOut is returned when the requested scope has no usable account.
	ErrSignedOut error = &StateError{State: StateSignedOut}

	// ErrInvalidCounts is wrapped when a backend reports counts that cannot
	// form a result (negative, or more breached than saved).
	ErrInvalidCounts = errors.New("invalid credential counts")

	// ErrUnknown stands in for a failure reported without an error value.
	ErrUnknown = errors.New("unknown password check failure")

	// ErrSuperseded resolves a pending check replaced by a newer request
	// for the same scope.
	ErrSuperseded = errors.New("password check superseded by a newer request")

	// ErrDestroyed resolves requests made after the Aggregator was destroyed.
	ErrDestroyed = errors.New("password check aggregator destroyed")
)
