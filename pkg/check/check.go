// Package check defines the core types for password breach checks.
//
// A breach check counts the credentials saved in one storage scope and how
// many of them appear in known data breaches. The two counts come from a
// backend as independent asynchronous signals. The Aggregator combines them
// into a single Result, or short-circuits to an error when the backend
// reports that the check could not run.
//
// Backends are plugged in through the Strategy interface. The ondevice and
// remote packages provide the two implementations; the Registry lets a
// caller pick one by name from configuration at runtime.
package check

import (
	"fmt"
	"strings"
)

// Sink receives the completion signals of one check run.
// Implementations must tolerate the signals arriving in any order.
type Sink interface {
	// OnTotal reports the number of saved credentials.
	OnTotal(n int)

	// OnBreached reports the number of breached credentials.
	OnBreached(n int)

	// OnError reports that the check could not produce counts.
	OnError(err error)
}

// Strategy is the capability set a backend offers the Aggregator.
type Strategy interface {
	// Kind identifies the backend implementation.
	Kind() Kind

	// RunCheck starts a breach check for scope and arranges for its
	// signals to be delivered to sink. The returned function unregisters
	// every listener the call installed; signals after it returns are
	// dropped.
	RunCheck(scope Scope, sink Sink) (detach func())

	// FetchBreachedCount asks for the last known counts for scope without
	// starting a new check.
	FetchBreachedCount(scope Scope, sink Sink) (detach func())

	// StopCheck is a best-effort cancellation of a running check.
	StopCheck(scope Scope)

	// HasUsableAccount reports whether scope can be checked at all for
	// the current account state.
	HasUsableAccount(scope Scope) bool
}

// Kind names a backend implementation.
type Kind int

const (
	// KindOnDevice is the on-device engine reached through observer events.
	KindOnDevice Kind = iota
	// KindRemote is the checkup service reached through request callbacks.
	KindRemote
)

// String returns the registry name of the kind.
func (k Kind) String() string {
	switch k {
	case KindOnDevice:
		return "ondevice"
	case KindRemote:
		return "remote"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a registry name back into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "ondevice":
		return KindOnDevice, nil
	case "remote":
		return KindRemote, nil
	default:
		return 0, fmt.Errorf("unknown backend kind %q (supported: ondevice, remote)", s)
	}
}
