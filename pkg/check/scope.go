package check

import (
	"fmt"
	"strings"
)

// Scope identifies the credential partition a check applies to.
type Scope int

const (
	// ScopeLocal is the device-local credential store.
	ScopeLocal Scope = iota
	// ScopeAccount is the account-synced credential store.
	ScopeAccount
)

// Scopes returns every scope in a stable order.
func Scopes() []Scope {
	return []Scope{ScopeLocal, ScopeAccount}
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeLocal || s == ScopeAccount
}

func (s Scope) String() string {
	switch s {
	case ScopeLocal:
		return "local"
	case ScopeAccount:
		return "account"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// ParseScope converts "local" or "account" (any case) into a Scope.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return ScopeLocal, nil
	case "account":
		return ScopeAccount, nil
	default:
		return 0, fmt.Errorf("unknown scope %q (supported: local, account)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid scope %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(b []byte) error {
	v, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
