// Package store holds saved credentials per scope and the breach list they
// are checked against.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/kylerisse/breachcheck/pkg/check"
)

// Credential is one saved login.
type Credential struct {
	Origin   string `json:"origin"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Store holds one credential partition per scope and the signed-in
// account. It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	account     string
	credentials map[check.Scope][]Credential
}

// New returns an empty Store signed in as account ("" for signed out).
func New(account string) *Store {
	return &Store{
		account:     account,
		credentials: make(map[check.Scope][]Credential),
	}
}

// fileConfig is the on-disk layout read by LoadFile.
type fileConfig struct {
	Account     string                       `json:"account"`
	Credentials map[check.Scope][]Credential `json:"credentials"`
}

// LoadFile reads a Store from a JSON file of the form
//
//	{"account": "me@example.com", "credentials": {"local": [...], "account": [...]}}
func LoadFile(path string) (*Store, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file %s: %w", path, err)
	}

	var cfg fileConfig
	if err := json.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse JSON: %w", err)
	}

	s := New(cfg.Account)
	for scope, creds := range cfg.Credentials {
		for i, c := range creds {
			if err := s.Add(scope, c); err != nil {
				return nil, fmt.Errorf("%s credential at index %d: %w", scope, i, err)
			}
		}
	}
	return s, nil
}

// Account returns the signed-in account, or "" when signed out.
func (s *Store) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// SetAccount signs in as account, or signs out when account is "".
func (s *Store) SetAccount(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = account
}

// Add saves a credential in scope.
func (s *Store) Add(scope check.Scope, c Credential) error {
	if c.Password == "" {
		return fmt.Errorf("credential for %q has an empty password", c.Origin)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[scope] = append(s.credentials[scope], c)
	return nil
}

// Count returns the number of credentials saved in scope.
func (s *Store) Count(scope check.Scope) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.credentials[scope])
}

// Credentials returns a copy of the credentials saved in scope.
func (s *Store) Credentials(scope check.Scope) []Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Credential, len(s.credentials[scope]))
	copy(out, s.credentials[scope])
	return out
}
