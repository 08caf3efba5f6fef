package check

import (
	"sync"
)

// Status tracks the latest result of a scope's breach checks.
// It is safe for concurrent use.
type Status struct {
	mu         sync.RWMutex
	lastResult Result
	hasResult  bool
	lastUpdate int64
}

// NewStatus creates a Status with no result recorded.
func NewStatus() *Status {
	return &Status{}
}

// OK returns whether the last recorded check succeeded.
func (s *Status) OK() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult.OK()
}

// LastUpdate returns the unix timestamp of the last recorded result.
func (s *Status) LastUpdate() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// SetResult stores the latest check result.
func (s *Status) SetResult(result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResult = result
	s.hasResult = true
}

// SetLastUpdate records the unix timestamp of the last recorded result.
func (s *Status) SetLastUpdate(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdate = ts
}

// Snapshot returns a point-in-time copy of the status fields.
// This is useful for building API responses without holding the lock.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatusSnapshot{
		Checked:    s.hasResult,
		LastUpdate: s.lastUpdate,
	}
	if !s.hasResult {
		return snap
	}

	if total, breached, ok := s.lastResult.Counts(); ok {
		snap.OK = true
		snap.Total = &total
		snap.Breached = &breached
	} else if err := s.lastResult.Err(); err != nil {
		snap.Error = err.Error()
	}
	return snap
}

// StatusSnapshot is a point-in-time copy of Status fields.
// Total and Breached are nil unless the last check succeeded.
type StatusSnapshot struct {
	Checked    bool   `json:"checked"`
	OK         bool   `json:"ok"`
	Total      *int   `json:"total,omitempty"`
	Breached   *int   `json:"breached,omitempty"`
	Error      string `json:"error,omitempty"`
	LastUpdate int64  `json:"lastupdate"`
}
