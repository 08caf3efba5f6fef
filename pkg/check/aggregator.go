package check

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// operation separates check runs from cached-count fetches so that one
// never supersedes the other.
type operation int

const (
	opRun operation = iota
	opFetch
)

func (o operation) String() string {
	if o == opRun {
		return "run"
	}
	return "fetch"
}

type slotKey struct {
	op    operation
	scope Scope
}

// slot is the single tracked PendingCheck for one (operation, scope).
type slot struct {
	pending *PendingCheck
	detach  func()
}

// Aggregator combines the total and breached signals of a Strategy into
// one Result per request. Each scope is tracked independently, and at most
// one run and one fetch are tracked per scope at a time.
//
// Strategies are expected to deliver signals on a single owner goroutine.
// The Aggregator does not rely on that: its slots and every PendingCheck
// are guarded by mutexes, so a strategy calling back from worker
// goroutines is also safe.
//
// Destroy stops delivery but does not resolve outstanding futures; a
// caller waiting on a check that was in flight at Destroy time must bound
// the wait with a context.
type Aggregator struct {
	strategy Strategy
	logger   *logrus.Logger

	mu        sync.Mutex
	slots     map[slotKey]*slot
	destroyed bool
}

// NewAggregator returns an Aggregator bound to strategy for its lifetime.
func NewAggregator(strategy Strategy, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Aggregator{
		strategy: strategy,
		logger:   logger,
		slots:    make(map[slotKey]*slot),
	}
}

// Kind returns the kind of the underlying strategy.
func (a *Aggregator) Kind() Kind {
	return a.strategy.Kind()
}

// RunCheck starts a breach check for scope. The returned Future resolves
// exactly once, with counts or with the error the backend reported.
func (a *Aggregator) RunCheck(scope Scope) *Future[Result] {
	return a.begin(slotKey{op: opRun, scope: scope}, a.strategy.RunCheck)
}

// GetBreachedCount fetches the last known counts for scope without
// starting a check. A scope without a usable account resolves at once
// with ErrSignedOut.
func (a *Aggregator) GetBreachedCount(scope Scope) *Future[Result] {
	a.mu.Lock()
	destroyed := a.destroyed
	a.mu.Unlock()
	if destroyed {
		a.entry(opFetch, scope).Warn("Check requested after destroy")
		return Resolved(Failed(ErrDestroyed))
	}
	if !a.strategy.HasUsableAccount(scope) {
		a.entry(opFetch, scope).Info("No usable account, skipping breached count fetch")
		return Resolved(Failed(ErrSignedOut))
	}
	return a.begin(slotKey{op: opFetch, scope: scope}, a.strategy.FetchBreachedCount)
}

// StopCheck asks the backend to cancel a running check for scope. The
// backend's terminal signal, if any, resolves the pending run.
func (a *Aggregator) StopCheck(scope Scope) {
	a.mu.Lock()
	destroyed := a.destroyed
	a.mu.Unlock()
	if destroyed {
		return
	}
	a.strategy.StopCheck(scope)
}

// Destroy unregisters every backend listener and drops every pending
// check. It is idempotent.
func (a *Aggregator) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	detaches := make(map[slotKey]func(), len(a.slots))
	for key, s := range a.slots {
		detaches[key] = s.detach
	}
	a.slots = make(map[slotKey]*slot)
	a.mu.Unlock()

	for key, detach := range detaches {
		if detach != nil {
			detach()
		}
		a.entry(key.op, key.scope).Debug("Detached pending check on destroy")
	}
}

func (a *Aggregator) begin(key slotKey, start func(Scope, Sink) func()) *Future[Result] {
	log := a.entry(key.op, key.scope)

	s := &slot{}
	s.pending = NewPendingCheck(log, func(r Result) {
		a.release(key, s)
		if r.OK() {
			log.Infof("Check finished: %v", r)
		} else {
			log.Warnf("Check failed: %v", r.Err())
		}
	})

	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		log.Warn("Check requested after destroy")
		return Resolved(Failed(ErrDestroyed))
	}
	prev := a.slots[key]
	var prevDetach func()
	if prev != nil {
		prevDetach = prev.detach
	}
	a.slots[key] = s
	a.mu.Unlock()

	if prev != nil {
		if prevDetach != nil {
			prevDetach()
		}
		log.Info("Superseding previous pending check")
		prev.pending.OnError(ErrSuperseded)
	}

	detach := start(key.scope, s.pending)

	// The strategy may have resolved synchronously, or Destroy may have
	// run, before detach was known.
	a.mu.Lock()
	current := a.slots[key] == s && !s.pending.Resolved()
	if current {
		s.detach = detach
	}
	a.mu.Unlock()
	if !current && detach != nil {
		detach()
	}

	return s.pending.Result()
}

// release drops a resolved slot and its listeners if it is still current.
func (a *Aggregator) release(key slotKey, s *slot) {
	a.mu.Lock()
	if a.slots[key] != s {
		a.mu.Unlock()
		return
	}
	delete(a.slots, key)
	detach := s.detach
	a.mu.Unlock()

	if detach != nil {
		detach()
	}
}

func (a *Aggregator) entry(op operation, scope Scope) *logrus.Entry {
	return a.logger.WithFields(logrus.Fields{
		"backend":   a.strategy.Kind().String(),
		"scope":     scope.String(),
		"operation": op.String(),
	})
}
