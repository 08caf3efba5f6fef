// Package engine implements the on-device password check engine behind the
// ondevice strategy.
//
// Checks run on worker goroutines. Every observer event is handed to a
// single dispatcher goroutine, so observers of the engine see events for
// a scope one at a time and in the order they were produced.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kylerisse/breachcheck/pkg/check"
	"github.com/kylerisse/breachcheck/pkg/connectivity"
	"github.com/kylerisse/breachcheck/pkg/ondevice"
	"github.com/kylerisse/breachcheck/pkg/pwned"
	"github.com/kylerisse/breachcheck/pkg/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultProbeTimeout bounds the connectivity probe of one check.
	DefaultProbeTimeout = connectivity.DefaultTimeout

	// eventBuffer is the dispatcher queue length.
	eventBuffer = 64
)

// Lookup reports how often a password appears in an online breach corpus.
// *pwned.Client implements it.
type Lookup interface {
	Lookup(ctx context.Context, password string) (int, error)
}

// run is one in-flight check and the observers subscribed to it.
type run struct {
	cancel      context.CancelFunc
	subscribers map[int]ondevice.Observer
	// savedSent is set once the saved passwords event has been queued.
	savedSent bool
}

// scopeState is the engine's bookkeeping for one scope.
type scopeState struct {
	run         *run
	saved       int
	compromised int
}

// Engine checks the credentials of a store against a breach list.
// It implements ondevice.Bridge.
type Engine struct {
	store    *store.Store
	breaches *store.BreachList
	probe    connectivity.Prober
	lookup   Lookup
	quota    *rate.Limiter
	logger   *logrus.Logger

	events chan func()
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	scopes  map[check.Scope]*scopeState
	nextID  int
}

var _ ondevice.Bridge = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine) error

// WithProber makes every check probe connectivity first and report
// check.StateOffline when the probe fails.
func WithProber(p connectivity.Prober) Option {
	return func(e *Engine) error {
		if p == nil {
			return fmt.Errorf("prober must not be nil")
		}
		e.probe = p
		return nil
	}
}

// WithQuota limits how often checks may run. A check started without an
// available token reports a quota state.
func WithQuota(l *rate.Limiter) Option {
	return func(e *Engine) error {
		if l == nil {
			return fmt.Errorf("quota limiter must not be nil")
		}
		e.quota = l
		return nil
	}
}

// WithLookup additionally checks every credential not on the breach list
// against an online corpus. A rate-limited lookup ends the check with the
// scope's quota state; any other lookup failure reports check.StateOffline.
func WithLookup(l Lookup) Option {
	return func(e *Engine) error {
		if l == nil {
			return fmt.Errorf("lookup must not be nil")
		}
		e.lookup = l
		return nil
	}
}

// New creates an Engine for the given store and breach list. Call Start
// before use and Stop when done.
func New(st *store.Store, breaches *store.BreachList, logger *logrus.Logger, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("engine: store must not be nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := &Engine{
		store:    st,
		breaches: breaches,
		logger:   logger,
		events:   make(chan func(), eventBuffer),
		done:     make(chan struct{}),
		scopes:   make(map[check.Scope]*scopeState),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}
	return e, nil
}

// Start launches the event dispatcher.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true

	e.wg.Add(1)
	go e.dispatch()
	e.logger.Info("Password check engine started")
}

// Stop cancels running checks and waits for workers and the dispatcher to
// exit. Events not yet delivered are dropped.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	for _, st := range e.scopes {
		if st.run != nil {
			st.run.cancel()
		}
	}
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()
	e.logger.Info("Password check engine stopped")
}

// dispatch delivers queued events one at a time.
func (e *Engine) dispatch() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.events:
			fn()
		case <-e.done:
			return
		}
	}
}

// post queues an event for the dispatcher.
func (e *Engine) post(fn func()) {
	select {
	case e.events <- fn:
	case <-e.done:
	}
}

// deliver queues one event for each of obs.
func (e *Engine) deliver(obs []ondevice.Observer, event func(ondevice.Observer)) {
	if len(obs) == 0 {
		return
	}
	e.post(func() {
		for _, o := range obs {
			event(o)
		}
	})
}

// observers returns the subscribers of r. e.mu must be held.
func (r *run) observers() []ondevice.Observer {
	obs := make([]ondevice.Observer, 0, len(r.subscribers))
	for _, o := range r.subscribers {
		obs = append(obs, o)
	}
	return obs
}

// notifyRun queues event for the current subscribers of r. mark, if set,
// runs under the same lock as the subscriber snapshot.
func (e *Engine) notifyRun(r *run, mark func(), event func(ondevice.Observer)) {
	e.mu.Lock()
	if mark != nil {
		mark()
	}
	obs := r.observers()
	e.mu.Unlock()
	e.deliver(obs, event)
}

func statusEvent(state check.State) func(ondevice.Observer) {
	return func(o ondevice.Observer) { o.OnPasswordCheckStatusChanged(state) }
}

// state returns the bookkeeping for scope. e.mu must be held.
func (e *Engine) state(scope check.Scope) *scopeState {
	st, ok := e.scopes[scope]
	if !ok {
		st = &scopeState{}
		e.scopes[scope] = st
	}
	return st
}

// goWorker runs fn on a worker goroutine unless the engine is stopped.
// e.mu must be held.
func (e *Engine) goWorker(fn func()) bool {
	if e.stopped {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
	return true
}

// StartCheck subscribes o to the check for scope, starting one if none is
// running. Joining a running check whose saved passwords event was
// already queued queues that event again for o alone.
func (e *Engine) StartCheck(scope check.Scope, o ondevice.Observer) func() {
	log := e.logger.WithField("scope", scope.String())

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		log.Warn("Engine stopped, ignoring start")
		return func() {}
	}

	st := e.state(scope)
	r := st.run
	joined := r != nil
	if !joined {
		ctx, cancel := context.WithCancel(context.Background())
		r = &run{cancel: cancel, subscribers: make(map[int]ondevice.Observer)}
		st.run = r
		e.goWorker(func() { e.runCheck(ctx, scope, r, log) })
	}
	id := e.nextID
	e.nextID++
	r.subscribers[id] = o
	replay := joined && r.savedSent
	e.mu.Unlock()

	if joined {
		log.Debug("Joining running check")
	} else {
		log.Info("Starting password check")
	}
	if replay {
		e.deliver([]ondevice.Observer{o}, ondevice.Observer.OnSavedPasswordsFetchCompleted)
	}

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(r.subscribers, id)
	}
}

// StopCheck cancels the running check for scope, if any. The check then
// reports check.StateCanceled.
func (e *Engine) StopCheck(scope check.Scope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.scopes[scope]; ok && st.run != nil {
		st.run.cancel()
	}
}

func (e *Engine) runCheck(ctx context.Context, scope check.Scope, r *run, log *logrus.Entry) {
	e.notifyRun(r, nil, statusEvent(check.StateRunning))

	final := e.check(ctx, scope, r, log)

	e.mu.Lock()
	st := e.state(scope)
	if st.run == r {
		st.run = nil
	}
	r.cancel()
	obs := r.observers()
	e.mu.Unlock()

	if final.Failure() {
		log.Warnf("Password check finished with %s", final)
	} else {
		log.Info("Password check finished")
	}
	e.deliver(obs, statusEvent(final))
}

// check performs one run and returns its terminal state.
func (e *Engine) check(ctx context.Context, scope check.Scope, r *run, log *logrus.Entry) check.State {
	if !e.HasUsableAccount(scope) {
		return check.StateSignedOut
	}

	if e.probe != nil {
		pctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
		err := e.probe.Probe(pctx)
		cancel()
		if ctx.Err() != nil {
			return check.StateCanceled
		}
		if err != nil {
			log.Warnf("Connectivity probe failed: %v", err)
			return check.StateOffline
		}
	}

	if e.quota != nil && !e.quota.Allow() {
		return quotaState(scope)
	}

	creds := e.store.Credentials(scope)
	e.notifyRun(r, func() {
		e.state(scope).saved = len(creds)
		r.savedSent = true
	}, ondevice.Observer.OnSavedPasswordsFetchCompleted)

	breached := 0
	for _, c := range creds {
		if ctx.Err() != nil {
			return check.StateCanceled
		}
		hit, err := e.isBreached(ctx, c.Password)
		switch {
		case ctx.Err() != nil:
			return check.StateCanceled
		case errors.Is(err, pwned.ErrRateLimited):
			log.Warn("Breach lookup rate limited")
			return quotaState(scope)
		case err != nil:
			log.Warnf("Breach lookup failed: %v", err)
			return check.StateOffline
		}
		if hit {
			breached++
		}
	}

	log.Debugf("Found %d breached of %d saved credentials", breached, len(creds))
	e.notifyRun(r, func() {
		e.state(scope).compromised = breached
	}, ondevice.Observer.OnCompromisedCredentialsFetchCompleted)

	return check.StateIdle
}

func (e *Engine) isBreached(ctx context.Context, password string) (bool, error) {
	if e.breaches.Contains(password) {
		return true, nil
	}
	if e.lookup == nil {
		return false, nil
	}
	n, err := e.lookup.Lookup(ctx, password)
	return n > 0, err
}

func quotaState(scope check.Scope) check.State {
	if scope == check.ScopeAccount {
		return check.StateQuotaLimitAccountCheck
	}
	return check.StateQuotaLimit
}

// RefreshCounts reloads the saved count from the store and reports it,
// together with the compromised count of the last finished check, to o.
// Subscribers of a running check do not see these events.
func (e *Engine) RefreshCounts(scope check.Scope, o ondevice.Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.goWorker(func() {
		saved := e.store.Count(scope)
		e.mu.Lock()
		e.state(scope).saved = saved
		e.mu.Unlock()
		obs := []ondevice.Observer{o}
		e.deliver(obs, ondevice.Observer.OnSavedPasswordsFetchCompleted)
		e.deliver(obs, ondevice.Observer.OnCompromisedCredentialsFetchCompleted)
	})
}

// SavedPasswordsCount returns the saved count from the last fetch.
func (e *Engine) SavedPasswordsCount(scope check.Scope) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state(scope).saved
}

// CompromisedCredentialsCount returns the breached count of the last
// finished check.
func (e *Engine) CompromisedCredentialsCount(scope check.Scope) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state(scope).compromised
}

// HasUsableAccount is always true for the local scope and true for the
// account scope while the store is signed in.
func (e *Engine) HasUsableAccount(scope check.Scope) bool {
	if scope == check.ScopeLocal {
		return true
	}
	return e.store.Account() != ""
}
