// Package ondevice adapts an on-device password check engine to the
// check.Strategy interface.
//
// The engine reports progress through observer events: a "saved passwords
// fetched" event, a "compromised credentials fetched" event, and status
// changes. The strategy turns those events into the total and breached
// signals the check.Aggregator combines. Events are addressed to the
// observer of the request that caused them, so a count fetch never
// reaches the observer of a running check. The engine must deliver events
// for one scope on a single goroutine.
package ondevice

import (
	"sync"

	"github.com/kylerisse/breachcheck/pkg/check"
	"github.com/sirupsen/logrus"
)

// Observer receives events from a Bridge.
type Observer interface {
	OnSavedPasswordsFetchCompleted()
	OnCompromisedCredentialsFetchCompleted()
	OnPasswordCheckStatusChanged(state check.State)
}

// Bridge is the on-device check engine.
type Bridge interface {
	// StartCheck subscribes o to the check for scope, starting one unless
	// one is already running. A subscriber joining a running check whose
	// saved passwords fetch already completed receives that event again.
	// The returned function unsubscribes o.
	StartCheck(scope check.Scope, o Observer) (remove func())

	// StopCheck cancels a running check for scope, if any.
	StopCheck(scope check.Scope)

	// RefreshCounts reloads the saved and compromised counts for scope and
	// reports each to o, and only to o, through its fetch-completed event.
	RefreshCounts(scope check.Scope, o Observer)

	// SavedPasswordsCount is valid once the saved passwords fetch completed.
	SavedPasswordsCount(scope check.Scope) int

	// CompromisedCredentialsCount is valid once the compromised credentials
	// fetch completed or the check reached StateIdle.
	CompromisedCredentialsCount(scope check.Scope) int

	HasUsableAccount(scope check.Scope) bool
}

// Strategy implements check.Strategy on top of a Bridge.
type Strategy struct {
	bridge Bridge
	logger *logrus.Logger
}

var _ check.Strategy = (*Strategy)(nil)

// New returns a Strategy for bridge.
func New(bridge Bridge, logger *logrus.Logger) *Strategy {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Strategy{bridge: bridge, logger: logger}
}

// Kind returns check.KindOnDevice.
func (s *Strategy) Kind() check.Kind {
	return check.KindOnDevice
}

// RunCheck subscribes to a check for scope, joining one already running.
// A terminal StateIdle counts as the breached signal; failure states
// become the error signal.
func (s *Strategy) RunCheck(scope check.Scope, sink check.Sink) func() {
	o := s.newObserver(scope, sink, true)
	return o.detachFunc(s.bridge.StartCheck(scope, o))
}

// FetchBreachedCount asks the bridge to reload the counts of scope.
// Status events are not completion signals for a fetch.
func (s *Strategy) FetchBreachedCount(scope check.Scope, sink check.Sink) func() {
	o := s.newObserver(scope, sink, false)
	s.bridge.RefreshCounts(scope, o)
	return o.detachFunc(nil)
}

// StopCheck forwards to the bridge.
func (s *Strategy) StopCheck(scope check.Scope) {
	s.bridge.StopCheck(scope)
}

// HasUsableAccount forwards to the bridge.
func (s *Strategy) HasUsableAccount(scope check.Scope) bool {
	return s.bridge.HasUsableAccount(scope)
}

func (s *Strategy) newObserver(scope check.Scope, sink check.Sink, runsCheck bool) *observer {
	return &observer{
		scope:     scope,
		bridge:    s.bridge,
		sink:      sink,
		runsCheck: runsCheck,
		log: s.logger.WithFields(logrus.Fields{
			"backend": check.KindOnDevice.String(),
			"scope":   scope.String(),
		}),
	}
}

// observer forwards bridge events for one scope to one sink until detached.
type observer struct {
	scope     check.Scope
	bridge    Bridge
	sink      check.Sink
	runsCheck bool
	log       *logrus.Entry

	mu       sync.Mutex
	detached bool
}

// detachFunc returns an idempotent func that stops delivery to the sink
// and then calls remove, if set.
func (o *observer) detachFunc(remove func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			o.detached = true
			o.mu.Unlock()
			if remove != nil {
				remove()
			}
		})
	}
}

func (o *observer) active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.detached
}

func (o *observer) OnSavedPasswordsFetchCompleted() {
	if !o.active() {
		return
	}
	o.sink.OnTotal(o.bridge.SavedPasswordsCount(o.scope))
}

func (o *observer) OnCompromisedCredentialsFetchCompleted() {
	if !o.active() {
		return
	}
	o.sink.OnBreached(o.bridge.CompromisedCredentialsCount(o.scope))
}

func (o *observer) OnPasswordCheckStatusChanged(state check.State) {
	if !o.active() {
		return
	}
	switch {
	case !o.runsCheck:
		// Status events belong to check runs, not to count fetches.
		o.log.Debugf("Ignoring status %s while fetching counts", state)
	case !state.Terminal():
		o.log.Debugf("Check is %s", state)
	case state.Failure():
		o.sink.OnError(&check.StateError{State: state})
	default:
		o.sink.OnBreached(o.bridge.CompromisedCredentialsCount(o.scope))
	}
}
