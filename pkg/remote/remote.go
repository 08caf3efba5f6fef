// Package remote adapts a callback-based checkup service client to the
// check.Strategy interface.
//
// The service exposes independent request/callback operations: one that
// runs a checkup and reports the breached count, one that reports the last
// known breached count, and one that reports the saved credential count.
// Errors are opaque values forwarded to the aggregator unchanged.
package remote

import (
	"context"
	"sync"

	"github.com/kylerisse/breachcheck/pkg/check"
	"github.com/sirupsen/logrus"
)

// Client is the checkup service. Each operation invokes exactly one of
// onResult or onError, possibly on another goroutine.
type Client interface {
	RunCheckup(ctx context.Context, scope check.Scope, onResult func(breached int), onError func(error))
	GetBreachedCount(ctx context.Context, scope check.Scope, onResult func(breached int), onError func(error))
	GetSavedCount(ctx context.Context, scope check.Scope, onResult func(total int), onError func(error))
	HasUsableAccount(scope check.Scope) bool
}

// Strategy implements check.Strategy on top of a Client.
type Strategy struct {
	client Client
	logger *logrus.Logger

	mu    sync.Mutex
	saved map[check.Scope]int
	runs  map[check.Scope]*run
}

// run is the cancellation handle of one in-flight request pair.
type run struct {
	cancel context.CancelFunc
}

var _ check.Strategy = (*Strategy)(nil)

// New returns a Strategy for client.
func New(client Client, logger *logrus.Logger) *Strategy {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Strategy{
		client: client,
		logger: logger,
		saved:  make(map[check.Scope]int),
		runs:   make(map[check.Scope]*run),
	}
}

// Kind returns check.KindRemote.
func (s *Strategy) Kind() check.Kind {
	return check.KindRemote
}

// SetSavedCount caches a saved credential count learned elsewhere, for
// example from a bulk load of the store. Later requests for scope skip the
// saved count request.
func (s *Strategy) SetSavedCount(scope check.Scope, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[scope] = n
}

// ForgetSavedCount drops a cached saved count.
func (s *Strategy) ForgetSavedCount(scope check.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, scope)
}

// RunCheck requests a checkup and the saved count for scope.
func (s *Strategy) RunCheck(scope check.Scope, sink check.Sink) func() {
	return s.start(scope, sink, s.client.RunCheckup, true)
}

// FetchBreachedCount requests the last known breached count and the saved
// count for scope.
func (s *Strategy) FetchBreachedCount(scope check.Scope, sink check.Sink) func() {
	return s.start(scope, sink, s.client.GetBreachedCount, false)
}

// StopCheck cancels the in-flight requests of the latest check run for
// scope. The client then reports the cancellation as an error.
func (s *Strategy) StopCheck(scope check.Scope) {
	s.mu.Lock()
	r, ok := s.runs[scope]
	s.mu.Unlock()
	if ok {
		r.cancel()
	}
}

// HasUsableAccount forwards to the client.
func (s *Strategy) HasUsableAccount(scope check.Scope) bool {
	return s.client.HasUsableAccount(scope)
}

type breachedOp func(ctx context.Context, scope check.Scope, onResult func(int), onError func(error))

func (s *Strategy) start(scope check.Scope, sink check.Sink, op breachedOp, stoppable bool) func() {
	log := s.logger.WithFields(logrus.Fields{
		"backend": check.KindRemote.String(),
		"scope":   scope.String(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel}
	g := &gate{sink: sink, log: log}

	s.mu.Lock()
	if stoppable {
		s.runs[scope] = r
	}
	saved, cached := s.saved[scope]
	s.mu.Unlock()

	if cached {
		log.Debugf("Using cached saved count %d", saved)
		g.OnTotal(saved)
	} else {
		s.client.GetSavedCount(ctx, scope, g.OnTotal, g.OnError)
	}
	op(ctx, scope, g.OnBreached, g.OnError)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.close()
			cancel()
			s.mu.Lock()
			if s.runs[scope] == r {
				delete(s.runs, scope)
			}
			s.mu.Unlock()
		})
	}
}

// gate forwards callbacks to a sink until closed.
type gate struct {
	sink check.Sink
	log  *logrus.Entry

	mu     sync.Mutex
	closed bool
}

func (g *gate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

func (g *gate) open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		g.log.Debug("Dropping callback after detach")
	}
	return !g.closed
}

func (g *gate) OnTotal(n int) {
	if g.open() {
		g.sink.OnTotal(n)
	}
}

func (g *gate) OnBreached(n int) {
	if g.open() {
		g.sink.OnBreached(n)
	}
}

func (g *gate) OnError(err error) {
	if g.open() {
		g.sink.OnError(err)
	}
}
