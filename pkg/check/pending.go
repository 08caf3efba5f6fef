package check

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// pendingState is the aggregation progress of one PendingCheck.
type pendingState int

const (
	awaitingBoth pendingState = iota
	haveTotal
	haveOutcome
	resolved
)

func (s pendingState) String() string {
	switch s {
	case awaitingBoth:
		return "awaiting_both"
	case haveTotal:
		return "have_total"
	case haveOutcome:
		return "have_outcome"
	case resolved:
		return "resolved"
	default:
		return fmt.Sprintf("pending_state(%d)", int(s))
	}
}

// PendingCheck is one in-flight aggregation of a total count and a
// breached count (or an error) into a Result. It implements Sink.
//
// The total and breached signals may arrive in either order; the Result
// is the same. An error signal resolves immediately, even when one count
// is already known, and every later signal is ignored.
type PendingCheck struct {
	mu       sync.Mutex
	state    pendingState
	total    int
	breached int
	result   *Future[Result]
	onDone   func(Result)
	log      *logrus.Entry
}

// NewPendingCheck returns a PendingCheck awaiting both signals.
// onDone, if non-nil, runs once after the result is resolved.
func NewPendingCheck(log *logrus.Entry, onDone func(Result)) *PendingCheck {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PendingCheck{
		result: NewFuture[Result](),
		onDone: onDone,
		log:    log,
	}
}

// Result returns the Future resolved with the aggregated outcome.
func (p *PendingCheck) Result() *Future[Result] {
	return p.result
}

// Resolved reports whether the outcome is already determined.
func (p *PendingCheck) Resolved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == resolved
}

// OnTotal records the saved credential count.
func (p *PendingCheck) OnTotal(n int) {
	if n < 0 {
		p.OnError(fmt.Errorf("%w: negative total %d", ErrInvalidCounts, n))
		return
	}

	p.mu.Lock()
	switch p.state {
	case awaitingBoth:
		p.total = n
		p.state = haveTotal
		p.mu.Unlock()
	case haveTotal:
		kept := p.total
		p.mu.Unlock()
		p.log.Warnf("Ignoring duplicate total signal %d, keeping %d", n, kept)
	case haveOutcome:
		p.complete(Succeeded(n, p.breached))
	default:
		p.mu.Unlock()
		p.log.Debugf("Ignoring total signal %d after resolution", n)
	}
}

// OnBreached records the breached credential count.
func (p *PendingCheck) OnBreached(n int) {
	if n < 0 {
		p.OnError(fmt.Errorf("%w: negative breached count %d", ErrInvalidCounts, n))
		return
	}

	p.mu.Lock()
	switch p.state {
	case awaitingBoth:
		p.breached = n
		p.state = haveOutcome
		p.mu.Unlock()
	case haveTotal:
		p.complete(Succeeded(p.total, n))
	case haveOutcome:
		kept := p.breached
		p.mu.Unlock()
		p.log.Warnf("Ignoring duplicate breached signal %d, keeping %d", n, kept)
	default:
		p.mu.Unlock()
		p.log.Debugf("Ignoring breached signal %d after resolution", n)
	}
}

// OnError resolves the check with err unless it is already resolved.
func (p *PendingCheck) OnError(err error) {
	p.mu.Lock()
	if p.state == resolved {
		p.mu.Unlock()
		p.log.Debugf("Ignoring error signal after resolution: %v", err)
		return
	}
	p.complete(Failed(err))
}

// complete must be called with p.mu held; it releases the lock before
// running the completion hook.
func (p *PendingCheck) complete(r Result) {
	p.state = resolved
	p.mu.Unlock()

	if !p.result.Resolve(r) {
		p.log.Errorf("Pending check resolved twice, dropping %v", r)
		return
	}
	if p.onDone != nil {
		p.onDone(r)
	}
}
