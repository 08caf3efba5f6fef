package ondevice

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/kylerisse/breachcheck/pkg/check"
	"github.com/sirupsen/logrus"
)

// fakeBridge lets tests fire engine events by hand.
type fakeBridge struct {
	mu          sync.Mutex
	saved       map[check.Scope]int
	compromised map[check.Scope]int
	signedOut   bool
	observers   map[check.Scope]map[int]Observer
	nextID      int
	started     []check.Scope
	stopped     []check.Scope
	refreshed   []check.Scope
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		saved:       make(map[check.Scope]int),
		compromised: make(map[check.Scope]int),
		observers:   make(map[check.Scope]map[int]Observer),
	}
}

func (b *fakeBridge) StartCheck(scope check.Scope, o Observer) func() {
	b.mu.Lock()
	b.started = append(b.started, scope)
	b.mu.Unlock()
	return b.addObserver(scope, o)
}

func (b *fakeBridge) StopCheck(scope check.Scope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = append(b.stopped, scope)
}

// RefreshCounts registers o like a subscriber so tests can also send it
// events a real engine would never address to a fetch.
func (b *fakeBridge) RefreshCounts(scope check.Scope, o Observer) {
	b.mu.Lock()
	b.refreshed = append(b.refreshed, scope)
	b.mu.Unlock()
	b.addObserver(scope, o)
}

func (b *fakeBridge) SavedPasswordsCount(scope check.Scope) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saved[scope]
}

func (b *fakeBridge) CompromisedCredentialsCount(scope check.Scope) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compromised[scope]
}

func (b *fakeBridge) HasUsableAccount(scope check.Scope) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return scope == check.ScopeLocal || !b.signedOut
}

func (b *fakeBridge) addObserver(scope check.Scope, o Observer) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.observers[scope] == nil {
		b.observers[scope] = make(map[int]Observer)
	}
	id := b.nextID
	b.nextID++
	b.observers[scope][id] = o
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.observers[scope], id)
	}
}

func (b *fakeBridge) each(scope check.Scope, fn func(Observer)) {
	b.mu.Lock()
	obs := make([]Observer, 0, len(b.observers[scope]))
	for _, o := range b.observers[scope] {
		obs = append(obs, o)
	}
	b.mu.Unlock()
	for _, o := range obs {
		fn(o)
	}
}

func (b *fakeBridge) savedFetched(scope check.Scope, n int) {
	b.mu.Lock()
	b.saved[scope] = n
	b.mu.Unlock()
	b.each(scope, Observer.OnSavedPasswordsFetchCompleted)
}

func (b *fakeBridge) compromisedFetched(scope check.Scope, n int) {
	b.mu.Lock()
	b.compromised[scope] = n
	b.mu.Unlock()
	b.each(scope, Observer.OnCompromisedCredentialsFetchCompleted)
}

func (b *fakeBridge) status(scope check.Scope, state check.State) {
	b.each(scope, func(o Observer) { o.OnPasswordCheckStatusChanged(state) })
}

func (b *fakeBridge) observerCount(scope check.Scope) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers[scope])
}

func newTestAggregator(b *fakeBridge) *check.Aggregator {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return check.NewAggregator(New(b, l), l)
}

func resultOf(t *testing.T, f *check.Future[check.Result]) check.Result {
	t.Helper()
	r, ok := f.Value()
	if !ok {
		t.Fatal("expected result to be resolved")
	}
	return r
}

func assertCounts(t *testing.T, r check.Result, wantTotal, wantBreached int) {
	t.Helper()
	total, breached, ok := r.Counts()
	if !ok {
		t.Fatalf("expected success, got %v", r.Err())
	}
	if total != wantTotal || breached != wantBreached {
		t.Errorf("expected total=%d breached=%d, got total=%d breached=%d",
			wantTotal, wantBreached, total, breached)
	}
}

func TestStrategy_Kind(t *testing.T) {
	if New(newFakeBridge(), nil).Kind() != check.KindOnDevice {
		t.Error("expected KindOnDevice")
	}
}

func TestRunCheck_StartsCheck(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	agg.RunCheck(check.ScopeAccount)

	if len(b.started) != 1 || b.started[0] != check.ScopeAccount {
		t.Errorf("expected check started for account scope, got %v", b.started)
	}
	if b.observerCount(check.ScopeAccount) != 1 {
		t.Errorf("expected one observer, got %d", b.observerCount(check.ScopeAccount))
	}
}

func TestRunCheck_SavedThenCompromised(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	f := agg.RunCheck(check.ScopeLocal)
	b.savedFetched(check.ScopeLocal, 10)
	b.compromisedFetched(check.ScopeLocal, 0)

	assertCounts(t, resultOf(t, f), 10, 0)
}

func TestRunCheck_CompromisedThenSaved(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	f := agg.RunCheck(check.ScopeLocal)
	b.compromisedFetched(check.ScopeLocal, 0)
	if _, ok := f.Value(); ok {
		t.Fatal("should wait for the saved passwords fetch")
	}
	b.savedFetched(check.ScopeLocal, 10)

	assertCounts(t, resultOf(t, f), 10, 0)
}

func TestRunCheck_IdleStatusCompletes(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	f := agg.RunCheck(check.ScopeLocal)
	b.status(check.ScopeLocal, check.StateRunning)
	b.savedFetched(check.ScopeLocal, 6)
	if _, ok := f.Value(); ok {
		t.Fatal("running status must not complete the check")
	}

	b.mu.Lock()
	b.compromised[check.ScopeLocal] = 2
	b.mu.Unlock()
	b.status(check.ScopeLocal, check.StateIdle)

	assertCounts(t, resultOf(t, f), 6, 2)
}

func TestRunCheck_RunningIsIgnored(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	f := agg.RunCheck(check.ScopeLocal)
	b.status(check.ScopeLocal, check.StateRunning)
	b.status(check.ScopeLocal, check.StateRunning)

	if _, ok := f.Value(); ok {
		t.Fatal("running status must not complete the check")
	}
}

func TestRunCheck_OfflineError(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	f := agg.RunCheck(check.ScopeLocal)
	b.status(check.ScopeLocal, check.StateOffline)

	r := resultOf(t, f)
	if r.OK() {
		t.Fatal("expected failure")
	}
	var stateErr *check.StateError
	if !errors.As(r.Err(), &stateErr) || stateErr.State != check.StateOffline {
		t.Errorf("expected offline state error, got %v", r.Err())
	}
	if _, _, ok := r.Counts(); ok {
		t.Error("failed result must not carry counts")
	}
}

func TestRunCheck_ErrorWinsOverLateSaved(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	f := agg.RunCheck(check.ScopeLocal)
	b.status(check.ScopeLocal, check.StateQuotaLimit)
	b.savedFetched(check.ScopeLocal, 10)
	b.compromisedFetched(check.ScopeLocal, 1)

	r := resultOf(t, f)
	if !errors.Is(r.Err(), &check.StateError{State: check.StateQuotaLimit}) {
		t.Errorf("expected quota error, got %v", r)
	}
}

func TestRunCheck_NoPasswordsIsSuccess(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	f := agg.RunCheck(check.ScopeLocal)
	b.savedFetched(check.ScopeLocal, 0)
	b.compromisedFetched(check.ScopeLocal, 0)

	assertCounts(t, resultOf(t, f), 0, 0)
}

func TestRunCheck_ObserverRemovedAfterResult(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	agg.RunCheck(check.ScopeLocal)
	b.savedFetched(check.ScopeLocal, 1)
	b.compromisedFetched(check.ScopeLocal, 1)

	if n := b.observerCount(check.ScopeLocal); n != 0 {
		t.Errorf("expected observer removed, %d left", n)
	}
}

func TestRunCheck_ScopesIndependent(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	local := agg.RunCheck(check.ScopeLocal)
	account := agg.RunCheck(check.ScopeAccount)

	b.savedFetched(check.ScopeAccount, 3)
	b.status(check.ScopeLocal, check.StateOffline)
	b.compromisedFetched(check.ScopeAccount, 1)

	assertCounts(t, resultOf(t, account), 3, 1)
	if r := resultOf(t, local); r.OK() {
		t.Error("local check should have failed on its own")
	}
}

func TestFetchBreachedCount_RefreshesCounts(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	f := agg.GetBreachedCount(check.ScopeLocal)
	if len(b.refreshed) != 1 || len(b.started) != 0 {
		t.Fatalf("expected a refresh and no check, got refreshed=%v started=%v", b.refreshed, b.started)
	}

	b.status(check.ScopeLocal, check.StateIdle)
	if _, ok := f.Value(); ok {
		t.Fatal("idle status must not complete a fetch")
	}

	b.compromisedFetched(check.ScopeLocal, 2)
	b.savedFetched(check.ScopeLocal, 7)
	assertCounts(t, resultOf(t, f), 7, 2)
}

func TestFetchBreachedCount_SignedOut(t *testing.T) {
	b := newFakeBridge()
	b.signedOut = true
	agg := newTestAggregator(b)

	r := resultOf(t, agg.GetBreachedCount(check.ScopeAccount))
	if !errors.Is(r.Err(), check.ErrSignedOut) {
		t.Fatalf("expected signed-out error, got %v", r)
	}
	if len(b.refreshed) != 0 || b.observerCount(check.ScopeAccount) != 0 {
		t.Error("signed-out fetch must not reach the bridge")
	}
}

func TestStopCheck_CanceledResolves(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	f := agg.RunCheck(check.ScopeLocal)
	agg.StopCheck(check.ScopeLocal)
	if len(b.stopped) != 1 {
		t.Fatalf("expected StopCheck forwarded, got %v", b.stopped)
	}
	b.status(check.ScopeLocal, check.StateCanceled)

	if r := resultOf(t, f); !errors.Is(r.Err(), &check.StateError{State: check.StateCanceled}) {
		t.Errorf("expected canceled error, got %v", r)
	}
}

func TestDestroy_StopsDelivery(t *testing.T) {
	b := newFakeBridge()
	agg := newTestAggregator(b)

	f := agg.RunCheck(check.ScopeLocal)
	agg.Destroy()

	if n := b.observerCount(check.ScopeLocal); n != 0 {
		t.Errorf("expected observer removed on destroy, %d left", n)
	}
	b.savedFetched(check.ScopeLocal, 1)
	b.compromisedFetched(check.ScopeLocal, 0)
	if _, ok := f.Value(); ok {
		t.Error("destroyed aggregator must not resolve in-flight checks")
	}
}

func TestObserver_DetachedDropsEvents(t *testing.T) {
	b := newFakeBridge()
	s := New(b, nil)
	sink := check.NewPendingCheck(nil, nil)

	detach := s.RunCheck(check.ScopeLocal, sink)
	var captured Observer
	b.each(check.ScopeLocal, func(o Observer) { captured = o })
	detach()
	detach()

	captured.OnSavedPasswordsFetchCompleted()
	captured.OnCompromisedCredentialsFetchCompleted()
	if sink.Resolved() {
		t.Error("events after detach must be dropped")
	}
}
