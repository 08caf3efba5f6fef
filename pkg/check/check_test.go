package check

import (
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// fakeStrategy records every sink it is handed so tests can drive the
// signals by hand.
type fakeStrategy struct {
	mu         sync.Mutex
	kind       Kind
	noAccount  map[Scope]bool
	runs       map[Scope][]Sink
	fetches    map[Scope][]Sink
	detached   int
	stopped    []Scope
	syncSignal func(Scope, Sink)
}

func newFakeStrategy() *fakeStrategy {
	return &fakeStrategy{
		noAccount: make(map[Scope]bool),
		runs:      make(map[Scope][]Sink),
		fetches:   make(map[Scope][]Sink),
	}
}

func (f *fakeStrategy) Kind() Kind { return f.kind }

func (f *fakeStrategy) RunCheck(scope Scope, sink Sink) func() {
	f.mu.Lock()
	f.runs[scope] = append(f.runs[scope], sink)
	hook := f.syncSignal
	f.mu.Unlock()
	if hook != nil {
		hook(scope, sink)
	}
	return f.detach
}

func (f *fakeStrategy) FetchBreachedCount(scope Scope, sink Sink) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[scope] = append(f.fetches[scope], sink)
	return f.detach
}

func (f *fakeStrategy) StopCheck(scope Scope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, scope)
}

func (f *fakeStrategy) HasUsableAccount(scope Scope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.noAccount[scope]
}

func (f *fakeStrategy) detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached++
}

func (f *fakeStrategy) lastRun(t *testing.T, scope Scope) Sink {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	sinks := f.runs[scope]
	if len(sinks) == 0 {
		t.Fatalf("no run started for scope %s", scope)
	}
	return sinks[len(sinks)-1]
}

func (f *fakeStrategy) lastFetch(t *testing.T, scope Scope) Sink {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	sinks := f.fetches[scope]
	if len(sinks) == 0 {
		t.Fatalf("no fetch started for scope %s", scope)
	}
	return sinks[len(sinks)-1]
}

func (f *fakeStrategy) detachCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detached
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestKind_String(t *testing.T) {
	if KindOnDevice.String() != "ondevice" {
		t.Errorf("expected 'ondevice', got %q", KindOnDevice.String())
	}
	if KindRemote.String() != "remote" {
		t.Errorf("expected 'remote', got %q", KindRemote.String())
	}
	if Kind(9).String() != "kind(9)" {
		t.Errorf("expected 'kind(9)', got %q", Kind(9).String())
	}
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"ondevice", "OnDevice", "remote", "REMOTE"} {
		if _, err := ParseKind(name); err != nil {
			t.Errorf("ParseKind(%q): unexpected error: %v", name, err)
		}
	}
	if _, err := ParseKind("cloud"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
