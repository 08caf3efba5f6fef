package check

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFuture_ResolveOnce(t *testing.T) {
	f := NewFuture[int]()
	if _, ok := f.Value(); ok {
		t.Fatal("new future should be unresolved")
	}
	if !f.Resolve(1) {
		t.Fatal("first Resolve should succeed")
	}
	if f.Resolve(2) {
		t.Error("second Resolve should report false")
	}
	if v, ok := f.Value(); !ok || v != 1 {
		t.Errorf("expected (1, true), got (%d, %v)", v, ok)
	}
}

func TestFuture_Resolved(t *testing.T) {
	f := Resolved("done")
	select {
	case <-f.Done():
	default:
		t.Fatal("Resolved future should be done")
	}
	v, err := f.Wait(context.Background())
	if err != nil || v != "done" {
		t.Errorf("expected (done, nil), got (%q, %v)", v, err)
	}
}

func TestFuture_WaitContextCanceled(t *testing.T) {
	f := NewFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestFuture_ConcurrentResolve(t *testing.T) {
	f := NewFuture[int]()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if f.Resolve(n) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winning Resolve, got %d", wins)
	}
}
