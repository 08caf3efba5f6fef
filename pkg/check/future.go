package check

import (
	"context"
	"sync"
)

// Future is a single-assignment cell for a value produced asynchronously.
// It is safe for concurrent use.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	mu    sync.RWMutex
	value T
	set   bool
}

// NewFuture returns an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future that already holds v.
func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v)
	return f
}

// Resolve stores v and wakes every waiter. It returns false, leaving the
// stored value untouched, if the Future was already resolved.
func (f *Future[T]) Resolve(v T) bool {
	resolved := false
	f.once.Do(func() {
		f.mu.Lock()
		f.value = v
		f.set = true
		f.mu.Unlock()
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done returns a channel closed once the Future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Value returns the stored value and whether the Future is resolved.
func (f *Future[T]) Value() (T, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value, f.set
}

// Wait blocks until the Future resolves or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		v, _ := f.Value()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
