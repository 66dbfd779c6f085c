package bridge

import (
	"context"
	"fmt"
	"sync"
)

// Future is a single-shot outcome. Only the first Resolve or Reject takes effect.
type Future struct {
	once   sync.Once
	done   chan struct{}
	value  any
	err    error
	failed bool
}

// NewFuture returns an unsettled Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a Future already settled with v.
func Resolved(v any) *Future {
	f := NewFuture()
	f.Resolve(v)
	return f
}

// Failed returns a Future already settled with err.
func Failed(err error) *Future {
	f := NewFuture()
	f.Reject(err)
	return f
}

// Resolve settles the future with a success value. It reports false if already settled.
func (f *Future) Resolve(v any) bool {
	return f.settle(v, nil, false)
}

// Reject settles the future with a failure. It reports false if already settled.
func (f *Future) Reject(err error) bool {
	return f.settle(nil, err, true)
}

func (f *Future) settle(v any, err error, failed bool) bool {
	settled := false
	f.once.Do(func() {
		f.value, f.err, f.failed = v, err, failed
		settled = true
		close(f.done)
	})
	return settled
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx ends.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		if f.failed && f.err == nil {
			return nil, ErrNilFailure
		}
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// outcome must only be read after done is closed.
func (f *Future) outcome() (value any, err error, failed bool) {
	return f.value, f.err, f.failed
}

// Go runs fn on its own goroutine and settles the returned future with its result.
// A panic in fn becomes a failure.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) *Future {
	f := NewFuture()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.Reject(fmt.Errorf("operation panicked: %v", r))
			}
		}()
		v, err := fn(ctx)
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}
