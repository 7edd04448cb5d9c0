package state

import "context"

// future is a single-assignment asynchronous result. Awaiting callers all
// observe the same value or error once complete is called.
type future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

func resolvedFuture[T any](v T) *future[T] {
	f := newFuture[T]()
	f.complete(v, nil)
	return f
}

// complete must be called exactly once.
func (f *future[T]) complete(v T, err error) {
	f.value = v
	f.err = err
	close(f.done)
}

func (f *future[T]) await(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-f.done:
		return f.value, f.err
	}
}
