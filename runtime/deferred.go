package runtime

import "context"

type future struct {
	done  chan struct{}
	value any
	err   error
}

// Go runs fn on its own goroutine and returns a Deferred for its result.
// A panic in fn is reported as a *PanicError from Await.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) Deferred {
	f := &future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.value, f.err = nil, &PanicError{Value: r}
			}
		}()
		f.value, f.err = fn(ctx)
	}()
	return f
}

// Resolved returns a Deferred that is already complete.
func Resolved(value any, err error) Deferred {
	f := &future{done: make(chan struct{}), value: value, err: err}
	close(f.done)
	return f
}

// Await blocks until the result is available or ctx is done.
func (f *future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
