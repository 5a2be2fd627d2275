package compute

import (
	"context"
	"sync"
)

// Future is the completion handle for an asynchronous device operation.
// It completes exactly once; Err is valid only after Done is closed.
type Future struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed when the operation has finished, successfully or not.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err reports the operation's failure, or nil. Only meaningful after Done.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return ErrPending
	}
}

// Await blocks until the operation completes or ctx is cancelled.
func (f *Future) Await(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// completedFuture returns an already-resolved future. Used when an
// operation can be rejected before it reaches the queue.
func completedFuture(err error) *Future {
	f := newFuture()
	f.complete(err)
	return f
}
