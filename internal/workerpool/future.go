package workerpool

import (
	"context"
	"sync"
)

// Future holds the eventual result of a submitted call.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the call finishes or ctx is done. Abandoning a wait does
// not stop the call itself.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit queues fn on the pool and returns immediately. ctx is passed to fn;
// if it is already done when a worker picks the job up, fn is skipped.
func Submit[T any](p *Pool, ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	var zero T
	p.enqueue(job{
		ctx: ctx,
		run: func(ctx context.Context) {
			value, err := fn(ctx)
			f.resolve(value, err)
		},
		reject: func(err error) { f.resolve(zero, err) },
	})
	return f
}

// Go queues fn for its side effects only.
func Go(p *Pool, ctx context.Context, fn func(context.Context) error) *Future[struct{}] {
	return Submit(p, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}
