package core

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Future is the result handle of a task submitted to a ThreadPool.
type Future[R any] struct {
	done  chan struct{}
	once  sync.Once
	value R
	err   error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

func (f *Future[R]) resolve(value R, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Get blocks until the task ran and returns its result.
func (f *Future[R]) Get() (R, error) {
	<-f.done
	return f.value, f.err
}

// Done is closed once the task finished.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

/**
 * WaitAll awaits every future concurrently and returns their values in the
 * order the futures were passed. The first error (or the context error) wins.
 */
func WaitAll[R any](ctx context.Context, futures ...*Future[R]) ([]R, error) {
	out := make([]R, len(futures))
	group, gctx := errgroup.WithContext(ctx)
	for i, f := range futures {
		idx, fut := i, f
		group.Go(func() error {
			select {
			case <-fut.Done():
				v, err := fut.Get()
				if err != nil {
					return err
				}
				out[idx] = v
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
