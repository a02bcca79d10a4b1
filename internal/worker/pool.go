package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Pool runs blocking calls with at most size of them in flight.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (p *Pool) Size() int {
	return p.size
}

// Do waits for a free slot, then runs fn on a pool goroutine and blocks
// until it returns. A panic in fn is returned as an error.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire worker: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("worker panic: %v", r)
			}
		}()
		done <- fn(ctx)
	}()
	return <-done
}
