package worker

import (
	"context"
	"log/slog"
	"sync"
)

type ProcessFunc[T any] func(ctx context.Context, job T) error

// Pool runs jobs of type T on a fixed number of goroutines. A failing or
// panicking job is logged and does not stop its worker.
type Pool[T any] struct {
	name       string
	numWorkers int
	jobs       chan T
	processor  ProcessFunc[T]
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

func NewPool[T any](name string, numWorkers, bufferSize int, processor ProcessFunc[T]) *Pool[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool[T]{
		name:       name,
		numWorkers: numWorkers,
		jobs:       make(chan T, bufferSize),
		processor:  processor,
	}
}

func (p *Pool[T]) Start(ctx context.Context) {
	for i := 1; i <= p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool[T]) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(ctx, id, job)
		}
	}
}

func (p *Pool[T]) run(ctx context.Context, id int, job T) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("worker job panicked", "pool", p.name, "worker", id, "panic", rec)
		}
	}()
	if err := p.processor(ctx, job); err != nil {
		slog.Warn("worker job failed", "pool", p.name, "worker", id, "error", err)
	}
}

// Submit blocks until the job is queued or ctx is done.
func (p *Pool[T]) Submit(ctx context.Context, job T) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the queue and waits for the workers. Jobs still queued are
// drained unless the Start context was cancelled.
func (p *Pool[T]) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}
