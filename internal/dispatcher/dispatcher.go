// Package dispatcher manages worker fan-out over the task queues.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
	"github.com/code-by-fh/ai-job-analyzer/internal/worker"
)

// Config selects the consumed queues and the pool size per queue.
type Config struct {
	Queues      []pipeline.QueueName
	Concurrency int
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   pipeline.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher from prepared workers.
func New(queue pipeline.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Build creates cfg.Concurrency workers for every configured queue.
func Build(
	queue pipeline.Queue,
	cfg Config,
	handlers worker.Registry,
	policy pipeline.RetryPolicy,
	onAbort worker.AbortFunc,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if len(cfg.Queues) == 0 {
		return nil, fmt.Errorf("at least one queue is required")
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive")
	}
	workers := make([]*worker.Worker, 0, len(cfg.Queues)*cfg.Concurrency)
	for _, name := range cfg.Queues {
		for i := 0; i < cfg.Concurrency; i++ {
			workers = append(workers, worker.New(queue, name, handlers, policy, onAbort, logger))
		}
	}
	return New(queue, workers), nil
}

// Size reports the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, env pipeline.Envelope) error {
	if err := d.queue.Enqueue(ctx, env); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
