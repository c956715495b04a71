// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// Queue is a bounded in-memory queue per routing key with context-aware
// operations. Deliveries need no acknowledgement.
type Queue struct {
	capacity int

	mu     sync.Mutex
	chans  map[pipeline.QueueName]chan pipeline.Envelope
	done   chan struct{}
	closed bool
}

// NewQueue constructs a queue whose routing keys each hold capacity envelopes.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		capacity: capacity,
		chans:    make(map[pipeline.QueueName]chan pipeline.Envelope),
		done:     make(chan struct{}),
	}
}

func (q *Queue) channel(name pipeline.QueueName) chan pipeline.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.chans[name]
	if !ok {
		ch = make(chan pipeline.Envelope, q.capacity)
		q.chans[name] = ch
	}
	return ch
}

// Enqueue pushes an envelope onto its routing key or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, env pipeline.Envelope) error {
	if env.Queue == "" {
		return fmt.Errorf("envelope %s has no queue", env.ID)
	}
	ch := q.channel(env.Queue)
	select {
	case <-q.done:
		return pipeline.ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return pipeline.ErrQueueClosed
	case ch <- env:
		return nil
	}
}

// Dequeue pops the next envelope for name, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context, name pipeline.QueueName) (pipeline.Delivery, error) {
	ch := q.channel(name)
	select {
	case <-ctx.Done():
		return pipeline.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return pipeline.Delivery{}, pipeline.ErrQueueClosed
	case env := <-ch:
		return pipeline.NewDelivery(env, nil), nil
	}
}

// Len reports the number of envelopes waiting on name.
func (q *Queue) Len(name pipeline.QueueName) int {
	return len(q.channel(name))
}

// Close wakes all blocked callers; later calls fail with pipeline.ErrQueueClosed.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.done)
	q.closed = true
	return nil
}

var _ pipeline.Queue = (*Queue)(nil)
