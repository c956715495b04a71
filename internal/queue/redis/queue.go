// Package redis implements a reliable task queue on Redis lists.
//
// Producers LPUSH onto <prefix>:queue:<name>. Consumers BLMOVE the oldest
// entry into a private processing list and LREM it on acknowledgement, so a
// crashed consumer's in-flight envelopes survive until Recover requeues them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

const defaultBlock = 2 * time.Second

// Queue is a Redis-backed pipeline.Queue.
type Queue struct {
	client     goredis.UniversalClient
	prefix     string
	consumerID string
	block      time.Duration
	logger     *zap.Logger
}

// Option customizes a Queue.
type Option func(*Queue)

// WithBlockTimeout bounds each BLMOVE so cancellation is noticed promptly.
func WithBlockTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.block = d
		}
	}
}

// DefaultConsumerID derives a consumer id from the host name and process id,
// so co-located workers never share a processing list. Set queue.consumer_id
// explicitly when a restarted worker must recover its own in-flight entries
// under a different pid.
func DefaultConsumerID() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("derive consumer id: %w", err)
	}
	return consumerID(host, os.Getpid()), nil
}

func consumerID(host string, pid int) string {
	return host + "-" + strconv.Itoa(pid)
}

// New builds a Queue. consumerID must be unique per running worker and
// stable across its restarts for Recover to find orphaned entries.
func New(client goredis.UniversalClient, prefix, consumerID string, logger *zap.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		client:     client,
		prefix:     prefix,
		consumerID: consumerID,
		block:      defaultBlock,
		logger:     logger.Named("redis_queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) key(name pipeline.QueueName) string {
	return fmt.Sprintf("%s:queue:%s", q.prefix, name)
}

func (q *Queue) processingKey(name pipeline.QueueName) string {
	return fmt.Sprintf("%s:processing:%s", q.key(name), q.consumerID)
}

// Enqueue pushes the envelope onto its routing key.
func (q *Queue) Enqueue(ctx context.Context, env pipeline.Envelope) error {
	if env.Queue == "" {
		return fmt.Errorf("envelope %s has no queue", env.ID)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.key(env.Queue), data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", env.Task, err)
	}
	return nil
}

// Dequeue blocks until an envelope is available on name or ctx ends.
// Undecodable entries are dropped and logged.
func (q *Queue) Dequeue(ctx context.Context, name pipeline.QueueName) (pipeline.Delivery, error) {
	src, dst := q.key(name), q.processingKey(name)
	for {
		if err := ctx.Err(); err != nil {
			return pipeline.Delivery{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		raw, err := q.client.BLMove(ctx, src, dst, "RIGHT", "LEFT", q.block).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if errors.Is(err, goredis.ErrClosed) {
			return pipeline.Delivery{}, pipeline.ErrQueueClosed
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return pipeline.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctxErr)
			}
			return pipeline.Delivery{}, fmt.Errorf("dequeue %s: %w", name, err)
		}

		var env pipeline.Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			q.logger.Error("dropping undecodable envelope", zap.String("queue", string(name)), zap.Error(err))
			if remErr := q.client.LRem(ctx, dst, 1, raw).Err(); remErr != nil {
				q.logger.Warn("failed to drop envelope", zap.Error(remErr))
			}
			continue
		}
		return pipeline.NewDelivery(env, func(ackCtx context.Context) error {
			if err := q.client.LRem(ackCtx, dst, 1, raw).Err(); err != nil {
				return fmt.Errorf("ack %s: %w", env.ID, err)
			}
			return nil
		}), nil
	}
}

// Recover moves this consumer's unacknowledged envelopes back onto their
// queues, oldest first. It returns how many were requeued.
func (q *Queue) Recover(ctx context.Context, names ...pipeline.QueueName) (int, error) {
	total := 0
	for _, name := range names {
		for {
			err := q.client.LMove(ctx, q.processingKey(name), q.key(name), "LEFT", "RIGHT").Err()
			if errors.Is(err, goredis.Nil) {
				break
			}
			if err != nil {
				return total, fmt.Errorf("recover %s: %w", name, err)
			}
			total++
		}
	}
	if total > 0 {
		q.logger.Info("requeued in-flight envelopes", zap.Int("count", total))
	}
	return total, nil
}

// Len reports the number of waiting envelopes on name.
func (q *Queue) Len(ctx context.Context, name pipeline.QueueName) (int64, error) {
	n, err := q.client.LLen(ctx, q.key(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length %s: %w", name, err)
	}
	return n, nil
}

// Close is a no-op; the client is owned by the caller.
func (q *Queue) Close() error { return nil }

var _ pipeline.Queue = (*Queue)(nil)
