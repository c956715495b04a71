// Package pubsub implements the task queue on Google Cloud Pub/Sub.
// Each routing key maps to a topic and one shared worker subscription.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// Config names topics and subscriptions.
type Config struct {
	// Prefix is prepended to every topic id.
	Prefix string
	// SubscriptionSuffix is appended to a topic id to form its subscription id.
	SubscriptionSuffix string
	// MaxOutstanding bounds unacknowledged messages per subscription.
	MaxOutstanding int
}

// Queue implements pipeline.Queue with Pub/Sub topics.
type Queue struct {
	client *pubsub.Client
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	topics    map[pipeline.QueueName]*pubsub.Topic
	receivers map[pipeline.QueueName]chan pipeline.Delivery
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New wraps client. The queue owns the client and closes it on Close.
func New(client *pubsub.Client, cfg Config, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SubscriptionSuffix == "" {
		cfg.SubscriptionSuffix = "workers"
	}
	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		client:    client,
		cfg:       cfg,
		logger:    logger.Named("pubsub_queue"),
		topics:    make(map[pipeline.QueueName]*pubsub.Topic),
		receivers: make(map[pipeline.QueueName]chan pipeline.Delivery),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// TopicID returns the topic id for a routing key.
func (q *Queue) TopicID(name pipeline.QueueName) string {
	if q.cfg.Prefix == "" {
		return string(name)
	}
	return q.cfg.Prefix + "-" + string(name)
}

// SubscriptionID returns the worker subscription id for a routing key.
func (q *Queue) SubscriptionID(name pipeline.QueueName) string {
	return q.TopicID(name) + "-" + q.cfg.SubscriptionSuffix
}

// EnsureTopology creates missing topics and subscriptions for names.
func (q *Queue) EnsureTopology(ctx context.Context, names ...pipeline.QueueName) error {
	for _, name := range names {
		topic := q.client.Topic(q.TopicID(name))
		ok, err := topic.Exists(ctx)
		if err != nil {
			return fmt.Errorf("check topic %s: %w", topic.ID(), err)
		}
		if !ok {
			if topic, err = q.client.CreateTopic(ctx, q.TopicID(name)); err != nil {
				return fmt.Errorf("create topic %s: %w", q.TopicID(name), err)
			}
		}
		sub := q.client.Subscription(q.SubscriptionID(name))
		ok, err = sub.Exists(ctx)
		if err != nil {
			return fmt.Errorf("check subscription %s: %w", sub.ID(), err)
		}
		if ok {
			continue
		}
		if _, err := q.client.CreateSubscription(ctx, q.SubscriptionID(name), pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 60 * time.Second,
		}); err != nil {
			return fmt.Errorf("create subscription %s: %w", q.SubscriptionID(name), err)
		}
	}
	return nil
}

func (q *Queue) topic(name pipeline.QueueName) *pubsub.Topic {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.topics[name]
	if !ok {
		t = q.client.Topic(q.TopicID(name))
		q.topics[name] = t
	}
	return t
}

// Enqueue publishes the envelope and waits for the server ack.
func (q *Queue) Enqueue(ctx context.Context, env pipeline.Envelope) error {
	if env.Queue == "" {
		return fmt.Errorf("envelope %s has no queue", env.ID)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	result := q.topic(env.Queue).Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"task": string(env.Task)},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", env.Task, err)
	}
	return nil
}

// Dequeue returns the next delivery for name, starting its receiver on first use.
func (q *Queue) Dequeue(ctx context.Context, name pipeline.QueueName) (pipeline.Delivery, error) {
	ch, err := q.receiver(name)
	if err != nil {
		return pipeline.Delivery{}, err
	}
	select {
	case <-ctx.Done():
		return pipeline.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case d, ok := <-ch:
		if !ok {
			return pipeline.Delivery{}, pipeline.ErrQueueClosed
		}
		return d, nil
	}
}

func (q *Queue) receiver(name pipeline.QueueName) (chan pipeline.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx.Err() != nil {
		return nil, pipeline.ErrQueueClosed
	}
	if ch, ok := q.receivers[name]; ok {
		return ch, nil
	}
	ch := make(chan pipeline.Delivery)
	q.receivers[name] = ch

	sub := q.client.Subscription(q.SubscriptionID(name))
	sub.ReceiveSettings.MaxOutstandingMessages = q.cfg.MaxOutstanding
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer close(ch)
		err := sub.Receive(q.ctx, func(ctx context.Context, m *pubsub.Message) {
			var env pipeline.Envelope
			if err := json.Unmarshal(m.Data, &env); err != nil {
				q.logger.Error("dropping undecodable envelope", zap.String("queue", string(name)), zap.Error(err))
				m.Ack()
				return
			}
			d := pipeline.NewDelivery(env, func(context.Context) error {
				m.Ack()
				return nil
			})
			select {
			case ch <- d:
			case <-ctx.Done():
				m.Nack()
			}
		})
		if err != nil && q.ctx.Err() == nil {
			q.logger.Error("receiver stopped", zap.String("queue", string(name)), zap.Error(err))
		}
	}()
	return ch, nil
}

// Close stops receivers, flushes publishers and closes the client.
func (q *Queue) Close() error {
	q.cancel()
	q.wg.Wait()
	q.mu.Lock()
	for _, t := range q.topics {
		t.Stop()
	}
	q.mu.Unlock()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}

var _ pipeline.Queue = (*Queue)(nil)
