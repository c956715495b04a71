// Package pubsub implements the event channel on a Google Cloud Pub/Sub topic.
// Every subscriber gets its own short-lived subscription so each relay
// process sees every event.
package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/metrics"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// Minimum expiration Pub/Sub accepts for idle subscriptions.
const subscriptionExpiry = 24 * time.Hour

// Publisher publishes events to one topic and fans them out to subscribers.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// New wraps client for topicID. The publisher owns the client and closes it on Close.
func New(client *pubsub.Client, topicID string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client: client,
		topic:  client.Topic(topicID),
		logger: logger.Named("pubsub_events"),
	}
}

// EnsureTopic creates the topic if it does not exist.
func (p *Publisher) EnsureTopic(ctx context.Context) error {
	ok, err := p.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check topic %s: %w", p.topic.ID(), err)
	}
	if ok {
		return nil
	}
	if _, err := p.client.CreateTopic(ctx, p.topic.ID()); err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic.ID(), err)
	}
	return nil
}

// Publish sends the event JSON and waits for the server ack.
func (p *Publisher) Publish(ctx context.Context, evt pipeline.Event) error {
	data, err := evt.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"type": string(evt.Type)},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	metrics.ObserveEventPublished(string(evt.Type))
	return nil
}

// Subscribe creates a private subscription and streams its payloads.
func (p *Publisher) Subscribe(ctx context.Context) (pipeline.Subscription, error) {
	id := p.topic.ID() + "-relay-" + uuid.NewString()
	sub, err := p.client.CreateSubscription(ctx, id, pubsub.SubscriptionConfig{
		Topic:            p.topic,
		AckDeadline:      10 * time.Second,
		ExpirationPolicy: subscriptionExpiry,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription %s: %w", id, err)
	}
	// One message in flight keeps delivery close to publish order.
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	recvCtx, cancel := context.WithCancel(context.Background())
	s := &subscription{sub: sub, out: make(chan []byte), cancel: cancel, done: make(chan struct{})}
	go s.receive(recvCtx, p.logger)
	return s, nil
}

// Close flushes pending publishes and closes the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

type subscription struct {
	sub    *pubsub.Subscription
	out    chan []byte
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) receive(ctx context.Context, logger *zap.Logger) {
	defer close(s.done)
	defer close(s.out)
	err := s.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		m.Ack()
		select {
		case s.out <- m.Data:
		case <-ctx.Done():
		}
	})
	if err != nil && ctx.Err() == nil {
		logger.Warn("event subscription stopped", zap.String("subscription", s.sub.ID()), zap.Error(err))
	}
}

func (s *subscription) Messages() <-chan []byte { return s.out }

// Close stops receiving and deletes the subscription.
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if delErr := s.sub.Delete(ctx); delErr != nil {
			err = fmt.Errorf("delete subscription %s: %w", s.sub.ID(), delErr)
		}
	})
	return err
}

var (
	_ pipeline.Publisher  = (*Publisher)(nil)
	_ pipeline.Subscriber = (*Publisher)(nil)
)
