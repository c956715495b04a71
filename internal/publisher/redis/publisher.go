// Package redis implements the event channel on Redis pub/sub.
package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/code-by-fh/ai-job-analyzer/internal/metrics"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// Publisher publishes and subscribes on one Redis channel.
type Publisher struct {
	client  goredis.UniversalClient
	channel string
}

// New builds a Publisher on channel.
func New(client goredis.UniversalClient, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// Publish sends the event JSON to the channel.
func (p *Publisher) Publish(ctx context.Context, evt pipeline.Event) error {
	data, err := evt.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	metrics.ObserveEventPublished(string(evt.Type))
	return nil
}

// Subscribe returns once the server confirmed the subscription.
func (p *Publisher) Subscribe(ctx context.Context) (pipeline.Subscription, error) {
	ps := p.client.Subscribe(ctx, p.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", p.channel, err)
	}
	sub := &subscription{ps: ps, out: make(chan []byte), done: make(chan struct{})}
	go sub.pump()
	return sub, nil
}

type subscription struct {
	ps   *goredis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscription) pump() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		select {
		case s.out <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *subscription) Messages() <-chan []byte { return s.out }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	if err != nil {
		return fmt.Errorf("close subscription: %w", err)
	}
	return nil
}

var (
	_ pipeline.Publisher  = (*Publisher)(nil)
	_ pipeline.Subscriber = (*Publisher)(nil)
)
