// Package memory contains the in-process event channel used by the all-in-one
// mode and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/code-by-fh/ai-job-analyzer/internal/metrics"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

const subscriberBuffer = 64

// Publisher records published events and fans them out to subscribers.
// Slow subscribers lose events instead of blocking publishers.
type Publisher struct {
	mu     sync.RWMutex
	events []pipeline.Event
	subs   map[*subscription]struct{}
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{subs: make(map[*subscription]struct{})}
}

// Publish records the event and delivers it to every open subscription.
func (p *Publisher) Publish(_ context.Context, evt pipeline.Event) error {
	data, err := evt.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	for sub := range p.subs {
		select {
		case sub.ch <- data:
		default:
		}
	}
	metrics.ObserveEventPublished(string(evt.Type))
	return nil
}

// Subscribe opens a subscription that receives events published from now on.
func (p *Publisher) Subscribe(ctx context.Context) (pipeline.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	sub := &subscription{ch: make(chan []byte, subscriberBuffer), owner: p}
	p.mu.Lock()
	p.subs[sub] = struct{}{}
	p.mu.Unlock()
	return sub, nil
}

// Events returns the recorded events.
func (p *Publisher) Events() []pipeline.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]pipeline.Event, len(p.events))
	copy(out, p.events)
	return out
}

// Count returns how many events of type t were published.
func (p *Publisher) Count(t pipeline.EventType) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, evt := range p.events {
		if evt.Type == t {
			n++
		}
	}
	return n
}

type subscription struct {
	ch    chan []byte
	owner *Publisher
	once  sync.Once
}

func (s *subscription) Messages() <-chan []byte { return s.ch }

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		close(s.ch)
		s.owner.mu.Unlock()
	})
	return nil
}

var (
	_ pipeline.Publisher  = (*Publisher)(nil)
	_ pipeline.Subscriber = (*Publisher)(nil)
)
