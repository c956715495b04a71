package relay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// Relay copies every event of the channel into the registry.
type Relay struct {
	subscriber pipeline.Subscriber
	registry   *Registry
	retry      time.Duration
	logger     *zap.Logger
}

// New builds a Relay.
func New(subscriber pipeline.Subscriber, registry *Registry, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		subscriber: subscriber,
		registry:   registry,
		retry:      time.Second,
		logger:     logger.Named("relay"),
	}
}

// Run subscribes and broadcasts until ctx ends, resubscribing when the
// subscription drops.
func (r *Relay) Run(ctx context.Context) error {
	for {
		if err := r.pump(ctx); err != nil {
			r.logger.Warn("event subscription lost", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.retry):
		}
	}
}

func (r *Relay) pump(ctx context.Context) error {
	sub, err := r.subscriber.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() {
		_ = sub.Close()
	}()
	r.logger.Info("listening for pipeline events")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return fmt.Errorf("subscription closed")
			}
			r.registry.Broadcast(msg)
		}
	}
}
