// Package coordinator starts crawl runs and ends them exactly once.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/metrics"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// DefaultTTL bounds how long a crashed run can block new ones.
const DefaultTTL = 10 * time.Minute

// Coordinator owns the crawl lock and the run lifecycle events.
type Coordinator struct {
	lock      pipeline.CrawlLock
	queue     pipeline.Queue
	publisher pipeline.Publisher
	ttl       time.Duration
	blocked   HostMatcher
	logger    *zap.Logger
}

// HostMatcher reports hosts that must not be crawled.
type HostMatcher interface {
	Blocked(host string) bool
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithBlocklist rejects crawl targets whose host m blocks.
func WithBlocklist(m HostMatcher) Option {
	return func(c *Coordinator) {
		c.blocked = m
	}
}

// New constructs a Coordinator; a non-positive ttl falls back to DefaultTTL.
func New(
	lock pipeline.CrawlLock,
	queue pipeline.Queue,
	publisher pipeline.Publisher,
	ttl time.Duration,
	logger *zap.Logger,
	opts ...Option,
) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		lock:      lock,
		queue:     queue,
		publisher: publisher,
		ttl:       ttl,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trigger validates rawURL, takes the crawl lock and enqueues the first stage.
// It returns the run id.
func (c *Coordinator) Trigger(ctx context.Context, rawURL string) (string, error) {
	u, err := pipeline.ParseCrawlURL(rawURL)
	if err != nil {
		metrics.ObserveCrawlRun("invalid")
		return "", err
	}
	target := u.String()
	if c.blocked != nil && c.blocked.Blocked(u.Hostname()) {
		metrics.ObserveCrawlRun("blocked")
		return "", fmt.Errorf("%w: %s", pipeline.ErrBlockedHost, u.Hostname())
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	runID := id.String()

	acquired, err := c.lock.Acquire(ctx, runID, c.ttl)
	if err != nil {
		metrics.ObserveCrawlRun("error")
		return "", fmt.Errorf("acquire crawl lock: %w", err)
	}
	if !acquired {
		metrics.ObserveCrawlRun("rejected")
		return "", pipeline.ErrCrawlInProgress
	}
	logger := c.logger.With(zap.String("run_id", runID), zap.String("url", target))

	if err := c.publisher.Publish(ctx, pipeline.CrawlStarted(target)); err != nil {
		logger.Warn("publish crawl_started failed", zap.Error(err))
	}

	env, err := pipeline.NewEnvelope(pipeline.TaskFetchLinks, pipeline.FetchLinksRequest{URL: target})
	if err == nil {
		env.RunID = runID
		env, err = env.Then(pipeline.TaskFilterURLs, pipeline.TaskScheduleCrawls)
	}
	if err == nil {
		err = c.queue.Enqueue(ctx, env)
	}
	if err != nil {
		metrics.ObserveCrawlRun("error")
		logger.Error("enqueue fetch_links failed", zap.Error(err))
		c.Finish(context.WithoutCancel(ctx), runID)
		return "", fmt.Errorf("enqueue fetch_links: %w", err)
	}

	metrics.ObserveCrawlRun("started")
	logger.Info("crawl run started")
	return runID, nil
}

// Finish releases the lock held by runID and publishes crawl_completed once per run.
func (c *Coordinator) Finish(ctx context.Context, runID string) {
	logger := c.logger.With(zap.String("run_id", runID))
	if err := c.lock.Release(ctx, runID); err != nil {
		logger.Error("release crawl lock failed", zap.Error(err))
	}
	// A marker failure still publishes: a duplicate crawl_completed is
	// tolerated by clients, a missing one leaves them waiting.
	first, err := c.lock.MarkCompleted(ctx, runID, c.ttl)
	if err != nil {
		logger.Error("mark run completed failed", zap.Error(err))
		first = true
	}
	if !first {
		logger.Debug("run already completed")
		return
	}
	if err := c.publisher.Publish(ctx, pipeline.CrawlCompleted()); err != nil {
		logger.Warn("publish crawl_completed failed", zap.Error(err))
		return
	}
	logger.Info("crawl run completed")
}

// Crawling reports whether a run currently holds the lock.
func (c *Coordinator) Crawling(ctx context.Context) (bool, error) {
	held, err := c.lock.Held(ctx)
	if err != nil {
		return false, fmt.Errorf("read crawl lock: %w", err)
	}
	return held, nil
}
