// Package redis implements the crawl lock on a Redis key.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// KEYS[1] = lock key, ARGV[1] = owner.
var releaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lock is a TTL key set with SET NX whose value is the owning run id.
type Lock struct {
	client goredis.UniversalClient
	key    string
}

// New builds a Lock on key.
func New(client goredis.UniversalClient, key string) *Lock {
	return &Lock{client: client, key: key}
}

// Acquire sets the key if absent.
func (l *Lock) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire crawl lock: %w", err)
	}
	return ok, nil
}

// Release deletes the key only while owner holds it.
func (l *Lock) Release(ctx context.Context, owner string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Err(); err != nil {
		return fmt.Errorf("release crawl lock: %w", err)
	}
	return nil
}

// Held reports whether any run holds the lock.
func (l *Lock) Held(ctx context.Context) (bool, error) {
	n, err := l.client.Exists(ctx, l.key).Result()
	if err != nil {
		return false, fmt.Errorf("check crawl lock: %w", err)
	}
	return n > 0, nil
}

// MarkCompleted sets a per-run marker; only the first call returns true.
func (l *Lock) MarkCompleted(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key+":completed:"+owner, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark run completed: %w", err)
	}
	return ok, nil
}

var _ pipeline.CrawlLock = (*Lock)(nil)
