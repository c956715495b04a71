package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

func newPublisher(t *testing.T) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "job_updates"), mr
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	t.Parallel()

	p, _ := newPublisher(t)
	ctx := context.Background()

	sub, err := p.Subscribe(ctx)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	require.NoError(t, p.Publish(ctx, pipeline.CrawlStarted("https://example.com/careers")))
	require.NoError(t, p.Publish(ctx, pipeline.CrawlCompleted()))

	var got []pipeline.EventType
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case data := <-sub.Messages():
			evt, err := pipeline.DecodeEvent(data)
			require.NoError(t, err)
			got = append(got, evt.Type)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []pipeline.EventType{pipeline.EventCrawlStarted, pipeline.EventCrawlCompleted}, got)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	t.Parallel()

	p, mr := newPublisher(t)
	require.NoError(t, p.Publish(context.Background(), pipeline.GlobalError("boom")))
	mr.Close()
	require.Error(t, p.Publish(context.Background(), pipeline.GlobalError("boom")))
}

func TestSubscriptionCloseEndsStream(t *testing.T) {
	t.Parallel()

	p, _ := newPublisher(t)
	sub, err := p.Subscribe(context.Background())
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Messages():
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
