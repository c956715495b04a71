package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	p := New()
	require.NoError(t, p.Publish(context.Background(), pipeline.CrawlStarted("https://example.com")))
	require.NoError(t, p.Publish(context.Background(), pipeline.CrawlCompleted()))

	events := p.Events()
	require.Len(t, events, 2)
	assert.Equal(t, pipeline.EventCrawlStarted, events[0].Type)
	assert.Equal(t, 1, p.Count(pipeline.EventCrawlCompleted))
	assert.Equal(t, 0, p.Count(pipeline.EventNewJob))
}

func TestSubscribersReceiveInOrder(t *testing.T) {
	t.Parallel()

	p := New()
	sub, err := p.Subscribe(context.Background())
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	require.NoError(t, p.Publish(context.Background(), pipeline.CrawlStarted("https://example.com")))
	require.NoError(t, p.Publish(context.Background(), pipeline.GlobalError("boom")))

	for _, want := range []pipeline.EventType{pipeline.EventCrawlStarted, pipeline.EventGlobalError} {
		select {
		case data := <-sub.Messages():
			evt, err := pipeline.DecodeEvent(data)
			require.NoError(t, err)
			assert.Equal(t, want, evt.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	p := New()
	sub, err := p.Subscribe(context.Background())
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer*2; i++ {
		require.NoError(t, p.Publish(context.Background(), pipeline.CrawlCompleted()))
	}
	assert.Len(t, sub.Messages(), subscriberBuffer)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.NoError(t, p.Publish(context.Background(), pipeline.CrawlCompleted()))
}

func TestSubscribeCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Subscribe(ctx)
	require.Error(t, err)
}
