package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/config"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
	queuememory "github.com/code-by-fh/ai-job-analyzer/internal/queue/memory"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Fetcher.Mode = "static"
	cfg.LLM.Provider = "openrouter"
	cfg.LLM.APIKey = ""
	return cfg
}

func newApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNewInMemory(t *testing.T) {
	t.Parallel()

	a := newApp(t, baseConfig(t))

	require.IsType(t, &queuememory.Queue{}, a.Queue)
	require.NotNil(t, a.Events)
	require.NotNil(t, a.Lock)
	require.NotNil(t, a.Store)
	require.NotNil(t, a.Coordinator)
	require.Nil(t, a.Archiver)
	require.NoError(t, a.Ready(context.Background()))
	require.Error(t, a.Migrate(context.Background()))
}

func TestNewWithArchive(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Archive.Provider = "local"
	cfg.Archive.BaseDir = t.TempDir()
	a := newApp(t, cfg)
	require.NotNil(t, a.Archiver)

	cfg.Archive.Provider = "memory"
	a = newApp(t, cfg)
	require.NotNil(t, a.Archiver)
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Queue.Provider = "redis"
	cfg.Redis.URL = "redis://127.0.0.1:1/0"

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestWorkersScraperQueue(t *testing.T) {
	t.Parallel()

	a := newApp(t, baseConfig(t))

	d, err := a.Workers(context.Background(), []pipeline.QueueName{pipeline.QueueScraper}, 3)
	require.NoError(t, err)
	require.Equal(t, 3, d.Size())
}

func TestWorkersAIQueueNeedsModel(t *testing.T) {
	t.Parallel()

	a := newApp(t, baseConfig(t))
	_, err := a.Workers(context.Background(), []pipeline.QueueName{pipeline.QueueAI}, 1)
	require.Error(t, err)

	cfg := baseConfig(t)
	cfg.LLM.APIKey = "sk-test"
	a = newApp(t, cfg)
	d, err := a.Workers(context.Background(), pipeline.Queues(), 2)
	require.NoError(t, err)
	require.Equal(t, 4, d.Size())
}

func TestServerStartsCrawl(t *testing.T) {
	t.Parallel()

	a := newApp(t, baseConfig(t))
	handler, r := a.Server(context.Background())
	require.NotNil(t, r)

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"https://example.com/careers"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	q, ok := a.Queue.(*queuememory.Queue)
	require.True(t, ok)
	require.Equal(t, 1, q.Len(pipeline.QueueScraper))

	crawling, err := a.Coordinator.Crawling(context.Background())
	require.NoError(t, err)
	require.True(t, crawling)

	req = httptest.NewRequest(http.MethodPost, "/settings/cv", strings.NewReader(`{"text":"cv"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
