// Package app builds the long-lived services of a process from config and
// owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcpstorage "cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/analysis"
	"github.com/code-by-fh/ai-job-analyzer/internal/config"
	"github.com/code-by-fh/ai-job-analyzer/internal/coordinator"
	lockmemory "github.com/code-by-fh/ai-job-analyzer/internal/lock/memory"
	lockredis "github.com/code-by-fh/ai-job-analyzer/internal/lock/redis"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
	"github.com/code-by-fh/ai-job-analyzer/internal/policy/blocklist"
	pubmemory "github.com/code-by-fh/ai-job-analyzer/internal/publisher/memory"
	pubpubsub "github.com/code-by-fh/ai-job-analyzer/internal/publisher/pubsub"
	pubredis "github.com/code-by-fh/ai-job-analyzer/internal/publisher/redis"
	queuememory "github.com/code-by-fh/ai-job-analyzer/internal/queue/memory"
	queuepubsub "github.com/code-by-fh/ai-job-analyzer/internal/queue/pubsub"
	queueredis "github.com/code-by-fh/ai-job-analyzer/internal/queue/redis"
	"github.com/code-by-fh/ai-job-analyzer/internal/redisclient"
	"github.com/code-by-fh/ai-job-analyzer/internal/storage"
	storagegcs "github.com/code-by-fh/ai-job-analyzer/internal/storage/gcs"
	storagelocal "github.com/code-by-fh/ai-job-analyzer/internal/storage/local"
	storagememory "github.com/code-by-fh/ai-job-analyzer/internal/storage/memory"
	storagepostgres "github.com/code-by-fh/ai-job-analyzer/internal/storage/postgres"
)

// EventBus publishes events and opens subscriptions on the same channel.
type EventBus interface {
	pipeline.Publisher
	pipeline.Subscriber
}

type closer struct {
	name string
	fn   func() error
}

// App holds the shared backends of one process.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Clock       pipeline.Clock
	Queue       pipeline.Queue
	Events      EventBus
	Lock        pipeline.CrawlLock
	Store       pipeline.Store
	Archiver    *storage.PageArchiver
	Coordinator *coordinator.Coordinator

	redis    *goredis.Client
	postgres *storagepostgres.Store
	analysis *analysis.Service
	closers  []closer
}

// New connects every configured backend. On error, whatever was opened is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Clock: pipeline.SystemClock{}}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Coordinator = coordinator.New(a.Lock, a.Queue, a.Events, cfg.Lock.TTL, logger.Named("coordinator"),
		coordinator.WithBlocklist(blocklist.New(cfg.Fetcher.BlockedDomains)))
	logger.Info("application services initialized",
		zap.String("queue", cfg.Queue.Provider),
		zap.String("events", cfg.Events.Provider),
		zap.String("lock", cfg.Lock.Provider),
		zap.String("store", cfg.Store.Provider),
		zap.String("archive", cfg.Archive.Provider),
	)
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if a.Config.UsesRedis() {
		client, err := redisclient.New(ctx, a.Config.Redis.URL)
		if err != nil {
			return err
		}
		a.redis = client
		a.onClose("redis", client.Close)
	}
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"queue", a.initQueue},
		{"events", a.initEvents},
		{"lock", a.initLock},
		{"store", a.initStore},
		{"archive", a.initArchive},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("init %s: %w", step.name, err)
		}
	}
	return nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) initQueue(ctx context.Context) error {
	cfg := a.Config.Queue
	switch cfg.Provider {
	case "redis":
		consumer := cfg.ConsumerID
		if consumer == "" {
			id, err := queueredis.DefaultConsumerID()
			if err != nil {
				return err
			}
			consumer = id
		}
		a.Queue = queueredis.New(a.redis, cfg.Prefix, consumer, a.Logger)
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client: %w", err)
		}
		q := queuepubsub.New(client, queuepubsub.Config{
			Prefix:             cfg.Prefix,
			SubscriptionSuffix: cfg.PubSub.SubscriptionSuffix,
		}, a.Logger)
		a.onClose("queue", q.Close)
		if err := q.EnsureTopology(ctx, pipeline.Queues()...); err != nil {
			return err
		}
		a.Queue = q
		return nil
	default:
		a.Queue = queuememory.NewQueue(cfg.Depth)
	}
	a.onClose("queue", a.Queue.Close)
	return nil
}

func (a *App) initEvents(ctx context.Context) error {
	cfg := a.Config.Events
	switch cfg.Provider {
	case "redis":
		a.Events = pubredis.New(a.redis, cfg.Channel)
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client: %w", err)
		}
		p := pubpubsub.New(client, cfg.Channel, a.Logger)
		a.onClose("events", p.Close)
		if err := p.EnsureTopic(ctx); err != nil {
			return err
		}
		a.Events = p
	default:
		a.Events = pubmemory.New()
	}
	return nil
}

func (a *App) initLock(context.Context) error {
	if a.Config.Lock.Provider == "redis" {
		a.Lock = lockredis.New(a.redis, a.Config.Lock.Key)
		return nil
	}
	a.Lock = lockmemory.New(a.Clock)
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.Config.Store.Provider != "postgres" {
		a.Store = storagememory.NewStore()
		return nil
	}
	cfg := a.Config.Store.Postgres
	store, err := storagepostgres.NewStore(ctx, storagepostgres.Config{
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
	})
	if err != nil {
		return err
	}
	a.postgres = store
	a.Store = store
	a.onClose("store", func() error {
		store.Close()
		return nil
	})
	if cfg.AutoMigrate {
		return store.Migrate(ctx)
	}
	return nil
}

func (a *App) initArchive(ctx context.Context) error {
	cfg := a.Config.Archive
	var blobs pipeline.BlobStore
	switch cfg.Provider {
	case "gcs":
		client, err := gcpstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client: %w", err)
		}
		store, err := storagegcs.New(client, storagegcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			_ = client.Close()
			return err
		}
		a.onClose("archive", store.Close)
		blobs = store
	case "local":
		store, err := storagelocal.New(storagelocal.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return err
		}
		blobs = store
	case "memory":
		blobs = storagememory.NewBlobStore()
	default:
		return nil
	}
	a.Archiver = storage.NewPageArchiver(blobs, cfg.Prefix, a.Clock)
	return nil
}

// Migrate applies the schema when the store is Postgres.
func (a *App) Migrate(ctx context.Context) error {
	if a.postgres == nil {
		return errors.New("migrate requires store.provider=postgres")
	}
	return a.postgres.Migrate(ctx)
}

// Ready checks the backends that can go away at runtime.
func (a *App) Ready(ctx context.Context) error {
	if a.redis != nil {
		if err := redisclient.HealthCheck(ctx, a.redis); err != nil {
			return err
		}
	}
	if a.postgres != nil {
		if err := a.postgres.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts services down in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.Logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	if err := a.Logger.Sync(); err != nil {
		a.Logger.Debug("logger sync failed", zap.Error(err))
	}
}
