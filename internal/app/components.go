package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/analysis"
	"github.com/code-by-fh/ai-job-analyzer/internal/api"
	"github.com/code-by-fh/ai-job-analyzer/internal/dispatcher"
	autofetcher "github.com/code-by-fh/ai-job-analyzer/internal/fetcher/auto"
	collyfetcher "github.com/code-by-fh/ai-job-analyzer/internal/fetcher/colly"
	headlessfetcher "github.com/code-by-fh/ai-job-analyzer/internal/fetcher/headless"
	"github.com/code-by-fh/ai-job-analyzer/internal/llm"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
	"github.com/code-by-fh/ai-job-analyzer/internal/policy/ratelimit"
	queueredis "github.com/code-by-fh/ai-job-analyzer/internal/queue/redis"
	"github.com/code-by-fh/ai-job-analyzer/internal/relay"
	"github.com/code-by-fh/ai-job-analyzer/internal/stages"
	"github.com/code-by-fh/ai-job-analyzer/internal/worker"
)

// Fetcher builds the page fetcher for fetcher.mode.
func (a *App) Fetcher() (pipeline.Fetcher, error) {
	cfg := a.Config.Fetcher
	hosts := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.RatePerHost, DefaultBurst: cfg.BurstPerHost})
	static := func() pipeline.Fetcher {
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.UserAgent,
			RespectRobots: cfg.RespectRobots,
			Timeout:       cfg.NavigationTimeout,
		}, hosts)
	}
	if cfg.Mode == "static" {
		return static(), nil
	}
	browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       cfg.MaxParallel,
		UserAgent:         cfg.UserAgent,
		ViewportWidth:     cfg.ViewportWidth,
		ViewportHeight:    cfg.ViewportHeight,
		NavigationTimeout: cfg.NavigationTimeout,
		SettleMin:         cfg.SettleMin,
		SettleMax:         cfg.SettleMax,
	}, hosts)
	if err != nil {
		return nil, fmt.Errorf("headless fetcher: %w", err)
	}
	a.onClose("browser", func() error {
		browser.Close()
		return nil
	})
	if cfg.Mode == "headless" {
		return browser, nil
	}
	return autofetcher.New(static(), browser, autofetcher.NewHeuristic(cfg.PromotionThreshold), a.Logger)
}

// Analysis returns the model-backed analysis service, building it on first use.
func (a *App) Analysis(ctx context.Context) (*analysis.Service, error) {
	if a.analysis != nil {
		return a.analysis, nil
	}
	cfg := a.Config.LLM
	client, err := llm.New(ctx, llm.Config{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	a.onClose("llm", client.Close)
	p := a.Config.Pipeline
	a.analysis = analysis.New(client, analysis.Settings{
		FilterBatchMax:   p.FilterBatchMax,
		ScorePromptMax:   p.ScorePromptMax,
		DraftPromptMax:   p.DraftPromptMax,
		ScoreTemperature: p.ScoreTemperature,
		DraftTemperature: p.DraftTemperature,
	}, a.Logger)
	return a.analysis, nil
}

// Workers builds a dispatcher consuming queues with concurrency workers each.
// Only the collaborators the queues need are created.
func (a *App) Workers(ctx context.Context, queues []pipeline.QueueName, concurrency int) (*dispatcher.Dispatcher, error) {
	deps := stages.Deps{
		Store:     a.Store,
		Queue:     a.Queue,
		Publisher: a.Events,
		Finisher:  a.Coordinator,
		Archiver:  a.Archiver,
		Clock:     a.Clock,
		Config: stages.Config{
			DescriptionMax:  a.Config.Pipeline.DescriptionMax,
			FallbackProfile: a.Config.Pipeline.FallbackProfile,
		},
		Logger: a.Logger,
	}
	for _, q := range queues {
		switch q {
		case pipeline.QueueScraper:
			fetcher, err := a.Fetcher()
			if err != nil {
				return nil, err
			}
			deps.Fetcher = fetcher
		case pipeline.QueueAI:
			service, err := a.Analysis(ctx)
			if err != nil {
				return nil, err
			}
			deps.Analyst = service
		}
	}
	handlers, err := stages.New(deps)
	if err != nil {
		return nil, err
	}
	reg := worker.Registry{}
	if err := handlers.Register(reg, queues...); err != nil {
		return nil, err
	}

	if rq, ok := a.Queue.(*queueredis.Queue); ok {
		if _, err := rq.Recover(ctx, queues...); err != nil {
			return nil, fmt.Errorf("recover in-flight tasks: %w", err)
		}
	}

	r := a.Config.Retry
	policy := pipeline.NewExponentialRetryPolicy(r.MaxAttempts, r.BaseDelay, r.MaxDelay)
	return dispatcher.Build(a.Queue, dispatcher.Config{Queues: queues, Concurrency: concurrency},
		reg, policy, a.Coordinator.Finish, a.Logger.Named("worker"))
}

// Server builds the HTTP API and the event relay feeding its WebSocket route.
// CV import is disabled when no model client can be built.
func (a *App) Server(ctx context.Context) (http.Handler, *relay.Relay) {
	registry := relay.NewRegistry(relay.DefaultOutbox, a.Logger)
	a.onClose("relay", func() error {
		registry.Close()
		return nil
	})
	deps := api.Deps{
		Crawler: a.Coordinator,
		Queue:   a.Queue,
		Store:   a.Store,
		Events:  relay.Handler(registry, a.Logger.Named("websocket")),
		Ready:   a.Ready,
	}
	service, err := a.Analysis(ctx)
	if err != nil {
		a.Logger.Warn("CV import disabled", zap.Error(err))
	} else {
		deps.CVParser = service
	}
	server := api.NewServer(deps, a.Config, a.Logger)
	return server.Handler(), relay.New(a.Events, registry, a.Logger)
}
