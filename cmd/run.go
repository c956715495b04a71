package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/code-by-fh/ai-job-analyzer/internal/app"
	"github.com/code-by-fh/ai-job-analyzer/internal/metrics"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

// services selects what one process runs.
type services struct {
	api         bool
	queues      []pipeline.QueueName
	concurrency int
	// metricsPort serves /metrics for worker-only processes; 0 disables it.
	metricsPort int
}

func run(ctx context.Context, rt *runtime, svc services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	if len(svc.queues) > 0 {
		d, err := a.Workers(gctx, svc.queues, svc.concurrency)
		if err != nil {
			return fmt.Errorf("build workers: %w", err)
		}
		rt.logger.Info("dispatcher started", zap.Int("workers", d.Size()), zap.Any("queues", svc.queues))
		g.Go(func() error {
			d.Run(gctx)
			return nil
		})
	}

	switch {
	case svc.api:
		handler, r := a.Server(gctx)
		g.Go(func() error { return r.Run(gctx) })
		serveHTTP(gctx, g, rt, handler, rt.cfg.Server.Port)
	case svc.metricsPort > 0:
		serveHTTP(gctx, g, rt, probeRouter(a), svc.metricsPort)
	}

	err = g.Wait()
	rt.logger.Info("shutdown complete")
	return err
}

func serveHTTP(ctx context.Context, g *errgroup.Group, rt *runtime, handler http.Handler, port int) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		rt.logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		rt.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			rt.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})
}

// probeRouter exposes health and metrics for worker-only processes.
func probeRouter(a *app.App) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

func parseQueues(names []string) ([]pipeline.QueueName, error) {
	known := make(map[pipeline.QueueName]bool)
	for _, q := range pipeline.Queues() {
		known[q] = true
	}
	seen := make(map[pipeline.QueueName]bool)
	out := make([]pipeline.QueueName, 0, len(names))
	for _, n := range names {
		q := pipeline.QueueName(n)
		if !known[q] {
			return nil, fmt.Errorf("unknown queue %q", n)
		}
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("at least one queue is required")
	}
	return out, nil
}
