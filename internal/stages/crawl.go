package stages

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/code-by-fh/ai-job-analyzer/internal/extract"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
	"github.com/code-by-fh/ai-job-analyzer/internal/worker"
)

const scheduleParallelism = 8

// FetchLinks renders the start page and returns its same-origin links. A
// page that stays unreachable after the last attempt yields no links so the
// run still reaches its end.
func (h *Handlers) FetchLinks(ctx context.Context, task worker.Task) (any, error) {
	var req pipeline.FetchLinksRequest
	if err := task.Envelope.Decode(&req); err != nil {
		return nil, err
	}
	logger := h.logger.With(zap.String("url", req.URL))

	page, err := h.deps.Fetcher.Fetch(ctx, req.URL)
	if err != nil {
		if task.Final && errors.Is(err, pipeline.ErrNoContent) {
			logger.Warn("start page unreachable, ending run", zap.Error(err))
			return pipeline.FilterURLsRequest{BaseURL: req.URL, Links: []string{}}, nil
		}
		return nil, fmt.Errorf("fetch start page: %w", err)
	}

	links := extract.Links(page.HTML, req.URL)
	logger.Info("found internal links", zap.Int("links", len(links)))
	return pipeline.FilterURLsRequest{BaseURL: req.URL, Links: links}, nil
}

// FilterURLs keeps the links the model classifies as job detail pages. On the
// last attempt a model failure yields no links.
func (h *Handlers) FilterURLs(ctx context.Context, task worker.Task) (any, error) {
	var req pipeline.FilterURLsRequest
	if err := task.Envelope.Decode(&req); err != nil {
		return nil, err
	}
	if len(req.Links) == 0 {
		return pipeline.ScheduleCrawlsRequest{Links: []string{}}, nil
	}

	picked, err := h.deps.Analyst.Filter(ctx, req.BaseURL, req.Links)
	if err != nil {
		if task.Final {
			h.logger.Warn("relevance filter failed, dropping links",
				zap.String("base_url", req.BaseURL),
				zap.Int("links", len(req.Links)),
				zap.Error(err),
			)
			return pipeline.ScheduleCrawlsRequest{Links: []string{}}, nil
		}
		return nil, err
	}
	if picked == nil {
		picked = []string{}
	}
	h.logger.Info("filtered links", zap.Int("input", len(req.Links)), zap.Int("kept", len(picked)))
	return pipeline.ScheduleCrawlsRequest{Links: picked}, nil
}

// ScheduleCrawls enqueues one detail scrape per link and then ends the run.
func (h *Handlers) ScheduleCrawls(ctx context.Context, task worker.Task) (any, error) {
	var req pipeline.ScheduleCrawlsRequest
	if err := task.Envelope.Decode(&req); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scheduleParallelism)
	for _, link := range req.Links {
		g.Go(func() error {
			env, err := pipeline.NewEnvelope(pipeline.TaskScrapeDetail, pipeline.ScrapeDetailRequest{URL: link})
			if err != nil {
				return err
			}
			if err := h.deps.Queue.Enqueue(gctx, env); err != nil {
				return fmt.Errorf("enqueue scrape_detail %s: %w", link, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	h.logger.Info("scheduled detail crawls", zap.Int("links", len(req.Links)))

	if task.Envelope.RunID != "" && h.deps.Finisher != nil {
		h.deps.Finisher.Finish(ctx, task.Envelope.RunID)
	}
	return nil, nil
}
