package stages

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/extract"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
	"github.com/code-by-fh/ai-job-analyzer/internal/worker"
)

// ScrapeDetail renders a job page, extracts title and description and hands
// the job to the analyzer.
func (h *Handlers) ScrapeDetail(ctx context.Context, task worker.Task) (any, error) {
	var req pipeline.ScrapeDetailRequest
	if err := task.Envelope.Decode(&req); err != nil {
		return nil, err
	}
	logger := h.logger.With(zap.String("url", req.URL))

	page, err := h.deps.Fetcher.Fetch(ctx, req.URL)
	if err != nil {
		if task.Final && errors.Is(err, pipeline.ErrNoContent) {
			logger.Warn("skipping job page after download failure", zap.Error(err))
			return nil, nil
		}
		return nil, fmt.Errorf("fetch job page: %w", err)
	}

	detail, err := extract.ParseDetail(page.HTML, h.deps.Config.DescriptionMax)
	if err != nil {
		return nil, pipeline.Permanent(fmt.Errorf("parse job page: %w", err))
	}
	if detail.Description == "" {
		logger.Warn("no clean content extracted")
	}

	id := pipeline.JobID(req.URL)
	if uri, err := h.deps.Archiver.Archive(ctx, id, page); err != nil {
		logger.Warn("archive page failed", zap.Error(err))
	} else if uri != "" {
		logger.Debug("archived page", zap.String("uri", uri))
	}

	env, err := pipeline.NewEnvelope(pipeline.TaskAnalyzeJob, pipeline.AnalyzeJobRequest{
		ID:          id,
		Title:       detail.Title,
		Company:     company(req.URL),
		Description: detail.Description,
		URL:         req.URL,
	})
	if err != nil {
		return nil, err
	}
	if err := h.deps.Queue.Enqueue(ctx, env); err != nil {
		return nil, fmt.Errorf("enqueue analyze_job: %w", err)
	}
	logger.Info("extracted job", zap.String("job_id", id), zap.String("title", detail.Title))
	return nil, nil
}

// company is the network location of the posting.
func company(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return pipeline.Host(raw)
	}
	return u.Host
}
