// Package auto fetches pages statically and falls back to a headless browser
// when the response looks client-rendered or the static fetch fails.
package auto

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/metrics"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// Detector decides whether a page needs rendering.
type Detector interface {
	ShouldPromote(html string) bool
}

// Fetcher chains a static fetcher and a headless fetcher.
type Fetcher struct {
	static   pipeline.Fetcher
	headless pipeline.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New builds a Fetcher. A nil detector uses NewHeuristic(0).
func New(static, headless pipeline.Fetcher, detector Detector, logger *zap.Logger) (*Fetcher, error) {
	if static == nil || headless == nil {
		return nil, fmt.Errorf("static and headless fetchers are required")
	}
	if detector == nil {
		detector = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{static: static, headless: headless, detector: detector, logger: logger.Named("auto_fetcher")}, nil
}

// Fetch returns the static page unless promotion is needed.
func (f *Fetcher) Fetch(ctx context.Context, url string) (pipeline.Page, error) {
	page, err := f.static.Fetch(ctx, url)
	switch {
	case err != nil:
		f.logger.Debug("static fetch failed, promoting", zap.String("url", url), zap.Error(err))
	case f.detector.ShouldPromote(page.HTML):
		f.logger.Debug("page looks client-rendered, promoting", zap.String("url", url))
	default:
		return page, nil
	}
	if ctx.Err() != nil {
		return pipeline.Page{}, fmt.Errorf("%w: %w", pipeline.ErrNoContent, ctx.Err())
	}
	metrics.ObserveFetch(url, "auto", "promoted")
	return f.headless.Fetch(ctx, url)
}

var _ pipeline.Fetcher = (*Fetcher)(nil)
