// Package collyfetcher implements pipeline.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/code-by-fh/ai-job-analyzer/internal/metrics"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// HostLimiter throttles requests per host.
type HostLimiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements pipeline.Fetcher using the Colly collector.
// It does not execute JavaScript.
type Fetcher struct {
	cfg           Config
	hosts         HostLimiter
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, hosts HostLimiter) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		hosts:         hosts,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Every failure wraps pipeline.ErrNoContent.
func (f *Fetcher) Fetch(ctx context.Context, url string) (pipeline.Page, error) {
	page, err := f.fetch(ctx, url)
	if err != nil {
		metrics.ObserveFetch(url, "static", "error")
		return pipeline.Page{}, fmt.Errorf("%w: %w", pipeline.ErrNoContent, err)
	}
	metrics.ObserveFetch(url, "static", "ok")
	return page, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) (pipeline.Page, error) {
	if f.hosts != nil {
		if err := f.hosts.Wait(ctx, url); err != nil {
			return pipeline.Page{}, err
		}
	}
	var (
		page     pipeline.Page
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, url, start, &page, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return pipeline.Page{}, err
	}
	if page.HTML == "" {
		return pipeline.Page{}, fmt.Errorf("empty response body")
	}
	return page, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	url string,
	start time.Time,
	page *pipeline.Page,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		*page = pipeline.Page{
			URL:      url,
			FinalURL: r.Request.URL.String(),
			HTML:     string(r.Body),
			Duration: time.Since(start),
		}
	})

	// Colly reports non-2xx statuses through OnError.
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ pipeline.Fetcher = (*Fetcher)(nil)
