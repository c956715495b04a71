// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/code-by-fh/ai-job-analyzer/internal/metrics"
	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

const (
	defaultNavTimeout = 60 * time.Second
	defaultWidth      = 1920
	defaultHeight     = 1080
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	ViewportWidth     int64
	ViewportHeight    int64
	NavigationTimeout time.Duration
	// SettleMin and SettleMax bound the random pause after the DOM is ready.
	SettleMin time.Duration
	SettleMax time.Duration
}

// HostLimiter throttles requests per host.
type HostLimiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements pipeline.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	hosts       HostLimiter
	allocator   context.Context
	allocCancel context.CancelFunc
	settle      func() time.Duration
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config, hosts HostLimiter) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.SettleMax < cfg.SettleMin {
		return nil, fmt.Errorf("settle max must be >= settle min")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = defaultWidth, defaultHeight
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(int(cfg.ViewportWidth), int(cfg.ViewportHeight)),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	f := &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		hosts:       hosts,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
	f.settle = func() time.Duration { return jitter(f.cfg.SettleMin, f.cfg.SettleMax) }
	return f, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser and returns the rendered DOM.
// Every failure wraps pipeline.ErrNoContent.
func (f *Fetcher) Fetch(ctx context.Context, url string) (pipeline.Page, error) {
	page, err := f.fetch(ctx, url)
	if err != nil {
		metrics.ObserveFetch(url, "headless", "error")
		return pipeline.Page{}, fmt.Errorf("%w: %w", pipeline.ErrNoContent, err)
	}
	metrics.ObserveFetch(url, "headless", "ok")
	return page, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) (pipeline.Page, error) {
	if err := f.acquire(ctx); err != nil {
		return pipeline.Page{}, err
	}
	defer f.release()

	if f.hosts != nil {
		if err := f.hosts.Wait(ctx, url); err != nil {
			return pipeline.Page{}, err
		}
	}

	// The tab lives until taskCancel; caller cancellation closes it too.
	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	if err := chromedp.Run(taskCtx); err != nil {
		return pipeline.Page{}, fmt.Errorf("open tab: %w", err)
	}

	meta := &responseMeta{}
	if c := chromedp.FromContext(taskCtx); c != nil && c.Target != nil {
		// The top frame of a page target shares the target's id.
		meta.frame = cdp.FrameID(c.Target.TargetID)
	}
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	navCtx, navCancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer navCancel()
	if err := chromedp.Run(navCtx,
		f.emulationAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return pipeline.Page{}, fmt.Errorf("navigate: %w", err)
	}

	if err := sleepCtx(taskCtx, f.settle()); err != nil {
		return pipeline.Page{}, fmt.Errorf("settle: %w", err)
	}

	var html, finalURL string
	readCtx, readCancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer readCancel()
	if err := chromedp.Run(readCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return pipeline.Page{}, fmt.Errorf("read dom: %w", err)
	}

	if status := meta.status(); status >= http.StatusBadRequest {
		return pipeline.Page{}, fmt.Errorf("document status %d", status)
	}
	if finalURL == "" {
		finalURL = url
	}
	return pipeline.Page{
		URL:      url,
		FinalURL: finalURL,
		HTML:     html,
		Duration: time.Since(start),
	}, nil
}

func (f *Fetcher) emulationAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if err := emulation.SetDeviceMetricsOverride(f.cfg.ViewportWidth, f.cfg.ViewportHeight, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("headless slot wait canceled: %w", err)
	}
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

// responseMeta records the HTTP status of the top-level document. Iframe
// documents are ignored; without a known frame id the first document wins.
type responseMeta struct {
	frame cdp.FrameID

	mu   sync.RWMutex
	code int
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.frame != "":
		if resp.FrameID != m.frame {
			return
		}
	case m.code != 0:
		return
	}
	m.code = int(resp.Response.Status)
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.code
}

// jitter returns a uniformly random duration in [lo, hi].
func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(hi-lo)+1))
	if err != nil {
		return lo + (hi-lo)/2
	}
	return lo + time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ pipeline.Fetcher = (*Fetcher)(nil)
