// Package metrics exposes Prometheus collectors for the pipeline service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	stageTasksTotal            *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	fetchesTotal               *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	eventsPublishedTotal       *prometheus.CounterVec
	crawlRunsTotal             *prometheus.CounterVec
	relayConnections           prometheus.Gauge
	relayDroppedTotal          prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		stageTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_stage_tasks_total",
				Help: "Pipeline stage invocations, labeled by task and outcome.",
			},
			[]string{"task", "outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analyzer_stage_duration_seconds",
				Help:    "Histogram of stage handler durations, labeled by task.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"task"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "analyzer_active_workers",
				Help: "Number of workers currently handling a task.",
			},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_fetches_total",
				Help: "Page fetches, labeled by site, fetcher mode and status.",
			},
			[]string{"site", "mode", "status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analyzer_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		eventsPublishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_events_published_total",
				Help: "Pipeline events published, labeled by type.",
			},
			[]string{"type"},
		)

		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_crawl_runs_total",
				Help: "Crawl triggers, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		relayConnections = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "analyzer_relay_connections",
				Help: "Live client connections held by the event relay.",
			},
		)

		relayDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "analyzer_relay_dropped_total",
				Help: "Client connections dropped after a failed or backlogged delivery.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveStage records one handled task.
func ObserveStage(task, outcome string, duration time.Duration) {
	Init()
	stageTasksTotal.WithLabelValues(task, outcome).Inc()
	stageDurationSeconds.WithLabelValues(task).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveFetch counts one fetch attempt.
func ObserveFetch(rawURL, mode, status string) {
	Init()
	fetchesTotal.WithLabelValues(SanitizeSite(rawURL), mode, status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveEventPublished counts one published event.
func ObserveEventPublished(eventType string) {
	Init()
	eventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// ObserveCrawlRun counts one crawl trigger outcome.
func ObserveCrawlRun(outcome string) {
	Init()
	crawlRunsTotal.WithLabelValues(outcome).Inc()
}

// SetRelayConnections publishes the current relay connection count.
func SetRelayConnections(n int) {
	Init()
	relayConnections.Set(float64(n))
}

// IncRelayDropped counts one dropped client connection.
func IncRelayDropped() {
	Init()
	relayDroppedTotal.Inc()
}
