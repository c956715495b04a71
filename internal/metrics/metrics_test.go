package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if stageTasksTotal == nil || eventsPublishedTotal == nil || relayConnections == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveStage(t *testing.T) {
	ObserveStage("ai.analyze_job", OutcomeSucceeded, 20*time.Millisecond)
	ObserveStage("ai.analyze_job", OutcomeSucceeded, 30*time.Millisecond)
	ObserveStage("ai.analyze_job", OutcomeFailed, time.Millisecond)

	if val := testutil.ToFloat64(stageTasksTotal.WithLabelValues("ai.analyze_job", OutcomeSucceeded)); val != 2 {
		t.Errorf("expected 2 succeeded analyze tasks, got %f", val)
	}
	if val := testutil.ToFloat64(stageTasksTotal.WithLabelValues("ai.analyze_job", OutcomeFailed)); val != 1 {
		t.Errorf("expected 1 failed analyze task, got %f", val)
	}
}

func TestRelayGaugeAndEvents(t *testing.T) {
	SetRelayConnections(3)
	if val := testutil.ToFloat64(relayConnections); val != 3 {
		t.Errorf("expected 3 relay connections, got %f", val)
	}
	before := testutil.ToFloat64(eventsPublishedTotal.WithLabelValues("crawl_started"))
	ObserveEventPublished("crawl_started")
	if val := testutil.ToFloat64(eventsPublishedTotal.WithLabelValues("crawl_started")); val != before+1 {
		t.Errorf("expected crawl_started count to grow by one, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
