package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCrawlURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw string
		ok  bool
	}{
		{"https://example.com/careers", true},
		{"http://example.com", true},
		{"  https://example.com/jobs  ", true},
		{"example.com/careers", false},
		{"/careers", false},
		{"ftp://example.com", false},
		{"https://", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			_, err := ParseCrawlURL(tt.raw)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

func TestJobIDIsStable(t *testing.T) {
	t.Parallel()

	a := JobID("https://example.com/jobs/1")
	b := JobID("https://example.com/jobs/1")
	c := JobID("https://example.com/jobs/2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	// uuid5(NAMESPACE_URL, "https://example.com")
	assert.Equal(t, "4fd35a71-71ef-5a55-a9d9-aa75c889a6d0", JobID("https://example.com"))
}

func TestTruncateIsRuneSafe(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Grü", Truncate("Grüße", 3))
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "keep", Truncate("keep", 0))
}

func TestEventEncodingShapes(t *testing.T) {
	t.Parallel()

	data, err := CrawlCompleted().Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"crawl_completed"}`, string(data))

	data, err = CrawlStarted("https://example.com").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"crawl_started","url":"https://example.com"}`, string(data))

	data, err = JobUpdate("job-1", JobStatusCompleted, "# Draft").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"job_update","job_id":"job-1","status":"COMPLETED","application_draft":"# Draft"}`, string(data))

	data, err = GlobalError("boom").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"global_error","message":"boom"}`, string(data))

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err = NewJob(Job{ID: "id", Title: "Go Dev", Status: JobStatusOpen, CreatedAt: created}).Encode()
	require.NoError(t, err)
	evt, err := DecodeEvent(data)
	require.NoError(t, err)
	require.NotNil(t, evt.Job)
	assert.Equal(t, EventNewJob, evt.Type)
	assert.Equal(t, "Go Dev", evt.Job.Title)
	assert.Equal(t, created, evt.Job.CreatedAt)
}

func TestEnvelopeChain(t *testing.T) {
	t.Parallel()

	env, err := NewEnvelope(TaskFetchLinks, FetchLinksRequest{URL: "https://example.com"})
	require.NoError(t, err)
	env.RunID = "run-1"
	env, err = env.Then(TaskFilterURLs, TaskScheduleCrawls)
	require.NoError(t, err)
	assert.Equal(t, QueueScraper, env.Queue)
	assert.Equal(t, 1, env.Attempt)

	next, ok, err := env.Next(FilterURLsRequest{BaseURL: "https://example.com", Links: []string{"https://example.com/a"}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TaskFilterURLs, next.Task)
	assert.Equal(t, QueueAI, next.Queue)
	assert.Equal(t, "run-1", next.RunID)
	require.Len(t, next.Chain, 1)

	var req FilterURLsRequest
	require.NoError(t, next.Decode(&req))
	assert.Equal(t, []string{"https://example.com/a"}, req.Links)

	last, ok, err := next.Next(ScheduleCrawlsRequest{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TaskScheduleCrawls, last.Task)
	_, ok, err = last.Next(nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnvelopeDecodeRejectsFutureVersion(t *testing.T) {
	t.Parallel()

	env := Envelope{Version: EnvelopeVersion + 1, Task: TaskScrapeDetail, Payload: json.RawMessage(`{}`)}
	err := env.Decode(&ScrapeDetailRequest{})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	_, err = NewEnvelope("unknown.task", nil)
	require.Error(t, err)
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, 10*time.Millisecond, 40*time.Millisecond)
	transient := errors.New("transient")

	assert.True(t, p.ShouldRetry(transient, 1))
	assert.True(t, p.ShouldRetry(transient, 2))
	assert.False(t, p.ShouldRetry(transient, 3))
	assert.False(t, p.ShouldRetry(nil, 1))
	assert.False(t, p.ShouldRetry(Permanent(transient), 1))
	assert.False(t, p.ShouldRetry(fmt.Errorf("wrapped: %w", context.Canceled), 1))
	assert.False(t, p.Final(2))
	assert.True(t, p.Final(3))

	for attempt := 1; attempt <= 5; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 40*time.Millisecond)
	}
}

func TestCVFormatSections(t *testing.T) {
	t.Parallel()

	cv := CVData{
		Education:  "BSc Computer Science",
		Experience: []Experience{{Company: "Acme", Role: "Engineer", Duration: "2020-2023", Description: "Built APIs"}},
		Projects:   []Project{{Name: "crawler", TechStack: "Go", Description: "Distributed crawler"}},
	}
	out := cv.Format()
	assert.Contains(t, out, "PROFESSIONAL EXPERIENCE:\n- Engineer at Acme (2020-2023): Built APIs")
	assert.Contains(t, out, "PROJECTS:\n- crawler (Tech: Go): Distributed crawler")
	assert.Contains(t, out, "EDUCATION:\nBSc Computer Science")
	assert.Less(t, strings.Index(out, "PROFESSIONAL"), strings.Index(out, "PROJECTS"))
	assert.Less(t, strings.Index(out, "PROJECTS"), strings.Index(out, "EDUCATION"))
	assert.Empty(t, CVData{}.Format())
}
