package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskName identifies a pipeline stage on the queue.
type TaskName string

// QueueName is a routing key shared by the web and worker process groups.
type QueueName string

// Task names form the queue contract between process groups.
const (
	TaskFetchLinks          TaskName = "scraper.fetch_links"
	TaskFilterURLs          TaskName = "ai.filter_urls"
	TaskScheduleCrawls      TaskName = "scraper.schedule_crawls"
	TaskScrapeDetail        TaskName = "scraper.scrape_detail"
	TaskAnalyzeJob          TaskName = "ai.analyze_job"
	TaskGenerateApplication TaskName = "ai.generate_application"
)

// Routing keys.
const (
	QueueScraper QueueName = "scraper_queue"
	QueueAI      QueueName = "ai_queue"
)

// EnvelopeVersion is the current wire version of Envelope.
const EnvelopeVersion = 1

var routes = map[TaskName]QueueName{
	TaskFetchLinks:          QueueScraper,
	TaskScheduleCrawls:      QueueScraper,
	TaskScrapeDetail:        QueueScraper,
	TaskFilterURLs:          QueueAI,
	TaskAnalyzeJob:          QueueAI,
	TaskGenerateApplication: QueueAI,
}

// QueueFor returns the routing key of a task.
func QueueFor(task TaskName) (QueueName, bool) {
	q, ok := routes[task]
	return q, ok
}

// Queues lists every routing key.
func Queues() []QueueName {
	return []QueueName{QueueScraper, QueueAI}
}

// FetchLinksRequest is the input of scraper.fetch_links.
type FetchLinksRequest struct {
	URL string `json:"url"`
}

// FilterURLsRequest is the output of fetch_links and the input of ai.filter_urls.
type FilterURLsRequest struct {
	BaseURL string   `json:"base_url"`
	Links   []string `json:"links"`
}

// ScheduleCrawlsRequest is the output of filter_urls and the input of scraper.schedule_crawls.
type ScheduleCrawlsRequest struct {
	Links []string `json:"links"`
}

// ScrapeDetailRequest is the input of scraper.scrape_detail.
type ScrapeDetailRequest struct {
	URL string `json:"url"`
}

// AnalyzeJobRequest is the input of ai.analyze_job.
type AnalyzeJobRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// GenerateApplicationRequest is the input of ai.generate_application.
type GenerateApplicationRequest struct {
	JobID string `json:"job_id"`
}

// ChainLink names a stage that runs after the current one, fed with its result.
type ChainLink struct {
	Task  TaskName  `json:"task"`
	Queue QueueName `json:"queue"`
}

// Envelope is the queue message carrying one stage invocation.
type Envelope struct {
	Version    int             `json:"version"`
	ID         string          `json:"id"`
	Task       TaskName        `json:"task"`
	Queue      QueueName       `json:"queue"`
	RunID      string          `json:"run_id,omitempty"`
	Attempt    int             `json:"attempt"`
	Payload    json.RawMessage `json:"payload"`
	Chain      []ChainLink     `json:"chain,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewEnvelope builds the first attempt of task with payload.
func NewEnvelope(task TaskName, payload any) (Envelope, error) {
	queue, ok := QueueFor(task)
	if !ok {
		return Envelope{}, fmt.Errorf("unknown task %q", task)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", task, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Envelope{}, fmt.Errorf("generate envelope id: %w", err)
	}
	return Envelope{
		Version:    EnvelopeVersion,
		ID:         id.String(),
		Task:       task,
		Queue:      queue,
		Attempt:    1,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Then appends stages to run after this one.
func (e Envelope) Then(tasks ...TaskName) (Envelope, error) {
	chain := append([]ChainLink(nil), e.Chain...)
	for _, task := range tasks {
		queue, ok := QueueFor(task)
		if !ok {
			return Envelope{}, fmt.Errorf("unknown task %q", task)
		}
		chain = append(chain, ChainLink{Task: task, Queue: queue})
	}
	e.Chain = chain
	return e, nil
}

// Decode unmarshals the payload into dst.
func (e Envelope) Decode(dst any) error {
	if e.Version > EnvelopeVersion {
		return Permanent(fmt.Errorf("unsupported envelope version %d", e.Version))
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", e.Task, err))
	}
	return nil
}

// Retry returns the next attempt of the same invocation.
func (e Envelope) Retry() Envelope {
	e.Attempt++
	e.EnqueuedAt = time.Now().UTC()
	return e
}

// Next builds the envelope of the following chain link fed with result.
// ok is false when the chain is exhausted.
func (e Envelope) Next(result any) (Envelope, bool, error) {
	if len(e.Chain) == 0 {
		return Envelope{}, false, nil
	}
	link := e.Chain[0]
	next, err := NewEnvelope(link.Task, result)
	if err != nil {
		return Envelope{}, false, err
	}
	next.Queue = link.Queue
	next.RunID = e.RunID
	next.Chain = append([]ChainLink(nil), e.Chain[1:]...)
	return next, true, nil
}

// Chained reports whether the envelope belongs to a crawl run chain.
func (e Envelope) Chained() bool {
	return e.RunID != ""
}
