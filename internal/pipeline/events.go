package pipeline

import (
	"encoding/json"
	"fmt"
)

// EventType names a PipelineEvent variant.
type EventType string

// Event variants broadcast on the event channel.
const (
	EventCrawlStarted   EventType = "crawl_started"
	EventCrawlCompleted EventType = "crawl_completed"
	EventNewJob         EventType = "new_job"
	EventJobUpdate      EventType = "job_update"
	EventGlobalError    EventType = "global_error"
)

// Event is a transient pipeline notification. Only the fields of the
// variant named by Type are populated.
type Event struct {
	Type             EventType `json:"type"`
	URL              string    `json:"url,omitempty"`
	Job              *Job      `json:"job,omitempty"`
	JobID            string    `json:"job_id,omitempty"`
	Status           JobStatus `json:"status,omitempty"`
	ApplicationDraft *string   `json:"application_draft,omitempty"`
	Message          string    `json:"message,omitempty"`
}

// CrawlStarted announces a new run for url.
func CrawlStarted(url string) Event {
	return Event{Type: EventCrawlStarted, URL: url}
}

// CrawlCompleted terminates a run.
func CrawlCompleted() Event {
	return Event{Type: EventCrawlCompleted}
}

// NewJob carries a freshly stored job record.
func NewJob(job Job) Event {
	return Event{Type: EventNewJob, Job: &job}
}

// JobUpdate reports a status change and the generated draft.
func JobUpdate(jobID string, status JobStatus, draft string) Event {
	return Event{Type: EventJobUpdate, JobID: jobID, Status: status, ApplicationDraft: &draft}
}

// GlobalError surfaces a user-facing failure.
func GlobalError(message string) Event {
	return Event{Type: EventGlobalError, Message: message}
}

// Encode serializes the event for the wire.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses a wire payload.
func DecodeEvent(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if evt.Type == "" {
		return Event{}, fmt.Errorf("event type is required")
	}
	return evt, nil
}
