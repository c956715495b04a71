package pipeline

import (
	"context"
	"io"
	"time"
)

// Fetcher renders one URL. Every failure wraps ErrNoContent.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// JobStore persists discovered jobs.
type JobStore interface {
	JobExists(ctx context.Context, id string) (bool, error)
	// InsertJob stores job unless its id exists; inserted is false on conflict.
	InsertJob(ctx context.Context, job Job) (inserted bool, err error)
	GetJob(ctx context.Context, id string) (Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	// CompleteDraft stores the draft and flips status to COMPLETED atomically.
	CompleteDraft(ctx context.Context, id string, draft string) (Job, error)
	RecordGenerationError(ctx context.Context, id string, message string) error
	DeleteAllJobs(ctx context.Context) error
}

// ProfileStore persists the singleton user profile.
type ProfileStore interface {
	GetProfile(ctx context.Context) (Profile, error)
	SaveProfile(ctx context.Context, profile Profile) error
	DeleteProfile(ctx context.Context) error
}

// Store combines job and profile persistence.
type Store interface {
	JobStore
	ProfileStore
	Close()
}

// Delivery is one dequeued envelope awaiting acknowledgement.
type Delivery struct {
	Envelope Envelope
	ack      func(context.Context) error
}

// NewDelivery pairs an envelope with its acknowledgement callback.
func NewDelivery(env Envelope, ack func(context.Context) error) Delivery {
	return Delivery{Envelope: env, ack: ack}
}

// Ack removes the message from the transport.
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Queue is an at-least-once task queue partitioned by routing key.
type Queue interface {
	Enqueue(ctx context.Context, env Envelope) error
	Dequeue(ctx context.Context, queue QueueName) (Delivery, error)
	Close() error
}

// Publisher writes events to the event channel.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Subscription streams raw event payloads until closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Subscriber opens subscriptions on the event channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// CrawlLock guards against overlapping crawl runs. The owner is the run id.
type CrawlLock interface {
	// Acquire sets the lock if free; acquired is false while another run holds it.
	Acquire(ctx context.Context, owner string, ttl time.Duration) (acquired bool, err error)
	// Release clears the lock only if owner still holds it.
	Release(ctx context.Context, owner string) error
	Held(ctx context.Context) (bool, error)
	// MarkCompleted returns true exactly once per owner.
	MarkCompleted(ctx context.Context, owner string, ttl time.Duration) (bool, error)
}

// BlobStore archives raw artifacts such as rendered pages.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
