package pipeline

import "errors"

var (
	// ErrNoContent is returned by fetchers for every failed fetch.
	ErrNoContent = errors.New("no content")
	// ErrNotFound reports a missing job or profile.
	ErrNotFound = errors.New("not found")
	// ErrInvalidURL rejects crawl targets that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("url must be an absolute http(s) url")
	// ErrBlockedHost rejects crawl targets on a blocked domain.
	ErrBlockedHost = errors.New("host is blocked")
	// ErrCrawlInProgress is returned while another run holds the crawl lock.
	ErrCrawlInProgress = errors.New("crawl already in progress")
	// ErrQueueClosed is returned by Dequeue after the queue shut down.
	ErrQueueClosed = errors.New("queue closed")
)

// PermanentError marks a task failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the worker skips its retry budget.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
