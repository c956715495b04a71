// Package memory implements the crawl lock in process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

type entry struct {
	owner   string
	expires time.Time
}

// Lock mirrors the Redis lock semantics for single-process deployments.
type Lock struct {
	clock pipeline.Clock

	mu        sync.Mutex
	held      *entry
	completed map[string]time.Time
}

// New returns a Lock; a nil clock uses the system clock.
func New(clock pipeline.Clock) *Lock {
	if clock == nil {
		clock = pipeline.SystemClock{}
	}
	return &Lock{clock: clock, completed: make(map[string]time.Time)}
}

func (l *Lock) current(now time.Time) *entry {
	if l.held != nil && !now.Before(l.held.expires) {
		l.held = nil
	}
	return l.held
}

// Acquire sets the lock if free or expired.
func (l *Lock) Acquire(_ context.Context, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if l.current(now) != nil {
		return false, nil
	}
	l.held = &entry{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

// Release clears the lock if owner holds it.
func (l *Lock) Release(_ context.Context, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e := l.current(l.clock.Now()); e != nil && e.owner == owner {
		l.held = nil
	}
	return nil
}

// Held reports whether an unexpired lock exists.
func (l *Lock) Held(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current(l.clock.Now()) != nil, nil
}

// MarkCompleted returns true the first time it sees owner within ttl.
func (l *Lock) MarkCompleted(_ context.Context, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	for id, exp := range l.completed {
		if !now.Before(exp) {
			delete(l.completed, id)
		}
	}
	if _, ok := l.completed[owner]; ok {
		return false, nil
	}
	l.completed[owner] = now.Add(ttl)
	return true, nil
}

var _ pipeline.CrawlLock = (*Lock)(nil)
