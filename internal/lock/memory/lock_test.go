package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLockLifecycle(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(clock)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.Acquire(ctx, "run-2", time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "run-2"))
	held, _ := l.Held(ctx)
	assert.True(t, held, "foreign release must not clear the lock")

	require.NoError(t, l.Release(ctx, "run-1"))
	held, _ = l.Held(ctx)
	assert.False(t, held)
}

func TestLockExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(clock)
	ctx := context.Background()

	_, _ = l.Acquire(ctx, "run-1", time.Minute)
	clock.Advance(time.Minute)
	held, _ := l.Held(ctx)
	assert.False(t, held)

	ok, _ := l.Acquire(ctx, "run-2", time.Minute)
	assert.True(t, ok)
}

func TestMarkCompleted(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(clock)
	ctx := context.Background()

	first, _ := l.MarkCompleted(ctx, "run-1", time.Hour)
	second, _ := l.MarkCompleted(ctx, "run-1", time.Hour)
	assert.True(t, first)
	assert.False(t, second)

	clock.Advance(2 * time.Hour)
	again, _ := l.MarkCompleted(ctx, "run-1", time.Hour)
	assert.True(t, again)
}

func TestConcurrentAcquireHasSingleWinner(t *testing.T) {
	t.Parallel()

	l := New(nil)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := l.Acquire(context.Background(), "run", time.Minute)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
