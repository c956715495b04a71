package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
	pubmemory "github.com/code-by-fh/ai-job-analyzer/internal/publisher/memory"
)

type recordingWriter struct {
	mu     sync.Mutex
	frames []string
	err    error
	block  chan struct{}
	closed bool
}

func (w *recordingWriter) WriteText(data []byte) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.frames = append(w.frames, string(data))
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) snapshot() ([]string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.frames...), w.closed
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(4, zap.NewNop())
	a, b := &recordingWriter{}, &recordingWriter{}
	reg.Add(a)
	reg.Add(b)
	require.Equal(t, 2, reg.Len())

	reg.Broadcast([]byte(`{"type":"crawl_started"}`))
	reg.Broadcast([]byte(`{"type":"crawl_completed"}`))

	for _, w := range []*recordingWriter{a, b} {
		require.Eventually(t, func() bool {
			frames, _ := w.snapshot()
			return len(frames) == 2
		}, time.Second, 5*time.Millisecond)
		frames, _ := w.snapshot()
		assert.Equal(t, []string{`{"type":"crawl_started"}`, `{"type":"crawl_completed"}`}, frames)
	}
}

func TestFailedWriteRemovesOnlyThatClient(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(4, zap.NewNop())
	good := &recordingWriter{}
	bad := &recordingWriter{err: errors.New("broken pipe")}
	reg.Add(good)
	badClient := reg.Add(bad)

	reg.Broadcast([]byte("x"))

	select {
	case <-badClient.Done():
	case <-time.After(time.Second):
		t.Fatal("failed client was not removed")
	}
	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 5*time.Millisecond)
	_, closed := bad.snapshot()
	assert.True(t, closed)

	reg.Broadcast([]byte("y"))
	require.Eventually(t, func() bool {
		frames, _ := good.snapshot()
		return len(frames) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBacklogDropsSlowClientWithoutBlocking(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(1, zap.NewNop())
	slow := &recordingWriter{block: make(chan struct{})}
	defer close(slow.block)
	client := reg.Add(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			reg.Broadcast([]byte("evt"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("slow client was not dropped")
	}
	assert.Zero(t, reg.Len())
}

func TestRemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(0, nil)
	c := reg.Add(&recordingWriter{})
	reg.Remove(c)
	reg.Remove(c)
	assert.Zero(t, reg.Len())

	reg.Add(&recordingWriter{})
	reg.Close()
	assert.Zero(t, reg.Len())
}

func TestRelayForwardsPublishedEvents(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	reg := NewRegistry(8, zap.NewNop())
	w := &recordingWriter{}
	reg.Add(w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = New(pub, reg, zap.NewNop()).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_ = pub.Publish(context.Background(), pipeline.CrawlCompleted())
		frames, _ := w.snapshot()
		return len(frames) > 0
	}, 2*time.Second, 20*time.Millisecond)
	frames, _ := w.snapshot()
	assert.JSONEq(t, `{"type":"crawl_completed"}`, frames[0])

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func dial(t *testing.T, url string) (net.Conn, io.ReadWriter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, br, _, err := ws.Dial(ctx, url)
	require.NoError(t, err)
	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	return conn, struct {
		io.Reader
		io.Writer
	}{r, conn}
}

func TestWebSocketHandlerStreamsFrames(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(8, zap.NewNop())
	srv := httptest.NewServer(Handler(reg, zap.NewNop()))
	defer srv.Close()

	conn, rw := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	defer conn.Close()

	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 5*time.Millisecond)
	reg.Broadcast([]byte(`{"type":"global_error","message":"boom"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	data, err := wsutil.ReadServerText(rw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"global_error","message":"boom"}`, string(data))

	require.NoError(t, ws.WriteFrame(conn, ws.MaskFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))))
	require.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
