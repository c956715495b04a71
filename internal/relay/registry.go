// Package relay fans pipeline events out to live client connections.
package relay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/code-by-fh/ai-job-analyzer/internal/metrics"
)

// DefaultOutbox is the per-connection backlog before a slow client is dropped.
const DefaultOutbox = 32

// FrameWriter delivers one text frame to a client.
type FrameWriter interface {
	WriteText(data []byte) error
	Close() error
}

// Client is one registered connection.
type Client struct {
	registry *Registry
	writer   FrameWriter
	outbox   chan []byte
	done     chan struct{}
	once     sync.Once
}

// Done is closed once the client has been removed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) run() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.outbox:
			if err := c.writer.WriteText(msg); err != nil {
				c.registry.logger.Debug("client write failed", zap.Error(err))
				c.registry.drop(c)
				return
			}
		}
	}
}

// Registry is the concurrency-safe set of live connections.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	outbox  int
	logger  *zap.Logger
}

// NewRegistry builds a Registry; a non-positive outbox uses DefaultOutbox.
func NewRegistry(outbox int, logger *zap.Logger) *Registry {
	if outbox <= 0 {
		outbox = DefaultOutbox
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		clients: make(map[*Client]struct{}),
		outbox:  outbox,
		logger:  logger,
	}
}

// Add registers w and starts its writer goroutine.
func (r *Registry) Add(w FrameWriter) *Client {
	c := &Client{
		registry: r,
		writer:   w,
		outbox:   make(chan []byte, r.outbox),
		done:     make(chan struct{}),
	}
	r.mu.Lock()
	r.clients[c] = struct{}{}
	n := len(r.clients)
	r.mu.Unlock()
	metrics.SetRelayConnections(n)
	go c.run()
	return c
}

// Remove unregisters c and closes its connection.
func (r *Registry) Remove(c *Client) {
	r.remove(c)
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast queues data for every client without blocking. Clients whose
// outbox is full are dropped.
func (r *Registry) Broadcast(data []byte) {
	r.mu.RLock()
	var slow []*Client
	for c := range r.clients {
		select {
		case c.outbox <- data:
		default:
			slow = append(slow, c)
		}
	}
	r.mu.RUnlock()
	for _, c := range slow {
		r.logger.Warn("dropping backlogged client")
		r.drop(c)
	}
}

// Close removes every client.
func (r *Registry) Close() {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()
	for _, c := range clients {
		r.remove(c)
	}
}

func (r *Registry) drop(c *Client) {
	if r.remove(c) {
		metrics.IncRelayDropped()
	}
}

func (r *Registry) remove(c *Client) bool {
	r.mu.Lock()
	_, ok := r.clients[c]
	delete(r.clients, c)
	n := len(r.clients)
	r.mu.Unlock()
	if !ok {
		return false
	}
	metrics.SetRelayConnections(n)
	c.once.Do(func() {
		close(c.done)
		_ = c.writer.Close()
	})
	return true
}
