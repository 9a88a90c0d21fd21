package racetech

import (
	"io"
	"sync"
	"time"

	"github.com/banshee-data/racelogger/internal/monitoring"
)

// clientWriteTimeout bounds a single broadcast write on clients that
// support deadlines.
const clientWriteTimeout = time.Second

type writeDeadliner interface {
	SetWriteDeadline(time.Time) error
}

// Hub is the set of connected DL1 clients. The acceptor goroutine adds
// clients while the polling loop broadcasts; all access goes through mu.
type Hub struct {
	mu      sync.Mutex
	nextID  uint64
	clients map[uint64]io.WriteCloser
	closed  bool
}

// NewHub returns an empty client set.
func NewHub() *Hub {
	return &Hub{clients: make(map[uint64]io.WriteCloser)}
}

// Add registers a client. Clients added after Close are closed immediately.
func (h *Hub) Add(c io.WriteCloser) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.Close()
		return
	}
	h.nextID++
	h.clients[h.nextID] = c
	h.mu.Unlock()
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast writes p to every client and returns how many received it. A
// client whose write fails is removed and closed; delivery to the others
// continues. Writes happen outside the lock.
func (h *Hub) Broadcast(p []byte) int {
	h.mu.Lock()
	snapshot := make(map[uint64]io.WriteCloser, len(h.clients))
	for id, c := range h.clients {
		snapshot[id] = c
	}
	h.mu.Unlock()

	delivered := 0
	var failed []uint64
	for id, c := range snapshot {
		if d, ok := c.(writeDeadliner); ok {
			_ = d.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
		}
		if _, err := c.Write(p); err != nil {
			monitoring.Logf("DL1 client %d dropped: %v", id, err)
			failed = append(failed, id)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, id := range failed {
			if c, ok := h.clients[id]; ok {
				delete(h.clients, id)
				c.Close()
			}
		}
		h.mu.Unlock()
	}
	return delivered
}

// Close disconnects every client. Later Adds are rejected.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
	return nil
}
