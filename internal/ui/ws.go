package ui

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// clientQueueDepth is the per-client send buffer. A client that cannot
	// drain this many notifications is considered dead and dropped —
	// the voice loop must never block on a slow front-end.
	clientQueueDepth = 64

	writeTimeout = 5 * time.Second
)

// Hub is a WebSocket broadcast [Sink]. Every notification is JSON-encoded
// and pushed to all connected front-end clients in order.
//
// Hub is safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	send chan []byte
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Notify implements [Sink]. It never blocks: slow clients are disconnected
// rather than stalling the voice pipeline.
func (h *Hub) Notify(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.seq++
	n.Seq = h.seq
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	data, err := json.Marshal(n)
	if err != nil {
		slog.Error("marshal notification", "err", err)
		return
	}

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("dropping slow UI client")
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams notifications
// until the client disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "err", err)
		return
	}

	c := &client{send: make(chan []byte, clientQueueDepth)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			close(c.send)
			delete(h.clients, c)
		}
		h.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	// The client never sends application data; CloseRead surfaces the
	// disconnect through ctx.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Close disconnects all clients. Subsequent Notify calls are no-ops.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	return nil
}

var _ Sink = (*Hub)(nil)
