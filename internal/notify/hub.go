package notify

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// reloadMessage is the only server-to-client message. Its content is
// opaque to the client script, which reloads on any frame.
var reloadMessage = []byte("reload")

// Hub owns the set of connected viewers and fans reload signals out to
// them. Delivery is best-effort, at most once: a connection whose write
// fails is dropped, and a viewer that misses a signal reconciles on its
// next full page load.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*websocket.Conn
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*websocket.Conn)}
}

// Register adds a viewer connection and returns its handle. No initial
// message is sent; the viewer already holds freshly rendered content
// from the page load that opened the socket.
func (h *Hub) Register(conn *websocket.Conn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.clients[id] = conn
	h.mu.Unlock()
	log.Printf("HUB: viewer %s connected (%d active)", id[:8], h.Len())
	return id
}

// Unregister removes and closes a viewer connection. Safe to call for
// an already-removed handle.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	conn, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if ok {
		conn.Close()
		log.Printf("HUB: viewer %s disconnected (%d active)", id[:8], h.Len())
	}
}

// Broadcast sends one reload signal to every registered viewer. A
// failed write drops that viewer silently; everyone else still gets
// the signal.
func (h *Hub) Broadcast() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, reloadMessage); err != nil {
			conn.Close()
			delete(h.clients, id)
			log.Printf("HUB: dropping viewer %s: %v", id[:8], err)
		}
	}
}

// Len returns the number of registered viewers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run consumes change notifications and broadcasts a reload for each
// until ctx is done. Notifications for distinct paths are not
// distinguished; every change means "refetch the page you are viewing".
func (h *Hub) Run(ctx context.Context, changes <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case rel, ok := <-changes:
			if !ok {
				return
			}
			log.Printf("HUB: change in %s, notifying %d viewer(s)", rel, h.Len())
			h.Broadcast()
		}
	}
}

// Close drops every registered viewer. Called on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.clients {
		conn.Close()
		delete(h.clients, id)
	}
}
