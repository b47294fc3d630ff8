// Package hub fans run progress out to WebSocket subscribers.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

const sendBuffer = 256

// Connection is one subscriber to a run.
type Connection struct {
	ID    string
	RunID string
	Conn  *websocket.Conn
	Send  chan []byte
	mu    sync.Mutex
}

// Hub manages subscriber connections, grouped by run.
type Hub struct {
	connections map[string]*Connection
	// runs maps run_id to the ids of its subscribers
	runs map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *runMessage
	done       chan struct{}

	mu sync.RWMutex
}

type runMessage struct {
	runID string
	data  []byte
}

// New creates a Hub. Call Run to start it.
func New() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		runs:        make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *runMessage, sendBuffer),
		done:        make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done, then
// closes every remaining connection's send channel.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conn := range h.connections {
				close(conn.Send)
				delete(h.connections, id)
			}
			h.runs = make(map[string]map[string]bool)
			h.mu.Unlock()
			close(h.done)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.runs[conn.RunID] == nil {
				h.runs[conn.RunID] = make(map[string]bool)
			}
			h.runs[conn.RunID][conn.ID] = true
			h.mu.Unlock()
			log.Printf("INFO: stream connection registered: %s (run: %s)", conn.ID, conn.RunID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				if subs := h.runs[conn.RunID]; subs != nil {
					delete(subs, conn.ID)
					if len(subs) == 0 {
						delete(h.runs, conn.RunID)
					}
				}
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Printf("INFO: stream connection unregistered: %s", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.runs[msg.runID] {
				conn := h.connections[connID]
				select {
				case conn.Send <- msg.data:
				default:
					log.Printf("WARN: stream connection %s buffer full, closing", connID)
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a connection subscribed to runID. ws may be nil
// for in-process subscribers.
func (h *Hub) NewConnection(ws *websocket.Conn, runID string) *Connection {
	return &Connection{
		ID:    uuid.New().String(),
		RunID: runID,
		Conn:  ws,
		Send:  make(chan []byte, sendBuffer),
	}
}

// Register adds a connection to the hub. On a stopped hub the
// connection's send channel is closed immediately.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister removes a connection and closes its send channel.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Broadcast queues data for every subscriber of runID. It is dropped once
// the hub has stopped.
func (h *Hub) Broadcast(runID string, data []byte) {
	select {
	case h.broadcast <- &runMessage{runID: runID, data: data}:
	case <-h.done:
	}
}

// BroadcastJSON marshals v and broadcasts it to runID.
func (h *Hub) BroadcastJSON(runID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(runID, data)
	return nil
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasSubscribers reports whether runID has any registered connection.
func (h *Hub) HasSubscribers(runID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.runs[runID]) > 0
}

// WriteMessage writes to the underlying socket with locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the socket write deadline.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	if c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}
