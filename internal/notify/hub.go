// Package notify pushes task invalidation signals to connected WebSocket
// clients so their views can refetch.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/gurkanbulca/taskassign/internal/models"
)

// EventTasksInvalidated tells clients that cached task views are stale.
const EventTasksInvalidated = "tasks.invalidated"

// Event is the JSON message written to subscribers.
type Event struct {
	Type       string    `json:"type"`
	Action     string    `json:"action"`
	TaskID     string    `json:"task_id"`
	AssigneeID string    `json:"assignee_id"`
	At         time.Time `json:"at"`
}

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

const (
	clientBuffer = 16
	writeWait    = 10 * time.Second
)

// Client is one subscribed connection.
type Client struct {
	ID     string
	UserID string
	Role   models.Role
	Conn   Conn
	// ExpiresAt ends delivery once the client's credential lapses. Zero
	// never expires.
	ExpiresAt time.Time

	send chan []byte
}

// receives reports whether c should see ev: admins see everything,
// employees only their own assignments.
func (c *Client) receives(ev Event) bool {
	return c.Role == models.RoleAdmin || c.UserID == ev.AssigneeID
}

func (c *Client) expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Hub fans events out to clients. All map mutations happen on the Run loop,
// and socket writes happen on one writer goroutine per client, so a stalled
// peer only ever fills its own queue.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	publish    chan Event
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
	now        func() time.Time
	writeWait  time.Duration
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan Event, 256),
		done:       make(chan struct{}),
		logger:     logger,
		now:        time.Now,
		writeWait:  writeWait,
	}
}

// Run processes registrations and events until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("notify hub shutting down", "clients", h.ClientCount())
			h.closeAll()
			close(h.done)
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			h.mu.Unlock()
			go h.writePump(c)
			h.logger.Debug("subscriber registered", "client", c.ID, "user", c.UserID)
		case c := <-h.unregister:
			h.remove(c)
		case ev := <-h.publish:
			h.fanOut(ev)
		}
	}
}

// Wait blocks until Run has returned.
func (h *Hub) Wait() {
	<-h.done
}

// Register adds c. It blocks until Run picks it up or ctx ends.
func (h *Hub) Register(ctx context.Context, c *Client) bool {
	c.send = make(chan []byte, clientBuffer)
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues ev without blocking. Events are dropped when the queue is
// full; clients recover on their next refetch.
func (h *Hub) Publish(ev Event) {
	if ev.Type == "" {
		ev.Type = EventTasksInvalidated
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case h.publish <- ev:
	default:
		h.logger.Warn("notify queue full, dropping event", "action", ev.Action, "task", ev.TaskID)
	}
}

// TaskChanged publishes an invalidation for task after action.
func (h *Hub) TaskChanged(action string, task *models.Task) {
	h.Publish(Event{Action: action, TaskID: task.ID, AssigneeID: task.AssignedTo})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// remove drops c and stops its writer. Run loop only.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.ID]; ok && cur == c {
		delete(h.clients, c.ID)
		close(c.send)
	}
}

func (h *Hub) fanOut(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal notify event", "error", err)
		return
	}

	now := h.now()
	var expired []*Client

	h.mu.RLock()
	for _, c := range h.clients {
		if c.expired(now) {
			expired = append(expired, c)
			continue
		}
		if !c.receives(ev) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("subscriber queue full, dropping event", "client", c.ID, "task", ev.TaskID)
		}
	}
	h.mu.RUnlock()

	for _, c := range expired {
		h.logger.Debug("subscriber session expired", "client", c.ID, "user", c.UserID)
		h.remove(c)
	}
}

// writePump drains c's queue onto the socket. It closes the socket when the
// queue is closed or a write fails, and asks Run to forget c on failure.
func (h *Hub) writePump(c *Client) {
	defer func() { _ = c.Conn.Close() }()

	for data := range c.send {
		_ = c.Conn.SetWriteDeadline(h.now().Add(h.writeWait))
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("notify write failed", "client", c.ID, "error", err)
			_ = c.Conn.Close()
			h.Unregister(c)
			for range c.send {
			}
			return
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		_ = c.Conn.Close()
		delete(h.clients, id)
	}
}
