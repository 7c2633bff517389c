package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/anjiri1684/attendance_chat/protocol"
	"github.com/google/uuid"
)

// Client is one live transport session. A principal may hold several
// (one per open tab or device); each has its own outbound queue drained by
// the connection's write loop.
type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	JoinedAt time.Time

	send      chan []byte
	closeOnce sync.Once
}

func NewClient(userID uuid.UUID, buffer int) *Client {
	return &Client{
		ID:       uuid.New(),
		UserID:   userID,
		JoinedAt: time.Now(),
		send:     make(chan []byte, buffer),
	}
}

// Outbound is closed once the session is unregistered.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub is the presence registry: principal id -> live sessions.
// Sessions are kept in memory only and vanish with the process.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[uuid.UUID]*Client
	handles  map[uuid.UUID]*Client
	log      *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[uuid.UUID]*Client),
		handles:  make(map[uuid.UUID]*Client),
		log:      log,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[client.UserID]; !ok {
		h.sessions[client.UserID] = make(map[uuid.UUID]*Client)
	}
	h.sessions[client.UserID][client.ID] = client
	h.handles[client.ID] = client
	h.log.Info("client registered", "user_id", client.UserID, "session_id", client.ID,
		"sessions", len(h.sessions[client.UserID]))
}

// Unregister removes the session and closes its outbound queue. Unknown
// handles are ignored so disconnect paths can call it more than once.
func (h *Hub) Unregister(handle uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.handles[handle]
	if !ok {
		return
	}
	delete(h.handles, handle)
	if conns, ok := h.sessions[client.UserID]; ok {
		delete(conns, handle)
		if len(conns) == 0 {
			delete(h.sessions, client.UserID)
		}
	}
	client.close()
	h.log.Info("client unregistered", "user_id", client.UserID, "session_id", handle)
}

func (h *Hub) SessionsFor(userID uuid.UUID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	handles := make([]uuid.UUID, 0, len(h.sessions[userID]))
	for handle := range h.sessions[userID] {
		handles = append(handles, handle)
	}
	return handles
}

func (h *Hub) Online(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// Emit queues one event for every session of userID and returns how many
// sessions accepted it. A session whose queue is full misses the event;
// it catches up from history on its next fetch.
func (h *Hub) Emit(userID uuid.UUID, event string, payload any) int {
	frame, err := protocol.Encode(event, 0, payload)
	if err != nil {
		h.log.Error("encode push event", "event", event, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for handle, client := range h.sessions[userID] {
		select {
		case client.send <- frame:
			delivered++
		default:
			h.log.Warn("session queue full, dropping event", "user_id", userID, "session_id", handle, "event", event)
		}
	}
	return delivered
}

// Reply queues a frame for a single session, used for acknowledgements.
func (h *Hub) Reply(handle uuid.UUID, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.handles[handle]
	if !ok {
		return false
	}
	select {
	case client.send <- frame:
		return true
	default:
		h.log.Warn("session queue full, dropping reply", "session_id", handle)
		return false
	}
}
