package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/chat"
	"github.com/Vasu1712/scenyx-chat/internal/presence"
	"github.com/gorilla/websocket"
)

const lastSeenTimeout = 2 * time.Second

// LastSeenRecorder stores the time a user went offline.
type LastSeenRecorder interface {
	MarkOffline(ctx context.Context, userID string, at time.Time) error
}

// Hub tracks every live client and keeps the presence registry in step with them.
// Presence changes are serialized so each client's latest onlineUsers frame
// reflects the current registry. Storage calls run outside the lock.
type Hub struct {
	registry *presence.Registry
	lastSeen LastSeenRecorder

	mu      sync.Mutex
	clients map[string]*Client // client id -> client
}

// NewHub builds a hub over registry. lastSeen may be nil.
func NewHub(registry *presence.Registry, lastSeen LastSeenRecorder) *Hub {
	return &Hub{
		registry: registry,
		lastSeen: lastSeen,
		clients:  make(map[string]*Client),
	}
}

// Register adds c to the live set, binds its user if any, and broadcasts presence.
// A client displaced for the same user is closed.
func (h *Hub) Register(c *Client) {
	var displaced *Client

	h.mu.Lock()
	h.clients[c.ID()] = c
	if c.UserID != "" {
		if prev := h.registry.Register(c.UserID, c); prev != nil {
			if old, ok := prev.(*Client); ok {
				delete(h.clients, old.ID())
				displaced = old
			}
		}
	}
	h.broadcastLocked(chat.EventOnlineUsers, h.registry.Snapshot())
	h.mu.Unlock()

	if displaced != nil {
		slog.Info("session replaced", "user_id", c.UserID, "client_id", c.ID())
		displaced.Close(CloseSessionReplaced, "session replaced")
	}
}

// Unregister removes c. Presence is rebroadcast only if c was its user's current client.
// The last-seen write happens after the hub lock is released.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID())
	removed := c.UserID != "" && h.registry.UnregisterHandle(c.UserID, c)
	if removed {
		h.broadcastLocked(chat.EventOnlineUsers, h.registry.Snapshot())
	}
	h.mu.Unlock()

	if removed {
		h.recordLastSeen(c.UserID)
	}
}

// Disconnect drops userID from presence and closes its live client, if any.
// It reports whether the user was online.
func (h *Hub) Disconnect(userID string) bool {
	h.mu.Lock()
	prev, ok := h.registry.Lookup(userID)
	if !ok {
		h.mu.Unlock()
		return false
	}
	h.registry.Unregister(userID)
	client, _ := prev.(*Client)
	if client != nil {
		delete(h.clients, client.ID())
	}
	h.broadcastLocked(chat.EventOnlineUsers, h.registry.Snapshot())
	h.mu.Unlock()

	if client != nil {
		client.Close(websocket.ClosePolicyViolation, "account removed")
	}
	slog.Info("user disconnected", "user_id", userID)
	return true
}

func (h *Hub) recordLastSeen(userID string) {
	if h.lastSeen == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), lastSeenTimeout)
	defer cancel()
	if err := h.lastSeen.MarkOffline(ctx, userID, time.Now()); err != nil {
		slog.Warn("record last seen", "user_id", userID, "err", err)
	}
}

// Broadcast sends event to every live client, anonymous ones included.
func (h *Hub) Broadcast(event string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(event, data)
}

func (h *Hub) broadcastLocked(event string, data any) {
	payload, err := json.Marshal(outFrame{Event: event, Data: data})
	if err != nil {
		slog.Error("encode broadcast", "event", event, "err", err)
		return
	}
	for _, c := range h.clients {
		if err := c.Send(payload); err != nil {
			slog.Debug("broadcast skipped client", "client_id", c.ID(), "err", err)
		}
	}
}

// Len reports the number of live clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
