package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a change notification sent to the clients watching a list.
type Message struct {
	Type   string `json:"type"`
	ListID string `json:"listId"`
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(listID, entity, action, id string) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		ListID: listID,
		Entity: entity,
		Action: action,
		ID:     id,
	}
}

// Hub tracks connected clients per list and fans messages out to them.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger.With("component", "websocket"),
	}
}

// Register adds a client to its list's room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.listID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.listID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.listID]; ok {
		if _, ok := room[c]; ok {
			delete(room, c)
			close(c.send)
		}
		if len(room) == 0 {
			delete(h.rooms, c.listID)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every client watching msg.ListID. Clients whose
// buffer is full miss the message.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[msg.ListID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropped message for slow client", "list_id", msg.ListID, "user_id", c.userID)
		}
	}
}

// Notify broadcasts a committed change of a list.
func (h *Hub) Notify(listID, entity, action, id string) {
	h.logger.Debug("notify", "list_id", listID, "entity", entity, "action", action,
		"clients", h.ListClientCount(listID))
	h.Broadcast(NewMessage(listID, entity, action, id))
}

// ClientCount returns the number of connected clients across all lists.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// ListClientCount returns the number of clients watching listID.
func (h *Hub) ListClientCount(listID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[listID])
}
