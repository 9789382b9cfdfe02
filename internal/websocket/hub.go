package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

const EntityItem = "item"

// Item event actions. Clients receive Type "item_<action>".
const (
	ActionListed   = "listed"
	ActionRedeemed = "redeemed"
	ActionApproved = "approved"
	ActionRejected = "rejected"
	ActionPending  = "pending"
)

// Message is one frame pushed to clients.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub tracks live connections grouped by user. Delivery never blocks: a
// client whose buffer is full misses the frame.
type Hub struct {
	mu     sync.RWMutex
	byUser map[int64]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		byUser: make(map[int64]map[*Client]struct{}),
		logger: logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.byUser[c.userID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.byUser[c.userID] = conns
	}
	conns[c] = struct{}{}
}

// Unregister removes c and closes its send channel. Repeat calls are no-ops.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.byUser[c.userID]
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.byUser, c.userID)
	}
	close(c.send)
}

// Broadcast sends msg to every connection.
func (h *Hub) Broadcast(msg Message) {
	h.fanOut(msg, func(int64, *Client) bool { return true })
}

// Notify sends msg to every open connection of one user.
func (h *Hub) Notify(userID int64, msg Message) {
	data, ok := h.encode(msg)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byUser[userID] {
		c.deliver(msg.Type, data)
	}
}

// NotifyAdmins sends msg to every admin connection.
func (h *Hub) NotifyAdmins(msg Message) {
	h.fanOut(msg, func(_ int64, c *Client) bool { return c.isAdmin })
}

func (h *Hub) fanOut(msg Message, match func(int64, *Client) bool) {
	data, ok := h.encode(msg)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for userID, conns := range h.byUser {
		for c := range conns {
			if match(userID, c) {
				c.deliver(msg.Type, data)
			}
		}
	}
}

func (h *Hub) encode(msg Message) ([]byte, bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", "type", msg.Type, "error", err)
		return nil, false
	}
	return data, true
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, conns := range h.byUser {
		n += len(conns)
	}
	return n
}
