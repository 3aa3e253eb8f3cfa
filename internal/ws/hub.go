package ws

import (
	"encoding/json"
	"sync"

	"convoyhub/internal/metrics"

	"github.com/google/uuid"
)

// Client is one websocket connection subscribed to a convoy room.
type Client struct {
	UserID   uint
	ConvoyID uuid.UUID
	Send     chan []byte
	hub      *Hub
	mu       sync.Mutex
	closed   bool
}

func NewClient(userID uint, convoyID uuid.UUID) *Client {
	return &Client{UserID: userID, ConvoyID: convoyID, Send: make(chan []byte, 256)}
}

// Close leaves the room and closes Send; safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
	if c.hub != nil {
		c.hub.unregister(c)
	}
}

func (c *Client) offer(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		// slow consumer; drop rather than block the room
	}
}

// Hub keeps one room of clients per convoy.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[uuid.UUID]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.hub = h
	room := h.rooms[c.ConvoyID]
	if room == nil {
		room = make(map[*Client]struct{})
		h.rooms[c.ConvoyID] = room
	}
	room[c] = struct{}{}
	metrics.WSConnected()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[c.ConvoyID]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.ConvoyID)
	}
	metrics.WSDisconnected()
}

func (h *Hub) snapshot(convoyID uuid.UUID, match func(*Client) bool) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[convoyID]
	clients := make([]*Client, 0, len(room))
	for c := range room {
		if match == nil || match(c) {
			clients = append(clients, c)
		}
	}
	return clients
}

// BroadcastToConvoy sends payload to every client in the convoy's room.
func (h *Hub) BroadcastToConvoy(convoyID uuid.UUID, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	for _, c := range h.snapshot(convoyID, nil) {
		c.offer(data)
	}
}

// DisconnectUser closes userID's connections to the convoy, used after the
// user leaves or is removed.
func (h *Hub) DisconnectUser(convoyID uuid.UUID, userID uint) {
	for _, c := range h.snapshot(convoyID, func(c *Client) bool { return c.UserID == userID }) {
		c.Close()
	}
}

// CloseRoom disconnects everyone from the convoy.
func (h *Hub) CloseRoom(convoyID uuid.UUID) {
	for _, c := range h.snapshot(convoyID, nil) {
		c.Close()
	}
}

func (h *Hub) RoomSize(convoyID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[convoyID])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}
