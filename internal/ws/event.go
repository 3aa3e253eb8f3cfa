package ws

import (
	"encoding/json"

	"github.com/google/uuid"
)

const (
	EventSnapshot      = "snapshot"
	EventLocation      = "location"
	EventMemberJoined  = "member_joined"
	EventMemberLeft    = "member_left"
	EventMemberRemoved = "member_removed"
	EventOwnerChanged  = "owner_changed"
	EventStarted       = "convoy_started"
	EventEnded         = "convoy_ended"
	EventUpdated       = "convoy_updated"
	EventDeleted       = "convoy_deleted"
	EventError         = "error"
)

// Event is the envelope sent to room clients and carried over the bus.
type Event struct {
	Type     string          `json:"type"`
	ConvoyID uuid.UUID       `json:"convoy_id"`
	UserID   uint            `json:"user_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func NewEvent(typ string, convoyID uuid.UUID, userID uint, data interface{}) (Event, error) {
	ev := Event{Type: typ, ConvoyID: convoyID, UserID: userID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		ev.Data = raw
	}
	return ev, nil
}

// SendEvent queues ev for this client only.
func (c *Client) SendEvent(ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.offer(raw)
	return nil
}

// Deliver applies an event to the local rooms.
func (h *Hub) Deliver(ev Event) {
	h.BroadcastToConvoy(ev.ConvoyID, ev)
	switch ev.Type {
	case EventMemberLeft, EventMemberRemoved:
		h.DisconnectUser(ev.ConvoyID, ev.UserID)
	case EventDeleted:
		h.CloseRoom(ev.ConvoyID)
	}
}
