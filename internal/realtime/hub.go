package realtime

import (
	"sync"

	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
)

// Hub tracks live clients and fans outbound events to them. It implements
// ports.Broadcaster for the services and ports.MembershipObserver for the
// registry, so roster changes reach every member without the services knowing
// about sockets.
type Hub struct {
	mu      sync.RWMutex
	byEmail map[string]map[*Client]struct{}
	byRoom  map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		byEmail: make(map[string]map[*Client]struct{}),
		byRoom:  make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	email := c.Session().Email
	if h.byEmail[email] == nil {
		h.byEmail[email] = make(map[*Client]struct{})
	}
	h.byEmail[email][c] = struct{}{}
}

// unregister drops the client from both indexes. Returns true when this was
// the user's last live connection, so the caller can release per-user state.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	email := c.Session().Email
	last := false
	if set := h.byEmail[email]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byEmail, email)
			last = true
		}
	}
	h.removeFromRoomLocked(c)
	return last
}

// moveToRoom updates the room index when a client joins a room. A client is in
// at most one room at a time.
func (h *Hub) moveToRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(c)
	if roomID == "" {
		return
	}
	c.SetRoom(roomID)
	if h.byRoom[roomID] == nil {
		h.byRoom[roomID] = make(map[*Client]struct{})
	}
	h.byRoom[roomID][c] = struct{}{}
}

func (h *Hub) removeFromRoomLocked(c *Client) {
	roomID := c.Session().RoomID
	if roomID == "" {
		return
	}
	if set := h.byRoom[roomID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byRoom, roomID)
		}
	}
	c.SetRoom("")
}

// ToRoom delivers an event to every client currently in the room.
func (h *Hub) ToRoom(roomID, event string, payload any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.byRoom[roomID]))
	for c := range h.byRoom[roomID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(event, payload)
	}
}

// ToUser delivers an event to every connection the user holds.
func (h *Hub) ToUser(email, event string, payload any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.byEmail[email]))
	for c := range h.byEmail[email] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(event, payload)
	}
}

// MembershipChanged pushes the fresh roster to the whole room so management
// views stay current.
func (h *Hub) MembershipChanged(room *domain.Room) {
	h.ToRoom(room.ID, domain.EventClassUpdate, map[string]any{
		"members": room.Members(),
	})
}

var (
	_ ports.Broadcaster        = (*Hub)(nil)
	_ ports.MembershipObserver = (*Hub)(nil)
)
