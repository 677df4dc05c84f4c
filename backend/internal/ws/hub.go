package ws

import (
	"sync"

	"slideSync/backend/internal/cache"
)

// Hub routes broadcast traffic between connections joined to the same
// project. Connections, not devices, are the unit of membership: the same
// device may hold several tabs open and each gets its own delivery.
type Hub struct {
	presence cache.PresenceCache

	mu sync.RWMutex
	// projectID -> set of connections
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

func (h *Hub) Join(projectID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[projectID] == nil {
		h.rooms[projectID] = make(map[*Conn]struct{})
	}
	h.rooms[projectID][c] = struct{}{}
}

func (h *Hub) Leave(projectID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[projectID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, projectID)
		}
	}
}

// BroadcastExcept delivers msg to every connection in the project room other
// than from. Delivery is drop-on-full best effort; a device that misses a
// message catches up through the operation log.
func (h *Hub) BroadcastExcept(projectID string, from *Conn, msg OutboundMessage) {
	// Enqueue never blocks, so holding the lock across delivery keeps the
	// room set stable against a concurrent Leave
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[projectID] {
		if c == from {
			continue
		}
		c.Enqueue(msg)
	}
}

// Broadcast delivers msg to every connection in the project room, the
// originator included.
func (h *Hub) Broadcast(projectID string, msg OutboundMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[projectID] {
		c.Enqueue(msg)
	}
}
