package hub

import (
	"sync"
)

// Client is one admitted connection: its room, the authenticated identity and
// the outbound frame channel drained by the connection's write pump.
type Client struct {
	Room     string
	UserID   string
	UserName string
	Send     chan []byte

	closeOnce sync.Once
}

func NewClient(room, userID, userName string) *Client {
	return &Client{
		Room:     room,
		UserID:   userID,
		UserName: userName,
		Send:     make(chan []byte, 256),
	}
}

// Deliver queues a frame for the client, dropping it if the client's buffer
// is full. A slow consumer must not stall the room.
func (c *Client) Deliver(frame []byte) {
	defer func() {
		// Send may already be closed when a broadcast races a disconnect.
		_ = recover()
	}()
	select {
	case c.Send <- frame:
	default:
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// Hub is the room registry: which clients are currently joined to which room.
// It is shared by every connection and by the AI coordinator.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func New() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{})}
}

// Join is idempotent per client.
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

// Leave is a no-op when the client is already gone. The room entry itself is
// dropped once the last member leaves.
func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast delivers a frame to every member of the room, skipping except
// when set. Membership is snapshotted under the read lock; a client joining
// concurrently may or may not see this frame.
func (h *Hub) Broadcast(room string, frame []byte, except *Client) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Deliver(frame)
	}
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
