package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Event is one message pushed to terminals subscribed to a branch.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type branchEvent struct {
	BranchID uuid.UUID
	Event    Event
}

// Hub fans order events out to the terminals of each branch. Each branch is
// a room; a terminal joins the room of the branch it has selected.
type Hub struct {
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *branchEvent
	done       chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *branchEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for bid, clients := range h.rooms {
				for c := range clients {
					close(c.send)
				}
				delete(h.rooms, bid)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.rooms[c.branchID] == nil {
				h.rooms[c.branchID] = make(map[*Client]bool)
			}
			h.rooms[c.branchID][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			message, err := json.Marshal(ev.Event)
			if err != nil {
				log.WithError(err).Error("ws: marshal event")
				continue
			}
			h.mu.Lock()
			for c := range h.rooms[ev.BranchID] {
				select {
				case c.send <- message:
				default:
					// Slow consumer; it reconnects and refetches.
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes c from its room. Callers hold h.mu.
func (h *Hub) drop(c *Client) {
	clients, ok := h.rooms[c.branchID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.branchID)
	}
}

// BroadcastToBranch queues event for every terminal in the branch room. It
// never blocks once the hub has stopped.
func (h *Hub) BroadcastToBranch(branchID uuid.UUID, event Event) {
	select {
	case h.broadcast <- &branchEvent{BranchID: branchID, Event: event}:
	case <-h.done:
	}
}

// ClientCount reports how many terminals are connected for a branch.
func (h *Hub) ClientCount(branchID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[branchID])
}
