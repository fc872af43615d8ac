// Package notify pushes freshly created notifications to connected
// browsers over WebSocket.
//
// The hub is in-memory and delivery is best effort: a recipient without a
// live connection simply fetches the notification later over HTTP, and a
// client whose queue is full has the event dropped rather than stalling
// the publisher.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"pinboard/cmd/internal/pins"
)

// Event is the wire envelope pushed to clients.
type Event struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	PinID      string    `json:"pin,omitempty"`
	SenderID   string    `json:"sender"`
	SenderName string    `json:"senderName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// client is one connected websocket session.
//
// send is never closed by broadcasters; done signals the session
// goroutines to stop and close is idempotent.
type client struct {
	userID string
	send   chan Event

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(userID string, queue int) *client {
	if queue <= 0 {
		queue = 64
	}
	return &client{
		userID: userID,
		send:   make(chan Event, queue),
		done:   make(chan struct{}),
	}
}

func (c *client) Done() <-chan struct{} { return c.done }

func (c *client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub tracks live connections per user and fans events out to them.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	byUser  map[string]map[*client]struct{}
	nameFor func(userID string) string
}

// NewHub constructs an empty hub. nameFor resolves a sender id to a
// display name for the pushed event; nil leaves names blank.
func NewHub(log *slog.Logger, nameFor func(userID string) string) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if nameFor == nil {
		nameFor = func(string) string { return "" }
	}
	return &Hub{
		log:     log,
		byUser:  make(map[string]map[*client]struct{}),
		nameFor: nameFor,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.byUser[c.userID]
	if set == nil {
		set = make(map[*client]struct{})
		h.byUser[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.byUser[c.userID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.byUser, c.userID)
	}
}

// Publish fans n out to every live connection of its recipient.
func (h *Hub) Publish(n pins.Notification) {
	ev := Event{
		Type:       n.Type,
		ID:         n.ID,
		PinID:      n.PinID,
		SenderID:   n.SenderID,
		SenderName: h.nameFor(n.SenderID),
		CreatedAt:  n.CreatedAt,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byUser[n.RecipientID] {
		select {
		case c.send <- ev:
		default:
			// Queue full: the client is not draining. HTTP catch-up
			// covers the gap.
			h.log.Warn("notification push dropped", "user_id", n.RecipientID)
		}
	}
}

// Connections reports how many live connections a user has.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}
