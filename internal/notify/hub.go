package notify

import (
	"encoding/json"
	"sync"

	"github.com/pawfinder/apiserver/types"
)

// Event names pushed to subscribers.
const (
	EventNewComment  = "new-comment"
	EventCheerUpdate = "cheer-update"
)

// subscriberBuffer bounds each subscriber's queue. A subscriber that
// cannot keep up loses events; delivery is at-most-once with no replay.
const subscriberBuffer = 8

// Event is a single pet-channel notification.
type Event struct {
	Name    string          `json:"event"`
	PetID   int             `json:"petId"`
	Payload json.RawMessage `json:"payload"`
}

// CommentPayload is the payload of a new-comment event. Author fields
// are denormalized from the actor's session at broadcast time.
type CommentPayload struct {
	PetID   int           `json:"petId"`
	Comment types.Comment `json:"comment"`
}

// CheerPayload is the payload of a cheer-update event. Cheered reflects
// the resulting state from the acting user's perspective.
type CheerPayload struct {
	PetID       int  `json:"petId"`
	CheersCount int  `json:"cheersCount"`
	Cheered     bool `json:"cheered"`
}

// Hub fans events out to in-process subscribers, one room per pet id.
// A client may hold subscriptions to any number of rooms at once.
type Hub struct {
	mu    sync.RWMutex
	rooms map[int]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[int]map[chan Event]struct{})}
}

// Subscribe joins the room for petID. The returned cancel func leaves
// the room and releases the channel; it is safe to call more than once.
func (h *Hub) Subscribe(petID int) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	room, ok := h.rooms[petID]
	if !ok {
		room = make(map[chan Event]struct{})
		h.rooms[petID] = room
	}
	room[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if room, ok := h.rooms[petID]; ok {
				delete(room, ch)
				if len(room) == 0 {
					delete(h.rooms, petID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Broadcast delivers ev to every current subscriber of its pet's room.
// Sends never block; a full subscriber queue drops the event.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.rooms[ev.PetID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the current size of a pet's room.
func (h *Hub) Subscribers(petID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[petID])
}
