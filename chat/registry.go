// Package chat keeps per-room message history and fans messages out to the
// connections subscribed to a room.
package chat

import (
	"sync"

	"github.com/karthikraju391/farmconnect/models"
	"github.com/samber/lo"
)

// RoomID derives the room two users share. The pair is unordered so both
// parties land in the same room whoever opens the chat.
func RoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "chat_" + a + "_" + b
}

// Registry holds the message history of every room seen by this process.
// A limit above zero caps each room to its newest messages.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
	limit int
}

type room struct {
	mu       sync.Mutex
	buf      []models.ChatMessage
	start    int
	hydrated bool
}

func NewRegistry(limit int) *Registry {
	if limit < 0 {
		limit = 0
	}
	return &Registry{rooms: make(map[string]*room), limit: limit}
}

func (r *Registry) room(roomID string) *room {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return rm
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[roomID]; !ok {
		rm = &room{}
		r.rooms[roomID] = rm
	}
	return rm
}

// Append adds msg at the end of the room, creating the room if needed.
func (r *Registry) Append(roomID string, msg models.ChatMessage) {
	rm := r.room(roomID)
	rm.mu.Lock()
	rm.push(msg, r.limit)
	rm.mu.Unlock()
}

// Post runs publish and, if it succeeds, appends msg, both under the room
// lock. Messages therefore reach the transport in history order.
func (r *Registry) Post(roomID string, msg models.ChatMessage, publish func(models.ChatMessage) error) error {
	rm := r.room(roomID)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if err := publish(msg); err != nil {
		return err
	}
	rm.push(msg, r.limit)
	return nil
}

// History returns a copy of the room's messages, oldest first. Unknown rooms
// yield an empty slice.
func (r *Registry) History(roomID string) []models.ChatMessage {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return []models.ChatMessage{}
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.ordered()
}

func (r *Registry) Has(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Hydrate merges a room's persisted log, typically replayed from the
// transport after a restart, in front of what the room already holds.
// Replayed messages not older than the room's first message are already
// there and are skipped. It returns false once the room has been hydrated.
func (r *Registry) Hydrate(roomID string, msgs []models.ChatMessage) bool {
	rm := r.room(roomID)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.hydrated {
		return false
	}
	rm.hydrated = true

	current := rm.ordered()
	older := msgs
	if len(current) > 0 {
		first := current[0].SentAt
		older = lo.Filter(msgs, func(m models.ChatMessage, _ int) bool {
			return m.SentAt.Before(first)
		})
	}
	rm.buf, rm.start = nil, 0
	for _, m := range older {
		rm.push(m, r.limit)
	}
	for _, m := range current {
		rm.push(m, r.limit)
	}
	return true
}

// Hydrated reports whether Hydrate already ran for the room.
func (r *Registry) Hydrated(roomID string) bool {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.hydrated
}

// Rooms returns the number of rooms held.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (rm *room) ordered() []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(rm.buf))
	out = append(out, rm.buf[rm.start:]...)
	out = append(out, rm.buf[:rm.start]...)
	return out
}

func (rm *room) push(msg models.ChatMessage, limit int) {
	if limit == 0 || len(rm.buf) < limit {
		rm.buf = append(rm.buf, msg)
		return
	}
	rm.buf[rm.start] = msg
	rm.start = (rm.start + 1) % limit
}
