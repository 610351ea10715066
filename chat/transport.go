package chat

import (
	"context"
	"sync"

	"github.com/karthikraju391/farmconnect/models"
)

// Transport carries chat messages between publishers and room subscribers.
// Messages of one room must reach a subscription in publish order.
type Transport interface {
	Publish(ctx context.Context, msg models.ChatMessage) error
	Subscribe(roomID string, handler func(models.ChatMessage)) (Subscription, error)
}

type Subscription interface {
	Unsubscribe() error
}

// Replayer is implemented by transports that persist messages and can
// return the newest limit messages of a room, oldest first.
type Replayer interface {
	Replay(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error)
}

// LocalBus is an in-process Transport. Handlers run synchronously on the
// publishing goroutine.
type LocalBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(models.ChatMessage)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[int]func(models.ChatMessage))}
}

func (b *LocalBus) Publish(ctx context.Context, msg models.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	handlers := make([]func(models.ChatMessage), 0, len(b.subs[msg.RoomID]))
	for _, h := range b.subs[msg.RoomID] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *LocalBus) Subscribe(roomID string, handler func(models.ChatMessage)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[int]func(models.ChatMessage))
	}
	b.subs[roomID][id] = handler
	return &localSubscription{bus: b, roomID: roomID, id: id}, nil
}

type localSubscription struct {
	bus    *LocalBus
	roomID string
	id     int
	once   sync.Once
}

func (s *localSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.roomID], s.id)
		if len(s.bus.subs[s.roomID]) == 0 {
			delete(s.bus.subs, s.roomID)
		}
	})
	return nil
}
