package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/metrics"
	"github.com/karthikraju391/farmconnect/models"
)

// Conn is one client connection as seen by the gateway. Send must not block:
// it returns false when the event could not be queued.
type Conn interface {
	ID() string
	Send(ev models.ServerEvent) bool
}

type GatewayOptions struct {
	MaxMessageLength int
	// ReplayLimit bounds how many persisted messages hydrate a room.
	ReplayLimit int
	Now         func() time.Time
}

// Gateway bridges client connections to the Registry and the Transport.
type Gateway struct {
	log       *slog.Logger
	registry  *Registry
	transport Transport
	metrics   *metrics.Metrics
	opts      GatewayOptions

	mu    sync.RWMutex
	rooms map[string]*subscribers
	conns map[string]map[string]struct{}
}

type subscribers struct {
	conns map[string]Conn
	sub   Subscription
}

func NewGateway(log *slog.Logger, registry *Registry, transport Transport, m *metrics.Metrics, opts GatewayOptions) *Gateway {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 2000
	}
	return &Gateway{
		log:       log,
		registry:  registry,
		transport: transport,
		metrics:   m,
		opts:      opts,
		rooms:     make(map[string]*subscribers),
		conns:     make(map[string]map[string]struct{}),
	}
}

// Connect registers a connection. Joining also registers it implicitly.
func (g *Gateway) Connect(c Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.conns[c.ID()]; ok {
		return
	}
	g.conns[c.ID()] = make(map[string]struct{})
	g.metrics.ChatConnections.Inc()
}

// Join subscribes c to roomID. Joining a room twice has no further effect.
func (g *Gateway) Join(ctx context.Context, c Conn, roomID string) error {
	const op = "chat.Join"
	if !models.ValidRoomID(roomID) {
		return apperrors.Validation(op, "invalid room id")
	}
	g.hydrate(ctx, roomID)

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.conns[c.ID()]; !ok {
		g.conns[c.ID()] = make(map[string]struct{})
		g.metrics.ChatConnections.Inc()
	}
	subs, ok := g.rooms[roomID]
	if !ok {
		subs = &subscribers{conns: make(map[string]Conn)}
		g.rooms[roomID] = subs
	}
	if _, joined := subs.conns[c.ID()]; joined {
		return nil
	}
	if subs.sub == nil {
		sub, err := g.transport.Subscribe(roomID, g.deliver(roomID))
		if err != nil {
			if len(subs.conns) == 0 {
				delete(g.rooms, roomID)
			}
			return apperrors.Transient(op, err)
		}
		subs.sub = sub
	}
	subs.conns[c.ID()] = c
	g.conns[c.ID()][roomID] = struct{}{}
	g.log.Debug("Connection joined room", "conn", c.ID(), "room", roomID)
	return nil
}

// Leave drops c's subscription to roomID, if any.
func (g *Gateway) Leave(c Conn, roomID string) {
	g.mu.Lock()
	sub := g.removeLocked(c.ID(), roomID)
	g.mu.Unlock()
	g.unsubscribe(roomID, sub)
}

// Disconnect drops every subscription of c.
func (g *Gateway) Disconnect(c Conn) {
	g.mu.Lock()
	joined, ok := g.conns[c.ID()]
	if !ok {
		g.mu.Unlock()
		return
	}
	closing := make(map[string]Subscription)
	for roomID := range joined {
		if sub := g.removeLocked(c.ID(), roomID); sub != nil {
			closing[roomID] = sub
		}
	}
	delete(g.conns, c.ID())
	g.metrics.ChatConnections.Dec()
	g.mu.Unlock()

	for roomID, sub := range closing {
		g.unsubscribe(roomID, sub)
	}
	g.log.Debug("Connection disconnected", "conn", c.ID())
}

// removeLocked returns the transport subscription to close when c was the
// room's last local subscriber.
func (g *Gateway) removeLocked(connID, roomID string) Subscription {
	if joined, ok := g.conns[connID]; ok {
		delete(joined, roomID)
	}
	subs, ok := g.rooms[roomID]
	if !ok {
		return nil
	}
	delete(subs.conns, connID)
	if len(subs.conns) > 0 {
		return nil
	}
	delete(g.rooms, roomID)
	return subs.sub
}

func (g *Gateway) unsubscribe(roomID string, sub Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		g.log.Warn("Failed to unsubscribe room", "room", roomID, "error", err)
	}
}

// SendMessage validates, records and broadcasts a message to every
// connection in the room, the sender included.
func (g *Gateway) SendMessage(ctx context.Context, roomID, senderID, senderName, body string) (models.ChatMessage, error) {
	const op = "chat.SendMessage"
	switch {
	case !models.ValidRoomID(roomID):
		g.metrics.ChatRejected.WithLabelValues("room").Inc()
		return models.ChatMessage{}, apperrors.Validation(op, "invalid room id")
	case strings.TrimSpace(senderID) == "":
		g.metrics.ChatRejected.WithLabelValues("sender").Inc()
		return models.ChatMessage{}, apperrors.Validation(op, "sender is required")
	case strings.TrimSpace(body) == "":
		g.metrics.ChatRejected.WithLabelValues("empty").Inc()
		return models.ChatMessage{}, apperrors.Validation(op, "message must not be empty")
	case utf8.RuneCountInString(body) > g.opts.MaxMessageLength:
		g.metrics.ChatRejected.WithLabelValues("too_long").Inc()
		return models.ChatMessage{}, apperrors.Validation(op, "message exceeds %d characters", g.opts.MaxMessageLength)
	}
	if senderName == "" {
		senderName = senderID
	}
	g.hydrate(ctx, roomID)

	msg := models.ChatMessage{
		RoomID:     roomID,
		Sender:     senderID,
		SenderName: senderName,
		Body:       body,
		SentAt:     g.opts.Now().UTC(),
	}
	err := g.registry.Post(roomID, msg, func(m models.ChatMessage) error {
		return g.transport.Publish(ctx, m)
	})
	if err != nil {
		g.log.Error("Failed to publish chat message", "room", roomID, "sender", senderID, "error", err)
		return models.ChatMessage{}, apperrors.Transient(op, err)
	}
	g.metrics.ChatMessages.Inc()
	return msg, nil
}

// RequestHistory sends the room's full history to c only.
func (g *Gateway) RequestHistory(ctx context.Context, c Conn, roomID string) error {
	if !models.ValidRoomID(roomID) {
		return apperrors.Validation("chat.RequestHistory", "invalid room id")
	}
	g.hydrate(ctx, roomID)
	if !c.Send(models.NewChatHistory(g.registry.History(roomID))) {
		g.metrics.ChatDropped.Inc()
		g.log.Warn("History dropped, connection queue full", "conn", c.ID(), "room", roomID)
	}
	return nil
}

// History is the registry view of a room.
func (g *Gateway) History(roomID string) []models.ChatMessage {
	return g.registry.History(roomID)
}

func (g *Gateway) deliver(roomID string) func(models.ChatMessage) {
	return func(msg models.ChatMessage) {
		g.mu.RLock()
		var targets []Conn
		if subs, ok := g.rooms[roomID]; ok {
			targets = make([]Conn, 0, len(subs.conns))
			for _, c := range subs.conns {
				targets = append(targets, c)
			}
		}
		g.mu.RUnlock()

		ev := models.NewReceiveMessage(msg)
		for _, c := range targets {
			if c.Send(ev) {
				g.metrics.ChatDeliveries.Inc()
				continue
			}
			g.metrics.ChatDropped.Inc()
			g.log.Warn("Delivery dropped, connection queue full", "conn", c.ID(), "room", roomID)
		}
	}
}

// hydrate merges the transport's persisted log into a room this process has
// not hydrated yet. Failures only cost history, so they are logged and the
// next call tries again.
func (g *Gateway) hydrate(ctx context.Context, roomID string) {
	replayer, ok := g.transport.(Replayer)
	if !ok || g.registry.Hydrated(roomID) {
		return
	}
	msgs, err := replayer.Replay(ctx, roomID, g.opts.ReplayLimit)
	if err != nil {
		g.log.Warn("Failed to replay room history", "room", roomID, "error", err)
		return
	}
	if g.registry.Hydrate(roomID, msgs) {
		g.log.Debug("Room hydrated", "room", roomID, "messages", len(msgs))
	}
}
