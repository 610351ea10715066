package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/auth"
	"github.com/karthikraju391/farmconnect/chat"
	"github.com/karthikraju391/farmconnect/config"
	"github.com/karthikraju391/farmconnect/metrics"
	"github.com/karthikraju391/farmconnect/models"
)

const wsActorKey = "ws_actor"

// Client is one websocket connection. Outbound events go through a buffered
// queue drained by HandleWrite, so the gateway never blocks on a slow peer.
type Client struct {
	Conn  *websocket.Conn
	id    string
	actor *models.Actor
	send  chan models.ServerEvent
	done  chan struct{}
	log   *slog.Logger
}

func NewClient(conn *websocket.Conn, actor *models.Actor, buffer int, log *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		Conn:  conn,
		id:    id,
		actor: actor,
		send:  make(chan models.ServerEvent, buffer),
		done:  make(chan struct{}),
		log:   log.With("conn", id),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues ev without blocking. It reports false when the queue is full
// or the connection is gone.
func (c *Client) Send(ev models.ServerEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// HandleRead reads frames from the connection and hands them to the dispatcher.
func (c *Client) HandleRead(ctx context.Context, h *ChatHandler) {
	defer func() {
		c.log.Debug("Reader closed")
		close(c.done) // Signal writer to stop
	}()
	c.Conn.SetReadLimit(config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	})

	for {
		msgType, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("WebSocket read error", "error", err)
			} else {
				c.log.Debug("WebSocket closed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.Dispatch(ctx, c, c.actor, frame)
	}
}

// HandleWrite writes queued events to the connection and keeps it alive with pings.
func (c *Client) HandleWrite() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.log.Debug("Writer closed")
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteJSON(ev); err != nil {
				c.log.Warn("WebSocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn("WebSocket ping error", "error", err)
				return
			}

		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// ChatHandler serves the chat socket on top of the gateway.
type ChatHandler struct {
	log        *slog.Logger
	gateway    *chat.Gateway
	tokens     *auth.Tokens
	metrics    *metrics.Metrics
	sendBuffer int
}

func NewChatHandler(log *slog.Logger, gateway *chat.Gateway, tokens *auth.Tokens, m *metrics.Metrics, sendBuffer int) *ChatHandler {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &ChatHandler{log: log, gateway: gateway, tokens: tokens, metrics: m, sendBuffer: sendBuffer}
}

// Upgrade admits websocket upgrades only. A ?token= query authenticates the
// connection; a bad token is refused before the upgrade.
func (h *ChatHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if raw := c.Query("token"); raw != "" {
		claims, err := h.tokens.Parse(raw)
		if err != nil {
			return err
		}
		c.Locals(wsActorKey, claims.Actor())
	}
	return c.Next()
}

// Serve manages the lifecycle of a websocket connection.
func (h *ChatHandler) Serve(conn *websocket.Conn) {
	var actor *models.Actor
	if a, ok := conn.Locals(wsActorKey).(models.Actor); ok {
		actor = &a
	}
	client := NewClient(conn, actor, h.sendBuffer, h.log)
	client.log.Info("Client connected", "authenticated", actor != nil)

	ctx, cancel := context.WithCancel(context.Background())
	h.gateway.Connect(client)
	defer func() {
		cancel()
		h.gateway.Disconnect(client)
		_ = conn.Close()
		client.log.Info("Client disconnected")
	}()

	go client.HandleWrite()
	client.HandleRead(ctx, h)
}

// Dispatch handles one client frame. Failures are answered to conn alone
// with an error event.
func (h *ChatHandler) Dispatch(ctx context.Context, conn chat.Conn, actor *models.Actor, frame []byte) {
	const op = "handlers.Dispatch"
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		h.metrics.ChatRejected.WithLabelValues("malformed").Inc()
		h.reject(conn, "", apperrors.Validation(op, "malformed frame, expected {\"event\", \"data\"}"))
		return
	}

	var err error
	switch env.Event {
	case models.EventJoinRoom:
		var req models.RoomRequest
		if err = decode(env.Data, &req); err == nil {
			err = h.gateway.Join(ctx, conn, req.RoomID)
		}
	case models.EventLeaveRoom:
		var req models.RoomRequest
		if err = decode(env.Data, &req); err == nil {
			h.gateway.Leave(conn, req.RoomID)
		}
	case models.EventGetChatHistory:
		var req models.RoomRequest
		if err = decode(env.Data, &req); err == nil {
			err = h.gateway.RequestHistory(ctx, conn, req.RoomID)
		}
	case models.EventSendMessage:
		var req models.SendMessageRequest
		if err = decode(env.Data, &req); err == nil {
			sender, name := req.Sender, req.SenderName
			if actor != nil {
				sender, name = actor.ID, actor.FullName
				if name == "" {
					name = actor.Username
				}
			}
			_, err = h.gateway.SendMessage(ctx, req.RoomID, sender, name, req.Message)
		}
	default:
		h.metrics.ChatRejected.WithLabelValues("unknown_event").Inc()
		err = apperrors.Validation(op, "unknown event %q", env.Event)
	}
	if err != nil {
		h.reject(conn, env.Event, err)
	}
}

func (h *ChatHandler) reject(conn chat.Conn, cause models.EventName, err error) {
	kind := apperrors.KindOf(err)
	msg := apperrors.MessageOf(err)
	if kind == apperrors.KindUnknown {
		h.log.Error("Chat event failed", "conn", conn.ID(), "event", cause, "error", err)
		msg = "internal error"
	} else {
		h.log.Debug("Chat event rejected", "conn", conn.ID(), "event", cause, "error", err)
	}
	if !conn.Send(models.NewErrorEvent(cause, kind.String(), msg)) {
		h.metrics.ChatDropped.Inc()
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return apperrors.Validation("handlers.decode", "missing event data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Validation("handlers.decode", "invalid event data: %v", err)
	}
	return nil
}
