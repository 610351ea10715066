package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/karthikraju391/farmconnect/auth"
	"github.com/karthikraju391/farmconnect/chat"
	"github.com/karthikraju391/farmconnect/logging"
	"github.com/karthikraju391/farmconnect/metrics"
	"github.com/karthikraju391/farmconnect/models"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	id string

	mu     sync.Mutex
	events []models.ServerEvent
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(ev models.ServerEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return true
}

func (c *recordingConn) byEvent(name models.EventName) []models.ServerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.ServerEvent
	for _, ev := range c.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func newChatHandler(t *testing.T) *ChatHandler {
	t.Helper()
	log := logging.Discard()
	m := metrics.New()
	gw := chat.NewGateway(log, chat.NewRegistry(100), chat.NewLocalBus(), m, chat.GatewayOptions{
		MaxMessageLength: 50,
		Now:              func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) },
	})
	return NewChatHandler(log, gw, auth.NewTokens("a-test-secret-of-decent-length", time.Hour), m, 16)
}

func TestDispatch_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newChatHandler(t)
	room := chat.RoomID("farmer-1", "buyer-1")
	farmer := &recordingConn{id: "c1"}
	buyer := &recordingConn{id: "c2"}

	h.Dispatch(ctx, farmer, nil, []byte(`{"event":"join-room","data":"`+room+`"}`))
	h.Dispatch(ctx, buyer, nil, []byte(`{"event":"join-room","data":{"roomId":"`+room+`"}}`))
	h.Dispatch(ctx, buyer, nil, []byte(`{"event":"send-message","data":{"roomId":"`+room+`","message":"hello","sender":"buyer-1","senderName":"Ravi"}}`))

	for _, c := range []*recordingConn{farmer, buyer} {
		got := c.byEvent(models.EventReceiveMessage)
		req.Len(got, 1)
		msg := got[0].Data.(models.ReceiveMessage)
		req.Equal("hello", msg.Message)
		req.Equal("buyer-1", msg.Sender)
		req.Equal("Ravi", msg.SenderName)
	}

	h.Dispatch(ctx, farmer, nil, []byte(`{"event":"get-chat-history","data":"`+room+`"}`))
	history := farmer.byEvent(models.EventChatHistory)
	req.Len(history, 1)
	req.Len(history[0].Data.(models.ChatHistory), 1)
	req.Empty(buyer.byEvent(models.EventChatHistory))

	h.Dispatch(ctx, buyer, nil, []byte(`{"event":"leave-room","data":"`+room+`"}`))
	h.Dispatch(ctx, farmer, nil, []byte(`{"event":"send-message","data":{"roomId":"`+room+`","message":"hi","sender":"farmer-1"}}`))
	req.Len(farmer.byEvent(models.EventReceiveMessage), 2)
	req.Len(buyer.byEvent(models.EventReceiveMessage), 1)
}

func TestDispatch_AuthenticatedSenderIsForced(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newChatHandler(t)
	conn := &recordingConn{id: "c1"}
	me := &models.Actor{ID: "farmer-1", Username: "lakshmi", FullName: "Lakshmi Devi", Role: models.RoleFarmer}

	h.Dispatch(ctx, conn, me, []byte(`{"event":"join-room","data":"chat_a_b"}`))
	h.Dispatch(ctx, conn, me, []byte(`{"event":"send-message","data":{"roomId":"chat_a_b","message":"fresh stock","sender":"someone-else","senderName":"Mallory"}}`))

	got := conn.byEvent(models.EventReceiveMessage)
	req.Len(got, 1)
	msg := got[0].Data.(models.ReceiveMessage)
	req.Equal("farmer-1", msg.Sender)
	req.Equal("Lakshmi Devi", msg.SenderName)
}

func TestDispatch_Rejections(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		frame string
		cause models.EventName
		code  string
	}{
		{"not json", `hello`, "", "validation"},
		{"no event", `{"data":"chat_a_b"}`, "", "validation"},
		{"unknown event", `{"event":"typing","data":"chat_a_b"}`, "typing", "validation"},
		{"missing data", `{"event":"join-room"}`, models.EventJoinRoom, "validation"},
		{"bad room", `{"event":"join-room","data":"chat a.b"}`, models.EventJoinRoom, "validation"},
		{"empty message", `{"event":"send-message","data":{"roomId":"chat_a_b","message":"  ","sender":"a"}}`, models.EventSendMessage, "validation"},
		{"no sender", `{"event":"send-message","data":{"roomId":"chat_a_b","message":"hi"}}`, models.EventSendMessage, "validation"},
		{"too long", `{"event":"send-message","data":{"roomId":"chat_a_b","message":"0123456789012345678901234567890123456789012345678901","sender":"a"}}`, models.EventSendMessage, "validation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			h := newChatHandler(t)
			conn := &recordingConn{id: "c1"}
			h.Dispatch(ctx, conn, nil, []byte(`{"event":"join-room","data":"chat_a_b"}`))

			h.Dispatch(ctx, conn, nil, []byte(tc.frame))

			errs := conn.byEvent(models.EventError)
			req.Len(errs, 1)
			ev := errs[0].Data.(models.ErrorEvent)
			req.Equal(tc.code, ev.Code)
			req.Equal(tc.cause, ev.Event)
			req.NotEmpty(ev.Message)
			req.Empty(conn.byEvent(models.EventReceiveMessage))
		})
	}
}

func TestClient_SendNeverBlocks(t *testing.T) {
	req := require.New(t)
	c := NewClient(nil, nil, 2, logging.Discard())
	ev := models.NewErrorEvent("", "validation", "x")

	req.True(c.Send(ev))
	req.True(c.Send(ev))
	req.False(c.Send(ev))

	<-c.send
	close(c.done)
	req.False(c.Send(ev))
}
