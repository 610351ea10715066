package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/logging"
	"github.com/karthikraju391/farmconnect/metrics"
	"github.com/karthikraju391/farmconnect/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id       string
	capacity int

	mu     sync.Mutex
	events []models.ServerEvent
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id, capacity: 1 << 20} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev models.ServerEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) >= c.capacity {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *fakeConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ev := range c.events {
		if ev.Event == models.EventReceiveMessage {
			out = append(out, ev.Data.(models.ReceiveMessage).Message)
		}
	}
	return out
}

func (c *fakeConn) lastHistory() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Event == models.EventChatHistory {
			out := []string{}
			for _, m := range c.events[i].Data.(models.ChatHistory) {
				out = append(out, m.Message)
			}
			return out
		}
	}
	return nil
}

func newTestGateway(t *testing.T, transport Transport) (*Gateway, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	g := NewGateway(logging.Discard(), NewRegistry(0), transport, m, GatewayOptions{MaxMessageLength: 20})
	return g, m
}

func TestGateway_TwoUsersShareHistory(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	g, _ := newTestGateway(t, NewLocalBus())
	a, b := newFakeConn("conn-a"), newFakeConn("conn-b")

	req.NoError(g.Join(ctx, a, RoomID("userA", "userB")))
	req.NoError(g.Join(ctx, b, RoomID("userB", "userA")))

	_, err := g.SendMessage(ctx, RoomID("userA", "userB"), "userA", "Asha", "hello")
	req.NoError(err)
	_, err = g.SendMessage(ctx, RoomID("userB", "userA"), "userB", "Bala", "hi")
	req.NoError(err)

	req.NoError(g.RequestHistory(ctx, a, RoomID("userA", "userB")))
	req.NoError(g.RequestHistory(ctx, b, RoomID("userA", "userB")))
	req.Equal([]string{"hello", "hi"}, a.lastHistory())
	req.Equal([]string{"hello", "hi"}, b.lastHistory())

	// Both messages were echoed to both sides, sender included.
	req.Equal([]string{"hello", "hi"}, a.received())
	req.Equal([]string{"hello", "hi"}, b.received())
}

func TestGateway_HistoryGoesOnlyToRequester(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	g, _ := newTestGateway(t, NewLocalBus())
	a, b := newFakeConn("a"), newFakeConn("b")
	req.NoError(g.Join(ctx, a, "room"))
	req.NoError(g.Join(ctx, b, "room"))

	req.NoError(g.RequestHistory(ctx, a, "room"))
	req.NotNil(a.lastHistory())
	req.Empty(b.events)
}

func TestGateway_JoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	g, _ := newTestGateway(t, NewLocalBus())
	a := newFakeConn("a")
	req.NoError(g.Join(ctx, a, "room"))
	req.NoError(g.Join(ctx, a, "room"))

	_, err := g.SendMessage(ctx, "room", "u", "", "once")
	req.NoError(err)
	req.Equal([]string{"once"}, a.received())
}

func TestGateway_RejectsInvalidMessages(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name, room, sender, body string
	}{
		{"empty body", "room", "u", ""},
		{"blank body", "room", "u", "  \n\t"},
		{"missing sender", "room", "", "hi"},
		{"bad room", "room with spaces", "u", "hi"},
		{"too long", "room", "u", "this message is longer than twenty runes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			g, m := newTestGateway(t, NewLocalBus())
			a := newFakeConn("a")
			req.NoError(g.Join(ctx, a, "room"))

			_, err := g.SendMessage(ctx, tt.room, tt.sender, "", tt.body)
			req.ErrorIs(err, apperrors.ErrValidation)
			req.Empty(a.received())
			req.Empty(g.History("room"))
			req.Equal(0.0, testutil.ToFloat64(m.ChatMessages))
		})
	}
}

func TestGateway_LeaveAndDisconnectStopDeliveries(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	bus := NewLocalBus()
	g, m := newTestGateway(t, bus)
	a, b := newFakeConn("a"), newFakeConn("b")
	req.NoError(g.Join(ctx, a, "room"))
	req.NoError(g.Join(ctx, b, "room"))
	req.Equal(2.0, testutil.ToFloat64(m.ChatConnections))

	g.Leave(a, "room")
	_, err := g.SendMessage(ctx, "room", "u", "", "after-leave")
	req.NoError(err)
	req.Empty(a.received())
	req.Equal([]string{"after-leave"}, b.received())

	g.Disconnect(b)
	_, err = g.SendMessage(ctx, "room", "u", "", "after-disconnect")
	req.NoError(err)
	req.Equal([]string{"after-leave"}, b.received())
	req.Empty(bus.subs, "last subscriber gone, transport subscription closed")

	// History is not affected by who is listening.
	req.Equal([]string{"after-leave", "after-disconnect"}, bodies(g.History("room")))
	req.Equal(1.0, testutil.ToFloat64(m.ChatConnections))
}

type failingTransport struct{ *LocalBus }

func (f *failingTransport) Publish(context.Context, models.ChatMessage) error {
	return errors.New("nats: connection closed")
}

func TestGateway_PublishFailureIsTransient(t *testing.T) {
	req := require.New(t)
	g, _ := newTestGateway(t, &failingTransport{LocalBus: NewLocalBus()})
	_, err := g.SendMessage(context.Background(), "room", "u", "", "hi")
	req.ErrorIs(err, apperrors.ErrTransient)
	req.Empty(g.History("room"))
}

type replayingBus struct {
	*LocalBus
	calls   int
	history []models.ChatMessage
}

func (r *replayingBus) Replay(_ context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	r.calls++
	return r.history, nil
}

// racingBus delivers a live message while the first replay is in flight.
type racingBus struct {
	*LocalBus
	gateway *Gateway
	history []models.ChatMessage
	raced   bool
}

func (r *racingBus) Replay(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	if !r.raced {
		r.raced = true
		if _, err := r.gateway.SendMessage(ctx, roomID, "b", "", "new"); err != nil {
			return nil, err
		}
	}
	return r.history, nil
}

func TestGateway_HydrateKeepsMessagesSentDuringReplay(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	old1, old2 := msg("room", "a", "old-1"), msg("room", "a", "old-2")
	old1.SentAt, old2.SentAt = past, past.Add(time.Minute)

	bus := &racingBus{LocalBus: NewLocalBus(), history: []models.ChatMessage{old1, old2}}
	g, _ := newTestGateway(t, bus)
	bus.gateway = g
	a := newFakeConn("a")

	req.NoError(g.Join(ctx, a, "room"))
	req.NoError(g.RequestHistory(ctx, a, "room"))
	req.Equal([]string{"old-1", "old-2", "new"}, a.lastHistory())
}

func TestGateway_SendHydratesUnseenRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	before := msg("room", "a", "before restart")
	before.SentAt = before.SentAt.Add(-time.Minute)
	bus := &replayingBus{LocalBus: NewLocalBus(), history: []models.ChatMessage{before}}
	g, _ := newTestGateway(t, bus)

	_, err := g.SendMessage(ctx, "room", "b", "", "after restart")
	req.NoError(err)
	req.Equal([]string{"before restart", "after restart"}, bodies(g.History("room")))
	req.Equal(1, bus.calls)
}

func TestGateway_HydratesFromReplayOnce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	bus := &replayingBus{LocalBus: NewLocalBus(), history: []models.ChatMessage{msg("room", "a", "before restart")}}
	g, _ := newTestGateway(t, bus)
	a := newFakeConn("a")

	req.NoError(g.Join(ctx, a, "room"))
	_, err := g.SendMessage(ctx, "room", "a", "", "after restart")
	req.NoError(err)
	req.NoError(g.RequestHistory(ctx, a, "room"))

	req.Equal([]string{"before restart", "after restart"}, a.lastHistory())
	req.Equal(1, bus.calls)
}

func TestGateway_AllSubscribersSeeSameOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	g, _ := newTestGateway(t, NewLocalBus())
	conns := []*fakeConn{newFakeConn("a"), newFakeConn("b"), newFakeConn("c")}
	for _, c := range conns {
		req.NoError(g.Join(ctx, c, "room"))
	}

	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if _, err := g.SendMessage(ctx, "room", fmt.Sprintf("s%d", s), "", fmt.Sprintf("s%d-%d", s, i)); err != nil {
					t.Error(err)
				}
			}
		}(s)
	}
	wg.Wait()

	want := bodies(g.History("room"))
	req.Len(want, 100)
	for _, c := range conns {
		req.Equal(want, c.received())
	}
}

func TestGateway_FullQueueDropsOnlyThatConnection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	g, m := newTestGateway(t, NewLocalBus())
	slow := &fakeConn{id: "slow", capacity: 1}
	fast := newFakeConn("fast")
	req.NoError(g.Join(ctx, slow, "room"))
	req.NoError(g.Join(ctx, fast, "room"))

	for i := 0; i < 3; i++ {
		_, err := g.SendMessage(ctx, "room", "u", "", fmt.Sprintf("m%d", i))
		req.NoError(err)
	}
	req.Equal([]string{"m0"}, slow.received())
	req.Equal([]string{"m0", "m1", "m2"}, fast.received())
	req.Equal(2.0, testutil.ToFloat64(m.ChatDropped))
}
