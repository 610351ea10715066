package nats_service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/karthikraju391/farmconnect/chat"
	"github.com/karthikraju391/farmconnect/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type Options struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	// MaxAge and MaxMsgsPerRoom bound the persisted chat log.
	MaxAge         time.Duration
	MaxMsgsPerRoom int64
	Timeout        time.Duration
}

// NatsService is the chat transport backed by NATS. Messages are published
// through JetStream so they persist in a capped per-room log, and delivered
// live to core subscriptions on the room subject.
type NatsService struct {
	js   jetstream.JetStream
	nc   *nats.Conn
	log  *slog.Logger
	opts Options
}

var (
	_ chat.Transport = (*NatsService)(nil)
	_ chat.Replayer  = (*NatsService)(nil)
)

// NewNatsService connects to NATS and initializes JetStream
func NewNatsService(ctx context.Context, log *slog.Logger, opts Options) (*NatsService, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	nc, err := nats.Connect(opts.URL,
		nats.Name("farmconnect-chat"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc) // creating a jetstream instance for the above created nats connection
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	// Ensure stream exists
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	streamCfg := jetstream.StreamConfig{
		Name:              opts.StreamName,
		Description:       "FarmConnect chat rooms",
		Subjects:          []string{fmt.Sprintf("%s.*", opts.SubjectPrefix)}, // one subject per room
		MaxAge:            opts.MaxAge,
		MaxMsgsPerSubject: opts.MaxMsgsPerRoom,
		Discard:           jetstream.DiscardOld,
		Storage:           jetstream.FileStorage,
	}
	stream, err := js.Stream(ctx, opts.StreamName)
	if err != nil {
		log.Info("Stream not found, attempting to create", "stream", opts.StreamName)
		stream, err = js.CreateStream(ctx, streamCfg)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream '%s': %w", opts.StreamName, err)
		}
		log.Info("Stream created", "stream", opts.StreamName)
	} else {
		log.Info("Found existing stream", "stream", stream.CachedInfo().Config.Name)
		if _, err = js.UpdateStream(ctx, streamCfg); err != nil {
			log.Warn("Could not update stream limits", "stream", opts.StreamName, "error", err)
		}
	}

	return &NatsService{js: js, nc: nc, log: log, opts: opts}, nil
}

// Close drains subscriptions then closes the connection.
func (s *NatsService) Close() {
	if s.nc == nil {
		return
	}
	if err := s.nc.Drain(); err != nil {
		s.log.Warn("NATS drain failed", "error", err)
		s.nc.Close()
	}
}

// Healthy reports whether the connection is currently up.
func (s *NatsService) Healthy() bool {
	return s.nc != nil && s.nc.IsConnected()
}

// Publish sends a message to its room subject through JetStream.
func (s *NatsService) Publish(ctx context.Context, msg models.ChatMessage) error {
	subject := s.subject(msg.RoomID)
	msgData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if _, err = s.js.Publish(ctx, subject, msgData); err != nil {
		return fmt.Errorf("failed to publish message to subject '%s': %w", subject, err)
	}
	s.log.Debug("Published message", "subject", subject, "sender", msg.Sender)
	return nil
}

// Subscribe delivers live messages of a room to handler. A core NATS
// subscription hands messages to its callback one at a time, in order.
func (s *NatsService) Subscribe(roomID string, handler func(models.ChatMessage)) (chat.Subscription, error) {
	subject := s.subject(roomID)
	sub, err := s.nc.Subscribe(subject, func(m *nats.Msg) {
		var msg models.ChatMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			s.log.Error("Error unmarshaling message", "subject", m.Subject, "error", err)
			return
		}
		handler(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to subject '%s': %w", subject, err)
	}
	s.log.Debug("Subscribed", "subject", subject)
	return sub, nil
}

// Replay reads a room's persisted log with an ordered consumer and returns
// at most the newest limit messages, oldest first. limit <= 0 returns all.
func (s *NatsService) Replay(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	subject := s.subject(roomID)
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	cons, err := s.js.OrderedConsumer(ctx, s.opts.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for subject '%s': %w", subject, err)
	}
	info, err := cons.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("consumer info for subject '%s': %w", subject, err)
	}

	pending := int(info.NumPending)
	var out []models.ChatMessage
	for read := 0; read < pending; {
		batch, err := cons.Fetch(min(pending-read, 256), jetstream.FetchMaxWait(s.opts.Timeout))
		if err != nil {
			return nil, fmt.Errorf("fetch from subject '%s': %w", subject, err)
		}
		got := 0
		for jsMsg := range batch.Messages() {
			got++
			var msg models.ChatMessage
			if err := json.Unmarshal(jsMsg.Data(), &msg); err != nil {
				s.log.Warn("Skipping undecodable message", "subject", subject, "error", err)
				continue
			}
			out = append(out, msg)
			if limit > 0 && len(out) > limit {
				out = out[1:]
			}
		}
		if err := batch.Error(); err != nil {
			return nil, fmt.Errorf("fetch from subject '%s': %w", subject, err)
		}
		if got == 0 {
			break
		}
		read += got
	}
	return out, nil
}

// subject generates the NATS subject for a room
func (s *NatsService) subject(roomID string) string {
	return fmt.Sprintf("%s.%s", s.opts.SubjectPrefix, roomID)
}
