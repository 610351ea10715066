package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// WebSocket timings.
const (
	// Time allowed to write a message to the peer.
	WriteWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	PongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than PongWait.
	PingPeriod = (PongWait * 9) / 10
	// Maximum frame size allowed from peer.
	MaxMessageSize = 4096
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=5000"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	// LogFormat is "json" or "text".
	LogFormat   string `env:"LOG_FORMAT,default=json"`
	FrontendDir string `env:"FRONTEND_DIR"`

	// NatsURL empty means chat fans out through the in-process bus.
	NatsURL          string        `env:"NATS_URL"`
	StreamName       string        `env:"NATS_STREAM,default=FARMCONNECT_CHAT"`
	SubjectPrefix    string        `env:"NATS_SUBJECT_PREFIX,default=farmconnect.chat"`
	StreamMaxAge     time.Duration `env:"NATS_STREAM_MAX_AGE,default=720h"`
	MaxMsgsPerRoom   int           `env:"NATS_MAX_MSGS_PER_ROOM,default=1000"`
	TransportTimeout time.Duration `env:"NATS_TIMEOUT,default=5s"`

	// BadgerPath empty means an in-memory database.
	BadgerPath string `env:"BADGER_PATH"`

	JWTSecret string        `env:"JWT_SECRET,required=true"`
	JWTTTL    time.Duration `env:"JWT_TTL,default=168h"`

	CommissionRate float64 `env:"COMMISSION_RATE,default=0.03"`

	ChatHistoryLimit     int `env:"CHAT_HISTORY_LIMIT,default=500"`
	ChatMaxMessageLength int `env:"CHAT_MAX_MESSAGE_LENGTH,default=2000"`
	ChatSendBuffer       int `env:"CHAT_SEND_BUFFER,default=256"`

	OTPTTL time.Duration `env:"OTP_TTL,default=10m"`
}

// Load reads an optional .env file then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.CommissionRate < 0 || c.CommissionRate > 1 {
		return fmt.Errorf("COMMISSION_RATE must be within [0,1], got %v", c.CommissionRate)
	}
	if c.ChatHistoryLimit < 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must not be negative, got %d", c.ChatHistoryLimit)
	}
	if c.ChatMaxMessageLength <= 0 {
		return fmt.Errorf("CHAT_MAX_MESSAGE_LENGTH must be positive, got %d", c.ChatMaxMessageLength)
	}
	if c.ChatSendBuffer <= 0 {
		return fmt.Errorf("CHAT_SEND_BUFFER must be positive, got %d", c.ChatSendBuffer)
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	return nil
}

func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
