package otp

import (
	"context"
	"log/slog"
)

// Sender delivers a code to a mobile number, typically by SMS.
type Sender interface {
	Send(ctx context.Context, mobile, code string) error
}

// LogSender writes codes to the log instead of texting them. Development only.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, mobile, code string) error {
	s.log.Info("[DEV] OTP issued", "mobile", mobile, "otp", code)
	return nil
}
