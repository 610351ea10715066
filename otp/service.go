// Package otp issues and verifies the one-time codes used at registration.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"sync"
	"time"

	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultTTL = 10 * time.Minute
	// One send every 30 seconds per mobile, with a burst of 3.
	sendInterval = 30 * time.Second
	sendBurst    = 3
	limiterIdle  = 15 * time.Minute
)

var mobilePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// ValidMobile reports whether mobile is a 10-digit Indian mobile number.
func ValidMobile(mobile string) bool {
	return mobilePattern.MatchString(mobile)
}

type entry struct {
	code    string
	expires time.Time
	purge   *time.Timer
}

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

type Service struct {
	log     *slog.Logger
	sender  Sender
	metrics *metrics.Metrics
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	codes     map[string]*entry
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

func NewService(log *slog.Logger, sender Sender, m *metrics.Metrics, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		log:      log,
		sender:   sender,
		metrics:  m,
		ttl:      ttl,
		now:      time.Now,
		codes:    make(map[string]*entry),
		limiters: make(map[string]*limiterEntry),
	}
}

// Send issues a fresh code for mobile, replacing any pending one.
func (s *Service) Send(ctx context.Context, mobile string) error {
	const op = "otp.Send"
	if !ValidMobile(mobile) {
		return apperrors.Validation(op, "Please enter a valid 10-digit Indian mobile number")
	}
	if !s.allow(mobile) {
		return apperrors.RateLimited(op, "Too many OTP requests, please wait before retrying")
	}
	code, err := generateCode()
	if err != nil {
		return apperrors.Transient(op, err)
	}
	if err = s.sender.Send(ctx, mobile, code); err != nil {
		s.log.Error("Failed to send OTP", "mobile", mobile, "error", err)
		return apperrors.Transient(op, fmt.Errorf("send otp: %w", err))
	}
	s.store(mobile, code)
	s.metrics.OTPSent.Inc()
	return nil
}

// Verify consumes the pending code of mobile when it matches. A mismatch
// keeps the code so the user can retry until it expires.
func (s *Service) Verify(mobile, code string) error {
	const op = "otp.Verify"
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.codes[mobile]
	switch {
	case !ok:
		s.metrics.OTPVerifications.WithLabelValues("missing").Inc()
		return apperrors.NotFound(op, "OTP expired or not found")
	case s.now().After(e.expires):
		s.deleteLocked(mobile, e)
		s.metrics.OTPVerifications.WithLabelValues("expired").Inc()
		return apperrors.Validation(op, "OTP expired")
	case e.code != code:
		s.metrics.OTPVerifications.WithLabelValues("invalid").Inc()
		return apperrors.Validation(op, "Invalid OTP")
	}
	s.deleteLocked(mobile, e)
	s.metrics.OTPVerifications.WithLabelValues("ok").Inc()
	return nil
}

func (s *Service) store(mobile, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.codes[mobile]; ok {
		old.purge.Stop()
	}
	e := &entry{code: code, expires: s.now().Add(s.ttl)}
	e.purge = time.AfterFunc(s.ttl, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.codes[mobile] == e {
			delete(s.codes, mobile)
		}
	})
	s.codes[mobile] = e
}

func (s *Service) deleteLocked(mobile string, e *entry) {
	e.purge.Stop()
	delete(s.codes, mobile)
}

func (s *Service) allow(mobile string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) > time.Minute {
		for k, l := range s.limiters {
			if now.Sub(l.lastSeen) > limiterIdle {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}
	l, ok := s.limiters[mobile]
	if !ok {
		l = &limiterEntry{l: rate.NewLimiter(rate.Every(sendInterval), sendBurst)}
		s.limiters[mobile] = l
	}
	l.lastSeen = now
	return l.l.AllowN(now, 1)
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("otp entropy: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
