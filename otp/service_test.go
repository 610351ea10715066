package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/logging"
	"github.com/karthikraju391/farmconnect/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (c *captureSender) Send(_ context.Context, mobile, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.codes == nil {
		c.codes = make(map[string]string)
	}
	c.codes[mobile] = code
	return nil
}

func (c *captureSender) last(mobile string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[mobile]
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*Service, *captureSender, *clock, *metrics.Metrics) {
	t.Helper()
	sender := &captureSender{}
	clk := &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	m := metrics.New()
	svc := NewService(logging.Discard(), sender, m, DefaultTTL)
	svc.now = clk.now
	return svc, sender, clk, m
}

const mobile = "9876543210"

func TestService_SendAndVerify(t *testing.T) {
	req := require.New(t)
	svc, sender, _, m := newTestService(t)

	req.NoError(svc.Send(context.Background(), mobile))
	code := sender.last(mobile)
	req.Regexp(`^[1-9]\d{5}$`, code)

	req.NoError(svc.Verify(mobile, code))
	// Codes are single use.
	req.ErrorIs(svc.Verify(mobile, code), apperrors.ErrNotFound)

	req.Equal(1.0, testutil.ToFloat64(m.OTPSent))
	req.Equal(1.0, testutil.ToFloat64(m.OTPVerifications.WithLabelValues("ok")))
}

func TestService_VerifyWrongCodeKeepsEntry(t *testing.T) {
	req := require.New(t)
	svc, sender, _, _ := newTestService(t)
	req.NoError(svc.Send(context.Background(), mobile))
	code := sender.last(mobile)

	wrong := "000000"
	err := svc.Verify(mobile, wrong)
	req.ErrorIs(err, apperrors.ErrValidation)
	req.Equal("Invalid OTP", apperrors.MessageOf(err))

	req.NoError(svc.Verify(mobile, code))
}

func TestService_VerifyExpired(t *testing.T) {
	req := require.New(t)
	svc, sender, clk, _ := newTestService(t)
	req.NoError(svc.Send(context.Background(), mobile))
	code := sender.last(mobile)

	clk.advance(DefaultTTL + time.Second)
	err := svc.Verify(mobile, code)
	req.ErrorIs(err, apperrors.ErrValidation)
	req.Equal("OTP expired", apperrors.MessageOf(err))

	// The expired entry is purged.
	req.ErrorIs(svc.Verify(mobile, code), apperrors.ErrNotFound)
}

func TestService_EagerPurge(t *testing.T) {
	req := require.New(t)
	sender := &captureSender{}
	svc := NewService(logging.Discard(), sender, metrics.New(), 20*time.Millisecond)
	req.NoError(svc.Send(context.Background(), mobile))

	req.Eventually(func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return len(svc.codes) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestService_ResendReplacesCode(t *testing.T) {
	req := require.New(t)
	svc, sender, _, _ := newTestService(t)
	req.NoError(svc.Send(context.Background(), mobile))
	first := sender.last(mobile)
	req.NoError(svc.Send(context.Background(), mobile))
	second := sender.last(mobile)

	if first != second {
		req.ErrorIs(svc.Verify(mobile, first), apperrors.ErrValidation)
	}
	req.NoError(svc.Verify(mobile, second))
}

func TestService_SendRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid mobile", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		for _, bad := range []string{"", "12345", "5876543210", "98765432101", "98765abcde"} {
			require.ErrorIs(t, svc.Send(ctx, bad), apperrors.ErrValidation, bad)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		req := require.New(t)
		svc, _, clk, _ := newTestService(t)
		for i := 0; i < sendBurst; i++ {
			req.NoError(svc.Send(ctx, mobile))
		}
		req.ErrorIs(svc.Send(ctx, mobile), apperrors.ErrRateLimited)
		// Other numbers have their own budget.
		req.NoError(svc.Send(ctx, "7000000000"))

		clk.advance(sendInterval)
		req.NoError(svc.Send(ctx, mobile))
		req.ErrorIs(svc.Send(ctx, mobile), apperrors.ErrRateLimited)
	})

	t.Run("sender failure", func(t *testing.T) {
		svc, sender, _, _ := newTestService(t)
		sender.err = errors.New("sms gateway down")
		require.ErrorIs(t, svc.Send(ctx, mobile), apperrors.ErrTransient)
		require.ErrorIs(t, svc.Verify(mobile, "123456"), apperrors.ErrNotFound)
	})
}
