package search

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

// RetryConfig bounds how often a single client call is repeated. Every
// search call is billed against the daily API quota, so only network failures
// are retried and the pauses stay small next to the orchestration deadline.
type RetryConfig struct {
	// MaxAttempts counts the first call. Anything below 1 means one call.
	MaxAttempts int
	// InitialDelay is the pause before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps every pause, jitter included.
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryConfig allows two retries, roughly 400ms then 800ms apart, so a
// task never spends more than about 1.5s of its deadline sleeping.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 400 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
	}
}

// backoff is the pause before retry n (1-based), jittered by ±25%.
func (c RetryConfig) backoff(n int) time.Duration {
	pause := float64(c.InitialDelay)
	growth := max(c.Multiplier, 1)
	for i := 1; i < n && (c.MaxDelay <= 0 || pause < float64(c.MaxDelay)); i++ {
		pause *= growth
	}
	pause *= 0.75 + rand.Float64()*0.5
	if c.MaxDelay > 0 && pause > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(pause)
}

// RetryWithBackoff calls fn until it succeeds, fails with an error that is not
// worth repeating, or runs out of attempts. The last error is returned. A done
// context ends the wait between attempts with ctx.Err().
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || attempt >= attempts || !retryable(err) {
			return err
		}
		if waitErr := sleepContext(ctx, cfg.backoff(attempt)); waitErr != nil {
			return waitErr
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryable accepts connection level failures only. Quota, credential and
// lookup errors would fail the same way again and burn more quota doing it.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrNotFound), IsFatal(err):
		return false
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	message := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused", "tls", "eof"} {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
