package search

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_SucceedsOnNthAttempt(t *testing.T) {
	var calls atomic.Int32
	transientErr := fmt.Errorf("connection reset")
	err := RetryWithBackoff(context.Background(), DefaultRetryConfig(), func() error {
		n := calls.Add(1)
		if n < 3 {
			return transientErr
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error after retries, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestRetryWithBackoff_ExhaustsAllAttempts(t *testing.T) {
	transientErr := fmt.Errorf("timeout")
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
	err := RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return transientErr
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if err.Error() != "timeout" {
		t.Fatalf("expected last error 'timeout', got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}
	// Cancel after first attempt completes.
	err := RetryWithBackoff(ctx, cfg, func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return fmt.Errorf("connection reset")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestRetryWithBackoff_ExponentialDelay(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}

	var timestamps []time.Time
	_ = RetryWithBackoff(context.Background(), cfg, func() error {
		timestamps = append(timestamps, time.Now())
		return fmt.Errorf("timeout")
	})

	if len(timestamps) != 4 {
		t.Fatalf("expected 4 timestamps, got %d", len(timestamps))
	}

	// Check that delays roughly double each time (with ±25% jitter tolerance).
	// Expected: ~50ms, ~100ms, ~200ms between calls.
	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		expectedBase := cfg.InitialDelay
		for j := 1; j < i; j++ {
			expectedBase = time.Duration(float64(expectedBase) * cfg.Multiplier)
		}
		// Allow generous tolerance: 50% of expected base to 200% (jitter + scheduling).
		minGap := time.Duration(float64(expectedBase) * 0.5)
		maxGap := time.Duration(float64(expectedBase) * 2.0)
		if gap < minGap || gap > maxGap {
			t.Errorf("gap[%d] = %v, expected roughly %v (range %v - %v)", i, gap, expectedBase, minGap, maxGap)
		}
	}
}

func TestRetryWithBackoff_MaxDelayCap(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     60 * time.Millisecond,
		Multiplier:   10.0,
	}

	var timestamps []time.Time
	_ = RetryWithBackoff(context.Background(), cfg, func() error {
		timestamps = append(timestamps, time.Now())
		return fmt.Errorf("timeout")
	})

	if len(timestamps) != 4 {
		t.Fatalf("expected 4 timestamps, got %d", len(timestamps))
	}

	// After the first attempt, delays should be capped at MaxDelay (60ms).
	// Gap[1] = 50ms (initial), gap[2] = capped at 60ms, gap[3] = capped at 60ms.
	for i := 2; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		// With jitter and cap at 60ms, gap should be under ~80ms.
		maxAllowed := time.Duration(float64(cfg.MaxDelay) * 1.5)
		if gap > maxAllowed {
			t.Errorf("gap[%d] = %v exceeds max delay cap of %v (with tolerance %v)", i, gap, cfg.MaxDelay, maxAllowed)
		}
	}
}

func TestRetryWithBackoff_NonTransientErrorFailsImmediately(t *testing.T) {
	nonTransientErr := fmt.Errorf("parse error: invalid JSON")
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}
	err := RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return nonTransientErr
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (non-transient should not retry), got %d", calls)
	}
}

func TestRetryWithBackoff_DoesNotRetryQuotaOrCredentialErrors(t *testing.T) {
	for _, target := range []error{ErrRateLimited, ErrInvalidKey, ErrInvalidQuery, ErrNotFound} {
		calls := 0
		err := RetryWithBackoff(context.Background(), DefaultRetryConfig(), func() error {
			calls++
			return fmt.Errorf("search: %w", target)
		})
		if !errors.Is(err, target) {
			t.Fatalf("expected %v, got %v", target, err)
		}
		if calls != 1 {
			t.Fatalf("%v: expected 1 call, got %d", target, calls)
		}
	}
}

func TestRetryWithBackoff_RetriesWrappedNetworkErrors(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	err := RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return fmt.Errorf("search: %w: status 503", ErrNetwork)
	})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err       error
		fatal     bool
		transient bool
	}{
		{ErrInvalidConfiguration, true, false},
		{fmt.Errorf("wrap: %w", ErrInvalidKey), true, false},
		{ErrInvalidQuery, true, false},
		{ErrNetwork, false, true},
		{ErrRateLimited, false, true},
		{ErrNotFound, false, true},
		{context.DeadlineExceeded, false, true},
		{nil, false, false},
	}
	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.fatal {
			t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.fatal)
		}
		if got := IsTransient(tt.err); got != tt.transient {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.transient)
		}
	}
}

func TestRetryBackoffStaysWithinJitterAndCap(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	for i := 0; i < 50; i++ {
		if d := cfg.backoff(1); d < 75*time.Millisecond || d > 125*time.Millisecond {
			t.Fatalf("first pause %v outside 100ms ±25%%", d)
		}
		if d := cfg.backoff(2); d < 150*time.Millisecond || d > 250*time.Millisecond {
			t.Fatalf("second pause %v outside 200ms ±25%%", d)
		}
		if d := cfg.backoff(10); d > cfg.MaxDelay {
			t.Fatalf("pause %v exceeds cap %v", d, cfg.MaxDelay)
		}
	}
}

func TestDefaultRetryConfigFitsDeadline(t *testing.T) {
	cfg := DefaultRetryConfig()
	var worst time.Duration
	for n := 1; n < cfg.MaxAttempts; n++ {
		base := float64(cfg.InitialDelay)
		for i := 1; i < n; i++ {
			base *= cfg.Multiplier
		}
		worst += time.Duration(base * 1.25)
	}
	if worst > 2*time.Second {
		t.Fatalf("default retries may sleep %v, too much of a search deadline", worst)
	}
}
