// ABOUTME: Tests for backoff calculation and the generic retry wrapper
// ABOUTME: Verifies bounds, jitter range, and context cancellation
package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalculateBackoffZeroAttempt(t *testing.T) {
	if d := CalculateBackoff(time.Second, 0); d != 0 {
		t.Errorf("CalculateBackoff(_, 0) = %v, want 0", d)
	}
	if d := CalculateBackoff(time.Second, -1); d != 0 {
		t.Errorf("CalculateBackoff(_, -1) = %v, want 0", d)
	}
}

func TestCalculateBackoffGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 1; attempt <= 10; attempt++ {
		d := CalculateBackoff(base, attempt)
		// Jitter is bounded by ±25% of the capped exponential value.
		if d < 0 {
			t.Errorf("attempt %d: backoff %v is negative", attempt, d)
		}
		if d > 30*time.Second+30*time.Second/4 {
			t.Errorf("attempt %d: backoff %v exceeds cap with jitter", attempt, d)
		}
	}

	// Deep attempts stay pinned near the cap instead of overflowing.
	if d := CalculateBackoff(base, 100); d <= 0 || d > 40*time.Second {
		t.Errorf("CalculateBackoff(_, 100) = %v, out of range", d)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, 5*time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	wantErr := errors.New("persistent")
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, 5*time.Millisecond, func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Retry() error = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, 5, time.Hour, time.Hour, func() error {
		calls++
		return errors.New("always")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after cancellation)", calls)
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), 0, time.Millisecond, time.Millisecond, func() error {
		calls++
		return nil
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
