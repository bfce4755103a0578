package backoff

import (
	"context"
	"testing"
	"time"
)

func TestOnCycleOutcomeSuccessResetsAndReturnsBase(t *testing.T) {
	c := New(30*time.Second, 300*time.Second)

	c.OnCycleOutcome(false)
	c.OnCycleOutcome(false)
	if c.ConsecutiveFailures() != 2 {
		t.Fatalf("expected 2 consecutive failures, got %d", c.ConsecutiveFailures())
	}

	got := c.OnCycleOutcome(true)
	if got != 30*time.Second {
		t.Errorf("OnCycleOutcome(true) = %v, want 30s", got)
	}
	if c.ConsecutiveFailures() != 0 {
		t.Errorf("expected failure streak reset, got %d", c.ConsecutiveFailures())
	}
}

func TestOnCycleOutcomeFailureDoublesUpToCeiling(t *testing.T) {
	c := New(30*time.Second, 300*time.Second)

	want := []time.Duration{30, 60, 120, 240, 300, 300}
	for i, w := range want {
		got := c.OnCycleOutcome(false)
		if got != w*time.Second {
			t.Errorf("failure %d: OnCycleOutcome(false) = %v, want %v", i+1, got, w*time.Second)
		}
	}
}

func TestReset(t *testing.T) {
	c := New(30*time.Second, 300*time.Second)
	c.OnCycleOutcome(false)
	c.OnCycleOutcome(false)
	c.Reset()
	if c.ConsecutiveFailures() != 0 {
		t.Fatalf("expected Reset to zero the failure streak, got %d", c.ConsecutiveFailures())
	}
	if got := c.OnCycleOutcome(false); got != 30*time.Second {
		t.Errorf("expected first failure after reset to return base, got %v", got)
	}
}

func TestSleepCompletesNormally(t *testing.T) {
	ok := Sleep(context.Background(), 10*time.Millisecond)
	if !ok {
		t.Error("expected Sleep to return true on normal completion")
	}
}

func TestSleepInterruptedByCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := Sleep(ctx, time.Hour)
	if ok {
		t.Error("expected Sleep to return false when context is already cancelled")
	}
}
