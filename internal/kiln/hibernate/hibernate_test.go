package hibernate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentic-metallurgy/kiln/internal/kiln/backoff"
)

func TestNewDefaultsProbeInterval(t *testing.T) {
	c := New(0, nil, nil)
	if c.ProbeInterval() != 5*time.Minute {
		t.Errorf("expected default probe interval of 5m, got %v", c.ProbeInterval())
	}
}

func TestEnterIsIdempotentAndSetsHibernating(t *testing.T) {
	c := New(time.Minute, nil, nil)
	if c.Hibernating() {
		t.Fatal("expected a fresh controller not to be hibernating")
	}
	c.Enter()
	c.Enter()
	if !c.Hibernating() {
		t.Error("expected Hibernating() true after Enter")
	}
}

func TestProbeNoOpWhenNotHibernating(t *testing.T) {
	c := New(time.Minute, nil, nil)
	var called atomic.Bool
	c.Probe(context.Background(), func(ctx context.Context) bool {
		called.Store(true)
		return true
	})
	if called.Load() {
		t.Error("expected Probe to skip calling probeFn when not hibernating")
	}
}

func TestProbeResumesOnSuccessAndResetsBackoff(t *testing.T) {
	bc := backoff.New(30*time.Second, 300*time.Second)
	bc.OnCycleOutcome(false)
	bc.OnCycleOutcome(false)

	c := New(time.Minute, bc, nil)
	c.Enter()

	c.Probe(context.Background(), func(ctx context.Context) bool { return true })

	if c.Hibernating() {
		t.Error("expected Probe success to exit hibernation")
	}
	if bc.ConsecutiveFailures() != 0 {
		t.Errorf("expected backoff reset on resume, got %d consecutive failures", bc.ConsecutiveFailures())
	}
}

func TestProbeStaysHibernatingOnFailure(t *testing.T) {
	c := New(time.Minute, nil, nil)
	c.Enter()

	c.Probe(context.Background(), func(ctx context.Context) bool { return false })

	if !c.Hibernating() {
		t.Error("expected Probe failure to remain hibernating")
	}
}

func TestCronSweeperScheduleStartStop(t *testing.T) {
	s := NewCronSweeper(nil, nil)
	if err := s.Schedule("*/1 * * * *", func() {}); err != nil {
		t.Fatalf("unexpected error scheduling job: %v", err)
	}
	s.Start()
	s.Start() // idempotent
	s.Stop()
	s.Stop() // idempotent
}
