// Package hibernate implements HibernationControl: suspending normal polling
// when the platform is unreachable and probing at a fixed long interval
// until it recovers (§4.10).
package hibernate

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentic-metallurgy/kiln/internal/kiln/backoff"
)

// Controller tracks whether the daemon is currently hibernating and drives
// the probe-and-resume cycle. While hibernating, in-flight runs continue
// (they have their own I/O paths) but the Poller dispatches no new runs.
type Controller struct {
	probeInterval time.Duration
	backoffC      *backoff.Controller
	log           *slog.Logger

	hibernating atomic.Bool
}

// New returns a Controller with the given probe interval (§6
// HIBERNATION_PROBE_INTERVAL, default 5 minutes). backoffC is reset to zero
// on successful resume, per §4.10.
func New(probeInterval time.Duration, backoffC *backoff.Controller, log *slog.Logger) *Controller {
	if probeInterval <= 0 {
		probeInterval = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		probeInterval: probeInterval,
		backoffC:      backoffC,
		log:           log.With(slog.String("component", "hibernate")),
	}
}

// Enter suspends normal polling. Idempotent.
func (c *Controller) Enter() {
	if c.hibernating.CompareAndSwap(false, true) {
		c.log.Warn("entering hibernation", slog.Duration("probe_interval", c.probeInterval))
	}
}

// Hibernating reports whether the controller is currently suspended.
func (c *Controller) Hibernating() bool {
	return c.hibernating.Load()
}

// ProbeInterval returns the configured probe interval.
func (c *Controller) ProbeInterval() time.Duration {
	return c.probeInterval
}

// Probe calls probeFn; on success it resumes normal polling and resets the
// BackoffController's consecutive-failure count to zero.
func (c *Controller) Probe(ctx context.Context, probeFn func(ctx context.Context) bool) {
	if !c.hibernating.Load() {
		return
	}
	if probeFn(ctx) {
		c.hibernating.Store(false)
		if c.backoffC != nil {
			c.backoffC.Reset()
		}
		c.log.Info("platform reachable again, resuming normal polling")
	}
}

// CronSweeper runs a periodic callback on a cron expression, used by
// operators who want the stale-run sweep (or any other periodic
// maintenance job) on a cron schedule rather than the Poller's fixed
// per-cycle cadence. Optional: the Poller's own Sweep() call on every cycle
// already satisfies §4.5 without this.
type CronSweeper struct {
	cron *cron.Cron
	log  *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewCronSweeper builds a sweeper in the given timezone-aware location.
func NewCronSweeper(loc *time.Location, log *slog.Logger) *CronSweeper {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &CronSweeper{
		cron: cron.New(cron.WithLocation(loc)),
		log:  log.With(slog.String("component", "hibernate.cron_sweeper")),
	}
}

// Schedule registers fn to run on the given cron expression (e.g. "*/10 * * * *").
func (s *CronSweeper) Schedule(expr string, fn func()) error {
	_, err := s.cron.AddFunc(expr, fn)
	return err
}

// Start begins running scheduled jobs. Idempotent.
func (s *CronSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.Info("cron sweeper started")
}

// Stop blocks until any in-flight job completes, then stops the scheduler.
func (s *CronSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.log.Info("cron sweeper stopped")
}
