// Package runner implements the RunnerPool: bounded concurrent workflow
// execution with lifecycle tracking (§4.5).
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-metallurgy/kiln/internal/kiln/raceguard"
)

// RunKey uniquely identifies one in-flight workflow.
type RunKey struct {
	Repo        string
	TicketID    int
	RunningLabel string
}

// RunRecord is the in-memory state of a dispatched workflow.
type RunRecord struct {
	Key        RunKey
	SessionID  string
	Stage      string
	Claimer    string
	StartedAt  time.Time
	cancel     context.CancelFunc
}

// Outcome is the terminal result of a workflow execution, as reported by the
// WorkflowExecutor contract.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeCancelled
)

// Work is what the pool runs for one dispatched item. It must respect
// ctx cancellation. readyLabel/failureLabel may be empty.
type Work struct {
	Key          RunKey
	Stage        string
	Claimer      string
	ReadyLabel   string
	FailureLabel string
	Run          func(ctx context.Context) (Outcome, error)
}

// Pool is the bounded concurrent RunnerPool. Capacity is enforced by a
// buffered-channel semaphore, the idiom this module's lineage uses
// throughout for MAX_CONCURRENT-style limits.
type Pool struct {
	guard *raceguard.Guard
	log   *slog.Logger

	maxConcurrent int
	sem           chan struct{}

	mu      sync.Mutex
	active  map[RunKey]*RunRecord
	wg      sync.WaitGroup
	baseCtx context.Context

	staleThreshold time.Duration
}

// New returns a Pool with the given concurrency ceiling and stale-run
// threshold (§4.5 default 1 hour).
func New(baseCtx context.Context, guard *raceguard.Guard, maxConcurrent int, staleThreshold time.Duration, log *slog.Logger) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	if staleThreshold <= 0 {
		staleThreshold = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		guard:          guard,
		log:            log.With(slog.String("component", "runner")),
		maxConcurrent:  maxConcurrent,
		sem:            make(chan struct{}, maxConcurrent),
		active:         make(map[RunKey]*RunRecord),
		baseCtx:        baseCtx,
		staleThreshold: staleThreshold,
	}
}

// HasActiveRun implements trigger.ActiveRunChecker: does the pool have a
// live RunRecord for (repo, id), regardless of which running label it's under.
func (p *Pool) HasActiveRun(repo string, id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.active {
		if k.Repo == repo && k.TicketID == id {
			return true
		}
	}
	return false
}

// TryDispatch attempts to start w. Returns false without starting anything
// if the item is already running locally or the concurrency ceiling is
// reached (non-blocking select on the semaphore, matching the lineage's
// "drop rather than block" queue-full behaviour).
func (p *Pool) TryDispatch(w Work) bool {
	p.mu.Lock()
	if _, exists := p.active[w.Key]; exists {
		p.mu.Unlock()
		return false
	}
	select {
	case p.sem <- struct{}{}:
	default:
		p.mu.Unlock()
		return false
	}

	runCtx, cancel := context.WithCancel(p.baseCtx)
	rec := &RunRecord{
		Key:       w.Key,
		SessionID: uuid.NewString(),
		Stage:     w.Stage,
		Claimer:   w.Claimer,
		StartedAt: time.Now(),
		cancel:    cancel,
	}
	p.active[w.Key] = rec
	p.mu.Unlock()

	p.wg.Add(1)
	go p.execute(runCtx, rec, w)
	return true
}

// TryDispatchUnmanaged is like TryDispatch but does not call guard.Release
// after run returns — used for work (such as the CommentReactor) that owns
// its own claim/release sequence end-to-end and only needs the pool for
// concurrency bookkeeping and stall detection.
func (p *Pool) TryDispatchUnmanaged(key RunKey, claimer, stage string, run func(ctx context.Context)) bool {
	p.mu.Lock()
	if _, exists := p.active[key]; exists {
		p.mu.Unlock()
		return false
	}
	select {
	case p.sem <- struct{}{}:
	default:
		p.mu.Unlock()
		return false
	}

	runCtx, cancel := context.WithCancel(p.baseCtx)
	rec := &RunRecord{
		Key:       key,
		SessionID: uuid.NewString(),
		Stage:     stage,
		Claimer:   claimer,
		StartedAt: time.Now(),
		cancel:    cancel,
	}
	p.active[key] = rec
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		defer func() {
			p.mu.Lock()
			delete(p.active, key)
			p.mu.Unlock()
		}()
		run(runCtx)
	}()
	return true
}

func (p *Pool) execute(ctx context.Context, rec *RunRecord, w Work) {
	defer p.wg.Done()
	defer func() { <-p.sem }()

	outcome, err := w.Run(ctx)
	if err != nil && outcome != OutcomeCancelled {
		p.log.Warn("workflow run returned error",
			slog.String("repo", w.Key.Repo), slog.Int("id", w.Key.TicketID),
			slog.String("stage", w.Stage), slog.Any("error", err))
	}

	var releaseOutcome raceguard.ReleaseOutcome
	switch outcome {
	case OutcomeSuccess:
		releaseOutcome = raceguard.Success
	case OutcomeFailure:
		releaseOutcome = raceguard.Failure
	default:
		releaseOutcome = raceguard.Cancelled
	}

	if p.guard != nil {
		if relErr := p.guard.Release(ctx, w.Key.Repo, w.Key.TicketID, w.Key.RunningLabel, w.ReadyLabel, w.FailureLabel, releaseOutcome); relErr != nil {
			p.log.Error("failed to release running label after workflow terminated",
				slog.String("repo", w.Key.Repo), slog.Int("id", w.Key.TicketID), slog.Any("error", relErr))
		}
	}

	p.mu.Lock()
	delete(p.active, w.Key)
	p.mu.Unlock()
}

// Sweep cancels any RunRecord older than the stale threshold, per §4.5's
// stall detection. The next poll cycle's TriggerPolicy rule 3 will then
// observe no active local run and strip the dangling running label.
func (p *Pool) Sweep() {
	now := time.Now()
	p.mu.Lock()
	var stale []*RunRecord
	for _, rec := range p.active {
		if now.Sub(rec.StartedAt) > p.staleThreshold {
			stale = append(stale, rec)
		}
	}
	p.mu.Unlock()

	for _, rec := range stale {
		p.log.Warn("cancelling stalled run",
			slog.String("repo", rec.Key.Repo), slog.Int("id", rec.Key.TicketID),
			slog.String("stage", rec.Stage), slog.Duration("age", now.Sub(rec.StartedAt)))
		rec.cancel()
	}
}

// Active returns a snapshot of currently active RunRecords, for observability.
func (p *Pool) Active() []RunRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RunRecord, 0, len(p.active))
	for _, rec := range p.active {
		out = append(out, *rec)
	}
	return out
}

// Wait blocks until every dispatched workflow has returned. Used during
// shutdown drain (§5): shutdown is bounded only by the longest-running
// workflow's cooperation with ctx cancellation.
func (p *Pool) Wait() {
	p.wg.Wait()
}
