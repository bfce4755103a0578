// Package poller implements the top-level Poller: the fetch/diff/dispatch/
// sleep loop (§4.6) that ties every other core component together.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentic-metallurgy/kiln/internal/kiln/backoff"
	"github.com/agentic-metallurgy/kiln/internal/kiln/hibernate"
	"github.com/agentic-metallurgy/kiln/internal/kiln/kerrors"
	"github.com/agentic-metallurgy/kiln/internal/kiln/labels"
	"github.com/agentic-metallurgy/kiln/internal/kiln/raceguard"
	"github.com/agentic-metallurgy/kiln/internal/kiln/reactor"
	"github.com/agentic-metallurgy/kiln/internal/kiln/reset"
	"github.com/agentic-metallurgy/kiln/internal/kiln/runner"
	"github.com/agentic-metallurgy/kiln/internal/kiln/trigger"
	"github.com/agentic-metallurgy/kiln/internal/kiln/yolo"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

// Store is the persistence capability the Poller needs: comment cursors and
// run history. A concrete implementation lives in internal/store.
type Store interface {
	GetCommentCursor(repo string, id int) (*time.Time, error)
	SetCommentCursor(repo string, id int, t time.Time) error
	RecordRunHistory(repo string, id int, workflow, sessionID, outcome string, startedAt, finishedAt time.Time) error
}

// Executor is the WorkflowExecutor capability: run one stage, return outcome.
type Executor interface {
	RunStage(ctx context.Context, item ticket.Item, stage string) (runner.Outcome, string, error)
	// RunEdit runs the in-place Edit workflow for one comment and returns the
	// full new issue body to persist (§4.7). It must not write the body
	// itself — the Reactor owns the single UpdateBody call.
	RunEdit(ctx context.Context, item ticket.Item, stage string, comment ticket.Comment, currentBody string) (newBody string, outcome runner.Outcome, err error)
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the component logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Poller) { p.log = log.With(slog.String("component", "poller")) }
}

// WithBaseInterval overrides the default 30s base interval.
func WithBaseInterval(d time.Duration) Option {
	return func(p *Poller) { p.baseInterval = d }
}

// WithMaxConcurrent overrides the default RunnerPool capacity of 3.
func WithMaxConcurrent(n int) Option {
	return func(p *Poller) { p.maxConcurrent = n }
}

// WithStaleThreshold overrides the default 1h stall threshold.
func WithStaleThreshold(d time.Duration) Option {
	return func(p *Poller) { p.staleThreshold = d }
}

// WithAllowedActor sets the single authorized human actor (§7
// ALLOWED_USERNAME) permitted to trigger workflows and have its comments
// acted on, distinct from the daemon's own identity. Omitted (or empty)
// disables the allowlist check — production configuration always supplies
// one; config.Validate rejects startup without it.
func WithAllowedActor(actor string) Option {
	return func(p *Poller) { p.allowedActor = actor }
}

// WithDependencyChecker wires the §11 "Depends on #N" dispatch-ordering
// capability into TriggerPolicy rule 4. Omitted, dependency checking is
// disabled (every item is treated as having no pending dependency).
func WithDependencyChecker(dc trigger.DependencyChecker) Option {
	return func(p *Poller) { p.deps = dc }
}

// WithWatchedStatuses overrides the default watched-status set (§6
// WATCHED_STATUSES) that TriggerPolicy rule 4 dispatches against. Omitted,
// labels.WatchedStatuses() is used.
func WithWatchedStatuses(statuses []string) Option {
	return func(p *Poller) { p.watchedStatuses = statuses }
}

// Poller is the top-level loop. It owns the BackoffController and the
// RunnerPool; it composes RaceGuard, TriggerPolicy, YoloController, and
// HibernationControl.
type Poller struct {
	adapter  ticket.Adapter
	store    Store
	executor Executor
	identity string
	boards   []ticket.BoardRef

	log *slog.Logger

	baseInterval    time.Duration
	maxConcurrent   int
	staleThreshold  time.Duration
	prCloser        reset.PRCloser
	allowedActor    string
	deps            trigger.DependencyChecker
	watchedStatuses []string

	guard     *raceguard.Guard
	pool      *runner.Pool
	backoffC  *backoff.Controller
	hibernate *hibernate.Controller
	reactor   *reactor.Reactor
	reset     *reset.Controller
}

// WithPRCloser wires the optional PR-cleanup capability into the
// ResetController; a nil or omitted PRCloser means reset skips that step.
func WithPRCloser(pc reset.PRCloser) Option {
	return func(p *Poller) { p.prCloser = pc }
}

// execAsEditRunner adapts an Executor to reactor.EditRunner.
type execAsEditRunner struct{ exec Executor }

func (e execAsEditRunner) RunEdit(ctx context.Context, item ticket.Item, stage string, comment ticket.Comment, currentBody string) (string, runner.Outcome, error) {
	return e.exec.RunEdit(ctx, item, stage, comment, currentBody)
}

// New constructs a Poller for the given boards, wiring the RaceGuard and
// RunnerPool against adapter/store/executor.
func New(ctx context.Context, adapter ticket.Adapter, store Store, exec Executor, identity string, boards []ticket.BoardRef, opts ...Option) *Poller {
	p := &Poller{
		adapter:        adapter,
		store:          store,
		executor:       exec,
		identity:       identity,
		boards:         boards,
		log:            slog.Default().With(slog.String("component", "poller")),
		baseInterval:   30 * time.Second,
		maxConcurrent:  3,
		staleThreshold: time.Hour,
	}
	for _, o := range opts {
		o(p)
	}

	p.guard = raceguard.New(adapter, identity, p.log)
	p.pool = runner.New(ctx, p.guard, p.maxConcurrent, p.staleThreshold, p.log)
	p.backoffC = backoff.New(p.baseInterval, 300*time.Second)
	p.hibernate = hibernate.New(5*time.Minute, p.backoffC, p.log)
	p.reactor = reactor.New(adapter, p.guard, execAsEditRunner{exec}, identity, p.allowedActor, p.log)
	p.reset = reset.New(adapter, p.prCloser, p.log)
	return p
}

// Run is the blocking top-level loop. It returns nil when ctx is cancelled
// and all in-flight workflows have drained. A non-nil error return is always
// a *kerrors.Error of KindConfiguration or KindAuthorization (§6 process
// lifecycle: "non-zero on fatal configuration or authentication error");
// the caller (cmd/kiln) is responsible for the process exit code.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller starting", slog.Int("boards", len(p.boards)), slog.Duration("base_interval", p.baseInterval))

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopping, draining active workflows")
			p.pool.Wait()
			p.log.Info("poller stopped")
			return nil
		default:
		}

		if p.hibernate.Hibernating() {
			p.hibernate.Probe(ctx, p.probeOnce)
			if !backoff.Sleep(ctx, p.hibernate.ProbeInterval()) {
				continue
			}
			continue
		}

		success, fatalErr := p.cycle(ctx)
		if fatalErr != nil {
			p.log.Error("fatal adapter error, exiting", slog.Any("error", fatalErr))
			p.pool.Wait()
			return fatalErr
		}
		sleep := p.backoffC.OnCycleOutcome(success)
		backoff.Sleep(ctx, sleep)
	}
}

// probeOnce is used by HibernationControl to check whether the platform has
// come back; a successful ListItems on the first board is enough.
func (p *Poller) probeOnce(ctx context.Context) bool {
	if len(p.boards) == 0 {
		return true
	}
	_, err := p.adapter.ListItems(ctx, p.boards[0].Board)
	return err == nil
}

// cycle runs one fetch/diff/dispatch pass over every configured board and
// sweeps the pool for stale runs. Returns true if the cycle succeeded (every
// board listed without error) for BackoffController purposes, and a
// non-nil fatalErr if a board fetch returned a fatal configuration or
// authorization error.
func (p *Poller) cycle(ctx context.Context) (success bool, fatalErr error) {
	overallSuccess := true

	for _, board := range p.boards {
		items, err := p.adapter.ListItems(ctx, board.Board)
		if err != nil {
			if kerrors.Fatal(err) {
				return false, err
			}
			if kerrors.PlatformDown(err) {
				p.log.Warn("platform unreachable, entering hibernation", slog.String("board", board.Board), slog.Any("error", err))
				p.hibernate.Enter()
				overallSuccess = false
				continue
			}
			// SchemaError or unknown: skip this board, record failure, keep going.
			p.log.Warn("failed to list items for board, skipping", slog.String("board", board.Board), slog.Any("error", err))
			overallSuccess = false
			continue
		}

		for _, item := range items {
			p.handleItem(ctx, item)
		}
	}

	p.pool.Sweep()
	return overallSuccess, nil
}

func (p *Poller) handleItem(ctx context.Context, item ticket.Item) {
	cursor, err := p.store.GetCommentCursor(item.Repo, item.ID)
	if err != nil {
		p.log.Warn("failed to load comment cursor", slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.Any("error", err))
	}

	var newComments []ticket.Comment
	if item.Status == labels.StatusResearch || item.Status == labels.StatusPlan {
		comments, err := p.adapter.ListCommentsSince(ctx, item.Repo, item.ID, cursor)
		if err != nil {
			p.log.Warn("failed to list comments", slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.Any("error", err))
		}
		newComments = p.filterActionableComments(comments)
	}

	decision := trigger.Evaluate(item, cursor, p.pool, p.deps, newComments, p.watchedStatuses...)

	switch decision.Kind {
	case trigger.None:
		return
	case trigger.RecoverStaleRunning:
		if err := p.guard.StripStale(ctx, item.Repo, item.ID, decision.RunningLabel); err != nil {
			p.log.Warn("failed to strip stale running label", slog.Any("error", err))
		}
	case trigger.RunWorkflow:
		if !p.statusActorAllowed(ctx, item) {
			return
		}
		p.dispatch(ctx, item, decision.Stage)
	case trigger.Advance:
		yolo.Advance(ctx, p.adapter, p.log, item, decision.NextStatus)
	case trigger.IterateComment:
		p.dispatchCommentEdit(ctx, item, decision.Comment)
	case trigger.Cleanup:
		p.cleanup(ctx, item)
	case trigger.Reset:
		p.reset.Apply(ctx, item)
	}
}

// filterActionableComments drops comments the CommentReactor must never act
// on (§4.7/§7): those the daemon itself authored, and any not from the
// single authorized actor. Filtering here, before TriggerPolicy picks the
// oldest actionable comment, keeps a self-authored or unauthorized comment
// from permanently blocking cursor advancement over later, legitimate ones.
func (p *Poller) filterActionableComments(comments []ticket.Comment) []ticket.Comment {
	if len(comments) == 0 {
		return nil
	}
	out := make([]ticket.Comment, 0, len(comments))
	for _, c := range comments {
		if c.Author == p.identity {
			continue
		}
		if p.allowedActor != "" && c.Author != p.allowedActor {
			continue
		}
		out = append(out, c)
	}
	return out
}

// statusActorAllowed implements §7's authorization gate in front of rule 4:
// unauthorized actors never trigger workflows. A status change authored by
// this daemon itself (e.g. a prior yolo Advance) is always allowed through —
// that is normal pipeline continuation, not an external trigger — and the
// single configured allowed actor is allowed through as well. Anything else,
// including an actor the adapter could not resolve, is blocked.
func (p *Poller) statusActorAllowed(ctx context.Context, item ticket.Item) bool {
	actor, err := p.adapter.LastStatusActor(ctx, item.Repo, item.ID)
	if err != nil {
		p.log.Warn("failed to resolve last status actor, skipping dispatch",
			slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.Any("error", err))
		return false
	}
	if actor == p.identity {
		p.log.Debug("status transition self-authored, proceeding",
			slog.String("repo", item.Repo), slog.Int("id", item.ID))
		return true
	}
	if p.allowedActor != "" && actor == p.allowedActor {
		return true
	}
	p.log.Warn("ignoring status transition from unauthorized actor",
		slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.String("actor", actor))
	return false
}

func (p *Poller) dispatch(ctx context.Context, item ticket.Item, stage string) {
	running := labels.RunningLabel(stage)
	if running == "" {
		return
	}
	ready := labels.ReadyLabel(stage)
	failure := labels.FailureLabel(stage)

	if err := p.guard.Claim(ctx, item.Repo, item.ID, running, item.Labels); err != nil {
		if err != raceguard.ErrRaceLost {
			p.log.Warn("claim failed", slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.Any("error", err))
		}
		return
	}

	key := runner.RunKey{Repo: item.Repo, TicketID: item.ID, RunningLabel: running}
	dispatched := p.pool.TryDispatch(runner.Work{
		Key:          key,
		Stage:        stage,
		Claimer:      p.identity,
		ReadyLabel:   ready,
		FailureLabel: failure,
		Run: func(runCtx context.Context) (runner.Outcome, error) {
			started := time.Now()
			outcome, sessionID, err := p.executor.RunStage(runCtx, item, stage)
			finished := time.Now()
			histOutcome := "success"
			if outcome == runner.OutcomeFailure {
				histOutcome = "failure"
			} else if outcome == runner.OutcomeCancelled {
				histOutcome = "cancelled"
			}
			if recErr := p.store.RecordRunHistory(item.Repo, item.ID, stage, sessionID, histOutcome, started, finished); recErr != nil {
				p.log.Warn("failed to record run history", slog.Any("error", recErr))
			}
			return outcome, err
		},
	})

	if !dispatched {
		// Pool at capacity or already running locally: release the claim by
		// removing the just-added running label so the next cycle can retry.
		_ = p.guard.Release(ctx, item.Repo, item.ID, running, "", "", raceguard.Cancelled)
	}
}

// dispatchCommentEdit runs the CommentReactor for one actionable comment
// under the RunnerPool's concurrency bookkeeping. The Reactor owns its own
// claim/release sequence (§4.7), so the pool is only asked for a bounded
// goroutine slot and stall-sweep visibility, not label lifecycle management.
func (p *Poller) dispatchCommentEdit(ctx context.Context, item ticket.Item, comment ticket.Comment) {
	key := runner.RunKey{Repo: item.Repo, TicketID: item.ID, RunningLabel: labels.RunningEditing}
	dispatched := p.pool.TryDispatchUnmanaged(key, p.identity, "edit:"+item.Status, func(runCtx context.Context) {
		if p.reactor.Handle(runCtx, item, item.Status, comment) {
			if err := p.store.SetCommentCursor(item.Repo, item.ID, comment.CreatedAt); err != nil {
				p.log.Warn("failed to advance comment cursor", slog.Any("error", err))
			}
		}
	})
	if !dispatched {
		p.log.Info("skipped comment edit dispatch, pool full or already running",
			slog.String("repo", item.Repo), slog.Int("id", item.ID))
	}
}

func (p *Poller) cleanup(ctx context.Context, item ticket.Item) {
	if item.HasLabel(labels.MarkerCleanedUp) {
		return
	}
	if err := p.adapter.AddLabel(ctx, item.Repo, item.ID, labels.MarkerCleanedUp); err != nil {
		p.log.Warn("failed to mark item cleaned up", slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.Any("error", err))
	}
}

// Pool exposes the underlying RunnerPool for observability/testing.
func (p *Poller) Pool() *runner.Pool { return p.pool }

// Backoff exposes the underlying BackoffController for observability/testing.
func (p *Poller) Backoff() *backoff.Controller { return p.backoffC }
