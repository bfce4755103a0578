// Package trigger implements the TriggerPolicy: a pure function deciding,
// for one item, which action (if any) the core should take this cycle.
package trigger

import (
	"time"

	"github.com/agentic-metallurgy/kiln/internal/kiln/labels"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

// Kind identifies the shape of a Decision.
type Kind int

const (
	// None: do nothing this cycle.
	None Kind = iota
	// RunWorkflow: start the given stage under its running label.
	RunWorkflow
	// IterateComment: respond to a new actionable comment via the in-place editor.
	IterateComment
	// Advance: yolo status transition.
	Advance
	// Cleanup: item is in Done/Closed; release resources, mark cleaned_up.
	Cleanup
	// Reset: the reset control label is present; hand off to ResetController.
	Reset
	// RecoverStaleRunning: a running label exists with no owning local run; strip it.
	RecoverStaleRunning
)

// Decision is the TriggerPolicy's verdict for one item this cycle.
type Decision struct {
	Kind         Kind
	Stage        string // status/stage name, for RunWorkflow
	NextStatus   string // for Advance
	Comment      ticket.Comment
	RunningLabel string // the stale running label, for RecoverStaleRunning
}

// ActiveRunChecker answers "does the RunnerPool have a live RunRecord for
// this item", backing rule 3's stale-recovery check. It is an interface so
// trigger stays a pure, dependency-free package testable without a real pool.
type ActiveRunChecker interface {
	HasActiveRun(repo string, id int) bool
}

// DependencyChecker reports whether item still has an open dependency
// (§11 supplemented feature: "Depends on #N" / "Blocked by #N" deferral).
// A nil DependencyChecker disables the check.
type DependencyChecker interface {
	HasPendingDependency(item ticket.Item) bool
}

// Evaluate implements the ordered rule set of §4.2. cursor is the last
// comment timestamp the reactor has already considered for this item (nil
// if never set). pool reports locally active runs; deps may be nil. watched
// overrides the configured watched-status set (§6 WATCHED_STATUSES); when
// omitted, labels.WatchedStatuses() is used.
func Evaluate(item ticket.Item, cursor *time.Time, pool ActiveRunChecker, deps DependencyChecker, newComments []ticket.Comment, watched ...string) Decision {
	// Rule 1: reset label present.
	if item.HasLabel(labels.ControlReset) {
		return Decision{Kind: Reset}
	}

	// Rule 2: closed or Done -> Cleanup.
	if !item.Open || item.Status == labels.StatusDone {
		return Decision{Kind: Cleanup}
	}

	// Rule 3: running label present but pool reports no active local run ->
	// candidate for stale recovery. This instance not recognizing the run is
	// necessary but not sufficient: the label may belong to a second live
	// instance. RaceGuard.StripStale performs the authoritative
	// last-actor-is-self check before actually removing anything, so the
	// RecoverStaleRunning decision here is only ever a proposal.
	if running := labels.RunningLabelOf(item.Labels); running != "" {
		if pool == nil || !pool.HasActiveRun(item.Repo, item.ID) {
			return Decision{Kind: RecoverStaleRunning, RunningLabel: running}
		}
		return Decision{Kind: None}
	}

	// Rule 4: watched status, no running label, no matching ready label -> RunWorkflow.
	if isWatchedStage(item.Status, watched) {
		ready := labels.ReadyLabel(item.Status)
		if ready == "" || !item.HasLabel(ready) {
			if deps != nil && deps.HasPendingDependency(item) {
				return Decision{Kind: None}
			}
			return Decision{Kind: RunWorkflow, Stage: item.Status}
		}
	}

	// Rule 5: ready + yolo -> Advance.
	if item.Status == labels.StatusResearch || item.Status == labels.StatusPlan {
		ready := labels.ReadyLabel(item.Status)
		if ready != "" && item.HasLabel(ready) && item.HasLabel(labels.ControlYolo) {
			next := labels.AdvanceStatus(item.Status)
			if next != "" {
				return Decision{Kind: Advance, NextStatus: next}
			}
		}
	}

	// Rule 6: Research/Plan with new comments past the cursor -> IterateComment.
	if item.Status == labels.StatusResearch || item.Status == labels.StatusPlan {
		if c, ok := oldestActionable(newComments, cursor); ok {
			return Decision{Kind: IterateComment, Comment: c}
		}
	}

	// Rule 7.
	return Decision{Kind: None}
}

func isWatchedStage(status string, watched []string) bool {
	if len(watched) == 0 {
		watched = labels.WatchedStatuses()
	}
	for _, s := range watched {
		if s == status {
			return true
		}
	}
	return false
}

// oldestActionable returns the oldest comment strictly newer than cursor.
// newComments is expected to already be filtered by author (self/allowlist)
// before reaching Evaluate — the Poller does this, since it holds the actor
// configuration Evaluate itself is deliberately kept free of. This function
// only enforces cursor monotonicity.
func oldestActionable(comments []ticket.Comment, cursor *time.Time) (ticket.Comment, bool) {
	var best ticket.Comment
	found := false
	for _, c := range comments {
		if cursor != nil && !c.CreatedAt.After(*cursor) {
			continue
		}
		if !found || c.CreatedAt.Before(best.CreatedAt) {
			best = c
			found = true
		}
	}
	return best, found
}
