// Package raceguard implements the claim/release protocol that is the
// central correctness primitive when multiple daemon instances may observe
// the same board (§4.4).
package raceguard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentic-metallurgy/kiln/internal/kiln/kerrors"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

// ErrRaceLost is returned by Claim when a competing actor authored the label
// add. It is not a failure of the daemon; callers should abort the claim
// without treating it as a cycle error.
var ErrRaceLost = kerrors.New(kerrors.KindRaceLost, "raceguard.Claim", fmt.Errorf("competing actor claimed the label first"))

// Guard wraps a ticket.Adapter with the claim/release protocol, scoped to
// this daemon's configured identity.
type Guard struct {
	adapter  ticket.Adapter
	identity string
	log      *slog.Logger
}

// New returns a Guard that treats identity as this daemon's own actor name.
func New(adapter ticket.Adapter, identity string, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{adapter: adapter, identity: identity, log: log.With(slog.String("component", "raceguard"))}
}

// Claim attempts to start stage S (identified by its running label) on item
// (repo, id), per the five-step protocol in §4.4. On success it returns nil.
// On a lost race it returns ErrRaceLost (label is left in place — the winner
// owns it). Any other error is a transport/adapter failure.
func (g *Guard) Claim(ctx context.Context, repo string, id int, runningLabel string, currentLabels []string) error {
	// Step 1/2: label already present locally means either we already hold
	// it (caller should not re-claim) or another instance got there first
	// before this poll even fetched the item.
	for _, l := range currentLabels {
		if l == runningLabel {
			return ErrRaceLost
		}
	}

	// Step 3: add the label. Idempotent at the ticket system by contract.
	if err := g.adapter.AddLabel(ctx, repo, id, runningLabel); err != nil {
		return kerrors.New(kerrors.Classify(err), "raceguard.Claim.AddLabel", err)
	}

	// Step 4: re-read authorship.
	actor, err := g.adapter.LastLabelActor(ctx, repo, id, runningLabel)
	if err != nil {
		return kerrors.New(kerrors.Classify(err), "raceguard.Claim.LastLabelActor", err)
	}

	if actor != g.identity {
		// Resolved open question: an unrecognized third identity is treated
		// exactly like a known competitor — any non-self actor wins.
		g.log.Info("race lost, another actor authored the claim",
			slog.String("repo", repo), slog.Int("id", id),
			slog.String("label", runningLabel), slog.String("actor", actor))
		return ErrRaceLost
	}

	// Step 5: claim succeeded.
	return nil
}

// ReleaseOutcome is the terminal outcome of a claimed workflow.
type ReleaseOutcome int

const (
	// Success: workflow completed and produced output.
	Success ReleaseOutcome = iota
	// Failure: workflow ran but did not succeed.
	Failure
	// Cancelled: the run was cancelled (shutdown or stall sweep).
	Cancelled
)

// Release implements the commit-point of a workflow's terminal outcome: the
// running label is always removed; on success the ready label (if any) is
// added; on failure the failure label (if any) is added. The adapter may
// require two calls; interleaving is tolerated because both additions are
// idempotent and removal of the running label is the single commit-point.
func (g *Guard) Release(ctx context.Context, repo string, id int, runningLabel, readyLabel, failureLabel string, outcome ReleaseOutcome) error {
	switch outcome {
	case Success:
		if readyLabel != "" {
			if err := g.adapter.AddLabel(ctx, repo, id, readyLabel); err != nil {
				g.log.Warn("failed to add ready label before releasing running label",
					slog.String("repo", repo), slog.Int("id", id), slog.Any("error", err))
			}
		}
	case Failure:
		if failureLabel != "" {
			if err := g.adapter.AddLabel(ctx, repo, id, failureLabel); err != nil {
				g.log.Warn("failed to add failure label before releasing running label",
					slog.String("repo", repo), slog.Int("id", id), slog.Any("error", err))
			}
		}
	case Cancelled:
		// No label added; running label removal below is the only effect.
	}

	if err := g.adapter.RemoveLabel(ctx, repo, id, runningLabel); err != nil {
		return kerrors.New(kerrors.Classify(err), "raceguard.Release.RemoveLabel", err)
	}
	return nil
}

// StripStale removes a stale running label, but only when this daemon's own
// identity is the last actor who authored it (§4.6). The RunnerPool having
// no local record of a run is necessary but not sufficient evidence the
// label is abandoned — a second live instance may legitimately own it, and
// stripping its running label out from under it would violate the
// at-most-one-running invariant RaceGuard exists to protect. When a
// different (or unresolved) actor owns the label, it is left in place and
// nil is returned: this instance simply isn't the one to recover it.
func (g *Guard) StripStale(ctx context.Context, repo string, id int, runningLabel string) error {
	actor, err := g.adapter.LastLabelActor(ctx, repo, id, runningLabel)
	if err != nil {
		return kerrors.New(kerrors.Classify(err), "raceguard.StripStale.LastLabelActor", err)
	}
	if actor != g.identity {
		g.log.Info("stale running label owned by another actor, leaving in place",
			slog.String("repo", repo), slog.Int("id", id), slog.String("label", runningLabel), slog.String("actor", actor))
		return nil
	}

	if err := g.adapter.RemoveLabel(ctx, repo, id, runningLabel); err != nil {
		return kerrors.New(kerrors.Classify(err), "raceguard.StripStale", err)
	}
	g.log.Info("stripped stale running label", slog.String("repo", repo), slog.Int("id", id), slog.String("label", runningLabel))
	return nil
}
