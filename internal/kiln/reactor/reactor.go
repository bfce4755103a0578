// Package reactor implements the CommentReactor: reacting to new actionable
// comments on an item's issue body during the Research/Plan stages, in
// place, without starting a full stage workflow (§4.7).
package reactor

import (
	"context"
	"log/slog"

	"github.com/agentic-metallurgy/kiln/internal/kiln/labels"
	"github.com/agentic-metallurgy/kiln/internal/kiln/raceguard"
	"github.com/agentic-metallurgy/kiln/internal/kiln/runner"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

// processing and processed are the reaction kinds the reactor uses to mark a
// comment's handling state on the ticket system, independent of any stored
// cursor — they are visible to a human reading the thread.
const (
	reactionProcessing = "eyes"
	reactionProcessed  = "thumbs_up"
)

// EditRunner executes the Edit workflow for one comment, scoped to stage.
// It must respect ctx cancellation and return the new body to persist via
// UpdateBody — returning it lets the reactor own the single write rather
// than trusting the workflow to have already applied it.
type EditRunner interface {
	RunEdit(ctx context.Context, item ticket.Item, stage string, comment ticket.Comment, currentBody string) (newBody string, outcome runner.Outcome, err error)
}

// Reactor wires an Adapter, RaceGuard, and EditRunner together to implement
// the claim -> react -> edit -> advance-cursor sequence.
type Reactor struct {
	adapter      ticket.Adapter
	guard        *raceguard.Guard
	editor       EditRunner
	identity     string
	allowedActor string
	log          *slog.Logger
}

// New returns a Reactor. identity is this daemon's own actor name (comments
// it authored itself are never actionable) and allowedActor is the single
// authorized human actor (§7); an empty allowedActor disables the allowlist
// check, which callers should only do in tests — production configuration
// always supplies one.
func New(adapter ticket.Adapter, guard *raceguard.Guard, editor EditRunner, identity, allowedActor string, log *slog.Logger) *Reactor {
	if log == nil {
		log = slog.Default()
	}
	return &Reactor{
		adapter:      adapter,
		guard:        guard,
		editor:       editor,
		identity:     identity,
		allowedActor: allowedActor,
		log:          log.With(slog.String("component", "reactor")),
	}
}

// Handle reacts to one actionable comment. It claims the `editing` running
// label through RaceGuard (stage runs hold their own running labels; edits
// and stage runs are kept apart by TriggerPolicy, which offers nothing else
// while any running label is present), invokes the editor, and on success
// applies the new body and returns true so the caller can advance the
// cursor. Comment iteration is never offered while the item is in Implement
// — that exclusion lives in TriggerPolicy, not here, since Handle trusts its
// caller to have already applied rule 6's stage restriction.
func (r *Reactor) Handle(ctx context.Context, item ticket.Item, stage string, comment ticket.Comment) (advanced bool) {
	if comment.Author == r.identity {
		r.log.Debug("ignoring self-authored comment", slog.Int64("comment_id", comment.ID))
		return false
	}
	if r.allowedActor != "" && comment.Author != r.allowedActor {
		r.log.Warn("ignoring comment from unauthorized actor",
			slog.Int64("comment_id", comment.ID), slog.String("actor", comment.Author))
		return false
	}

	if err := r.adapter.SetReaction(ctx, comment.ID, reactionProcessing); err != nil {
		r.log.Warn("failed to mark comment processing", slog.Int64("comment_id", comment.ID), slog.Any("error", err))
	}

	running := labels.RunningEditing
	if err := r.guard.Claim(ctx, item.Repo, item.ID, running, item.Labels); err != nil {
		if err != raceguard.ErrRaceLost {
			r.log.Warn("claim failed for comment edit", slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.Any("error", err))
		}
		r.clearProcessing(ctx, comment)
		return false
	}

	newBody, outcome, err := r.editor.RunEdit(ctx, item, stage, comment, item.Body)

	var relErr error
	switch {
	case err != nil || outcome != runner.OutcomeSuccess:
		r.log.Warn("comment edit workflow did not succeed, cursor left unchanged",
			slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.Any("error", err))
		relErr = r.guard.Release(ctx, item.Repo, item.ID, running, "", "", raceguard.Failure)
		r.clearProcessing(ctx, comment)
		advanced = false
	default:
		if bodyErr := r.adapter.UpdateBody(ctx, item.Repo, item.ID, newBody); bodyErr != nil {
			r.log.Error("failed to persist edited body", slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.Any("error", bodyErr))
			relErr = r.guard.Release(ctx, item.Repo, item.ID, running, "", "", raceguard.Failure)
			r.clearProcessing(ctx, comment)
			advanced = false
			break
		}
		relErr = r.guard.Release(ctx, item.Repo, item.ID, running, "", "", raceguard.Success)
		if reactErr := r.adapter.SetReaction(ctx, comment.ID, reactionProcessed); reactErr != nil {
			r.log.Warn("failed to mark comment processed", slog.Int64("comment_id", comment.ID), slog.Any("error", reactErr))
		}
		advanced = true
	}

	if relErr != nil {
		r.log.Error("failed to release editing label", slog.String("repo", item.Repo), slog.Int("id", item.ID), slog.Any("error", relErr))
	}
	return advanced
}

func (r *Reactor) clearProcessing(ctx context.Context, comment ticket.Comment) {
	if err := r.adapter.SetReaction(ctx, comment.ID, ""); err != nil {
		r.log.Warn("failed to clear processing reaction", slog.Int64("comment_id", comment.ID), slog.Any("error", err))
	}
}
