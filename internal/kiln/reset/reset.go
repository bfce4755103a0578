// Package reset implements the ResetController: wiping kiln content and
// labels off an item and returning it to Backlog when the `reset` control
// label is observed (§4.9).
package reset

import (
	"context"
	"log/slog"
	"strings"

	"github.com/agentic-metallurgy/kiln/internal/kiln/labels"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

// LinkedPR identifies one pull request the controller should close and
// whose branch it should delete as part of a reset.
type LinkedPR struct {
	Number int
	Branch string
}

// PRCloser is an optional capability: adapters backed by a system with no PR
// concept (or that choose not to support reset's PR cleanup) simply don't
// implement it, and the controller skips that step. Kept separate from
// ticket.Adapter because PRs are a GitHub-shaped concept no other provider
// in this corpus shares.
type PRCloser interface {
	ListLinkedPullRequests(ctx context.Context, repo string, ticketID int) ([]LinkedPR, error)
	ClosePullRequest(ctx context.Context, repo string, number int) error
	DeleteBranch(ctx context.Context, repo, branch string) error
}

// Controller applies the reset sequence to one item.
type Controller struct {
	adapter  ticket.Adapter
	prCloser PRCloser // may be nil
	log      *slog.Logger
}

// New returns a Controller. prCloser may be nil if the adapter has no PR
// concept; the PR-cleanup step is then skipped entirely.
func New(adapter ticket.Adapter, prCloser PRCloser, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{adapter: adapter, prCloser: prCloser, log: log.With(slog.String("component", "reset"))}
}

// Apply runs the reset sequence on item. Every step is best-effort: a
// failure is logged and the step is retried on the next cycle (the `reset`
// label, removed last, is what re-enters this handler on partial failure).
func (c *Controller) Apply(ctx context.Context, item ticket.Item) {
	log := c.log.With(slog.String("repo", item.Repo), slog.Int("id", item.ID))

	c.closeLinkedPRs(ctx, log, item)
	c.stripBody(ctx, log, item)
	c.stripLabels(ctx, log, item)

	if err := c.adapter.SetStatus(ctx, item.Repo, item.ID, labels.StatusBacklog); err != nil {
		log.Warn("failed to move item to backlog during reset", slog.Any("error", err))
	}

	// Removing `reset` is the last step: if anything above failed, the label
	// is still present and TriggerPolicy re-dispatches Reset next cycle.
	if err := c.adapter.RemoveLabel(ctx, item.Repo, item.ID, labels.ControlReset); err != nil {
		log.Warn("failed to remove reset label", slog.Any("error", err))
	}
}

func (c *Controller) closeLinkedPRs(ctx context.Context, log *slog.Logger, item ticket.Item) {
	if c.prCloser == nil {
		return
	}
	prs, err := c.prCloser.ListLinkedPullRequests(ctx, item.Repo, item.ID)
	if err != nil {
		log.Warn("failed to list linked pull requests during reset", slog.Any("error", err))
		return
	}
	for _, pr := range prs {
		if err := c.prCloser.ClosePullRequest(ctx, item.Repo, pr.Number); err != nil {
			log.Warn("failed to close linked pull request", slog.Int("pr", pr.Number), slog.Any("error", err))
		}
		if pr.Branch == "" {
			continue
		}
		if err := c.prCloser.DeleteBranch(ctx, item.Repo, pr.Branch); err != nil {
			log.Warn("failed to delete branch for closed pull request", slog.String("branch", pr.Branch), slog.Any("error", err))
		}
	}
}

func (c *Controller) stripBody(ctx context.Context, log *slog.Logger, item ticket.Item) {
	body, err := c.adapter.GetBody(ctx, item.Repo, item.ID)
	if err != nil {
		log.Warn("failed to fetch body during reset", slog.Any("error", err))
		return
	}
	stripped := stripMarkedSections(body)
	if stripped == body {
		return
	}
	if err := c.adapter.UpdateBody(ctx, item.Repo, item.ID, stripped); err != nil {
		log.Warn("failed to update body during reset", slog.Any("error", err))
	}
}

// stripMarkedSections removes every marker pair and everything between them,
// leaving all other content untouched.
func stripMarkedSections(body string) string {
	for _, pair := range labels.BodyMarkers {
		start, end := pair[0], pair[1]
		for {
			i := strings.Index(body, start)
			if i == -1 {
				break
			}
			j := strings.Index(body[i:], end)
			if j == -1 {
				break
			}
			j += i + len(end)
			body = body[:i] + body[j:]
		}
	}
	return body
}

func (c *Controller) stripLabels(ctx context.Context, log *slog.Logger, item ticket.Item) {
	for _, l := range item.Labels {
		if l == labels.ControlReset {
			continue // removed last, separately
		}
		if !labels.IsKilnLabel(l) {
			continue
		}
		if err := c.adapter.RemoveLabel(ctx, item.Repo, item.ID, l); err != nil {
			log.Warn("failed to strip kiln label during reset", slog.String("label", l), slog.Any("error", err))
		}
	}
}
