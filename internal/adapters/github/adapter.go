package github

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentic-metallurgy/kiln/internal/kiln/kerrors"
	"github.com/agentic-metallurgy/kiln/internal/kiln/reset"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

// Adapter implements ticket.Adapter and reset.PRCloser over a Client. It is
// the only place in the module that knows issues/labels/PRs are a
// GitHub-specific shape.
type Adapter struct {
	client *Client

	// commentRepo tracks which repo each comment id was fetched from, so
	// SetReaction (whose ticket.Adapter signature carries no repo — GitHub
	// comment ids are otherwise globally unique) can resolve the
	// owner/repo path the reactions endpoint requires.
	mu          sync.Mutex
	commentRepo map[int64]string
}

// New returns an Adapter wrapping client.
func New(client *Client) *Adapter {
	return &Adapter{client: client, commentRepo: make(map[int64]string)}
}

func (a *Adapter) rememberCommentRepo(repo string, commentID int64) {
	a.mu.Lock()
	a.commentRepo[commentID] = repo
	a.mu.Unlock()
}

var _ ticket.Adapter = (*Adapter)(nil)
var _ reset.PRCloser = (*Adapter)(nil)

func splitRepo(repo string) (owner, name string, err error) {
	for i := 0; i < len(repo); i++ {
		if repo[i] == '/' {
			return repo[:i], repo[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("github: repo %q is not in owner/name form", repo)
}

// ListItems lists every open issue of the board's owner/repo repository,
// converted to Items. No label filter is applied. A client failure is
// returned as a *kerrors.Error whose kind comes from kerrors.Classify.
func (a *Adapter) ListItems(ctx context.Context, board string) ([]ticket.Item, error) {
	owner, name, err := splitRepo(board)
	if err != nil {
		return nil, err
	}
	issues, err := a.client.ListIssues(ctx, owner, name, "")
	if err != nil {
		return nil, kerrors.New(kerrors.Classify(err), "github.ListItems", err)
	}
	items := make([]ticket.Item, 0, len(issues))
	for _, iss := range issues {
		items = append(items, toItem(board, iss))
	}
	return items, nil
}

// GetItem fetches a single issue and converts it to a ticket.Item. Not part
// of ticket.Adapter (the core never needs single-item lookups outside a
// poll cycle) — used by the `kiln reset` CLI command, which targets one
// issue directly without a full board list.
func (a *Adapter) GetItem(ctx context.Context, repo string, id int) (ticket.Item, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return ticket.Item{}, err
	}
	issue, err := a.client.GetIssue(ctx, owner, name, id)
	if err != nil {
		return ticket.Item{}, err
	}
	return toItem(repo, issue), nil
}

// GetBody returns the issue's current body.
func (a *Adapter) GetBody(ctx context.Context, repo string, id int) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	return a.client.GetIssueBody(ctx, owner, name, id)
}

// UpdateBody replaces the issue's body.
func (a *Adapter) UpdateBody(ctx context.Context, repo string, id int, newBody string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return a.client.UpdateIssueBody(ctx, owner, name, id, newBody)
}

// AddLabel adds label to the issue. Status transitions (§4.8/§4.9) go
// through SetStatus instead, which swaps the status:* label atomically from
// the caller's perspective.
func (a *Adapter) AddLabel(ctx context.Context, repo string, id int, label string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return a.client.AddLabel(ctx, owner, name, id, label)
}

// RemoveLabel removes label from the issue.
func (a *Adapter) RemoveLabel(ctx context.Context, repo string, id int, label string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return a.client.RemoveLabel(ctx, owner, name, id, label)
}

// ListLabels lists every label defined on the repository.
func (a *Adapter) ListLabels(ctx context.Context, repo string) ([]string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	ls, err := a.client.ListRepoLabels(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.Name)
	}
	return out, nil
}

// CreateLabel creates a repository label if it does not already exist.
func (a *Adapter) CreateLabel(ctx context.Context, repo, name, desc, color string) (bool, error) {
	owner, repoName, err := splitRepo(repo)
	if err != nil {
		return false, err
	}
	return a.client.CreateLabel(ctx, owner, repoName, name, desc, color)
}

// SetStatus swaps the issue's status:* label to reflect the new status.
// Best-effort: if removing the old label fails the new one is still added,
// since a stray stale status label is self-correcting (toItem always
// prefers the last status:* label it sees scanning issue.Labels, and a
// repeat SetStatus call will clean up the leftover on the next attempt).
func (a *Adapter) SetStatus(ctx context.Context, repo string, id int, status string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	issue, err := a.client.GetIssue(ctx, owner, name, id)
	if err != nil {
		return err
	}
	for _, l := range issue.Labels {
		if l.Name == statusLabelName(status) {
			continue
		}
		if _, ok := cutStatusLabel(l.Name); ok {
			_ = a.client.RemoveLabel(ctx, owner, name, id, l.Name)
		}
	}
	return a.client.AddLabel(ctx, owner, name, id, statusLabelName(status))
}

func cutStatusLabel(name string) (string, bool) {
	const prefix = statusLabelPrefix
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):], true
	}
	return "", false
}

// Archive closes the issue. GitHub Issues has no separate "archive" action
// distinct from closing; board is the owner/repo the issue lives in (a single
// repo is one board).
func (a *Adapter) Archive(ctx context.Context, board, itemID string) (bool, error) {
	owner, name, err := splitRepo(board)
	if err != nil {
		return false, err
	}
	var id int
	if _, err := fmt.Sscanf(itemID, "%d", &id); err != nil {
		return false, fmt.Errorf("github: invalid item id %q: %w", itemID, err)
	}
	if err := a.client.UpdateIssueState(ctx, owner, name, id, StateClosed); err != nil {
		return false, err
	}
	return true, nil
}

// ListCommentsSince lists comments newer than since.
func (a *Adapter) ListCommentsSince(ctx context.Context, repo string, id int, since *time.Time) ([]ticket.Comment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	comments, err := a.client.ListCommentsSince(ctx, owner, name, id, since)
	if err != nil {
		return nil, err
	}
	out := make([]ticket.Comment, 0, len(comments))
	for _, c := range comments {
		a.rememberCommentRepo(repo, c.ID)
		out = append(out, toComment(c))
	}
	return out, nil
}

// AddComment posts a new comment.
func (a *Adapter) AddComment(ctx context.Context, repo string, id int, body string) (ticket.Comment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return ticket.Comment{}, err
	}
	c, err := a.client.AddComment(ctx, owner, name, id, body)
	if err != nil {
		return ticket.Comment{}, err
	}
	a.rememberCommentRepo(repo, c.ID)
	return toComment(c), nil
}

// SetReaction sets a reaction on a comment; an empty kind removes nothing
// (the client skips it), so an earlier reaction stays in place. It resolves the owning repo from the map populated by
// ListCommentsSince/AddComment. A comment id this Adapter has never seen is
// a no-op — it can only happen for a comment reacted to before this process
// started, which self-corrects on the reactor's own idempotent retry path.
func (a *Adapter) SetReaction(ctx context.Context, commentID int64, kind string) error {
	a.mu.Lock()
	repo, ok := a.commentRepo[commentID]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return a.client.SetCommentReaction(ctx, owner, name, commentID, kind)
}

// LastStatusActor returns the actor who most recently changed the issue's
// status:* label (closed/reopened events are treated as status-adjacent but
// the label events are authoritative per the labels-as-state-machine model).
func (a *Adapter) LastStatusActor(ctx context.Context, repo string, id int) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	events, err := a.client.ListIssueEvents(ctx, owner, name, id)
	if err != nil {
		return "", err
	}
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Event != "labeled" && e.Event != "unlabeled" {
			continue
		}
		if e.Label == nil {
			continue
		}
		if _, ok := cutStatusLabel(e.Label.Name); ok {
			return e.Actor.Login, nil
		}
	}
	return "", nil
}

// LastLabelActor returns the actor who most recently added/removed label.
func (a *Adapter) LastLabelActor(ctx context.Context, repo string, id int, label string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	events, err := a.client.ListIssueEvents(ctx, owner, name, id)
	if err != nil {
		return "", err
	}
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Event != "labeled" && e.Event != "unlabeled" {
			continue
		}
		if e.Label != nil && e.Label.Name == label {
			return e.Actor.Login, nil
		}
	}
	return "", nil
}

// ListLinkedPullRequests implements reset.PRCloser: GitHub has no native
// issue<->PR link for plain Issues (that's a Projects v2/timeline-cross-ref
// feature); this adapter scans open PRs whose branch name embeds the issue
// number (the convention the executor's branch-naming uses, see
// internal/executor), which is sufficient for the ResetController's
// best-effort cleanup.
func (a *Adapter) ListLinkedPullRequests(ctx context.Context, repo string, ticketID int) ([]reset.LinkedPR, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	prs, err := a.client.ListPullRequests(ctx, owner, name, "open")
	if err != nil {
		return nil, err
	}
	suffix := fmt.Sprintf("-%d", ticketID)
	var linked []reset.LinkedPR
	for _, pr := range prs {
		if hasIssueSuffix(pr.Head.Ref, suffix) {
			linked = append(linked, reset.LinkedPR{Number: pr.Number, Branch: pr.Head.Ref})
		}
	}
	return linked, nil
}

func hasIssueSuffix(branch, suffix string) bool {
	return len(branch) >= len(suffix) && branch[len(branch)-len(suffix):] == suffix
}

// ClosePullRequest implements reset.PRCloser.
func (a *Adapter) ClosePullRequest(ctx context.Context, repo string, number int) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return a.client.ClosePullRequest(ctx, owner, name, number)
}

// DeleteBranch implements reset.PRCloser.
func (a *Adapter) DeleteBranch(ctx context.Context, repo, branch string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	return a.client.DeleteBranch(ctx, owner, name, branch)
}
