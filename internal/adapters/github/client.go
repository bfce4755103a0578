// Package github implements the TicketAdapter contract (and the optional
// reset.PRCloser capability) over the GitHub REST API for plain Issues
// repositories — no Projects v2 GraphQL dependency.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const githubAPIURL = "https://api.github.com"

// Client is a thin GitHub REST API client scoped to the calls the kiln
// adapter needs.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string // overridden in tests
}

// NewClient returns a Client authenticating with token.
func NewClient(token string) *Client {
	return &Client{token: token, baseURL: githubAPIURL, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// NewClientWithBaseURL returns a Client pointed at a custom base URL, for tests.
func NewClientWithBaseURL(token, baseURL string) *Client {
	return &Client{token: token, baseURL: baseURL, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// Issue is a GitHub issue.
type Issue struct {
	ID        int64     `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	Labels    []Label   `json:"labels"`
	User      User      `json:"user"`
	HTMLURL   string    `json:"html_url"`
	Comments  int       `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Label is a GitHub label.
type Label struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// User is a GitHub user/actor.
type User struct {
	Login string `json:"login"`
}

// Comment is a GitHub issue comment.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// IssueEvent is one entry of an issue's timeline, used to recover the actor
// who most recently authored a label or state change (§4.4's authorship
// re-read and §6's LastStatusActor/LastLabelActor).
type IssueEvent struct {
	Event     string    `json:"event"` // "labeled", "unlabeled", "closed", "reopened", ...
	Actor     User      `json:"actor"`
	Label     *Label    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PullRequest is the subset of GitHub PR fields the ResetController needs.
type PullRequest struct {
	Number int    `json:"number"`
	State  string `json:"state"` // "open", "closed"
	Head   struct {
		Ref string `json:"ref"`
	} `json:"head"`
}

// doRequest performs one GitHub API call.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// CurrentUser returns the login of the authenticated token's own account —
// the daemon's own actor identity, distinct from any authorized human
// username, for RaceGuard's self/other authorship check.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	var u User
	if err := c.doRequest(ctx, http.MethodGet, "/user", nil, &u); err != nil {
		return "", err
	}
	return u.Login, nil
}

// GetIssue fetches one issue.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
	var issue Issue
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// ListIssues lists issues for a repository, optionally filtered by label,
// newest-updated first.
func (c *Client) ListIssues(ctx context.Context, owner, repo, label string) ([]*Issue, error) {
	return WithRetry(ctx, func() ([]*Issue, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues?state=open&sort=updated", owner, repo)
		if label != "" {
			path += "&labels=" + url.QueryEscape(label)
		}
		var issues []*Issue
		if err := c.doRequest(ctx, http.MethodGet, path, nil, &issues); err != nil {
			return nil, err
		}
		return issues, nil
	}, DefaultRetryOptions())
}

// GetIssueBody fetches just the body text of an issue.
func (c *Client) GetIssueBody(ctx context.Context, owner, repo string, number int) (string, error) {
	issue, err := c.GetIssue(ctx, owner, repo, number)
	if err != nil {
		return "", err
	}
	return issue.Body, nil
}

// UpdateIssueBody replaces an issue's body.
func (c *Client) UpdateIssueBody(ctx context.Context, owner, repo string, number int, body string) error {
	return WithRetryVoid(ctx, func() error {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
		return c.doRequest(ctx, http.MethodPatch, path, map[string]string{"body": body}, nil)
	}, DefaultRetryOptions())
}

// AddComment adds a comment to an issue.
func (c *Client) AddComment(ctx context.Context, owner, repo string, number int, body string) (*Comment, error) {
	return WithRetry(ctx, func() (*Comment, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
		var comment Comment
		if err := c.doRequest(ctx, http.MethodPost, path, map[string]string{"body": body}, &comment); err != nil {
			return nil, err
		}
		return &comment, nil
	}, DefaultRetryOptions())
}

// ListCommentsSince lists comments created after since (nil means all).
func (c *Client) ListCommentsSince(ctx context.Context, owner, repo string, number int, since *time.Time) ([]*Comment, error) {
	return WithRetry(ctx, func() ([]*Comment, error) {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments?sort=created&direction=asc", owner, repo, number)
		if since != nil {
			path += "&since=" + since.Format(time.RFC3339)
		}
		var comments []*Comment
		if err := c.doRequest(ctx, http.MethodGet, path, nil, &comments); err != nil {
			return nil, err
		}
		return comments, nil
	}, DefaultRetryOptions())
}

// SetCommentReaction adds a reaction to a comment. An empty kind is a no-op
// (there is no "clear reaction" REST endpoint for a specific content type
// without its reaction ID, which this adapter does not track; clearing is
// therefore best-effort and silently skipped).
func (c *Client) SetCommentReaction(ctx context.Context, owner, repo string, commentID int64, kind string) error {
	if kind == "" {
		return nil
	}
	return WithRetryVoid(ctx, func() error {
		path := fmt.Sprintf("/repos/%s/%s/issues/comments/%d/reactions", owner, repo, commentID)
		return c.doRequest(ctx, http.MethodPost, path, map[string]string{"content": kind}, nil)
	}, DefaultRetryOptions())
}

// AddLabel adds one label to an issue.
func (c *Client) AddLabel(ctx context.Context, owner, repo string, number int, label string) error {
	return WithRetryVoid(ctx, func() error {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", owner, repo, number)
		return c.doRequest(ctx, http.MethodPost, path, map[string][]string{"labels": {label}}, nil)
	}, DefaultRetryOptions())
}

// RemoveLabel removes one label from an issue. 404 (already absent) is not an error.
func (c *Client) RemoveLabel(ctx context.Context, owner, repo string, number int, label string) error {
	return WithRetryVoid(ctx, func() error {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels/%s", owner, repo, number, url.PathEscape(strings.ToLower(label)))
		err := c.doRequest(ctx, http.MethodDelete, path, nil, nil)
		if isNotFoundError(err) {
			return nil
		}
		return err
	}, DefaultRetryOptions())
}

// ListRepoLabels lists every label defined on the repository.
func (c *Client) ListRepoLabels(ctx context.Context, owner, repo string) ([]*Label, error) {
	path := fmt.Sprintf("/repos/%s/%s/labels?per_page=100", owner, repo)
	var labels []*Label
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// CreateLabel creates a repository label. Returns (created=false, nil) if
// the label already exists (422), since that is idempotent from the
// adapter's point of view.
func (c *Client) CreateLabel(ctx context.Context, owner, repo, name, desc, color string) (bool, error) {
	err := WithRetryVoid(ctx, func() error {
		path := fmt.Sprintf("/repos/%s/%s/labels", owner, repo)
		body := map[string]string{"name": name, "description": desc, "color": color}
		return c.doRequest(ctx, http.MethodPost, path, body, nil)
	}, DefaultRetryOptions())
	if isUnprocessableError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateIssueState sets an issue's state to "open" or "closed".
func (c *Client) UpdateIssueState(ctx context.Context, owner, repo string, number int, state string) error {
	return WithRetryVoid(ctx, func() error {
		path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
		return c.doRequest(ctx, http.MethodPatch, path, map[string]string{"state": state}, nil)
	}, DefaultRetryOptions())
}

// ListIssueEvents lists an issue's timeline events, newest last, used to
// recover the actor of the most recent labeled/unlabeled/closed/reopened event.
func (c *Client) ListIssueEvents(ctx context.Context, owner, repo string, number int) ([]*IssueEvent, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/events?per_page=100", owner, repo, number)
	var events []*IssueEvent
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// ListPullRequests lists pull requests for a repository in the given state
// ("open", "closed", "all").
func (c *Client) ListPullRequests(ctx context.Context, owner, repo, state string) ([]*PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=%s", owner, repo, state)
	var prs []*PullRequest
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &prs); err != nil {
		return nil, err
	}
	return prs, nil
}

// ClosePullRequest closes a pull request without merging.
func (c *Client) ClosePullRequest(ctx context.Context, owner, repo string, number int) error {
	return WithRetryVoid(ctx, func() error {
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
		return c.doRequest(ctx, http.MethodPatch, path, map[string]string{"state": "closed"}, nil)
	}, DefaultRetryOptions())
}

// DeleteBranch deletes a branch ref. 404/422 (already gone) are not errors.
func (c *Client) DeleteBranch(ctx context.Context, owner, repo, branch string) error {
	return WithRetryVoid(ctx, func() error {
		path := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", owner, repo, url.PathEscape(branch))
		err := c.doRequest(ctx, http.MethodDelete, path, nil, nil)
		if isNotFoundError(err) || isUnprocessableError(err) {
			return nil
		}
		return err
	}, DefaultRetryOptions())
}

func isNotFoundError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "status 404")
}

func isUnprocessableError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "status 422")
}
