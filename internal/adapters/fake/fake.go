// Package fake provides an in-memory ticket.Adapter used by the
// orchestration core's own tests (race simulation, trigger policy, poller
// cycles) so they don't need a live GitHub connection.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

type item struct {
	ticket.Item
	labelActor  map[string]string
	statusActor string
	comments    []ticket.Comment
	reactions   map[int64]string
}

// Adapter is an in-memory ticket.Adapter backed by a map keyed by
// (repo, id). It is safe for concurrent use.
type Adapter struct {
	mu       sync.Mutex
	items    map[string]*item
	Identity string // the actor name AddLabel/SetStatus record as author
}

// New returns an empty Adapter whose mutating calls are attributed to
// identity (the daemon's own configured actor, unless a test overrides it
// via SeedLabelActor/SeedStatusActor to simulate an external actor).
func New(identity string) *Adapter {
	return &Adapter{items: make(map[string]*item), Identity: identity}
}

func key(repo string, id int) string {
	return fmt.Sprintf("%s#%d", repo, id)
}

// Seed registers an item as if it had been returned by a real board.
func (a *Adapter) Seed(it ticket.Item) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items[key(it.Repo, it.ID)] = &item{
		Item:        it,
		labelActor:  make(map[string]string),
		statusActor: a.Identity,
		reactions:   make(map[int64]string),
	}
}

// SeedLabelActor overrides the recorded author of a label, simulating a
// label added by someone other than this adapter's own calls.
func (a *Adapter) SeedLabelActor(repo string, id int, label, actor string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if it, ok := a.items[key(repo, id)]; ok {
		it.labelActor[label] = actor
	}
}

// SeedStatusActor overrides the recorded author of an item's current
// status, simulating a status set by someone other than this adapter's own
// calls (e.g. a human dragging the card, or an unrecognized actor).
func (a *Adapter) SeedStatusActor(repo string, id int, actor string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if it, ok := a.items[key(repo, id)]; ok {
		it.statusActor = actor
	}
}

func (a *Adapter) ListItems(ctx context.Context, board string) ([]ticket.Item, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []ticket.Item
	for _, it := range a.items {
		out = append(out, it.Item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Adapter) GetBody(ctx context.Context, repo string, id int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	it, ok := a.items[key(repo, id)]
	if !ok {
		return "", fmt.Errorf("fake: item %s not found", key(repo, id))
	}
	return it.Body, nil
}

func (a *Adapter) UpdateBody(ctx context.Context, repo string, id int, newBody string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	it, ok := a.items[key(repo, id)]
	if !ok {
		return fmt.Errorf("fake: item %s not found", key(repo, id))
	}
	it.Body = newBody
	return nil
}

func (a *Adapter) AddLabel(ctx context.Context, repo string, id int, label string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	it, ok := a.items[key(repo, id)]
	if !ok {
		return fmt.Errorf("fake: item %s not found", key(repo, id))
	}
	if !it.HasLabel(label) {
		it.Labels = append(it.Labels, label)
	}
	it.labelActor[label] = a.Identity
	return nil
}

func (a *Adapter) RemoveLabel(ctx context.Context, repo string, id int, label string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	it, ok := a.items[key(repo, id)]
	if !ok {
		return fmt.Errorf("fake: item %s not found", key(repo, id))
	}
	kept := it.Labels[:0]
	for _, l := range it.Labels {
		if l != label {
			kept = append(kept, l)
		}
	}
	it.Labels = kept
	delete(it.labelActor, label)
	return nil
}

func (a *Adapter) ListLabels(ctx context.Context, repo string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, it := range a.items {
		if it.Repo != repo {
			continue
		}
		for _, l := range it.Labels {
			if !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	return out, nil
}

func (a *Adapter) CreateLabel(ctx context.Context, repo, name, desc, color string) (bool, error) {
	return true, nil
}

func (a *Adapter) SetStatus(ctx context.Context, repo string, id int, status string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	it, ok := a.items[key(repo, id)]
	if !ok {
		return fmt.Errorf("fake: item %s not found", key(repo, id))
	}
	it.Status = status
	it.statusActor = a.Identity
	return nil
}

func (a *Adapter) Archive(ctx context.Context, board, itemID string) (bool, error) {
	return true, nil
}

func (a *Adapter) ListCommentsSince(ctx context.Context, repo string, id int, since *time.Time) ([]ticket.Comment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	it, ok := a.items[key(repo, id)]
	if !ok {
		return nil, fmt.Errorf("fake: item %s not found", key(repo, id))
	}
	if since == nil {
		out := make([]ticket.Comment, len(it.comments))
		copy(out, it.comments)
		return out, nil
	}
	var out []ticket.Comment
	for _, c := range it.comments {
		if c.CreatedAt.After(*since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (a *Adapter) AddComment(ctx context.Context, repo string, id int, body string) (ticket.Comment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	it, ok := a.items[key(repo, id)]
	if !ok {
		return ticket.Comment{}, fmt.Errorf("fake: item %s not found", key(repo, id))
	}
	c := ticket.Comment{ID: int64(len(it.comments) + 1), Author: a.Identity, Body: body, CreatedAt: time.Now()}
	it.comments = append(it.comments, c)
	it.CommentCount = len(it.comments)
	return c, nil
}

func (a *Adapter) SetReaction(ctx context.Context, commentID int64, kind string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, it := range a.items {
		for _, c := range it.comments {
			if c.ID == commentID {
				it.reactions[commentID] = kind
				return nil
			}
		}
	}
	return fmt.Errorf("fake: comment %d not found", commentID)
}

func (a *Adapter) LastStatusActor(ctx context.Context, repo string, id int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	it, ok := a.items[key(repo, id)]
	if !ok {
		return "", fmt.Errorf("fake: item %s not found", key(repo, id))
	}
	return it.statusActor, nil
}

func (a *Adapter) LastLabelActor(ctx context.Context, repo string, id int, label string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	it, ok := a.items[key(repo, id)]
	if !ok {
		return "", fmt.Errorf("fake: item %s not found", key(repo, id))
	}
	return it.labelActor[label], nil
}
