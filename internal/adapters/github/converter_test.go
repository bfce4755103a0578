package github

import (
	"testing"
	"time"

	"github.com/agentic-metallurgy/kiln/internal/kiln/labels"
)

func TestToItemExtractsStatusLabel(t *testing.T) {
	issue := &Issue{
		Number: 42,
		Title:  "add auth",
		Body:   "Depends on: #10",
		State:  StateOpen,
		Labels: []Label{
			{Name: "status:research"},
			{Name: labels.RunningResearching},
			{Name: "enhancement"},
		},
		Comments: 3,
	}

	item := toItem("acme/widgets", issue)

	if item.Status != labels.StatusResearch {
		t.Errorf("Status = %q, want %q", item.Status, labels.StatusResearch)
	}
	if item.Repo != "acme/widgets" || item.ID != 42 {
		t.Errorf("Repo/ID = %q/%d", item.Repo, item.ID)
	}
	if !item.Open {
		t.Error("Open = false, want true")
	}
	if item.CommentCount != 3 {
		t.Errorf("CommentCount = %d, want 3", item.CommentCount)
	}
	for _, l := range item.Labels {
		if l == "status:research" {
			t.Error("status label leaked into item.Labels")
		}
	}
	if !item.HasLabel(labels.RunningResearching) {
		t.Error("expected running label to survive in item.Labels")
	}
}

func TestToItemDefaultsToBacklogWithoutStatusLabel(t *testing.T) {
	issue := &Issue{Number: 1, State: StateOpen}
	item := toItem("acme/widgets", issue)
	if item.Status != labels.StatusBacklog {
		t.Errorf("Status = %q, want %q", item.Status, labels.StatusBacklog)
	}
}

func TestCapitalizeStatusRoundTrip(t *testing.T) {
	cases := []string{
		labels.StatusBacklog,
		labels.StatusResearch,
		labels.StatusPlan,
		labels.StatusImplement,
		labels.StatusValidate,
		labels.StatusDone,
	}
	for _, status := range cases {
		name := statusLabelName(status)
		suffix := name[len(statusLabelPrefix):]
		if got := capitalizeStatus(suffix); got != status {
			t.Errorf("capitalizeStatus(%q) = %q, want %q", suffix, got, status)
		}
	}
}

func TestToComment(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &Comment{ID: 5, Body: "looks good", User: User{Login: "reviewer"}, CreatedAt: now}
	got := toComment(c)
	if got.ID != 5 || got.Author != "reviewer" || got.Body != "looks good" || !got.CreatedAt.Equal(now) {
		t.Errorf("toComment = %+v", got)
	}
}
