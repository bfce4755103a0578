package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agentic-metallurgy/kiln/internal/executor"
	"github.com/agentic-metallurgy/kiln/internal/kiln/labels"
	"github.com/agentic-metallurgy/kiln/internal/kiln/runner"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

type fakeBackend struct {
	result  *executor.BackendResult
	err     error
	lastOpt executor.ExecuteOptions
}

func (f *fakeBackend) Name() string       { return "fake" }
func (f *fakeBackend) IsAvailable() bool  { return true }
func (f *fakeBackend) Execute(ctx context.Context, opts executor.ExecuteOptions) (*executor.BackendResult, error) {
	f.lastOpt = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeAdapter struct {
	ticket.Adapter
	bodies map[int]string
}

func (f *fakeAdapter) UpdateBody(ctx context.Context, repo string, id int, newBody string) error {
	if f.bodies == nil {
		f.bodies = make(map[int]string)
	}
	f.bodies[id] = newBody
	return nil
}

type fakeResolver struct{ path string; err error }

func (f *fakeResolver) ProjectPath(repo string) (string, error) { return f.path, f.err }

func TestRunStageResearchWritesMarkedSection(t *testing.T) {
	backend := &fakeBackend{result: &executor.BackendResult{Success: true, Output: "findings here"}}
	adapter := &fakeAdapter{}
	exec := New(backend, adapter, &fakeResolver{path: "/repo"}, "", "", nil)

	item := ticket.Item{Repo: "o/r", ID: 7, Title: "fix thing", Body: "original body"}
	outcome, sessionID, err := exec.RunStage(context.Background(), item, labels.StatusResearch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != runner.OutcomeSuccess {
		t.Fatalf("expected success, got %v", outcome)
	}
	if sessionID == "" {
		t.Fatal("expected non-empty session id")
	}
	body := adapter.bodies[7]
	if body == "" {
		t.Fatal("expected body to be persisted")
	}
	pair := labels.BodyMarkers[labels.StatusResearch]
	if !strings.Contains(body, pair[0]) || !strings.Contains(body, pair[1]) || !strings.Contains(body, "findings here") {
		t.Fatalf("expected marked section with findings, got %q", body)
	}
	if !strings.Contains(body, "original body") {
		t.Fatalf("expected original body preserved, got %q", body)
	}
}

func TestRunStageImplementDoesNotTouchBody(t *testing.T) {
	backend := &fakeBackend{result: &executor.BackendResult{Success: true, Output: "opened PR #12"}}
	adapter := &fakeAdapter{}
	exec := New(backend, adapter, &fakeResolver{path: "/repo"}, "", "", nil)

	item := ticket.Item{Repo: "o/r", ID: 9, Body: "plan here"}
	outcome, _, err := exec.RunStage(context.Background(), item, labels.StatusImplement)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != runner.OutcomeSuccess {
		t.Fatalf("expected success, got %v", outcome)
	}
	if _, ok := adapter.bodies[9]; ok {
		t.Fatal("expected Implement stage to leave the body untouched")
	}
}

func TestRunStageBackendFailureReturnsOutcomeFailure(t *testing.T) {
	backend := &fakeBackend{result: &executor.BackendResult{Success: false, Error: "agent crashed"}}
	adapter := &fakeAdapter{}
	exec := New(backend, adapter, &fakeResolver{path: "/repo"}, "", "", nil)

	outcome, _, err := exec.RunStage(context.Background(), ticket.Item{Repo: "o/r", ID: 1}, labels.StatusResearch)
	if outcome != runner.OutcomeFailure {
		t.Fatalf("expected failure outcome, got %v", outcome)
	}
	if err == nil {
		t.Fatal("expected error on backend failure")
	}
}

func TestRunStageCancelledContextReturnsOutcomeCancelled(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	adapter := &fakeAdapter{}
	exec := New(backend, adapter, &fakeResolver{path: "/repo"}, "", "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, _, err := exec.RunStage(ctx, ticket.Item{Repo: "o/r", ID: 1}, labels.StatusResearch)
	if outcome != runner.OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %v", outcome)
	}
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunStageResolverErrorFailsFast(t *testing.T) {
	backend := &fakeBackend{result: &executor.BackendResult{Success: true}}
	adapter := &fakeAdapter{}
	exec := New(backend, adapter, &fakeResolver{err: errors.New("unknown repo")}, "", "", nil)

	outcome, _, err := exec.RunStage(context.Background(), ticket.Item{Repo: "o/r", ID: 1}, labels.StatusResearch)
	if outcome != runner.OutcomeFailure || err == nil {
		t.Fatalf("expected failure with error, got outcome=%v err=%v", outcome, err)
	}
}

func TestRunEditReturnsNewBodyWithoutPersisting(t *testing.T) {
	backend := &fakeBackend{result: &executor.BackendResult{Success: true, Output: "revised plan"}}
	adapter := &fakeAdapter{}
	exec := New(backend, adapter, &fakeResolver{path: "/repo"}, "", "", nil)

	item := ticket.Item{Repo: "o/r", ID: 3, Body: "stale plan"}
	comment := ticket.Comment{ID: 100, Author: "alice", Body: "please change the approach", CreatedAt: time.Now()}

	newBody, outcome, err := exec.RunEdit(context.Background(), item, labels.StatusPlan, comment, item.Body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != runner.OutcomeSuccess {
		t.Fatalf("expected success, got %v", outcome)
	}
	if !strings.Contains(newBody, "revised plan") {
		t.Fatalf("expected revised content in new body, got %q", newBody)
	}
	if len(adapter.bodies) != 0 {
		t.Fatal("RunEdit must not call UpdateBody itself")
	}
}

func TestReplaceMarkedSectionReplacesExistingPair(t *testing.T) {
	body := "before\n<!-- kiln:research -->\nold\n<!-- /kiln:research -->\nafter"
	got := replaceMarkedSection(body, "<!-- kiln:research -->", "<!-- /kiln:research -->", "new")
	if strings.Contains(got, "old") {
		t.Fatalf("expected old content removed, got %q", got)
	}
	if !strings.Contains(got, "new") || !strings.Contains(got, "before") || !strings.Contains(got, "after") {
		t.Fatalf("expected surrounding content preserved, got %q", got)
	}
}

func TestReplaceMarkedSectionAppendsWhenAbsent(t *testing.T) {
	got := replaceMarkedSection("existing body", "<!-- kiln:plan -->", "<!-- /kiln:plan -->", "plan text")
	if !strings.Contains(got, "existing body") || !strings.Contains(got, "plan text") {
		t.Fatalf("expected both existing and new content, got %q", got)
	}
}
