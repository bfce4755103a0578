package trigger

import (
	"testing"
	"time"

	"github.com/agentic-metallurgy/kiln/internal/kiln/labels"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

type fakePool struct{ active bool }

func (f fakePool) HasActiveRun(repo string, id int) bool { return f.active }

type fakeDeps struct{ pending bool }

func (f fakeDeps) HasPendingDependency(item ticket.Item) bool { return f.pending }

func baseItem(status string) ticket.Item {
	return ticket.Item{Repo: "o/r", ID: 1, Open: true, Status: status}
}

func TestResetLabelTakesPriorityOverEverything(t *testing.T) {
	item := baseItem(labels.StatusImplement)
	item.Labels = []string{labels.ControlReset, labels.RunningImplementing}
	d := Evaluate(item, nil, nil, nil, nil)
	if d.Kind != Reset {
		t.Fatalf("expected Reset, got %v", d.Kind)
	}
}

func TestClosedOrDoneTriggersCleanup(t *testing.T) {
	closedItem := baseItem(labels.StatusImplement)
	closedItem.Open = false
	if d := Evaluate(closedItem, nil, nil, nil, nil); d.Kind != Cleanup {
		t.Errorf("expected Cleanup for closed item, got %v", d.Kind)
	}

	doneItem := baseItem(labels.StatusDone)
	if d := Evaluate(doneItem, nil, nil, nil, nil); d.Kind != Cleanup {
		t.Errorf("expected Cleanup for Done status, got %v", d.Kind)
	}
}

func TestRunningLabelWithNoActiveRunRecoversStale(t *testing.T) {
	item := baseItem(labels.StatusResearch)
	item.Labels = []string{labels.RunningResearching}
	d := Evaluate(item, nil, fakePool{active: false}, nil, nil)
	if d.Kind != RecoverStaleRunning {
		t.Fatalf("expected RecoverStaleRunning, got %v", d.Kind)
	}
	if d.RunningLabel != labels.RunningResearching {
		t.Errorf("expected stale running label %q, got %q", labels.RunningResearching, d.RunningLabel)
	}
}

func TestRunningLabelWithActiveRunIsNoop(t *testing.T) {
	item := baseItem(labels.StatusResearch)
	item.Labels = []string{labels.RunningResearching}
	d := Evaluate(item, nil, fakePool{active: true}, nil, nil)
	if d.Kind != None {
		t.Fatalf("expected None, got %v", d.Kind)
	}
}

func TestNilPoolTreatedAsNoActiveRun(t *testing.T) {
	item := baseItem(labels.StatusResearch)
	item.Labels = []string{labels.RunningResearching}
	d := Evaluate(item, nil, nil, nil, nil)
	if d.Kind != RecoverStaleRunning {
		t.Fatalf("expected RecoverStaleRunning with nil pool, got %v", d.Kind)
	}
}

func TestWatchedStageWithoutReadyLabelRunsWorkflow(t *testing.T) {
	item := baseItem(labels.StatusResearch)
	d := Evaluate(item, nil, nil, nil, nil)
	if d.Kind != RunWorkflow || d.Stage != labels.StatusResearch {
		t.Fatalf("expected RunWorkflow(research), got %v / %q", d.Kind, d.Stage)
	}
}

func TestWatchedStageWithReadyLabelDoesNotRerun(t *testing.T) {
	item := baseItem(labels.StatusResearch)
	item.Labels = []string{labels.ReadyResearch}
	d := Evaluate(item, nil, nil, nil, nil)
	if d.Kind == RunWorkflow {
		t.Fatalf("expected no RunWorkflow once research_ready is set, got %v", d.Kind)
	}
}

func TestCustomWatchedStatusesRunsWorkflowOutsideDefaultSet(t *testing.T) {
	item := baseItem(labels.StatusValidate)
	d := Evaluate(item, nil, nil, nil, nil, labels.StatusValidate)
	if d.Kind != RunWorkflow || d.Stage != labels.StatusValidate {
		t.Fatalf("expected RunWorkflow(validate) with a custom watched set, got %v / %q", d.Kind, d.Stage)
	}
}

func TestCustomWatchedStatusesExcludesDefaultStage(t *testing.T) {
	item := baseItem(labels.StatusResearch)
	d := Evaluate(item, nil, nil, nil, nil, labels.StatusValidate)
	if d.Kind == RunWorkflow {
		t.Fatalf("expected research to be excluded by a custom watched set omitting it, got %v", d.Kind)
	}
}

func TestPendingDependencyBlocksRunWorkflow(t *testing.T) {
	item := baseItem(labels.StatusImplement)
	d := Evaluate(item, nil, nil, fakeDeps{pending: true}, nil)
	if d.Kind != None {
		t.Fatalf("expected None while a dependency is pending, got %v", d.Kind)
	}
}

func TestPendingDependencyResolvedAllowsRunWorkflow(t *testing.T) {
	item := baseItem(labels.StatusImplement)
	d := Evaluate(item, nil, nil, fakeDeps{pending: false}, nil)
	if d.Kind != RunWorkflow {
		t.Fatalf("expected RunWorkflow once dependency clears, got %v", d.Kind)
	}
}

func TestReadyAndYoloAdvancesStatus(t *testing.T) {
	item := baseItem(labels.StatusResearch)
	item.Labels = []string{labels.ReadyResearch, labels.ControlYolo}
	d := Evaluate(item, nil, nil, nil, nil)
	if d.Kind != Advance || d.NextStatus != labels.StatusPlan {
		t.Fatalf("expected Advance to %q, got %v / %q", labels.StatusPlan, d.Kind, d.NextStatus)
	}
}

func TestReadyWithoutYoloDoesNotAdvance(t *testing.T) {
	item := baseItem(labels.StatusResearch)
	item.Labels = []string{labels.ReadyResearch}
	d := Evaluate(item, nil, nil, nil, nil)
	if d.Kind == Advance {
		t.Fatal("expected no Advance without the yolo control label")
	}
}

func TestNewCommentPastCursorTriggersIterateComment(t *testing.T) {
	item := baseItem(labels.StatusResearch)
	item.Labels = []string{labels.ReadyResearch}
	cursor := time.Now().Add(-time.Hour)
	comments := []ticket.Comment{
		{ID: 1, Body: "looks good", CreatedAt: time.Now()},
	}
	d := Evaluate(item, &cursor, nil, nil, comments)
	if d.Kind != IterateComment {
		t.Fatalf("expected IterateComment, got %v", d.Kind)
	}
	if d.Comment.ID != 1 {
		t.Errorf("expected comment ID 1, got %d", d.Comment.ID)
	}
}

func TestCommentsOlderThanCursorAreIgnored(t *testing.T) {
	item := baseItem(labels.StatusResearch)
	item.Labels = []string{labels.ReadyResearch}
	cursor := time.Now()
	comments := []ticket.Comment{
		{ID: 1, Body: "stale", CreatedAt: cursor.Add(-time.Minute)},
	}
	d := Evaluate(item, &cursor, nil, nil, comments)
	if d.Kind != None {
		t.Fatalf("expected None for comments older than cursor, got %v", d.Kind)
	}
}

func TestOldestActionableCommentWinsAmongMultiple(t *testing.T) {
	item := baseItem(labels.StatusPlan)
	item.Labels = []string{labels.ReadyPlan}
	cursor := time.Now().Add(-time.Hour)
	older := cursor.Add(10 * time.Minute)
	newer := cursor.Add(30 * time.Minute)
	comments := []ticket.Comment{
		{ID: 2, Body: "second", CreatedAt: newer},
		{ID: 1, Body: "first", CreatedAt: older},
	}
	d := Evaluate(item, &cursor, nil, nil, comments)
	if d.Kind != IterateComment || d.Comment.ID != 1 {
		t.Fatalf("expected the oldest actionable comment (ID 1), got kind=%v id=%d", d.Kind, d.Comment.ID)
	}
}

func TestUnwatchedStatusWithNoOtherRuleIsNoop(t *testing.T) {
	item := baseItem(labels.StatusValidate)
	d := Evaluate(item, nil, nil, nil, nil)
	if d.Kind != None {
		t.Fatalf("expected None for an unwatched, non-comment-eligible status, got %v", d.Kind)
	}
}
