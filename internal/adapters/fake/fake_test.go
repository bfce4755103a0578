package fake

import (
	"context"
	"testing"

	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

func TestSeedAndListItems(t *testing.T) {
	a := New("kiln-bot")
	a.Seed(ticket.Item{Repo: "o/r", ID: 1, Status: "research", Title: "one"})
	a.Seed(ticket.Item{Repo: "o/r", ID: 2, Status: "plan", Title: "two"})

	items, err := a.ListItems(context.Background(), "board")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].ID != 1 || items[1].ID != 2 {
		t.Fatalf("expected items sorted by id, got %+v", items)
	}
}

func TestAddLabelRecordsIdentityAsActor(t *testing.T) {
	a := New("kiln-bot")
	a.Seed(ticket.Item{Repo: "o/r", ID: 1})

	if err := a.AddLabel(context.Background(), "o/r", 1, "researching"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	actor, err := a.LastLabelActor(context.Background(), "o/r", 1, "researching")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor != "kiln-bot" {
		t.Fatalf("expected actor kiln-bot, got %q", actor)
	}
}

func TestSeedLabelActorSimulatesExternalRace(t *testing.T) {
	a := New("kiln-bot")
	a.Seed(ticket.Item{Repo: "o/r", ID: 1, Labels: []string{"researching"}})
	a.SeedLabelActor("o/r", 1, "researching", "someone-else")

	actor, err := a.LastLabelActor(context.Background(), "o/r", 1, "researching")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor != "someone-else" {
		t.Fatalf("expected external actor, got %q", actor)
	}
}

func TestSeedStatusActorOverridesSeededDefault(t *testing.T) {
	a := New("kiln-bot")
	a.Seed(ticket.Item{Repo: "o/r", ID: 1, Status: "Research"})
	a.SeedStatusActor("o/r", 1, "a-human")

	actor, err := a.LastStatusActor(context.Background(), "o/r", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor != "a-human" {
		t.Fatalf("expected overridden actor a-human, got %q", actor)
	}
}

func TestRemoveLabel(t *testing.T) {
	a := New("kiln-bot")
	a.Seed(ticket.Item{Repo: "o/r", ID: 1, Labels: []string{"researching", "kiln"}})

	if err := a.RemoveLabel(context.Background(), "o/r", 1, "researching"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, _ := a.ListItems(context.Background(), "board")
	if items[0].HasLabel("researching") {
		t.Fatal("expected label removed")
	}
	if !items[0].HasLabel("kiln") {
		t.Fatal("expected unrelated label preserved")
	}
}

func TestUpdateBodyAndGetBody(t *testing.T) {
	a := New("kiln-bot")
	a.Seed(ticket.Item{Repo: "o/r", ID: 1, Body: "original"})

	if err := a.UpdateBody(context.Background(), "o/r", 1, "revised"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, err := a.GetBody(context.Background(), "o/r", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "revised" {
		t.Fatalf("expected revised body, got %q", body)
	}
}

func TestAddCommentAndListCommentsSince(t *testing.T) {
	a := New("kiln-bot")
	a.Seed(ticket.Item{Repo: "o/r", ID: 1})

	if _, err := a.AddComment(context.Background(), "o/r", 1, "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	comments, err := a.ListCommentsSince(context.Background(), "o/r", 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comments) != 1 || comments[0].Body != "first" {
		t.Fatalf("expected one comment, got %+v", comments)
	}
}

func TestOperationsOnUnknownItemFail(t *testing.T) {
	a := New("kiln-bot")
	if _, err := a.GetBody(context.Background(), "o/r", 99); err == nil {
		t.Fatal("expected error for unknown item")
	}
	if err := a.AddLabel(context.Background(), "o/r", 99, "x"); err == nil {
		t.Fatal("expected error for unknown item")
	}
}
