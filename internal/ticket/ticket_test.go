package ticket

import "testing"

func TestHasLabel(t *testing.T) {
	item := Item{Labels: []string{"bug", "kiln:ready:research"}}
	if !item.HasLabel("bug") {
		t.Error("expected HasLabel to find an existing label")
	}
	if item.HasLabel("enhancement") {
		t.Error("expected HasLabel to reject a missing label")
	}
}

func TestHasLabelOnEmptyLabelSet(t *testing.T) {
	item := Item{}
	if item.HasLabel("anything") {
		t.Error("expected HasLabel to return false for an item with no labels")
	}
}
