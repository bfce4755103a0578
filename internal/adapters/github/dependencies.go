package github

import (
	"context"
	"fmt"
	"regexp"

	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

// dependencyRegex matches "Depends on: #123", "Blocked by #456", "Requires: #789"
// in an issue body, case-insensitively.
var dependencyRegex = regexp.MustCompile(`(?i)(?:depends\s+on|blocked\s+by|requires):?\s*#(\d+)`)

// ParseDependencies extracts the issue numbers an item's body declares a
// dependency on.
func ParseDependencies(body string) []int {
	if body == "" {
		return nil
	}
	matches := dependencyRegex.FindAllStringSubmatch(body, -1)
	seen := make(map[int]bool)
	var deps []int
	for _, m := range matches {
		var n int
		if _, err := fmt.Sscanf(m[1], "%d", &n); err != nil || n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		deps = append(deps, n)
	}
	return deps
}

// DependencyChecker implements trigger.DependencyChecker (§11 supplemented
// feature: dependency-aware dispatch ordering) by reading "Depends on #N"
// style references out of the item body and checking whether the
// referenced issue is still open.
type DependencyChecker struct {
	client *Client
}

// NewDependencyChecker returns a DependencyChecker backed by client.
func NewDependencyChecker(client *Client) *DependencyChecker {
	return &DependencyChecker{client: client}
}

// HasPendingDependency reports whether item declares a dependency on an
// issue that is still open. If a dependency cannot be fetched, it is
// treated as still pending — safer to defer than to dispatch against an
// unverified precondition.
func (d *DependencyChecker) HasPendingDependency(item ticket.Item) bool {
	deps := ParseDependencies(item.Body)
	if len(deps) == 0 {
		return false
	}
	owner, name, err := splitRepo(item.Repo)
	if err != nil {
		return true
	}
	ctx := context.Background()
	for _, depNum := range deps {
		dep, err := d.client.GetIssue(ctx, owner, name, depNum)
		if err != nil {
			return true
		}
		if dep.State == StateOpen {
			return true
		}
	}
	return false
}
