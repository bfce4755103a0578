package github

import (
	"strings"

	"github.com/agentic-metallurgy/kiln/internal/kiln/labels"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

// toItem converts a GitHub issue into the domain ticket.Item snapshot. The
// kiln status column (Backlog/Research/Plan/...) is carried as a
// "status:<name>" label — see statusLabelPrefix in types.go — since a plain
// Issues repository has no native board-column field; every other kiln
// label (running/ready/control/failure) is a plain label name already.
func toItem(repo string, issue *Issue) ticket.Item {
	labelNames := make([]string, 0, len(issue.Labels))
	status := labels.StatusBacklog
	for _, l := range issue.Labels {
		if name, ok := strings.CutPrefix(l.Name, statusLabelPrefix); ok {
			status = capitalizeStatus(name)
			continue
		}
		labelNames = append(labelNames, l.Name)
	}

	return ticket.Item{
		Repo:         repo,
		ID:           issue.Number,
		Status:       status,
		Labels:       labelNames,
		Title:        issue.Title,
		Open:         issue.State == StateOpen,
		CommentCount: issue.Comments,
		Body:         issue.Body,
	}
}

// capitalizeStatus maps a lowercase status-label suffix ("research") to the
// LabelModel's canonical status constant spelling ("Research"). Unknown
// suffixes pass through title-cased, which simply won't match any watched
// status and is handled as an unknown-passthrough item per the Item
// invariant (§3): status ∈ KNOWN_STATUSES ∪ {unknown-passthrough}.
func capitalizeStatus(suffix string) string {
	switch strings.ToLower(suffix) {
	case "backlog":
		return labels.StatusBacklog
	case "research":
		return labels.StatusResearch
	case "plan":
		return labels.StatusPlan
	case "implement":
		return labels.StatusImplement
	case "validate":
		return labels.StatusValidate
	case "done":
		return labels.StatusDone
	default:
		if suffix == "" {
			return labels.StatusBacklog
		}
		return strings.ToUpper(suffix[:1]) + suffix[1:]
	}
}

// statusLabelName is the inverse of toItem's status extraction: the label
// name that must be added/removed on the issue to reflect status.
func statusLabelName(status string) string {
	return statusLabelPrefix + strings.ToLower(status)
}

func toComment(c *Comment) ticket.Comment {
	return ticket.Comment{ID: c.ID, Author: c.User.Login, Body: c.Body, CreatedAt: c.CreatedAt}
}
