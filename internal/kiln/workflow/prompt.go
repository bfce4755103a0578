package workflow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agentic-metallurgy/kiln/internal/kiln/labels"
	"github.com/agentic-metallurgy/kiln/internal/ticket"
)

// buildStagePrompt constructs the prompt for one full-stage run. Each stage
// gets an explicit mode header overriding any project CLAUDE.md rule meant
// for a human session — this daemon is the execution bot, not a human
// pairing session, and must act autonomously without asking for confirmation.
func buildStagePrompt(item ticket.Item, stage string) string {
	var sb strings.Builder

	sb.WriteString("## Autonomous Execution Mode\n\n")
	sb.WriteString("You are running unattended. Do not ask for confirmation; work the task through to completion.\n\n")
	sb.WriteString(fmt.Sprintf("## Issue #%d: %s\n\n", item.ID, item.Title))
	sb.WriteString(item.Body)
	sb.WriteString("\n\n")

	switch stage {
	case labels.StatusResearch:
		sb.WriteString("## Task: Research\n\n")
		sb.WriteString("Explore the codebase and gather the context needed to plan this issue. ")
		sb.WriteString("Identify the relevant files, existing patterns, and constraints.\n\n")
		sb.WriteString("Do NOT write or modify any code and do NOT commit anything. ")
		sb.WriteString("Respond with your findings as markdown; this becomes the issue's research section.\n")
	case labels.StatusPlan:
		sb.WriteString("## Task: Plan\n\n")
		sb.WriteString("Using the research above, write a concrete implementation plan: the files to change, ")
		sb.WriteString("the approach, and any tradeoffs worth flagging.\n\n")
		sb.WriteString("Do NOT write or modify any code and do NOT commit anything. ")
		sb.WriteString("Respond with the plan as markdown; this becomes the issue's plan section.\n")
	case labels.StatusImplement:
		sb.WriteString("## Task: Implement\n\n")
		sb.WriteString("Using the plan above, implement the change.\n\n")
		sb.WriteString("1. Create a branch for this issue\n")
		sb.WriteString("2. Implement exactly what the plan describes\n")
		sb.WriteString("3. Verify the build and tests pass before committing\n")
		sb.WriteString("4. Commit your changes and open a pull request referencing issue #" + strconv.Itoa(item.ID) + "\n")
	case labels.StatusValidate:
		sb.WriteString("## Task: Validate\n\n")
		sb.WriteString("Review the pull request opened for this issue against the plan above.\n\n")
		sb.WriteString("1. Run the project's build and test suite\n")
		sb.WriteString("2. Confirm the change matches the plan and the issue's acceptance criteria\n")
		sb.WriteString("3. If you find and fix a problem, commit the fix\n")
		sb.WriteString("4. If everything checks out, leave the pull request ready for human merge\n")
	}

	return sb.String()
}

// buildEditPrompt constructs the prompt for one in-place comment-edit
// iteration during Research or Plan (§4.7). Only the comment and the
// relevant body section are in scope — the backend is not asked to touch
// code at this stage.
func buildEditPrompt(item ticket.Item, stage string, comment ticket.Comment) string {
	var sb strings.Builder

	sb.WriteString("## Autonomous Execution Mode\n\n")
	sb.WriteString("You are running unattended. Do not ask for confirmation.\n\n")
	sb.WriteString(fmt.Sprintf("## Issue #%d: %s\n\n", item.ID, item.Title))
	sb.WriteString(item.Body)
	sb.WriteString("\n\n")
	sb.WriteString("## New Comment\n\n")
	sb.WriteString(fmt.Sprintf("**%s** wrote:\n\n%s\n\n", comment.Author, comment.Body))

	switch stage {
	case labels.StatusResearch:
		sb.WriteString("Revise the research section above to address this comment. ")
	case labels.StatusPlan:
		sb.WriteString("Revise the plan section above to address this comment. ")
	}
	sb.WriteString("Do NOT write or modify any code and do NOT commit anything. ")
	sb.WriteString("Respond with the complete revised section as markdown.\n")

	return sb.String()
}

// replaceMarkedSection replaces the content between start/end in body with
// content, wrapped in the same marker pair. If the markers aren't present
// yet, the section is appended to the end of body.
func replaceMarkedSection(body, start, end, content string) string {
	wrapped := start + "\n" + strings.TrimSpace(content) + "\n" + end

	i := strings.Index(body, start)
	if i == -1 {
		if body == "" {
			return wrapped
		}
		return strings.TrimRight(body, "\n") + "\n\n" + wrapped
	}
	j := strings.Index(body[i:], end)
	if j == -1 {
		return strings.TrimRight(body, "\n") + "\n\n" + wrapped
	}
	j += i + len(end)
	return body[:i] + wrapped + body[j:]
}
