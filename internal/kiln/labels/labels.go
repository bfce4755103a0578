// Package labels is the canonical LabelModel: a pure data module mapping
// statuses to their running/ready/failure labels, with no I/O.
package labels

// Status names the core recognizes (§6 WATCHED_STATUSES plus the terminal ones).
const (
	StatusBacklog   = "Backlog"
	StatusResearch  = "Research"
	StatusPlan      = "Plan"
	StatusImplement = "Implement"
	StatusValidate  = "Validate"
	StatusDone      = "Done"
)

// Running labels — at most one may be present on an item at any time.
const (
	RunningPreparing   = "preparing"
	RunningResearching = "researching"
	RunningPlanning    = "planning"
	RunningImplementing = "implementing"
	RunningReviewing   = "reviewing"
	RunningEditing     = "editing"
)

// Ready labels — set when a stage has produced output awaiting advancement.
const (
	ReadyResearch = "research_ready"
	ReadyPlan     = "plan_ready"
)

// Control labels — user-driven signals.
const (
	ControlYolo  = "yolo"
	ControlReset = "reset"
)

// Failure labels.
const (
	FailureYolo       = "yolo_failed"
	FailureImplement  = "implementation_failed"
	FailureResearch   = "research_failed"
)

// MarkerCleanedUp tags an item the daemon has finished releasing resources for.
const MarkerCleanedUp = "cleaned_up"

// BodyMarkers delimit generated content for a stage in an issue body (§6):
// the workflow executor wraps what it writes in the pair so ResetController
// can strip exactly that region and leave the rest of the body untouched.
// Implement/Validate have no entry — their output is a PR/commit, not body text.
var BodyMarkers = map[string][2]string{
	StatusResearch: {"<!-- kiln:research -->", "<!-- /kiln:research -->"},
	StatusPlan:     {"<!-- kiln:plan -->", "<!-- /kiln:plan -->"},
}

// stageEntry ties one watched status to its running/ready/failure labels and
// the status it advances to when yolo fires on a ready item.
type stageEntry struct {
	running  string
	ready    string // "" if the stage has no ready/advance concept (Implement, Validate)
	failure  string
	advances string // next status on yolo-advance, "" if none
}

var stageTable = map[string]stageEntry{
	StatusResearch:  {running: RunningResearching, ready: ReadyResearch, failure: FailureResearch, advances: StatusPlan},
	StatusPlan:      {running: RunningPlanning, ready: ReadyPlan, failure: "", advances: StatusImplement},
	StatusImplement: {running: RunningImplementing, ready: "", failure: FailureImplement, advances: ""},
	StatusValidate:  {running: RunningReviewing, ready: "", failure: "", advances: ""},
}

// allRunningLabels lists every label the LabelModel considers a running label,
// independent of which status it maps from — used by IsRunning and by
// invariant checks that must recognize a running label even on an item whose
// status column has since changed out from under it.
var allRunningLabels = map[string]bool{
	RunningPreparing:    true,
	RunningResearching:  true,
	RunningPlanning:     true,
	RunningImplementing: true,
	RunningReviewing:    true,
	RunningEditing:      true,
}

// RunningLabel returns the running label for status, or "" if the status has none.
func RunningLabel(status string) string {
	return stageTable[status].running
}

// ReadyLabel returns the ready label for status, or "" if the status has none.
func ReadyLabel(status string) string {
	return stageTable[status].ready
}

// FailureLabel returns the failure label for status, or "" if the status has none.
func FailureLabel(status string) string {
	return stageTable[status].failure
}

// AdvanceStatus returns the status a yolo-advance transitions status to, or
// "" if that status has no advance target.
func AdvanceStatus(status string) string {
	return stageTable[status].advances
}

// IsRunning reports whether label is one of the canonical running labels,
// regardless of which status it's currently associated with.
func IsRunning(label string) bool {
	return allRunningLabels[label]
}

// IsKilnLabel reports whether label is one this daemon ever authors itself —
// running, ready, control, or failure labels, plus the cleaned-up marker.
// ResetController uses this to know what to strip.
func IsKilnLabel(label string) bool {
	if allRunningLabels[label] {
		return true
	}
	switch label {
	case ReadyResearch, ReadyPlan,
		ControlYolo, ControlReset,
		FailureYolo, FailureImplement, FailureResearch,
		MarkerCleanedUp:
		return true
	}
	return false
}

// RunningLabelOf returns the running label present in labels, or "" if none
// is present. Callers that must detect the InvariantViolation (two running
// labels present) should use RunningLabelsOf instead.
func RunningLabelOf(itemLabels []string) string {
	for _, l := range itemLabels {
		if allRunningLabels[l] {
			return l
		}
	}
	return ""
}

// RunningLabelsOf returns every running label present in itemLabels. Normally
// at most one; more than one is an InvariantViolation the caller must react to.
func RunningLabelsOf(itemLabels []string) []string {
	var found []string
	for _, l := range itemLabels {
		if allRunningLabels[l] {
			found = append(found, l)
		}
	}
	return found
}

// WatchedStatuses is the default §6 WATCHED_STATUSES set.
func WatchedStatuses() []string {
	return []string{StatusResearch, StatusPlan, StatusImplement}
}
