package cases

import "strings"

// Case statuses.
const (
	StatusOpen       = "Open"
	StatusInProgress = "In Progress"
	StatusResolved   = "Resolved"
)

// Investigator actions.
const (
	ActionBlock    = "BLOCK"
	ActionSafe     = "SAFE"
	ActionEscalate = "ESCALATE"
)

// statusByAction is the single action to status policy. Actions not listed
// leave the case Open.
var statusByAction = map[string]string{
	ActionBlock:    StatusResolved,
	ActionSafe:     StatusResolved,
	ActionEscalate: StatusInProgress,
}

// StatusFor returns the case status an action moves the case to.
func StatusFor(action string) string {
	if s, ok := statusByAction[NormalizeAction(action)]; ok {
		return s
	}
	return StatusOpen
}

// NormalizeAction upper-cases and trims an action name.
func NormalizeAction(action string) string {
	return strings.ToUpper(strings.TrimSpace(action))
}
