package selection

import (
	"fmt"
	"strings"

	"fraud-workbench/internal/anchor"
	"fraud-workbench/internal/rules"
)

// Policy decides when case and flag actions may be taken on the selection.
type Policy string

const (
	// PolicySearchOnly permits actions only while the ALL search is active.
	PolicySearchOnly Policy = "search-only"
	// PolicyAnySelection permits actions on any selected anchor.
	PolicyAnySelection Policy = "any-selection"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySearchOnly, PolicyAnySelection:
		return p, nil
	case "":
		return PolicySearchOnly, nil
	default:
		return "", fmt.Errorf("unknown action policy %q", s)
	}
}

// Permits reports whether actions are allowed for a under activeRule.
func (p Policy) Permits(activeRule string, a anchor.Anchor) bool {
	if a.IsZero() {
		return false
	}
	if p == PolicyAnySelection {
		return true
	}
	return strings.EqualFold(activeRule, rules.All)
}

// Requirement describes what the policy needs, for status messages.
func (p Policy) Requirement() string {
	if p == PolicyAnySelection {
		return "select an anchor first"
	}
	return "case actions are available in ALL search mode"
}
