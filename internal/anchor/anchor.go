// Package anchor defines the subject of an investigation and the key that
// scopes notes, case actions and disputes to it.
package anchor

import (
	"fmt"
	"strings"
)

// Kind is the type of entity under investigation.
type Kind string

const (
	KindAccount Kind = "ACCOUNT"
	KindDevice  Kind = "DEVICE"
)

// ParseKind normalizes a kind string. Identifier-style values map to DEVICE.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACCOUNT":
		return KindAccount, true
	case "DEVICE", "IDENTIFIER":
		return KindDevice, true
	default:
		return "", false
	}
}

// Noun returns the label used in selection text ("account" or "identifier").
func (k Kind) Noun() string {
	if k == KindDevice {
		return "identifier"
	}
	return "account"
}

// Anchor identifies the account or device currently under investigation,
// along with the rule family that produced or last touched it.
type Anchor struct {
	Kind    Kind   `json:"kind"`
	ID      string `json:"id"`
	RuleKey string `json:"rule_key"`
}

// IsZero reports whether the anchor is unset.
func (a Anchor) IsZero() bool {
	return a.ID == ""
}

// Key returns the anchor's AnchorKey.
func (a Anchor) Key() Key {
	return NewKey(a.RuleKey, a.ID)
}

// AccountID returns the id when the anchor is an account, otherwise "".
func (a Anchor) AccountID() string {
	if a.Kind == KindAccount {
		return a.ID
	}
	return ""
}

// DeviceID returns the id when the anchor is a device, otherwise "".
func (a Anchor) DeviceID() string {
	if a.Kind == KindDevice {
		return a.ID
	}
	return ""
}

// String renders the anchor for logs.
func (a Anchor) String() string {
	if a.IsZero() {
		return "<none>"
	}
	return fmt.Sprintf("%s %s (%s)", a.Kind.Noun(), a.ID, a.RuleKey)
}

// Key joins rule family and anchor id: "{ruleKey}:{anchorId}". Two anchors
// sharing an id under different rule keys have different keys.
type Key string

// NewKey builds a Key. An empty anchor id yields the empty Key.
func NewKey(ruleKey, anchorID string) Key {
	if anchorID == "" {
		return ""
	}
	return Key(ruleKey + ":" + anchorID)
}

// Split returns the rule key and anchor id. Anchor ids may contain ':'; only
// the first separator is significant.
func (k Key) Split() (ruleKey, anchorID string) {
	rule, id, found := strings.Cut(string(k), ":")
	if !found {
		return "", string(k)
	}
	return rule, id
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return string(k)
}
