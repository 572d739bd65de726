// Package selection holds the investigator's current anchor and derives it
// from alert fetches, row clicks, graph node clicks and manual lookups.
package selection

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"fraud-workbench/internal/alerts"
	"fraud-workbench/internal/anchor"
	wberrors "fraud-workbench/internal/errors"
	"fraud-workbench/internal/graph"
	"fraud-workbench/internal/rules"
)

// State is the selection state.
type State int

const (
	NoSelection State = iota
	AlertSelected
	NodeSelected
)

func (s State) String() string {
	switch s {
	case AlertSelected:
		return "alert_selected"
	case NodeSelected:
		return "node_selected"
	default:
		return "no_selection"
	}
}

// Account id shapes accepted on graph node clicks.
const (
	DefaultAccountIDPattern = `^[A-Za-z0-9_-]+$`
	StrictAccountIDPattern  = `^\d{13,}$`
)

// CompileAccountIDPattern maps a configured pattern to a regexp. "relaxed"
// and "strict" name the presets; anything else is compiled as given.
func CompileAccountIDPattern(s string) (*regexp.Regexp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "relaxed":
		return regexp.MustCompile(DefaultAccountIDPattern), nil
	case "strict":
		return regexp.MustCompile(StrictAccountIDPattern), nil
	}
	re, err := regexp.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("invalid account id pattern: %w", err)
	}
	return re, nil
}

// DeviceRuleKey is the rule family assigned to device anchors picked from
// the graph or a lookup.
const DeviceRuleKey = rules.R2

// Snapshot is the published view of the selection after a transition.
type Snapshot struct {
	Seq              uint64
	State            State
	Anchor           anchor.Anchor
	Alert            *alerts.Alert
	ActiveRule       string
	Label            string
	AnchorKey        anchor.Key
	ActionsPermitted bool
	Notice           string
}

// Observer receives every published snapshot.
type Observer func(Snapshot)

// Config configures a Machine.
type Config struct {
	Catalog          *rules.Catalog
	AccountIDPattern *regexp.Regexp
	Policy           Policy
	Logger           *slog.Logger
}

// Machine is the selection state machine. All mutation goes through its
// transition methods.
type Machine struct {
	catalog   *rules.Catalog
	accountID *regexp.Regexp
	policy    Policy
	logger    *slog.Logger

	mu         sync.Mutex
	seq        uint64
	state      State
	anchor     anchor.Anchor
	alert      *alerts.Alert
	activeRule string
	notice     string
	observers  []Observer
}

// New creates a machine with activeRule selected and nothing chosen.
func New(cfg Config, activeRule string) *Machine {
	m := &Machine{
		catalog:    cfg.Catalog,
		accountID:  cfg.AccountIDPattern,
		policy:     cfg.Policy,
		logger:     cfg.Logger,
		activeRule: strings.ToUpper(activeRule),
	}
	if m.catalog == nil {
		m.catalog = rules.Default()
	}
	if m.accountID == nil {
		m.accountID = regexp.MustCompile(DefaultAccountIDPattern)
	}
	if m.policy == "" {
		m.policy = PolicySearchOnly
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Subscribe registers an observer. Observers are called outside the lock in
// transition order.
func (m *Machine) Subscribe(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

// Snapshot returns the current view without transitioning.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// ActiveRule returns the rule selected in the rule selector.
func (m *Machine) ActiveRule() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeRule
}

// Policy returns the action policy in force.
func (m *Machine) Policy() Policy {
	return m.policy
}

// OnAlertsLoaded selects the first alert, or clears the selection when the
// result is empty.
func (m *Machine) OnAlertsLoaded(list []alerts.Alert) Snapshot {
	if len(list) == 0 {
		return m.transition(func() {
			m.clearLocked("No alerts for " + m.activeRule + ".")
		})
	}
	return m.OnAlertRowClicked(list[0])
}

// OnAlertRowClicked selects the clicked alert, replacing any prior selection.
func (m *Machine) OnAlertRowClicked(a alerts.Alert) Snapshot {
	return m.transition(func() {
		anc, ok := m.deriveLocked(a)
		if !ok {
			m.clearLocked(fmt.Sprintf("Alert %s has no anchor id.", a.ID))
			return
		}
		alert := a
		m.state = AlertSelected
		m.anchor = anc
		m.alert = &alert
		m.notice = ""
	})
}

// OnGraphNodeClicked re-anchors on a graph node. It reports false and
// leaves the selection alone for nodes that cannot be anchors.
func (m *Machine) OnGraphNodeClicked(n graph.Node) (Snapshot, bool) {
	if n.ID == "" {
		return m.Snapshot(), false
	}
	switch {
	case n.IsAccount():
		if !m.accountID.MatchString(n.ID) {
			return m.Snapshot(), false
		}
		return m.transition(func() {
			rule := m.anchor.RuleKey
			if rule == "" {
				rule = m.activeRule
			}
			m.selectNodeLocked(anchor.Anchor{Kind: anchor.KindAccount, ID: n.ID, RuleKey: rule}, "")
		}), true
	case n.IsDeviceLike():
		return m.transition(func() {
			m.selectNodeLocked(anchor.Anchor{Kind: anchor.KindDevice, ID: n.ID, RuleKey: DeviceRuleKey}, "")
		}), true
	}
	return m.Snapshot(), false
}

// SelectAnchor moves to NodeSelected on an externally resolved anchor such
// as a manual lookup match.
func (m *Machine) SelectAnchor(a anchor.Anchor, notice string) Snapshot {
	return m.transition(func() {
		m.selectNodeLocked(a, notice)
	})
}

// OnRuleChanged switches the active rule and clears the selection. Alerts
// are not refetched.
func (m *Machine) OnRuleChanged(rule string) Snapshot {
	return m.transition(func() {
		m.activeRule = strings.ToUpper(strings.TrimSpace(rule))
		m.clearLocked("")
	})
}

// Notify attaches a notice to the current selection without changing it.
func (m *Machine) Notify(notice string) Snapshot {
	return m.transition(func() {
		m.notice = notice
	})
}

// RequireAnchor returns the current anchor or a NoSelection error.
func (m *Machine) RequireAnchor(op string) (anchor.Anchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.anchor.IsZero() {
		return anchor.Anchor{}, wberrors.New(op, wberrors.KindNoSelection, "no anchor selected")
	}
	return m.anchor, nil
}

// RequireAction returns the current anchor if case and flag actions are
// permitted on it.
func (m *Machine) RequireAction(op string) (anchor.Anchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.anchor.IsZero() {
		return anchor.Anchor{}, wberrors.New(op, wberrors.KindNoSelection, "no anchor selected")
	}
	if !m.policy.Permits(m.activeRule, m.anchor) {
		return anchor.Anchor{}, wberrors.Validation(op, m.policy.Requirement())
	}
	return m.anchor, nil
}

// CurrentAlert returns the alert backing the selection, if any.
func (m *Machine) CurrentAlert() (alerts.Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.alert == nil {
		return alerts.Alert{}, false
	}
	return *m.alert, true
}

func (m *Machine) transition(apply func()) Snapshot {
	m.mu.Lock()
	apply()
	m.seq++
	snap := m.snapshotLocked()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, o := range observers {
		o(snap)
	}
	return snap
}

func (m *Machine) clearLocked(notice string) {
	m.state = NoSelection
	m.anchor = anchor.Anchor{}
	m.alert = nil
	m.notice = notice
}

func (m *Machine) selectNodeLocked(a anchor.Anchor, notice string) {
	m.state = NodeSelected
	m.anchor = a
	m.alert = nil
	m.notice = notice
}

// deriveLocked computes the anchor for an alert. The kind comes from the
// alert itself, then the rule catalog, then the shape of the ids.
func (m *Machine) deriveLocked(a alerts.Alert) (anchor.Anchor, bool) {
	ruleKey := strings.ToUpper(strings.TrimSpace(a.RuleKey))
	if ruleKey == "" {
		ruleKey = m.activeRule
	}

	kind := a.AnchorKind
	if kind == "" {
		kind = m.catalog.AnchorKind(ruleKey)
	}
	if kind == "" {
		kind = anchor.KindAccount
		if a.DeviceID != "" && a.AccountID == "" {
			kind = anchor.KindDevice
		}
		m.logger.Warn("anchor kind inferred from alert shape",
			"alert_id", string(a.ID), "rule", ruleKey, "kind", kind)
	}

	id := a.AccountID
	if kind == anchor.KindDevice {
		id = a.DeviceID
	}
	if id == "" {
		id = a.AnchorID
	}
	if id == "" {
		return anchor.Anchor{}, false
	}
	return anchor.Anchor{Kind: kind, ID: id, RuleKey: ruleKey}, true
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Seq:              m.seq,
		State:            m.state,
		Anchor:           m.anchor,
		ActiveRule:       m.activeRule,
		Label:            Label(m.anchor),
		AnchorKey:        m.anchor.Key(),
		ActionsPermitted: m.policy.Permits(m.activeRule, m.anchor),
		Notice:           m.notice,
	}
	if m.alert != nil {
		alert := *m.alert
		snap.Alert = &alert
	}
	return snap
}

// Label renders the selection line shown to the investigator.
func Label(a anchor.Anchor) string {
	if a.IsZero() {
		return "No selection yet."
	}
	return fmt.Sprintf("Selected %s %s (%s)", a.Kind.Noun(), a.ID, a.RuleKey)
}
