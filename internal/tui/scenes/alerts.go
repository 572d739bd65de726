package scenes

import (
	"context"
	"fmt"
	"strings"

	"fraud-workbench/internal/alerts"
	"fraud-workbench/internal/tui/styles"
	"fraud-workbench/internal/workflow"

	tea "github.com/charmbracelet/bubbletea"
)

// AlertsScene lists the alerts of the active rule and drives rule choice,
// family loads and manual lookup.
type AlertsScene struct {
	ctx     context.Context
	wb      *workflow.Workbench
	rules   []string
	cursor  int
	offset  int
	maxRows int
	width   int
	height  int
	loading bool
	lookup  prompt
}

// NewAlertsScene creates the alerts scene.
func NewAlertsScene(ctx context.Context, wb *workflow.Workbench) *AlertsScene {
	return &AlertsScene{
		ctx:     ctx,
		wb:      wb,
		rules:   wb.Catalog().Keys(),
		maxRows: 10,
	}
}

// Init runs the active rule's query.
func (s *AlertsScene) Init() tea.Cmd {
	s.loading = true
	return LoadAlerts(s.ctx, s.wb)
}

// Capturing reports whether keys go to the lookup prompt.
func (s *AlertsScene) Capturing() bool {
	return s.lookup.active
}

// Update handles messages for the alerts scene
func (s *AlertsScene) Update(msg tea.Msg) (*AlertsScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.maxRows = max(5, s.height-16)
		return s, nil

	case OpMsg:
		if msg.Op == OpAlerts {
			s.loading = false
			if s.cursor >= len(s.wb.Alerts()) {
				s.cursor, s.offset = 0, 0
			}
		}
		return s, nil

	case tea.KeyMsg:
		if s.lookup.active {
			query, done := s.lookup.handle(msg)
			if !done || query == "" {
				return s, nil
			}
			return s, run(OpSelect, func() error {
				_, err := s.wb.Lookup(s.ctx, query)
				return err
			})
		}
		return s.handleKey(msg)
	}
	return s, nil
}

func (s *AlertsScene) handleKey(msg tea.KeyMsg) (*AlertsScene, tea.Cmd) {
	list := s.wb.Alerts()
	switch msg.String() {
	case "up", "k":
		s.cursor, s.offset = scroll(s.cursor, s.offset, len(list), s.maxRows, -1)
	case "down", "j":
		s.cursor, s.offset = scroll(s.cursor, s.offset, len(list), s.maxRows, 1)
	case "pgup":
		s.cursor, s.offset = scroll(s.cursor, s.offset, len(list), s.maxRows, -s.maxRows)
	case "pgdown":
		s.cursor, s.offset = scroll(s.cursor, s.offset, len(list), s.maxRows, s.maxRows)
	case "enter":
		if s.cursor < len(list) {
			a := list[s.cursor]
			return s, run(OpSelect, func() error {
				s.wb.SelectAlert(s.ctx, a)
				return nil
			})
		}
	case "r":
		s.loading = true
		return s, LoadAlerts(s.ctx, s.wb)
	case "[", "]":
		s.cycleRule(msg.String() == "]")
	case "f":
		s.loading = true
		return s, run(OpAlerts, func() error {
			_, err := s.wb.LoadFamily(s.ctx, "FAF")
			return err
		})
	case "u":
		s.loading = true
		return s, run(OpAlerts, func() error {
			_, err := s.wb.Refresh(s.ctx, "")
			return err
		})
	case "/":
		s.lookup.open("Lookup account or identifier")
	}
	return s, nil
}

// cycleRule switches to the next or previous catalog rule. Alerts are not
// refetched until the investigator runs the query.
func (s *AlertsScene) cycleRule(forward bool) {
	if len(s.rules) == 0 {
		return
	}
	active := s.wb.Selection().ActiveRule
	idx := 0
	for i, k := range s.rules {
		if k == active {
			idx = i
		}
	}
	if forward {
		idx = (idx + 1) % len(s.rules)
	} else {
		idx = (idx - 1 + len(s.rules)) % len(s.rules)
	}
	if _, err := s.wb.SetRule(s.rules[idx]); err == nil {
		s.cursor, s.offset = 0, 0
	}
}

// View renders the alert table and the context of the highlighted alert
func (s *AlertsScene) View() string {
	var b strings.Builder
	snap := s.wb.Selection()

	b.WriteString(styles.Title.Render(fmt.Sprintf("  Alerts · rule %s", snap.ActiveRule)))
	b.WriteString("\n\n")

	if s.lookup.active {
		b.WriteString(styles.Prompt.Render(s.lookup.view()))
		b.WriteString("\n\n")
	}

	list := s.wb.Alerts()
	if len(list) == 0 {
		if s.loading {
			b.WriteString(styles.Muted.Render("  Loading alerts..."))
		} else {
			b.WriteString(styles.Muted.Render("  No alerts. Press [r] to run the query or [/] to look up an entity."))
		}
		return b.String()
	}

	header := fmt.Sprintf("  %-14s %-10s %-22s %s", "ID", "Severity", "Anchor", "Summary")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	end := min(s.offset+s.maxRows, len(list))
	for i := s.offset; i < end; i++ {
		b.WriteString(s.renderRow(list[i], i == s.cursor, snap.Alert))
		b.WriteString("\n")
	}
	if len(list) > s.maxRows {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  %d-%d of %d", s.offset+1, end, len(list))))
		b.WriteString("\n")
	}
	if s.loading {
		b.WriteString(styles.Muted.Render("  (refreshing...)"))
		b.WriteString("\n")
	}

	if s.cursor < len(list) {
		a := list[s.cursor]
		rule := a.RuleKey
		if rule == "" {
			rule = snap.ActiveRule
		}
		b.WriteString("\n")
		for _, line := range a.ContextLines(rule) {
			b.WriteString(styles.Subtitle.Render("  " + line))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (s *AlertsScene) renderRow(a alerts.Alert, highlighted bool, selected *alerts.Alert) string {
	anchorID := a.AccountID
	if anchorID == "" {
		anchorID = a.DeviceID
	}
	if anchorID == "" {
		anchorID = a.AnchorID
	}
	marker := " "
	if selected != nil && selected.ID == a.ID {
		marker = "›"
	}

	sev := styles.Severity(a.Severity).Render(fmt.Sprintf("%-10s", a.Severity))
	row := fmt.Sprintf(" %s%-14s %s %-22s %s", marker, truncate(string(a.ID), 14), sev,
		truncate(anchorID, 22), truncate(a.Summary, 48))
	if highlighted {
		return styles.TableRowSelected.Render(row)
	}
	return row
}
