// Package tui provides the investigator terminal user interface
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fraud-workbench/internal/tui/scenes"
	"fraud-workbench/internal/tui/styles"
	"fraud-workbench/internal/workflow"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Scene represents the current view
type Scene int

const (
	SceneAlerts Scene = iota
	SceneGraph
	SceneCase
	SceneAnalytics
)

const sceneCount = 4

// Options tune the TUI.
type Options struct {
	// AnalyticsInterval is the dashboard refresh period while its tab is
	// active.
	AnalyticsInterval time.Duration
}

// Model is the main TUI model
type Model struct {
	ctx context.Context
	wb  *workflow.Workbench

	scene Scene

	alerts    *scenes.AlertsScene
	graph     *scenes.GraphScene
	caseFile  *scenes.CaseScene
	analytics *scenes.AnalyticsScene

	// lastErr marks the status line as an error until the next success.
	lastErr bool

	width  int
	height int

	quitting bool
}

// New creates a new TUI model over wb.
func New(ctx context.Context, wb *workflow.Workbench, opts Options) *Model {
	return &Model{
		ctx:       ctx,
		wb:        wb,
		scene:     SceneAlerts,
		alerts:    scenes.NewAlertsScene(ctx, wb),
		graph:     scenes.NewGraphScene(ctx, wb),
		caseFile:  scenes.NewCaseScene(ctx, wb),
		analytics: scenes.NewAnalyticsScene(ctx, wb, opts.AnalyticsInterval),
	}
}

// Init loads the first alert page and checks the graph backend.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.alerts.Init(),
		scenes.CheckHealth(m.ctx, m.wb),
	)
}

// capturing reports whether the active scene is taking text input.
func (m *Model) capturing() bool {
	switch m.scene {
	case SceneAlerts:
		return m.alerts.Capturing()
	case SceneCase:
		return m.caseFile.Capturing()
	}
	return false
}

func (m *Model) switchTo(s Scene) tea.Cmd {
	if m.scene == s {
		return nil
	}
	m.scene = s
	if s == SceneAnalytics {
		// Only the active analytics tab ticks.
		return tea.Batch(m.analytics.Init(), m.analytics.TickCmd())
	}
	return nil
}

// Update handles all messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if !m.capturing() {
			switch msg.String() {
			case "q":
				m.quitting = true
				return m, tea.Quit
			case "1":
				return m, m.switchTo(SceneAlerts)
			case "2":
				return m, m.switchTo(SceneGraph)
			case "3":
				return m, m.switchTo(SceneCase)
			case "4":
				return m, m.switchTo(SceneAnalytics)
			case "tab":
				return m, m.switchTo((m.scene + 1) % sceneCount)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.alerts, _ = m.alerts.Update(msg)
		m.graph, _ = m.graph.Update(msg)
		m.caseFile, _ = m.caseFile.Update(msg)
		m.analytics, _ = m.analytics.Update(msg)
		return m, nil

	case scenes.OpMsg:
		return m, m.handleOp(msg)

	case scenes.TickMsg:
		if m.scene != SceneAnalytics {
			return m, nil
		}
		var cmd tea.Cmd
		m.analytics, cmd = m.analytics.Update(msg)
		return m, tea.Batch(cmd, m.analytics.TickCmd())
	}

	// Forward other messages to active scene only
	var cmd tea.Cmd
	switch m.scene {
	case SceneAlerts:
		m.alerts, cmd = m.alerts.Update(msg)
	case SceneGraph:
		m.graph, cmd = m.graph.Update(msg)
	case SceneCase:
		m.caseFile, cmd = m.caseFile.Update(msg)
	case SceneAnalytics:
		m.analytics, cmd = m.analytics.Update(msg)
	}
	return m, cmd
}

// handleOp updates every scene with a finished operation and loads the
// graph after the selection moved.
func (m *Model) handleOp(msg scenes.OpMsg) tea.Cmd {
	if msg.Stale() {
		return nil
	}
	if msg.Op != scenes.OpNone {
		m.lastErr = msg.Err != nil
	}

	m.alerts, _ = m.alerts.Update(msg)
	m.graph, _ = m.graph.Update(msg)
	m.caseFile, _ = m.caseFile.Update(msg)

	if msg.Reselected() && !m.wb.Selection().Anchor.IsZero() {
		return scenes.LoadGraph(m.ctx, m.wb)
	}
	return nil
}

// View renders the current view
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(styles.Selection.Render("  " + m.wb.Selection().Label))
	b.WriteString("\n\n")

	switch m.scene {
	case SceneAlerts:
		b.WriteString(m.alerts.View())
	case SceneGraph:
		b.WriteString(m.graph.View())
	case SceneCase:
		b.WriteString(m.caseFile.View())
	case SceneAnalytics:
		b.WriteString(m.analytics.View())
	}

	b.WriteString("\n\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderHeader() string {
	tabs := []struct {
		name  string
		key   string
		scene Scene
	}{
		{"Alerts", "1", SceneAlerts},
		{"Graph", "2", SceneGraph},
		{"Case", "3", SceneCase},
		{"Analytics", "4", SceneAnalytics},
	}

	var tabViews []string
	for _, tab := range tabs {
		label := fmt.Sprintf(" %s %s ", tab.key, tab.name)
		if tab.scene == m.scene {
			tabViews = append(tabViews, styles.TabActive.Render(label))
		} else {
			tabViews = append(tabViews, styles.TabInactive.Render(label))
		}
	}

	return lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.MutedColor).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabViews...))
}

func (m *Model) renderStatus() string {
	status := "  " + m.wb.Status()
	if m.lastErr {
		return styles.StatusError.Render(status)
	}
	return styles.Muted.Render(status)
}

func (m *Model) renderFooter() string {
	var help string
	switch m.scene {
	case SceneAlerts:
		help = " [r] Run  [ and ] Rule  [enter] Select  [f] FAF  [u] Refresh  [/] Lookup"
	case SceneGraph:
		help = " [enter] Re-anchor  [g] Reload  [F] Flag"
	case SceneCase:
		help = " [n] Note  [b/s/e] Block/Safe/Escalate  [d/h/l/t] Dispute  [x] Export"
	case SceneAnalytics:
		help = " [t] Range  [r] Refresh"
	}
	return styles.Help.Render(help + "  [1-4/Tab] Tabs  [q] Quit ")
}

// Run starts the TUI application
func Run(ctx context.Context, wb *workflow.Workbench, opts Options) error {
	m := New(ctx, wb, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
