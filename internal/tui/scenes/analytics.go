package scenes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fraud-workbench/internal/analytics"
	"fraud-workbench/internal/tui/styles"
	"fraud-workbench/internal/workflow"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var timeRanges = []string{"24h", "7d", "30d"}

// AnalyticsScene shows the dashboard KPIs and top suspects.
type AnalyticsScene struct {
	ctx      context.Context
	wb       *workflow.Workbench
	interval time.Duration
	rangeIdx int
	width    int
	height   int

	mu         sync.Mutex
	dash       *analytics.Dashboard
	lastUpdate time.Time
}

// NewAnalyticsScene creates the analytics scene refreshing every interval.
func NewAnalyticsScene(ctx context.Context, wb *workflow.Workbench, interval time.Duration) *AnalyticsScene {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &AnalyticsScene{ctx: ctx, wb: wb, interval: interval}
}

// Capturing is always false; the scene has no text entry.
func (s *AnalyticsScene) Capturing() bool { return false }

// Init fetches the dashboard.
func (s *AnalyticsScene) Init() tea.Cmd {
	return s.fetch()
}

func (s *AnalyticsScene) fetch() tea.Cmd {
	f := analytics.Filter{TimeRange: timeRanges[s.rangeIdx]}
	return run(OpAnalytics, func() error {
		d, err := s.wb.Dashboard(s.ctx, f)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.dash = &d
		s.lastUpdate = time.Now()
		s.mu.Unlock()
		return nil
	})
}

// TickCmd returns a command that ticks every interval
// IMPORTANT: This is returned by the parent model only when this scene is active
func (s *AnalyticsScene) TickCmd() tea.Cmd {
	return tea.Tick(s.interval, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "analytics", Time: t}
	})
}

// Update handles messages for the analytics scene
func (s *AnalyticsScene) Update(msg tea.Msg) (*AnalyticsScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		return s, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "t":
			s.rangeIdx = (s.rangeIdx + 1) % len(timeRanges)
			return s, s.fetch()
		case "r":
			return s, s.fetch()
		}
		return s, nil

	case TickMsg:
		if msg.Scene == "analytics" {
			return s, s.fetch()
		}
	}
	return s, nil
}

// View renders the dashboard
func (s *AnalyticsScene) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("  Analytics · last " + timeRanges[s.rangeIdx]))
	b.WriteString("\n\n")

	s.mu.Lock()
	dash, updated := s.dash, s.lastUpdate
	s.mu.Unlock()

	if dash == nil {
		b.WriteString(styles.Muted.Render("  Loading dashboard..."))
		return b.String()
	}

	cards := []string{
		renderMetricCard("Alerts", fmt.Sprintf("%d", dash.KPIs.AlertsTotal)),
		renderMetricCard("Open alerts", fmt.Sprintf("%d", dash.KPIs.AlertsOpen)),
		renderMetricCard("Open cases", fmt.Sprintf("%d", dash.KPIs.CasesOpen)),
		renderMetricCard("Flagged", fmt.Sprintf("%d", dash.KPIs.SuspectsFlagged)),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n\n")

	if len(dash.Charts.AlertsBySeverity) > 0 {
		b.WriteString(styles.Subtitle.Render("  By severity"))
		b.WriteString("\n")
		for _, c := range dash.Charts.AlertsBySeverity {
			label := fmt.Sprintf("%-10s", c.Severity)
			b.WriteString(fmt.Sprintf("  %s %d\n", styles.Severity(c.Severity).Render(label), c.Count))
		}
		b.WriteString("\n")
	}

	if len(dash.Tables.TopSuspects) > 0 {
		b.WriteString(styles.TableHeader.Render(fmt.Sprintf("  %-20s %-6s %-6s %-5s %s", "Suspect", "Risk", "Degree", "Flags", "Last seen")))
		b.WriteString("\n")
		for _, sp := range dash.Tables.TopSuspects {
			b.WriteString(fmt.Sprintf("  %-20s %-6.2f %-6d %-5d %s\n", truncate(string(sp.ID), 20), sp.RiskScore, sp.Degree, sp.Flags, sp.LastSeen))
		}
	}

	if !updated.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("\n  Updated: %s  [t] range  [r] refresh", updated.Format("15:04:05"))))
	}
	return b.String()
}

func renderMetricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s",
		styles.MetricValue.Render(value),
		styles.MetricLabel.Render(label),
	)
	return styles.MetricCard.Render(content)
}
