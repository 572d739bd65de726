// Package scenes provides the workbench TUI scenes. Scenes read their data
// from the workbench on every render and only keep cursor state.
package scenes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fraud-workbench/internal/workflow"

	tea "github.com/charmbracelet/bubbletea"
)

// Op names the workbench operation an OpMsg reports on.
type Op string

const (
	OpNone      Op = ""
	OpAlerts    Op = "alerts"
	OpSelect    Op = "select"
	OpGraph     Op = "graph"
	OpCase      Op = "case"
	OpDispute   Op = "dispute"
	OpExport    Op = "export"
	OpAnalytics Op = "analytics"
	OpHealth    Op = "health"
)

// OpMsg reports a finished workbench operation. The outcome itself is
// already on the workbench status line.
type OpMsg struct {
	Op  Op
	Err error
}

// Stale reports whether the result was superseded and dropped.
func (m OpMsg) Stale() bool {
	return errors.Is(m.Err, workflow.ErrStale)
}

// Reselected reports whether the operation moved the selection to a new
// anchor, which calls for a graph load.
func (m OpMsg) Reselected() bool {
	return m.Err == nil && (m.Op == OpAlerts || m.Op == OpSelect)
}

// TickMsg is sent on each tick - exported for use by parent model
type TickMsg struct {
	Scene string
	Time  time.Time
}

// run wraps fn as a command reporting op.
func run(op Op, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return OpMsg{Op: op, Err: fn()}
	}
}

// LoadGraph returns a command loading the current anchor's graph.
func LoadGraph(ctx context.Context, wb *workflow.Workbench) tea.Cmd {
	return run(OpGraph, func() error {
		_, err := wb.LoadGraph(ctx)
		return err
	})
}

// LoadAlerts returns a command running the active rule's query.
func LoadAlerts(ctx context.Context, wb *workflow.Workbench) tea.Cmd {
	return run(OpAlerts, func() error {
		_, err := wb.LoadAlerts(ctx, nil)
		return err
	})
}

// CheckHealth returns a command checking the graph backend.
func CheckHealth(ctx context.Context, wb *workflow.Workbench) tea.Cmd {
	return run(OpHealth, func() error {
		_, err := wb.Health(ctx)
		return err
	})
}

// prompt is a single-line text entry.
type prompt struct {
	label  string
	value  []rune
	active bool
}

func (p *prompt) open(label string) {
	p.label = label
	p.value = p.value[:0]
	p.active = true
}

// handle applies a key. It returns the entered text and true on enter.
func (p *prompt) handle(msg tea.KeyMsg) (string, bool) {
	switch msg.Type {
	case tea.KeyEnter:
		p.active = false
		return strings.TrimSpace(string(p.value)), true
	case tea.KeyEsc:
		p.active = false
	case tea.KeyBackspace:
		if len(p.value) > 0 {
			p.value = p.value[:len(p.value)-1]
		}
	case tea.KeySpace:
		p.value = append(p.value, ' ')
	case tea.KeyRunes:
		p.value = append(p.value, msg.Runes...)
	}
	return "", false
}

func (p *prompt) view() string {
	return fmt.Sprintf("%s: %s█", p.label, string(p.value))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// scroll moves a cursor within n rows, keeping it inside the visible window.
func scroll(cursor, offset, n, rows, delta int) (int, int) {
	if n == 0 {
		return 0, 0
	}
	cursor = max(0, min(n-1, cursor+delta))
	if cursor < offset {
		offset = cursor
	}
	if cursor >= offset+rows {
		offset = cursor - rows + 1
	}
	return cursor, offset
}
