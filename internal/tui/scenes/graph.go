package scenes

import (
	"context"
	"fmt"
	"strings"

	"fraud-workbench/internal/graph"
	"fraud-workbench/internal/tui/styles"
	"fraud-workbench/internal/workflow"

	tea "github.com/charmbracelet/bubbletea"
)

// GraphScene shows the loaded neighborhood as a node list. Choosing an
// account or identifier node re-anchors on it.
type GraphScene struct {
	ctx     context.Context
	wb      *workflow.Workbench
	cursor  int
	offset  int
	maxRows int
	width   int
	height  int
	loading bool
}

// NewGraphScene creates the graph scene.
func NewGraphScene(ctx context.Context, wb *workflow.Workbench) *GraphScene {
	return &GraphScene{ctx: ctx, wb: wb, maxRows: 12}
}

// Capturing is always false; the scene has no text entry.
func (s *GraphScene) Capturing() bool { return false }

// Update handles messages for the graph scene
func (s *GraphScene) Update(msg tea.Msg) (*GraphScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.maxRows = max(5, s.height-14)
		return s, nil

	case OpMsg:
		switch {
		case msg.Reselected():
			s.loading = true
		case msg.Op == OpGraph && !msg.Stale():
			s.loading = false
			s.cursor, s.offset = 0, 0
		}
		return s, nil

	case tea.KeyMsg:
		nodes := s.nodes()
		switch msg.String() {
		case "up", "k":
			s.cursor, s.offset = scroll(s.cursor, s.offset, len(nodes), s.maxRows, -1)
		case "down", "j":
			s.cursor, s.offset = scroll(s.cursor, s.offset, len(nodes), s.maxRows, 1)
		case "enter":
			if s.cursor < len(nodes) {
				return s, s.selectNode(nodes[s.cursor])
			}
		case "g":
			s.loading = true
			return s, LoadGraph(s.ctx, s.wb)
		case "F":
			return s, run(OpAlerts, func() error {
				return s.wb.Flag(s.ctx)
			})
		}
	}
	return s, nil
}

func (s *GraphScene) selectNode(n graph.Node) tea.Cmd {
	return func() tea.Msg {
		if _, ok := s.wb.SelectNode(s.ctx, n); !ok {
			return OpMsg{Op: OpNone}
		}
		return OpMsg{Op: OpSelect}
	}
}

func (s *GraphScene) nodes() []graph.Node {
	if g := s.wb.Graph(); g != nil {
		return g.Nodes
	}
	return nil
}

// View renders the node list
func (s *GraphScene) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("  Relationship Graph"))
	b.WriteString("\n\n")

	g := s.wb.Graph()
	if g == nil {
		if s.loading {
			b.WriteString(styles.Muted.Render("  Loading graph..."))
		} else {
			b.WriteString(styles.Muted.Render("  No graph loaded. Select an anchor and press [g]."))
		}
		return b.String()
	}

	summary := fmt.Sprintf("  %d nodes, %d edges via %s endpoint", len(g.Nodes), len(g.Edges), g.Endpoint)
	b.WriteString(styles.Subtitle.Render(summary))
	b.WriteString("\n\n")

	header := fmt.Sprintf("  %-2s %-12s %-24s %s", "", "Type", "Label", "Links")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	end := min(s.offset+s.maxRows, len(g.Nodes))
	for i := s.offset; i < end; i++ {
		n := g.Nodes[i]
		b.WriteString(s.renderNode(n, len(g.Neighbors(n.ID)), i == s.cursor))
		b.WriteString("\n")
	}
	if len(g.Nodes) > s.maxRows {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  %d-%d of %d", s.offset+1, end, len(g.Nodes))))
	}
	return b.String()
}

func (s *GraphScene) renderNode(n graph.Node, links int, highlighted bool) string {
	mark := "  "
	switch {
	case n.IsSubject:
		mark = "★ "
	case n.IsFlagged:
		mark = "⚑ "
	}
	label := n.DisplayLabel()
	if n.CustomerName != "" {
		label += " · " + n.CustomerName
	}
	row := fmt.Sprintf("  %s %-12s %-24s %d", mark, truncate(n.Type, 12), truncate(label, 24), links)

	switch {
	case highlighted:
		return styles.TableRowSelected.Render(row)
	case n.IsSubject:
		return styles.Subject.Render(row)
	case n.IsFlagged:
		return styles.FlaggedNode.Render(row)
	}
	return row
}
