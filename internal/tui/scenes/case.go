package scenes

import (
	"context"
	"fmt"
	"strings"

	"fraud-workbench/internal/dispute"
	"fraud-workbench/internal/tui/styles"
	"fraud-workbench/internal/workflow"

	tea "github.com/charmbracelet/bubbletea"
)

// CaseScene shows the notes, case status and dispute of the selected
// anchor and records investigator actions.
type CaseScene struct {
	ctx    context.Context
	wb     *workflow.Workbench
	note   prompt
	width  int
	height int
}

// NewCaseScene creates the case scene.
func NewCaseScene(ctx context.Context, wb *workflow.Workbench) *CaseScene {
	return &CaseScene{ctx: ctx, wb: wb}
}

// Capturing reports whether keys go to the note prompt.
func (s *CaseScene) Capturing() bool {
	return s.note.active
}

// Update handles messages for the case scene
func (s *CaseScene) Update(msg tea.Msg) (*CaseScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		return s, nil

	case tea.KeyMsg:
		if s.note.active {
			text, done := s.note.handle(msg)
			if !done {
				return s, nil
			}
			return s, run(OpCase, func() error {
				_, err := s.wb.AddNote(s.ctx, text)
				return err
			})
		}
		return s, s.handleKey(msg.String())
	}
	return s, nil
}

func (s *CaseScene) handleKey(key string) tea.Cmd {
	switch key {
	case "n":
		s.note.open("Note")
	case "b":
		return s.action("BLOCK")
	case "s":
		return s.action("SAFE")
	case "e":
		return s.action("ESCALATE")
	case "d":
		return run(OpDispute, func() error {
			_, err := s.wb.CreateDispute(s.ctx, dispute.CreateOptions{})
			return err
		})
	case "h":
		return run(OpDispute, func() error {
			_, err := s.wb.HoldDispute(s.ctx)
			return err
		})
	case "l":
		return s.release(dispute.DecisionRelease)
	case "t":
		return s.release(dispute.DecisionRestitution)
	case "x":
		return run(OpExport, func() error {
			_, err := s.wb.Export(s.ctx)
			return err
		})
	}
	return nil
}

func (s *CaseScene) action(name string) tea.Cmd {
	return run(OpCase, func() error {
		_, err := s.wb.RecordAction(s.ctx, name)
		return err
	})
}

func (s *CaseScene) release(decision string) tea.Cmd {
	return run(OpDispute, func() error {
		_, err := s.wb.ReleaseDispute(s.ctx, decision, "")
		return err
	})
}

// View renders the case file
func (s *CaseScene) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("  Case"))
	b.WriteString("\n\n")

	snap := s.wb.Selection()
	view, ok := s.wb.Case()
	if !ok {
		b.WriteString(styles.Muted.Render("  " + snap.Label))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("  Key:    %s\n", view.Key))
	b.WriteString(fmt.Sprintf("  Status: %s\n", styles.CaseStatus(view.Status).Render(view.Status)))
	if view.Action != nil {
		b.WriteString(fmt.Sprintf("  Last action: %s at %s\n", view.Action.LastAction, view.Action.Timestamp.Local().Format("2006-01-02 15:04")))
	}
	if !snap.ActionsPermitted {
		b.WriteString(styles.StatusWarning.Render("  Case actions are available in ALL search mode."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render("  Notes"))
	b.WriteString("\n")
	if len(view.Notes) == 0 {
		b.WriteString(styles.Muted.Render("  No notes yet."))
		b.WriteString("\n")
	}
	for _, n := range view.Notes {
		line := fmt.Sprintf("  %s  %s", n.Timestamp.Local().Format("01-02 15:04"), n.Text)
		if n.Pending {
			line = styles.Muted.Render(line + " (saving)")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if s.note.active {
		b.WriteString(styles.Prompt.Render(s.note.view()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render("  AFASA dispute"))
	b.WriteString("\n")
	if d, state, ok := s.wb.Dispute(); ok {
		b.WriteString(fmt.Sprintf("  #%d  %s (%s)  alert %d  %s\n", d.ID, d.Status, state, d.AlertID, d.SuspicionType))
		if d.HoldEndAt != "" {
			b.WriteString(styles.Muted.Render("  Hold until " + d.HoldEndAt))
			b.WriteString("\n")
		}
	} else {
		b.WriteString(styles.Muted.Render("  No active dispute."))
		b.WriteString("\n")
	}
	return b.String()
}
