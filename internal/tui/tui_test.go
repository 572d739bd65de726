package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fraud-workbench/internal/api"
	"fraud-workbench/internal/rules"
	"fraud-workbench/internal/tui/scenes"
	"fraud-workbench/internal/workflow"

	tea "github.com/charmbracelet/bubbletea"
)

// keyMsg builds a tea.KeyMsg for the given key string.
func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func newTestModel(t *testing.T) *Model {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/neo-alerts/r1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":"R1-1","ruleKey":"R1","severity":"HIGH","accountId":"A1"}]`)
	})
	mux.HandleFunc("/neo4j/graph/account/A1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"nodes":[{"id":"A1","type":"Account"},{"id":"dev-1","type":"Device"}],"edges":[{"source":"A1","target":"dev-1","type":"USES"}]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wb, err := workflow.New(workflow.Config{
		Transport: api.NewClient(srv.URL, api.WithLogger(logger)),
		Defaults:  rules.DefaultDefaults(),
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	return New(context.Background(), wb, Options{})
}

func TestNewModelDefaults(t *testing.T) {
	m := newTestModel(t)
	if m.scene != SceneAlerts {
		t.Errorf("expected initial scene SceneAlerts, got %d", m.scene)
	}
	if m.alerts == nil || m.graph == nil || m.caseFile == nil || m.analytics == nil {
		t.Error("expected all scenes to be created")
	}
	if m.quitting {
		t.Error("model should not be quitting on init")
	}
}

func TestInitReturnsCommand(t *testing.T) {
	m := newTestModel(t)
	if m.Init() == nil {
		t.Error("Init() should return a command")
	}
}

func TestSceneSwitching(t *testing.T) {
	tests := []struct {
		key  string
		want Scene
	}{
		{"2", SceneGraph},
		{"3", SceneCase},
		{"4", SceneAnalytics},
		{"1", SceneAlerts},
	}
	m := newTestModel(t)
	for _, tt := range tests {
		m.Update(keyMsg(tt.key))
		if m.scene != tt.want {
			t.Errorf("key %q: expected scene %d, got %d", tt.key, tt.want, m.scene)
		}
	}
}

func TestTabCyclesScenes(t *testing.T) {
	m := newTestModel(t)
	want := []Scene{SceneGraph, SceneCase, SceneAnalytics, SceneAlerts}
	for i, w := range want {
		m.Update(keyMsg("tab"))
		if m.scene != w {
			t.Errorf("tab %d: expected scene %d, got %d", i+1, w, m.scene)
		}
	}
}

func TestAnalyticsTabStartsTicking(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(keyMsg("4"))
	if cmd == nil {
		t.Error("switching to analytics should return a fetch command")
	}
	_, cmd = m.Update(keyMsg("4"))
	if cmd != nil {
		t.Error("re-selecting the active tab should not return a command")
	}
}

func TestTickIgnoredOffAnalytics(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(scenes.TickMsg{Scene: "analytics"})
	if cmd != nil {
		t.Error("tick on another scene should be dropped")
	}
}

func TestQuit(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c"} {
		t.Run(key, func(t *testing.T) {
			m := newTestModel(t)
			_, cmd := m.Update(keyMsg(key))
			if !m.quitting {
				t.Error("expected quitting")
			}
			if cmd == nil {
				t.Error("expected quit command")
			}
			if m.View() != "" {
				t.Error("expected empty view after quit")
			}
		})
	}
}

func TestPromptCapturesKeys(t *testing.T) {
	m := newTestModel(t)
	m.Update(keyMsg("/"))
	if !m.capturing() {
		t.Fatal("expected lookup prompt to capture input")
	}

	m.Update(keyMsg("q"))
	m.Update(keyMsg("2"))
	if m.quitting {
		t.Error("q inside prompt should not quit")
	}
	if m.scene != SceneAlerts {
		t.Error("digits inside prompt should not switch tabs")
	}

	m.Update(keyMsg("esc"))
	if m.capturing() {
		t.Error("esc should close the prompt")
	}
}

func TestAlertsLoadTriggersGraphLoad(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()

	msg := scenes.LoadAlerts(ctx, m.wb)()
	op, ok := msg.(scenes.OpMsg)
	if !ok || op.Err != nil {
		t.Fatalf("unexpected load result %#v", msg)
	}

	_, cmd := m.Update(op)
	if cmd == nil {
		t.Fatal("expected graph load after selection")
	}
	graphMsg, ok := cmd().(scenes.OpMsg)
	if !ok || graphMsg.Op != scenes.OpGraph || graphMsg.Err != nil {
		t.Fatalf("unexpected graph result %#v", graphMsg)
	}
	m.Update(graphMsg)

	view := m.View()
	if !strings.Contains(view, "Selected account A1 (R1)") {
		t.Errorf("view missing selection label:\n%s", view)
	}
	if !strings.Contains(view, "Graph loaded: 2 nodes, 1 edges.") {
		t.Errorf("view missing status line:\n%s", view)
	}
}

func TestStaleOpIgnored(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(scenes.OpMsg{Op: scenes.OpAlerts, Err: workflow.ErrStale})
	if cmd != nil {
		t.Error("stale result should not trigger follow-up commands")
	}
	if m.lastErr {
		t.Error("stale result should not mark the status as failed")
	}
}

func TestFailedOpMarksStatus(t *testing.T) {
	m := newTestModel(t)
	m.Update(scenes.OpMsg{Op: scenes.OpGraph, Err: errors.New("boom")})
	if !m.lastErr {
		t.Error("expected error status")
	}
	m.Update(scenes.OpMsg{Op: scenes.OpGraph})
	if m.lastErr {
		t.Error("success should clear error status")
	}
}

func TestViewRendersTabsAndHelp(t *testing.T) {
	m := newTestModel(t)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	view := m.View()
	for _, want := range []string{"Alerts", "Graph", "Case", "Analytics", "No selection yet.", "[q] Quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m.Update(keyMsg("3"))
	if !strings.Contains(m.View(), "[x] Export") {
		t.Error("case footer missing export key")
	}
}
