package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestNewRedactsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: "debug", Format: "json"})

	logger.Info("connecting",
		"api_key", "wb_live_abcdef1234",
		"anchor", "ACC-001",
		"error", errors.New("upstream said token=abc123"),
	)

	out := buf.String()
	if strings.Contains(out, "wb_live_abcdef1234") {
		t.Errorf("api key leaked: %s", out)
	}
	if strings.Contains(out, "abc123") {
		t.Errorf("token in error leaked: %s", out)
	}
	if !strings.Contains(out, `"anchor":"ACC-001"`) {
		t.Errorf("expected anchor attribute, got %s", out)
	}
}

func TestNewTextFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: "warn", Format: "text"})

	logger.Info("hidden")
	logger.Warn("shown", "rule", "R1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "rule=R1") {
		t.Errorf("expected text output, got %s", out)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "workbench.log")

	logger, closer, err := Open(Options{Level: "info", File: path}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	logger.Info("alerts loaded", "count", 3)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "alerts loaded") {
		t.Errorf("expected log line in file, got %s", data)
	}
}

func TestOpenFallback(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := Open(Options{Level: "info"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hello")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected fallback output, got %s", buf.String())
	}
}
