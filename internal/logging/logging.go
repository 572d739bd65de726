package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options configure a logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	File   string // empty logs to the supplied writer
}

// ParseLevel maps a level name to a slog level. Unknown names give info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w that redacts sensitive attributes.
func New(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{
		Level:       ParseLevel(opts.Level),
		ReplaceAttr: redactAttr,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// Open returns a logger for opts. When opts.File is set the file is opened
// for append and returned so the caller can close it; otherwise fallback
// receives the output.
func Open(opts Options, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	if opts.File == "" {
		return New(fallback, opts), io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(f, opts), f, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		if IsSensitiveField(a.Key) {
			return slog.String(a.Key, MaskedValue)
		}
		if a.Key != slog.MessageKey {
			return slog.String(a.Key, MaskSensitivePatterns(a.Value.String()))
		}
	case slog.KindAny:
		if IsSensitiveField(a.Key) {
			return slog.String(a.Key, MaskedValue)
		}
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, MaskSensitivePatterns(err.Error()))
		}
	}
	return a
}
