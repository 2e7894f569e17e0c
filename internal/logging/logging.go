package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ParseLevel maps debug|info|warn|error to a slog level. Unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New builds the process logger. When file is set, records are appended there
// (the TUI owns the terminal); otherwise they go to fallback.
// The returned close func releases the log file, if any.
func New(level, file string, fallback io.Writer) (*slog.Logger, func() error, error) {
	out := fallback
	closeFn := func() error { return nil }

	if file = strings.TrimSpace(file); file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, nil, fmt.Errorf("log file dir: %w", err)
		}
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = f.Close
	}
	if out == nil {
		out = io.Discard
	}

	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(h), closeFn, nil
}

// Discard returns a logger that drops everything. Useful as a nil-safe default.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
