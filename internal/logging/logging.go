// Package logging provides the structured logger used across snipd.
//
// The Logger interface follows slog conventions: args are alternating
// key/value pairs. Packages take the interface so tests can pass NopLogger
// and the CLI can wire a real slog-backed logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Logger provides structured logging for the store, watcher and backup
// layers. The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

// NewNopLogger creates a NopLogger.
func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// tabHandler is a slog.Handler that formats records as:
//
//	<timestamp>\t<level>\t<message>\t<key=value ...>
type tabHandler struct {
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
}

func (h *tabHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *tabHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	_, err := fmt.Fprintf(h.w, "%s\t%s\t%s", ts, r.Level.String(), r.Message)
	if err != nil {
		return err
	}

	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}

	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})

	_, err = fmt.Fprintln(h.w)

	return err
}

func (h *tabHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &tabHandler{
		w:     h.w,
		level: h.level,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *tabHandler) WithGroup(string) slog.Handler { return h }

// slogAdapter wraps *slog.Logger to satisfy Logger.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

// NewWriterLogger creates a Logger writing tab-separated records to w at the
// given minimum level.
func NewWriterLogger(w io.Writer, level slog.Level) Logger {
	return &slogAdapter{l: slog.New(&tabHandler{w: w, level: level})}
}

// NewFileLogger creates a Logger that writes to both logDir/snipd.log and
// stderr. It returns the Logger and the open log file for cleanup.
func NewFileLogger(logDir string, level slog.Level) (Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "snipd.log")

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	w := io.MultiWriter(f, os.Stderr)

	return &slogAdapter{l: slog.New(&tabHandler{w: w, level: level})}, f, nil
}
