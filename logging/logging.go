// Package logging builds the slog loggers used across the server.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config is a minimal set of logger options.
type Config struct {
	// If Out is nil, stderr is used.
	Out io.Writer

	Level slog.Level
	JSON  bool // true => JSON output, false => text
}

// NewLogger creates a configured *slog.Logger.
func NewLogger(cfg Config) *slog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler).With(slog.Int("pid", os.Getpid()))
}

// ParseLevel accepts debug, info, warn, or error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.TrimSpace(s)))
	return level, err
}

// nopHandler is a tiny no-op slog.Handler.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

// NewNopLogger returns a logger that discards all log events.
func NewNopLogger() *slog.Logger {
	return slog.New(nopHandler{})
}

type ctxKeyType struct{}

var ctxKey ctxKeyType

// WithLogger stores lg on ctx.
func WithLogger(ctx context.Context, lg *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey, lg)
}

// FromContext returns the logger from ctx or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if lg, ok := ctx.Value(ctxKey).(*slog.Logger); ok && lg != nil {
		return lg
	}
	return slog.Default()
}

// Entry is a log record captured by a TestHandler.
type Entry struct {
	Level slog.Level
	Msg   string
	Attrs map[string]any
}

// TestHandler captures structured entries for assertions.
type TestHandler struct {
	mu      sync.Mutex
	entries []Entry
	attrs   []slog.Attr
	parent  *TestHandler
}

// NewTestLogger returns a logger backed by a fresh TestHandler.
func NewTestLogger() (*slog.Logger, *TestHandler) {
	th := &TestHandler{}
	return slog.New(th), th
}

func (h *TestHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *TestHandler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{Level: r.Level, Msg: r.Message, Attrs: map[string]any{}}
	for _, a := range h.attrs {
		e.Attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		e.Attrs[a.Key] = a.Value.Any()
		return true
	})
	root := h.root()
	root.mu.Lock()
	root.entries = append(root.entries, e)
	root.mu.Unlock()
	return nil
}

func (h *TestHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TestHandler{
		attrs:  append(append([]slog.Attr(nil), h.attrs...), attrs...),
		parent: h.root(),
	}
}

func (h *TestHandler) WithGroup(string) slog.Handler { return h }

func (h *TestHandler) root() *TestHandler {
	if h.parent != nil {
		return h.parent
	}
	return h
}

// Entries returns a copy of everything captured so far.
func (h *TestHandler) Entries() []Entry {
	root := h.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	return append([]Entry(nil), root.entries...)
}

// Find returns the captured entries with the given message.
func (h *TestHandler) Find(msg string) []Entry {
	var out []Entry
	for _, e := range h.Entries() {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

var (
	_ slog.Handler = nopHandler{}
	_ slog.Handler = (*TestHandler)(nil)
)
