package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// RunLog accumulates the log lines of one run for delivery with its
// terminal event and for history. Lines look like:
//
//	[15:04:05.000] I/engine: program started steps=4
type RunLog struct {
	mu  sync.Mutex
	buf strings.Builder
}

// NewRunLog creates an empty run log.
func NewRunLog() *RunLog {
	return &RunLog{}
}

// Append adds one line.
func (l *RunLog) Append(t time.Time, level slog.Level, component, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLine(t, level, component, message)
}

func (l *RunLog) writeLine(t time.Time, level slog.Level, component, message string) {
	fmt.Fprintf(&l.buf, "[%s] %s/%s: %s\n", t.Format("15:04:05.000"), levelLetter(level), component, message)
}

// String returns every line logged so far.
func (l *RunLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// Len returns the size of the log in bytes.
func (l *RunLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Len()
}

func levelLetter(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "E"
	case level >= slog.LevelWarn:
		return "W"
	case level >= slog.LevelInfo:
		return "I"
	case level >= slog.LevelDebug:
		return "D"
	}
	return "T"
}

// DefaultComponent is used for records without a "component" attribute.
const DefaultComponent = "engine"

// Handler returns a slog handler that writes every record at debug level
// or above into the run log and forwards it to next when next accepts it.
func (l *RunLog) Handler(next slog.Handler) slog.Handler {
	return &runLogHandler{log: l, next: next}
}

type runLogHandler struct {
	log    *RunLog
	next   slog.Handler
	attrs  []slog.Attr
	prefix string
}

func (h *runLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelDebug || (h.next != nil && h.next.Enabled(ctx, level))
}

func (h *runLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelDebug {
		component := DefaultComponent
		var b strings.Builder
		b.WriteString(r.Message)

		write := func(prefix string, a slog.Attr) {
			key := prefix + a.Key
			switch key {
			case "component":
				component = a.Value.Resolve().String()
			case "run_id", "program_id":
			default:
				fmt.Fprintf(&b, " %s=%s", key, a.Value.Resolve().String())
			}
		}
		for _, a := range h.attrs {
			write("", a)
		}
		r.Attrs(func(a slog.Attr) bool {
			write(h.prefix, a)
			return true
		})

		t := r.Time
		if t.IsZero() {
			t = time.Now()
		}
		h.log.Append(t, r.Level, component, b.String())
	}

	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *runLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		nh.attrs = append(nh.attrs, a)
	}
	if h.next != nil {
		nh.next = h.next.WithAttrs(attrs)
	}
	return &nh
}

func (h *runLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	if h.next != nil {
		nh.next = h.next.WithGroup(name)
	}
	return &nh
}
