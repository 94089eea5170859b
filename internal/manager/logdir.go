package manager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/osingla/messip/messip"
)

// dailyLogHandler is a slog.Handler that appends one rendered line per
// record to a file named after the current local date under dir,
// matching spec section 6's log directory layout: one file per day,
// writes serialized with an advisory lock so concurrent handler
// goroutines never interleave a line.
//
// The reference manager stores a running sequence number and an
// rdtsc-derived cycle count in the first line of each day's file,
// rewriting it under the same lock on every write. Go has no portable
// cycle counter, so this keeps a monotonically increasing sequence in
// memory instead of round-tripping it through the file. The number is
// taken atomically before the file lock is acquired, so concurrent
// records can land in the file slightly out of sequence order.
type dailyLogHandler struct {
	dir       string
	component string
	seq       *uint64
	start     time.Time
	attrs     []slog.Attr
}

// NewDailyLogHandler returns a dailyLogHandler writing under dir.
// component labels every line ("messip_mgr" for the manager binary).
func NewDailyLogHandler(dir, component string) slog.Handler {
	return &dailyLogHandler{dir: dir, component: component, seq: new(uint64), start: time.Now()}
}

func (h *dailyLogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *dailyLogHandler) Handle(_ context.Context, r slog.Record) error {
	component := h.component
	var msg strings.Builder
	msg.WriteString(r.Message)

	appendAttr := func(a slog.Attr) bool {
		if a.Key == "component" {
			component = a.Value.String()
			return true
		}
		if a.Key == "level" {
			return true
		}
		fmt.Fprintf(&msg, " %s=%v", a.Key, a.Value)
		return true
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool { return appendAttr(a) })

	seq := atomic.AddUint64(h.seq, 1)
	elapsedUS := time.Since(h.start).Microseconds()
	line := fmt.Sprintf("%8d %9d %-15s %6d %-15s: %s\n",
		seq, elapsedUS, messip.LevelName(r.Level), os.Getpid(), component, msg.String())

	return h.appendLocked(r.Time, line)
}

func (h *dailyLogHandler) appendLocked(t time.Time, line string) error {
	path := filepath.Join(h.dir, t.Format("2006-01-02"))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return err
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	_, err = f.WriteString(line)
	return err
}

func (h *dailyLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dailyLogHandler{
		dir:       h.dir,
		component: h.component,
		seq:       h.seq,
		start:     h.start,
		attrs:     append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *dailyLogHandler) WithGroup(string) slog.Handler { return h }

// teeHandler fans a record out to every wrapped handler, so the manager
// can log to the console and to the log directory at once.
type teeHandler struct {
	handlers []slog.Handler
}

// NewTeeHandler composes handlers into one that forwards every record
// to all of them.
func NewTeeHandler(handlers ...slog.Handler) slog.Handler {
	return &teeHandler{handlers: handlers}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: next}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: next}
}
