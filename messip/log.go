package messip

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Extra levels beyond the four slog ships with, spaced so they sort
// correctly against slog.LevelInfo/Warn/Error.
const (
	SlogLevelNotice    slog.Level = (slog.LevelInfo + slog.LevelWarn) / 2
	SlogLevelCritical  slog.Level = slog.LevelError + 4
	SlogLevelAlert     slog.Level = slog.LevelError + 8
	SlogLevelEmergency slog.Level = slog.LevelError + 12
)

// LevelName renders l the way the package's own log lines do, including
// the project's extra levels beyond the stdlib four. Other packages
// (the manager's log-directory writer, in particular) use this to keep
// their own renderings in sync with the console handler's.
func LevelName(l slog.Level) string { return slogLevelToString(l) }

// slogLevelToString renders a level, including the project's extra
// ones, the way the standard four render.
func slogLevelToString(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case SlogLevelNotice:
		return "NOTICE"
	case slog.LevelWarn:
		return "WARNING"
	case slog.LevelError:
		return "ERROR"
	case SlogLevelCritical:
		return "CRITICAL"
	case SlogLevelAlert:
		return "ALERT"
	case SlogLevelEmergency:
		return "EMERGENCY"
	default:
		return l.String()
	}
}

// levelHandler wraps a slog.Handler and adds two attributes to every
// record: "component" and "level", the latter carrying the project's
// level name (e.g. "CRITICAL" rather than slog's "ERROR+4"). The line
// layout, including slog's own level field, is the wrapped handler's.
type levelHandler struct {
	slog.Handler
	component string
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("component", h.component), slog.String("level", slogLevelToString(r.Level)))
	return h.Handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{Handler: h.Handler.WithAttrs(attrs), component: h.component}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{Handler: h.Handler.WithGroup(name), component: h.component}
}

// NewLogger returns a component-tagged logger that hands every record
// to base for output.
func NewLogger(component string, base slog.Handler) *slog.Logger {
	return slog.New(&levelHandler{Handler: base, component: component})
}

// defaultLogger is used by the package-level Logf/Debugf helpers when
// the caller hasn't wired its own *slog.Logger.
var defaultLogger = NewLogger("messip", slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

// SetDefaultLogger replaces the package-level logger used by Logf et al.
func SetDefaultLogger(l *slog.Logger) { defaultLogger = l }

// Logf logs at Info level using fmt-style formatting, mirroring the
// teacher's Logf/Debugf convenience wrappers over its leveled logger.
func Logf(format string, args ...any) { defaultLogger.Info(sprintf(format, args...)) }

// Debugf logs at Debug level.
func Debugf(format string, args ...any) { defaultLogger.Debug(sprintf(format, args...)) }

// Noticef logs at the project's Notice level.
func Noticef(format string, args ...any) {
	defaultLogger.Log(context.Background(), SlogLevelNotice, sprintf(format, args...))
}

// Errorf logs at Error level.
func Errorf(format string, args ...any) { defaultLogger.Error(sprintf(format, args...)) }

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
