package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	moduleKey  = "module"
	traceIDKey = "trace_id"
)

// newTextHandler returns the console handler. Timestamps are dropped and the
// level is padded so columns line up.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	if tz == nil {
		tz = time.Local
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.Attr{}
			case slog.LevelKey:
				lvl, ok := a.Value.Any().(slog.Level)
				if !ok {
					return a
				}
				return slog.String(slog.LevelKey, levelLabel(lvl))
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				return slog.String(a.Key, t.In(tz).Format(time.RFC3339))
			}
			return a
		},
	})
}

func levelLabel(level slog.Level) string {
	var label string
	switch {
	case level <= traceLevelValue:
		label = "TRACE"
	case level <= slog.LevelDebug:
		label = "DEBUG"
	case level <= slog.LevelInfo:
		label = "INFO"
	case level <= slog.LevelWarn:
		label = "WARN"
	default:
		label = "ERROR"
	}
	if pad := maxLevelWidth - len(label); pad > 0 {
		label += strings.Repeat(" ", pad)
	}
	return label
}

// parseSlogLevel maps a LogLevel onto the slog scale.
func parseSlogLevel(level LogLevel) slog.Level {
	return parseLogLevel(string(level))
}

// NewSlogLogger builds a standalone Logger writing JSON to w. A nil w writes
// text to stderr. Intended for tests and for components constructed before
// the central logger exists.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if tz == nil {
		tz = time.UTC
	}
	slogLevel := parseSlogLevel(level)

	var handler slog.Handler
	if w == nil {
		handler = newTextHandler(os.Stderr, slogLevel, tz)
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel})
	}

	return &moduleLogger{
		logger:   slog.New(handler),
		level:    slogLevel,
		timezone: tz,
	}
}

// NewNopLogger returns a Logger that drops everything.
func NewNopLogger() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, time.UTC)
}
