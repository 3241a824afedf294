package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	// IANA zones for minimal container images
	_ "time/tzdata"

	"github.com/examwatch/examwatch/internal/errors"
)

const (
	// traceLevelValue sits below slog.LevelDebug (-4).
	traceLevelValue = slog.Level(-8)

	// maxLevelWidth pads console level labels.
	maxLevelWidth = 5

	logDirPermissions = 0o750
)

var (
	globalMu     sync.Mutex
	globalLogger *CentralLogger
)

// SetGlobal installs cl as the process-wide logger.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	globalLogger = cl
	globalMu.Unlock()
}

// Global returns the process-wide logger. Before SetGlobal runs it is a
// stderr text logger at info level, which is what CLI bootstrapping sees.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger == nil {
		globalLogger = &CentralLogger{
			config:       &LoggingConfig{DefaultLevel: DefaultLogLevel},
			timezone:     time.Local,
			base:         newTextHandler(os.Stderr, slog.LevelInfo, time.Local),
			routes:       map[string]route{},
			moduleLevels: map[string]slog.Level{},
		}
	}
	return globalLogger
}

type loggerContextKey struct{ name string }

// TraceIDKey is the context key WithTraceID stores request trace IDs under.
var TraceIDKey = loggerContextKey{"trace_id"}

// WithTraceID returns ctx carrying traceID for Logger.WithContext.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func traceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

// route is the resolved output of a module with its own modules: entry.
type route struct {
	handler slog.Handler
	level   slog.Level
}

// CentralLogger owns the log sinks and hands out module loggers. Handlers
// are resolved once at construction; Module only looks them up.
type CentralLogger struct {
	config       *LoggingConfig
	timezone     *time.Location
	base         slog.Handler
	routes       map[string]route
	moduleLevels map[string]slog.Level

	mu      sync.RWMutex
	writers []*BufferedFileWriter
}

// NewCentralLogger opens the configured sinks: console text, the main JSON
// file, and one JSON file per routed module. Modules that name the same
// file share its writer.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		config:       cfg,
		timezone:     tz,
		routes:       make(map[string]route),
		moduleLevels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.moduleLevels[module] = parseLogLevel(level)
	}

	if err := cl.buildBase(); err != nil {
		cl.closeWriters()
		return nil, err
	}
	if err := cl.buildRoutes(); err != nil {
		cl.closeWriters()
		return nil, err
	}
	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

func (cl *CentralLogger) consoleEnabled() bool {
	return cl.config.Console != nil && cl.config.Console.Enabled
}

func (cl *CentralLogger) openWriter(path string) (*BufferedFileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, logDirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	w, err := NewBufferedFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	cl.writers = append(cl.writers, w)
	return w, nil
}

func (cl *CentralLogger) buildBase() error {
	var handlers []slog.Handler

	if cl.consoleEnabled() {
		handlers = append(handlers, newTextHandler(os.Stdout, parseLogLevel(cl.config.Console.Level), cl.timezone))
	}

	if out := cl.config.FileOutput; out != nil && out.Enabled {
		w, err := cl.openWriter(out.Path)
		if err != nil {
			return err
		}
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLogLevel(out.Level)}))
	}

	if len(handlers) == 0 {
		handlers = append(handlers, newTextHandler(os.Stdout, parseLogLevel(cl.config.DefaultLevel), cl.timezone))
	}
	cl.base = combine(handlers)
	return nil
}

func (cl *CentralLogger) buildRoutes() error {
	byPath := make(map[string]*BufferedFileWriter)

	for module, out := range cl.config.ModuleOutputs {
		if !out.Enabled || out.FilePath == "" {
			continue
		}

		level := cl.levelFor(module)
		if out.Level != "" {
			level = parseLogLevel(out.Level)
		}

		w, ok := byPath[out.FilePath]
		if !ok {
			var err error
			if w, err = cl.openWriter(out.FilePath); err != nil {
				return fmt.Errorf("module %s: %w", module, err)
			}
			byPath[out.FilePath] = w
		}

		handlers := []slog.Handler{slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})}
		if out.ConsoleAlso && cl.consoleEnabled() {
			handlers = append(handlers, newTextHandler(os.Stdout, level, cl.timezone))
		}
		cl.routes[module] = route{handler: combine(handlers), level: level}
	}
	return nil
}

func combine(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return newMultiWriterHandler(handlers...)
}

func (cl *CentralLogger) levelFor(module string) slog.Level {
	if level, ok := cl.moduleLevels[module]; ok {
		return level
	}
	return parseLogLevel(cl.config.DefaultLevel)
}

// Module returns a logger for name. Routed modules write only to their own
// file; all others share the base sinks.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()

	if r, ok := cl.routes[name]; ok {
		return &moduleLogger{module: name, logger: slog.New(r.handler), level: r.level, timezone: cl.timezone}
	}
	return &moduleLogger{module: name, logger: slog.New(cl.base), level: cl.levelFor(name), timezone: cl.timezone}
}

// Flush pushes buffered file output to the OS without fsync.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()

	var errs []error
	for _, w := range cl.writers {
		if err := w.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", w.FilePath(), err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes, syncs and closes every log file. Safe to call twice.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.closeWriters()
}

func (cl *CentralLogger) closeWriters() error {
	var errs []error
	for _, w := range cl.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", w.FilePath(), err))
		}
	}
	cl.writers = nil
	return errors.Join(errs...)
}

func parseLogLevel(level string) slog.Level {
	switch LogLevel(level) {
	case LogLevelTrace:
		return traceLevelValue
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
