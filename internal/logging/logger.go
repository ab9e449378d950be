package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is the subset of *slog.Logger that components depend on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the global level, the output format and per-module level
// overrides keyed by module name.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type moduleEntry struct {
	logger *slog.Logger
	level  *slog.LevelVar
	format string
}

var (
	mutex       sync.RWMutex
	modules     = make(map[string]*moduleEntry)
	current     Config
	initialized bool
	rootLevel   = &slog.LevelVar{}

	// output is where the text or JSON handler writes.
	output io.Writer = os.Stdout
)

// Initialize applies config. It may be called again at runtime. Loggers
// already handed out follow level changes; a format change only applies to
// loggers fetched afterwards.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	current = config
	initialized = true

	global := globalLevel(config)
	rootLevel.Set(global)
	for name, entry := range modules {
		entry.level.Set(levelFor(config, global, name))
		if entry.format != config.Format {
			entry.format = config.Format
			entry.logger = newModuleLogger(entry.format, entry.level, name)
		}
	}
	slog.SetDefault(slog.New(createHandler(config.Format, rootLevel)))
}

// GetLogger returns the logger of module, creating it on first use. Loggers
// created before Initialize log at info level in text format.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	entry, ok := modules[module]
	mutex.RUnlock()
	if ok {
		return entry.logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	return lookupLocked(module).logger
}

// SetModuleLevel changes the level of one module at runtime. It returns false
// when level is not a known level name.
func SetModuleLevel(module, level string) bool {
	parsed, ok := parseLevel(level)
	if !ok {
		return false
	}

	mutex.Lock()
	defer mutex.Unlock()
	lookupLocked(module).level.Set(parsed)
	return true
}

func lookupLocked(module string) *moduleEntry {
	if entry, ok := modules[module]; ok {
		return entry
	}

	entry := &moduleEntry{level: &slog.LevelVar{}, format: "text"}
	if initialized {
		entry.level.Set(levelFor(current, globalLevel(current), module))
		entry.format = current.Format
	}
	entry.logger = newModuleLogger(entry.format, entry.level, module)
	modules[module] = entry
	return entry
}

func newModuleLogger(format string, level slog.Leveler, module string) *slog.Logger {
	return slog.New(createHandler(format, level)).With("module", module)
}

func globalLevel(config Config) slog.Level {
	if level, ok := parseLevel(config.Level); ok {
		return level
	}
	return slog.LevelInfo
}

func levelFor(config Config, global slog.Level, module string) slog.Level {
	if level, ok := parseLevel(config.Modules[module]); ok {
		return level
	}
	return global
}

// createHandler builds the handler chain for one logger: stdout when it is
// usable, the journal when journald is reachable, both when both are.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	if strings.EqualFold(format, "json") {
		console = slog.NewJSONHandler(output, opts)
	} else {
		console = slog.NewTextHandler(output, opts)
	}

	var journal slog.Handler
	if IsJournalAvailable() {
		journal = NewJournalHandler(level)
	}

	switch {
	case journal == nil:
		return console
	case !isStdoutAvailable():
		return journal
	default:
		return NewMultiHandler(console, journal)
	}
}

// isStdoutAvailable reports whether stdout is a terminal, pipe, socket or
// regular file.
func isStdoutAvailable() bool {
	if output != io.Writer(os.Stdout) {
		return true
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode.IsRegular() || mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
