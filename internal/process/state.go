package process

import (
	"fmt"
	"strings"
	"time"
)

// Level is the severity of a LogEntry.
type Level string

// Log levels.
const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel converts a case-insensitive level name to a Level.
// Unknown names map to LevelInfo and ok=false.
func ParseLevel(s string) (level Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error", "fatal", "panic":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// Source identifies where a LogEntry came from.
type Source string

// Log sources.
const (
	SourceStdout  Source = "stdout"
	SourceStderr  Source = "stderr"
	SourceSystem  Source = "system"  // controller lifecycle messages
	SourceService Source = "service" // supervisor decisions
)

// LogEntry is a single line of output or a lifecycle message.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Source    Source    `json:"source"`
}

// String formats the entry for terminal display.
func (e LogEntry) String() string {
	var sb strings.Builder
	sb.WriteString(e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
	sb.WriteString(" [")
	sb.WriteString(string(e.Level))
	sb.WriteString("] [")
	sb.WriteString(string(e.Source))
	sb.WriteString("] ")
	sb.WriteString(e.Message)
	return sb.String()
}

// RunState describes the process slot after a lifecycle transition.
// Every transition publishes a fresh value; states are never merged.
type RunState struct {
	Running   bool       `json:"running"`
	PID       *int       `json:"pid,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
}

// String returns a compact description used in log messages.
func (s RunState) String() string {
	parts := []string{fmt.Sprintf("running=%t", s.Running)}
	if s.PID != nil {
		parts = append(parts, fmt.Sprintf("pid=%d", *s.PID))
	}
	if s.ExitCode != nil {
		parts = append(parts, fmt.Sprintf("exit_code=%d", *s.ExitCode))
	}
	return strings.Join(parts, " ")
}
