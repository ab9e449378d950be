package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal record written by this process.
const SyslogIdentifier = "svcmgr"

// journalSend is replaced in tests.
var journalSend = journal.Send

// JournalHandler is a slog.Handler writing to the systemd journal. Attributes
// become journal fields: keys are upper-cased, groups are joined with "_",
// and characters journald does not accept are replaced by "_".
type JournalHandler struct {
	level    slog.Leveler
	prefix   string
	fields   map[string]string
	failures *atomic.Uint64
}

// NewJournalHandler creates a journal handler that follows level.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{
		level:    level,
		fields:   map[string]string{},
		failures: &atomic.Uint64{},
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle sends r to the journal. Only the first failure and every 100th after
// it are reported on stderr.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.fields)+r.NumAttrs()+1)
	for k, v := range h.fields {
		fields[k] = v
	}
	fields["SYSLOG_IDENTIFIER"] = SyslogIdentifier
	r.Attrs(func(attr slog.Attr) bool {
		addAttrToFields(fields, attr, h.prefix)
		return true
	})

	if err := journalSend(r.Message, mapLevelToPriority(r.Level), fields); err != nil {
		if n := h.failures.Add(1); n == 1 || n%100 == 0 {
			fmt.Fprintf(os.Stderr, "journal write failed (%d so far): %v\n", n, err)
		}
		return err
	}
	return nil
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := h.clone()
	for _, attr := range attrs {
		addAttrToFields(next.fields, attr, next.prefix)
	}
	return next
}

// WithGroup returns a handler that prefixes later attributes with name.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.prefix = joinKey(h.prefix, name)
	return next
}

func (h *JournalHandler) clone() *JournalHandler {
	fields := make(map[string]string, len(h.fields))
	for k, v := range h.fields {
		fields[k] = v
	}
	return &JournalHandler{
		level:    h.level,
		prefix:   h.prefix,
		fields:   fields,
		failures: h.failures,
	}
}

func mapLevelToPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// addAttrToFields stores attr under its journal field name. Groups are
// flattened recursively.
func addAttrToFields(fields map[string]string, attr slog.Attr, prefix string) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = joinKey(prefix, attr.Key)
		}
		for _, a := range attr.Value.Group() {
			addAttrToFields(fields, a, groupPrefix)
		}
		return
	}

	key := fieldName(joinKey(prefix, attr.Key))
	if key == "" {
		return
	}
	fields[key] = formatValue(attr.Value)
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

// fieldName maps an attribute key to a valid journal field name: upper-case
// ASCII letters, digits and underscores, not starting with an underscore.
func fieldName(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range strings.ToUpper(key) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), "_")
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	default:
		return v.String()
	}
}

// IsJournalAvailable reports whether journald accepts messages.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
