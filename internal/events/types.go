package events

import (
	"time"

	"github.com/sky22333/svcmgr/internal/process"
)

// Event type constants for kelindar/event.
const (
	TypeLogBatch uint32 = iota + 1
	TypeRunState
	TypeStatusChanged
	TypeRestartScheduled
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// LogBatchEvent carries one batch of log entries from the supervised process
// or the supervisor itself. FirstSeq numbers the first entry; sequence numbers
// are contiguous across batches.
type LogBatchEvent struct {
	FirstSeq uint64             `json:"first_seq"`
	Entries  []process.LogEntry `json:"entries"`
}

// Type returns the event type identifier for LogBatchEvent.
func (e LogBatchEvent) Type() uint32 { return TypeLogBatch }

// RunStateEvent is published on every process transition.
type RunStateEvent struct {
	State     process.RunState `json:"state"`
	Binary    string           `json:"binary"`
	Timestamp time.Time        `json:"timestamp"`
}

// Type returns the event type identifier for RunStateEvent.
func (e RunStateEvent) Type() uint32 { return TypeRunState }

// StatusChangedEvent reports a supervisor status transition.
type StatusChangedEvent struct {
	Old          string    `json:"old"`
	New          string    `json:"new"`
	Reason       string    `json:"reason,omitempty"`
	RestartCount int       `json:"restart_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// Type returns the event type identifier for StatusChangedEvent.
func (e StatusChangedEvent) Type() uint32 { return TypeStatusChanged }

// RestartScheduledEvent is published when an automatic restart is queued.
type RestartScheduledEvent struct {
	Attempt     int           `json:"attempt"`
	MaxRestarts int           `json:"max_restarts"`
	Delay       time.Duration `json:"delay"`
	ExitCode    *int          `json:"exit_code,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Type returns the event type identifier for RestartScheduledEvent.
func (e RestartScheduledEvent) Type() uint32 { return TypeRestartScheduled }
