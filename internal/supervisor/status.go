package supervisor

import "time"

// Status is the supervisor's view of the service.
type Status string

// Supervisor statuses.
const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Terminal reports whether no further transition happens without a command.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusError
}

// Snapshot is a point-in-time copy of the service state.
type Snapshot struct {
	Status       Status     `json:"status"`
	Running      bool       `json:"running"`
	PID          *int       `json:"pid,omitempty"`
	BinaryName   string     `json:"binary_name"`
	BinaryPath   string     `json:"binary_path,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	LastExitCode *int       `json:"last_exit_code,omitempty"`
	RestartCount int        `json:"restart_count"`
	Reason       string     `json:"reason,omitempty"`
}
