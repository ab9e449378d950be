package process

import "errors"

// Failure classes reported by the controller. Public operations return
// booleans; these values appear in log attributes and wrapped errors.
var (
	ErrConfig         = errors.New("invalid process config")
	ErrSpawn          = errors.New("failed to spawn process")
	ErrAlreadyRunning = errors.New("process already running")
	ErrNotRunning     = errors.New("process not running")
	ErrStdinClosed    = errors.New("process stdin closed")
)
