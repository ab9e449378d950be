package supervisor

import (
	"time"

	"github.com/sky22333/svcmgr/internal/process"
)

// Decision is the outcome of consulting the restart policy after an
// unplanned exit.
type Decision struct {
	Restart      bool
	Attempt      int
	Delay        time.Duration
	LimitReached bool
}

// Decide applies the restart policy. attempts is the number of automatic
// restarts already made since the last explicit start.
//
// With MaxRestarts = N the process is launched at most N+1 times.
func Decide(cfg process.Config, attempts int) Decision {
	if !cfg.AutoRestart {
		return Decision{}
	}

	attempt := attempts + 1
	if cfg.MaxRestarts != process.UnlimitedRestarts && attempt > cfg.MaxRestarts {
		return Decision{Attempt: attempts, LimitReached: true}
	}

	delay := cfg.RestartDelay
	if delay < 0 {
		delay = 0
	}
	return Decision{Restart: true, Attempt: attempt, Delay: delay}
}
