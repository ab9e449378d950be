package supervisor

import (
	"sync"
	"time"

	"github.com/sky22333/svcmgr/internal/events"
	"github.com/sky22333/svcmgr/internal/metrics"
	"github.com/sky22333/svcmgr/internal/process"
)

// broadcaster owns the service snapshot and publishes every change to the
// bus. Publishing happens under the lock so subscribers see changes in the
// order they were made.
type broadcaster struct {
	bus *events.Bus

	mu   sync.Mutex
	snap Snapshot
}

func newBroadcaster(bus *events.Bus) *broadcaster {
	metrics.SetStatus(string(StatusStopped))
	return &broadcaster{
		bus:  bus,
		snap: Snapshot{Status: StatusStopped},
	}
}

// setStatus records a status change. Repeating the current status is a no-op.
func (b *broadcaster) setStatus(status Status, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := b.snap.Status
	if old == status {
		return
	}
	b.snap.Status = status
	b.snap.Reason = reason

	metrics.SetStatus(string(status))
	b.bus.Publish(events.StatusChangedEvent{
		Old:          string(old),
		New:          string(status),
		Reason:       reason,
		RestartCount: b.snap.RestartCount,
		Timestamp:    time.Now(),
	})
}

func (b *broadcaster) runState(state process.RunState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.snap.Running = state.Running
	b.snap.PID = state.PID
	if state.Running {
		b.snap.StartTime = state.StartTime
	} else {
		b.snap.StartTime = nil
		if state.ExitCode != nil {
			code := *state.ExitCode
			b.snap.LastExitCode = &code
		}
	}

	b.bus.Publish(events.RunStateEvent{
		State:     state,
		Binary:    b.snap.BinaryName,
		Timestamp: time.Now(),
	})
}

func (b *broadcaster) setBinary(name, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.BinaryName = name
	b.snap.BinaryPath = path
}

func (b *broadcaster) setRestartCount(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.RestartCount = n
}

func (b *broadcaster) snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}
