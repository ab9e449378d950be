// Package systemd reports supervisor state to the service manager through
// sd_notify. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/sky22333/svcmgr/internal/events"
	"github.com/sky22333/svcmgr/internal/logging"
)

// Notifier forwards status changes to systemd and pings the watchdog.
type Notifier struct {
	logger logging.Logger
	notify func(state string) (bool, error)
	// watchdog returns the configured watchdog interval, or 0 when disabled.
	watchdog func() (time.Duration, error)

	mu     sync.Mutex
	ready  bool
	unsub  func()
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotifier creates a notifier that talks to $NOTIFY_SOCKET.
func NewNotifier(logger logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.GetLogger("systemd")
	}
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		watchdog: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

// Start subscribes to status changes and starts the watchdog loop when
// systemd asked for one.
func (n *Notifier) Start(ctx context.Context, bus *events.Bus) {
	ctx, cancel := context.WithCancel(ctx)

	n.mu.Lock()
	n.cancel = cancel
	n.unsub = bus.Subscribe(func(e events.StatusChangedEvent) {
		n.handleStatus(e)
	})
	n.mu.Unlock()

	interval, err := n.watchdog()
	if err != nil {
		n.logger.Warn("Invalid watchdog configuration", "error", err)
		return
	}
	if interval <= 0 {
		return
	}

	n.logger.Info("Systemd watchdog enabled", "interval", interval)
	n.wg.Add(1)
	go n.watchdogLoop(ctx, interval/2)
}

// Stop sends STOPPING=1 and releases the subscription.
func (n *Notifier) Stop() {
	n.send(daemon.SdNotifyStopping)

	n.mu.Lock()
	if n.unsub != nil {
		n.unsub()
		n.unsub = nil
	}
	if n.cancel != nil {
		n.cancel()
	}
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *Notifier) handleStatus(e events.StatusChangedEvent) {
	status := fmt.Sprintf("STATUS=Process %s (restarts: %d)", e.New, e.RestartCount)
	if e.Reason != "" {
		status = fmt.Sprintf("STATUS=Process %s: %s (restarts: %d)", e.New, e.Reason, e.RestartCount)
	}

	n.mu.Lock()
	sendReady := !n.ready && e.New == "running"
	if sendReady {
		n.ready = true
	}
	n.mu.Unlock()

	if sendReady {
		n.send(daemon.SdNotifyReady + "\n" + status)
		return
	}
	n.send(status)
}

func (n *Notifier) watchdogLoop(ctx context.Context, every time.Duration) {
	defer n.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("Failed to notify systemd", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("Notified systemd", "state", state)
	}
}
