package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sky22333/svcmgr/internal/binary"
	"github.com/sky22333/svcmgr/internal/config"
	"github.com/sky22333/svcmgr/internal/events"
	"github.com/sky22333/svcmgr/internal/logging"
	"github.com/sky22333/svcmgr/internal/metrics"
	"github.com/sky22333/svcmgr/internal/metrics/collectors"
	"github.com/sky22333/svcmgr/internal/metrics/exporters"
	"github.com/sky22333/svcmgr/internal/process"
	"github.com/sky22333/svcmgr/internal/supervisor"
	"github.com/sky22333/svcmgr/internal/systemd"
)

// app hosts one supervisor in the foreground.
type app struct {
	opts     *config.Options
	cfg      process.Config
	logger   *slog.Logger
	bus      *events.Bus
	resolver *binary.DirResolver
	sup      *supervisor.Supervisor
	notifier *systemd.Notifier
	watcher  *config.Watcher[config.Options]
	metrics  *exporters.Server
	stdin    io.Reader

	quit     chan struct{}
	stopOnce sync.Once
}

// newApp loads the configuration and builds every component. Nothing is
// started yet.
func newApp(opts *config.Options, root *cobra.Command, stdin io.Reader) (*app, error) {
	// Defaults plus CLI flags, before the file and environment are applied.
	base := *opts

	if err := config.LoadConfig(opts, root); err != nil {
		return nil, err
	}
	logging.Initialize(opts.LoggingSettings())

	cfg, err := opts.ProcessConfig()
	if err != nil {
		return nil, err
	}

	bus := events.New()
	metrics.RegisterDroppedEvents(bus.Dropped)

	resolver := binary.NewDirResolver(opts.SearchDirs(), 0, logging.GetLogger("binary"))
	sup := supervisor.New(&supervisor.Options{
		Resolver:        resolver,
		Bus:             bus,
		Logger:          logging.GetLogger("supervisor"),
		ProcessLogger:   logging.GetLogger("process"),
		OutputLogger:    logging.GetLogger("output"),
		HistorySize:     opts.LogHistory,
		GracePeriod:     opts.StopTimeout(),
		KillGracePeriod: opts.KillTimeout(),
	})

	a := &app{
		opts:     opts,
		cfg:      cfg,
		logger:   logging.GetLogger("main"),
		bus:      bus,
		resolver: resolver,
		sup:      sup,
		notifier: systemd.NewNotifier(logging.GetLogger("systemd")),
		stdin:    stdin,
		quit:     make(chan struct{}),
	}
	if opts.WatchConfig && opts.Config != "" {
		a.watcher = config.NewConfigWatcher(opts.Config, config.Reloader(base, root), logging.GetLogger("config"))
		a.watcher.OnReload(a.reload)
	}
	if opts.MetricsAddr != "" {
		a.metrics = exporters.NewServer(opts.MetricsAddr, logging.GetLogger("metrics"))
	}
	return a, nil
}

// run starts the service and blocks until it stops for good or shutdown is
// called. It returns the process exit code.
func (a *app) run() int {
	a.notifier.Start(context.Background(), a.bus)

	if a.metrics != nil {
		if err := collectors.RegisterChild(prometheus.DefaultRegisterer, a.childPID); err != nil {
			a.logger.Warn("Failed to register child process collector", "error", err)
		}
		if err := a.metrics.Start(); err != nil {
			a.logger.Error("Failed to start metrics endpoint", "addr", a.opts.MetricsAddr, "error", err)
		}
	}

	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			a.logger.Warn("Config watcher disabled", "path", a.opts.Config, "error", err)
		}
	}

	statusCh := make(chan any, 16)
	unsub := events.SubscribeToChannel[events.StatusChangedEvent](a.bus, statusCh)
	defer unsub()

	if a.opts.ForwardStdin && a.stdin != nil {
		go a.forwardStdin()
	}

	a.logger.Info("Starting service", "executable", a.cfg.Executable, "auto_restart", a.cfg.AutoRestart,
		"max_restarts", a.cfg.MaxRestarts)
	a.sup.Start(a.cfg)

	for {
		select {
		case ev := <-statusCh:
			e, ok := ev.(events.StatusChangedEvent)
			if !ok {
				continue
			}
			status := supervisor.Status(e.New)
			if !a.opts.ExitOnStop || !status.Terminal() {
				continue
			}
			a.logger.Info("Service finished", "status", status, "reason", e.Reason)
			a.shutdown()
			if status == supervisor.StatusError {
				return 1
			}
			return 0
		case <-a.quit:
			return 0
		}
	}
}

// shutdown tears everything down. It is safe to call more than once.
func (a *app) shutdown() {
	a.stopOnce.Do(func() {
		a.logger.Info("Shutting down")
		a.notifier.Stop()
		if a.watcher != nil {
			if err := a.watcher.Stop(); err != nil {
				a.logger.Debug("Config watcher stop", "error", err)
			}
		}
		a.sup.Close()

		if a.metrics != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.metrics.Shutdown(ctx); err != nil {
				a.logger.Warn("Metrics endpoint shutdown", "error", err)
			}
		}
		close(a.quit)
	})
}

// reload applies a changed config file.
func (a *app) reload(opts config.Options) {
	cfg, err := opts.ProcessConfig()
	if err != nil {
		a.logger.Warn("Ignoring config change", "error", err)
		return
	}

	logging.Initialize(opts.LoggingSettings())
	a.resolver.Invalidate()

	if !a.sup.Reload(cfg) {
		return
	}
	// A service that failed to start gets another chance with the new config.
	if a.sup.Status() == supervisor.StatusError && !a.sup.IsRunning() {
		a.sup.Start(cfg)
	}
}

func (a *app) forwardStdin() {
	scanner := bufio.NewScanner(a.stdin)
	for scanner.Scan() {
		if !a.sup.Write(scanner.Text()) {
			a.logger.Debug("Dropped stdin line, process not running")
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		a.logger.Warn("Stdin forwarding stopped", "error", err)
	}
}

func (a *app) childPID() (int, error) {
	pid, ok := a.sup.PID()
	if !ok {
		return 0, collectors.ErrNoProcess
	}
	return pid, nil
}
