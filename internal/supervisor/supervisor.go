package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sky22333/svcmgr/internal/binary"
	"github.com/sky22333/svcmgr/internal/events"
	"github.com/sky22333/svcmgr/internal/logging"
	"github.com/sky22333/svcmgr/internal/metrics"
	"github.com/sky22333/svcmgr/internal/process"
)

// Options configures a Supervisor.
type Options struct {
	// Resolver locates the executable named in the config. Defaults to a
	// DirResolver that searches $PATH.
	Resolver binary.Resolver
	// Bus receives log batches, run states and status changes. Defaults to
	// a private bus.
	Bus    *events.Bus
	Logger logging.Logger
	// ProcessLogger receives controller lifecycle logs.
	ProcessLogger logging.Logger
	// OutputLogger, when set, receives every line the process prints.
	OutputLogger logging.Logger
	HistorySize  int
	LogParser    process.LogParser

	GracePeriod     time.Duration
	KillGracePeriod time.Duration
}

// Supervisor runs one executable and restarts it according to its config.
//
// Commands (Start, Stop, Restart, Reload) are serialized. A generation
// counter is bumped by every command; an exit or a scheduled restart that
// belongs to an older generation is ignored, so Stop reliably cancels
// pending and in-flight restarts.
type Supervisor struct {
	logger     logging.Logger
	bus        *events.Bus
	resolver   binary.Resolver
	controller *process.Controller
	sink       *logSink
	state      *broadcaster

	opMu sync.Mutex // serializes commands

	mu       sync.Mutex // guards the fields below
	cfg      process.Config
	hasCfg   bool
	gen      uint64
	runGen   uint64
	attempts int
	pending  bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a supervisor. Nothing runs until Start.
func New(opts *Options) *Supervisor {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("supervisor")
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.New()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = binary.NewDirResolver(nil, 0, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		logger:   logger,
		bus:      bus,
		resolver: resolver,
		sink:     newLogSink(bus, opts.HistorySize),
		state:    newBroadcaster(bus),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.controller = process.NewController(process.ControllerOptions{
		Logger:          opts.ProcessLogger,
		OutputLogger:    opts.OutputLogger,
		Sink:            s.sink,
		Observer:        process.StateObserverFunc(s.onRunState),
		LogParser:       opts.LogParser,
		GracePeriod:     opts.GracePeriod,
		KillGracePeriod: opts.KillGracePeriod,
	})
	return s
}

// Start stores cfg, resets the restart budget and launches the executable.
func (s *Supervisor) Start(cfg process.Config) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	// A rejected start leaves a live service and its status untouched.
	if s.controller.IsRunning() {
		s.serviceLog(process.LevelError, "Service is already running", "error", process.ErrAlreadyRunning)
		return false
	}
	if err := cfg.Validate(); err != nil {
		s.serviceLog(process.LevelError, "Invalid configuration", "error", err)
		s.state.setStatus(StatusError, err.Error())
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.gen++
	gen := s.gen
	s.cfg = cfg.Clone()
	s.hasCfg = true
	s.attempts = 0
	s.pending = false
	s.mu.Unlock()

	s.state.setRestartCount(0)
	s.state.setStatus(StatusStarting, "")
	return s.launch(gen)
}

// launch resolves and starts the executable for generation gen. Callers
// hold opMu.
func (s *Supervisor) launch(gen uint64) bool {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return false
	}
	cfg := s.cfg
	s.mu.Unlock()

	path, err := s.resolver.Resolve(cfg.Executable)
	if err != nil {
		metrics.RecordStartFailure("not_found")
		s.serviceLog(process.LevelError, "Binary not found", "executable", cfg.Executable, "error", err)
		s.state.setStatus(StatusError, "binary not found")
		return false
	}

	s.mu.Lock()
	s.runGen = gen
	s.mu.Unlock()
	s.state.setBinary(filepath.Base(cfg.Executable), path)

	if !s.controller.Start(path, cfg) {
		metrics.RecordStartFailure("spawn")
		s.serviceLog(process.LevelError, "Failed to start service", "path", path)
		s.state.setStatus(StatusError, "failed to start")
		return false
	}
	return true
}

// onRunState is the controller's observer. It runs on the controller's
// goroutines and must not take opMu.
func (s *Supervisor) onRunState(st process.RunState) {
	s.state.runState(st)

	if st.Running {
		if st.StartTime != nil {
			metrics.RecordStart(float64(st.StartTime.Unix()))
		}
		s.state.setStatus(StatusRunning, "")
		return
	}

	metrics.RecordExit(st.ExitCode)
	s.handleExit(st)
}

func (s *Supervisor) handleExit(st process.RunState) {
	s.mu.Lock()
	if s.closed || s.runGen != s.gen {
		// Stopped on purpose, or superseded by a newer command.
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	d := Decide(cfg, s.attempts)

	if d.Restart {
		s.attempts = d.Attempt
		s.pending = true
		gen := s.gen
		s.wg.Add(1)
		s.mu.Unlock()

		s.state.setRestartCount(d.Attempt)
		metrics.RecordRestart()
		s.bus.Publish(events.RestartScheduledEvent{
			Attempt:     d.Attempt,
			MaxRestarts: cfg.MaxRestarts,
			Delay:       d.Delay,
			ExitCode:    st.ExitCode,
			Timestamp:   time.Now(),
		})
		s.serviceLog(process.LevelWarn, fmt.Sprintf("Service exited unexpectedly (%s), restarting in %v (attempt %s)",
			exitText(st.ExitCode), d.Delay, attemptText(d.Attempt, cfg.MaxRestarts)))
		s.state.setStatus(StatusStarting, "restart scheduled")

		go s.restartAfter(gen, d.Delay)
		return
	}
	s.mu.Unlock()

	if d.LimitReached {
		metrics.RecordRestartLimitReached()
		s.serviceLog(process.LevelError, fmt.Sprintf("Max restarts reached (%d)", cfg.MaxRestarts), "last_exit", exitText(st.ExitCode))
		s.state.setStatus(StatusError, "max restarts reached")
		return
	}

	if st.ExitCode != nil && *st.ExitCode == 0 {
		s.serviceLog(process.LevelInfo, "Service exited normally")
		s.state.setStatus(StatusStopped, "")
		return
	}
	s.serviceLog(process.LevelError, fmt.Sprintf("Service exited (%s)", exitText(st.ExitCode)))
	s.state.setStatus(StatusError, "exited with "+exitText(st.ExitCode))
}

func (s *Supervisor) restartAfter(gen uint64, delay time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return
	case <-timer.C:
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.mu.Unlock()

	s.logger.Info("Restarting service", "generation", gen)
	s.launch(gen)
}

// Stop terminates the process and cancels any pending restart. It always
// returns true.
func (s *Supervisor) Stop() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked(true)
}

// stopLocked ends the current generation. Unless final, the stopped status is
// not published, so a restart goes from stopping straight to starting.
func (s *Supervisor) stopLocked(final bool) bool {
	s.mu.Lock()
	s.gen++
	s.pending = false
	s.mu.Unlock()

	if s.controller.IsRunning() {
		s.state.setStatus(StatusStopping, "")
		s.serviceLog(process.LevelInfo, "Stopping service")
	}
	s.controller.Stop()
	if final {
		s.state.setStatus(StatusStopped, "")
	}
	return true
}

// Restart stops the process, waits for the configured restart delay and
// starts it again with the current config. The restart budget is reset.
func (s *Supervisor) Restart() bool {
	s.opMu.Lock()
	s.mu.Lock()
	if !s.hasCfg || s.closed {
		s.mu.Unlock()
		s.opMu.Unlock()
		s.serviceLog(process.LevelError, "Cannot restart without a configuration")
		return false
	}
	s.mu.Unlock()

	s.serviceLog(process.LevelInfo, "Restarting service")
	s.stopLocked(false)

	s.mu.Lock()
	gen := s.gen
	s.attempts = 0
	delay := s.cfg.RestartDelay
	s.mu.Unlock()
	s.state.setRestartCount(0)
	s.state.setStatus(StatusStarting, "restart requested")
	s.opMu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.launch(gen)
}

// Reload replaces the config. A running service, or one waiting for an
// automatic restart, is restarted with the new config.
func (s *Supervisor) Reload(cfg process.Config) bool {
	if err := cfg.Validate(); err != nil {
		s.serviceLog(process.LevelError, "Ignoring invalid configuration", "error", err)
		return false
	}

	s.opMu.Lock()
	s.mu.Lock()
	s.cfg = cfg.Clone()
	s.hasCfg = true
	active := s.pending || s.controller.IsRunning()
	s.mu.Unlock()
	s.opMu.Unlock()

	if !active {
		s.serviceLog(process.LevelInfo, "Configuration updated")
		return true
	}
	s.serviceLog(process.LevelInfo, "Configuration changed, restarting service")
	return s.Restart()
}

// Write sends one line to the process stdin.
func (s *Supervisor) Write(line string) bool {
	return s.controller.Write(line)
}

// State returns the last RunState published by the controller.
func (s *Supervisor) State() process.RunState {
	return s.controller.State()
}

// IsRunning reports whether the process is alive.
func (s *Supervisor) IsRunning() bool {
	return s.controller.IsRunning()
}

// Status returns the current supervisor status.
func (s *Supervisor) Status() Status {
	return s.state.snapshot().Status
}

// Snapshot returns the current service state.
func (s *Supervisor) Snapshot() Snapshot {
	return s.state.snapshot()
}

// History returns up to n recent log entries, oldest first. n <= 0 returns
// the whole history.
func (s *Supervisor) History(n int) []process.LogEntry {
	return s.sink.recent(n)
}

// Config returns the stored config and whether one was set.
func (s *Supervisor) Config() (process.Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone(), s.hasCfg
}

// PID returns the pid of the running process.
func (s *Supervisor) PID() (int, bool) {
	st := s.controller.State()
	if !st.Running || st.PID == nil {
		return 0, false
	}
	return *st.PID, true
}

// Bus returns the bus the supervisor publishes to.
func (s *Supervisor) Bus() *events.Bus {
	return s.bus
}

// Close cancels pending restarts and tears the process down. The supervisor
// cannot be started again.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	s.pending = false
	s.mu.Unlock()

	s.cancel()
	s.controller.Destroy()
	s.wg.Wait()
	s.state.setStatus(StatusStopped, "")
}

// serviceLog records a supervisor decision in the log stream.
func (s *Supervisor) serviceLog(level process.Level, msg string, args ...any) {
	switch level {
	case process.LevelError:
		s.logger.Error(msg, args...)
	case process.LevelWarn:
		s.logger.Warn(msg, args...)
	case process.LevelDebug:
		s.logger.Debug(msg, args...)
	default:
		s.logger.Info(msg, args...)
	}
	s.sink.Emit([]process.LogEntry{{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Source:    process.SourceService,
	}})
}

func exitText(code *int) string {
	if code == nil {
		return "exit code unknown"
	}
	return fmt.Sprintf("exit code %d", *code)
}

func attemptText(attempt, maxRestarts int) string {
	if maxRestarts == process.UnlimitedRestarts {
		return fmt.Sprintf("%d", attempt)
	}
	return fmt.Sprintf("%d/%d", attempt, maxRestarts)
}
