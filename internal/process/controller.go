package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sky22333/svcmgr/internal/logging"
)

const (
	defaultGracePeriod        = 5 * time.Second
	defaultKillGracePeriod    = 1 * time.Second
	maxKillGracePeriod        = 2 * time.Second
	defaultDestroyGracePeriod = 500 * time.Millisecond
	defaultDrainTimeout       = 500 * time.Millisecond

	// stopSlack is what Stop may add to GracePeriod + KillGracePeriod
	// while the exit path publishes the stopped state.
	stopSlack = 100 * time.Millisecond
)

// ControllerOptions configures a Controller. Zero values select defaults.
type ControllerOptions struct {
	Logger logging.Logger
	// OutputLogger, when set, also receives every output line at its level.
	OutputLogger logging.Logger
	Sink         LogSink
	Observer     StateObserver
	LogParser    LogParser

	// GracePeriod is how long Stop waits after the graceful signal.
	GracePeriod time.Duration
	// KillGracePeriod is how long Stop waits after SIGKILL. Capped at 2s.
	KillGracePeriod time.Duration
	// DestroyGracePeriod is the graceful window used by Destroy.
	DestroyGracePeriod time.Duration
	// DrainTimeout bounds how long the exit path waits for the pumps to
	// reach EOF before closing the pipes.
	DrainTimeout time.Duration

	BatchSize     int
	FlushInterval time.Duration
}

// Controller owns at most one running OS process.
//
// Start, Stop and Destroy never run two processes at once: a Start while a
// process is alive is rejected. Every transition is delivered to the
// StateObserver in order, and running is always published before any output.
type Controller struct {
	opts     ControllerOptions
	logger   logging.Logger
	sink     LogSink
	observer StateObserver

	ctx    context.Context
	cancel context.CancelFunc

	opMu  sync.Mutex // serializes Start and Stop
	pubMu sync.Mutex // orders state publication
	mu    sync.Mutex // guards current and state
	current *run
	state   RunState
}

// run is one launched process and everything attached to it.
type run struct {
	cmd       *exec.Cmd
	pid       *int
	startTime time.Time

	stdin       *os.File
	stdinMu     sync.Mutex
	stdinWriter *bufio.Writer
	stdinClosed atomic.Bool

	pumps   []*pump
	readers []*os.File

	exited   chan struct{} // closed once exitCode is set
	exitCode int
	done     chan struct{} // closed after the stopped state was published
	once     sync.Once
}

// NewController creates a controller with no process.
func NewController(opts ControllerOptions) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("process")
	}
	if opts.Sink == nil {
		opts.Sink = discardSink{}
	}
	if opts.Observer == nil {
		opts.Observer = discardObserver{}
	}
	if opts.LogParser == nil {
		opts.LogParser = DefaultLogParser
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGracePeriod
	}
	if opts.KillGracePeriod <= 0 {
		opts.KillGracePeriod = defaultKillGracePeriod
	}
	if opts.KillGracePeriod > maxKillGracePeriod {
		opts.KillGracePeriod = maxKillGracePeriod
	}
	if opts.DestroyGracePeriod <= 0 {
		opts.DestroyGracePeriod = defaultDestroyGracePeriod
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		opts:     opts,
		logger:   opts.Logger,
		sink:     opts.Sink,
		observer: opts.Observer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches executablePath with cfg. It returns false when a process is
// already running, when the path is not an executable regular file, or when
// the OS refuses to create the process. The failure is logged as ERROR.
func (c *Controller) Start(executablePath string, cfg Config) bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.ctx.Err() != nil {
		c.system(LevelError, "Controller is shut down, refusing to start process")
		return false
	}

	if r := c.currentRun(); r != nil {
		if r.alive() {
			c.system(LevelError, "Process already running", "pid", derefPID(r.pid), "error", ErrAlreadyRunning)
			return false
		}
		c.release(r, c.drainWait())
	}

	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		c.system(LevelError, "Invalid process configuration", "error", err)
		return false
	}
	if err := checkExecutable(executablePath); err != nil {
		c.system(LevelError, "Executable is not usable", "path", executablePath, "error", err)
		return false
	}

	r, err := c.spawn(executablePath, cfg)
	if err != nil {
		c.system(LevelError, "Failed to start process", "path", executablePath, "error", err)
		return false
	}

	running := RunState{Running: true, PID: r.pid, StartTime: &r.startTime}
	c.pubMu.Lock()
	c.mu.Lock()
	c.current = r
	c.state = running
	c.mu.Unlock()
	c.observer.OnRunState(running)
	c.pubMu.Unlock()

	c.system(LevelInfo, "Process started", "pid", derefPID(r.pid), "command", CommandLine(executablePath, cfg.Arguments))

	for i, p := range r.pumps {
		go p.run(r.readers[i])
	}
	go c.waitExit(r)

	return true
}

func (c *Controller) spawn(executablePath string, cfg Config) (*run, error) {
	cmd := exec.Command("sh", "-c", CommandLine(executablePath, cfg.Arguments))
	cmd.Env = append(os.Environ(), cfg.EnvList()...)
	if cfg.WorkingDir != "" {
		if info, err := os.Stat(cfg.WorkingDir); err == nil && info.IsDir() {
			cmd.Dir = cfg.WorkingDir
		} else {
			c.system(LevelWarn, "Working directory is not usable, ignoring it", "dir", cfg.WorkingDir)
		}
	}
	setProcAttr(cmd)

	// os.Pipe rather than StdoutPipe: Wait must not close the read ends
	// before the pumps have drained them.
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrSpawn, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(outR, outW)
		return nil, fmt.Errorf("%w: stderr pipe: %w", ErrSpawn, err)
	}
	inR, inW, err := os.Pipe()
	if err != nil {
		closeAll(outR, outW, errR, errW)
		return nil, fmt.Errorf("%w: stdin pipe: %w", ErrSpawn, err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.Stdin = inR

	if err := cmd.Start(); err != nil {
		closeAll(outR, outW, errR, errW, inR, inW)
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	// The child holds its own copies now.
	closeAll(outW, errW, inR)

	r := &run{
		cmd:         cmd,
		startTime:   time.Now(),
		stdin:       inW,
		stdinWriter: bufio.NewWriter(inW),
		readers:     []*os.File{outR, errR},
		exited:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	if cmd.Process != nil && cmd.Process.Pid > 0 {
		pid := cmd.Process.Pid
		r.pid = &pid
	}
	r.pumps = []*pump{
		newPump(SourceStdout, c.sink, c.opts.LogParser, c.logger, c.opts.OutputLogger, c.opts.BatchSize, c.opts.FlushInterval),
		newPump(SourceStderr, c.sink, c.opts.LogParser, c.logger, c.opts.OutputLogger, c.opts.BatchSize, c.opts.FlushInterval),
	}
	return r, nil
}

// waitExit blocks until the process exits, lets the pumps drain, then
// publishes the stopped state and frees the slot.
func (c *Controller) waitExit(r *run) {
	err := r.cmd.Wait()
	r.exitCode = exitCodeFromState(r.cmd.ProcessState, err)
	close(r.exited)

	if !r.waitPumps(c.opts.DrainTimeout) {
		c.logger.Debug("Output still open after exit, closing pipes", "pid", derefPID(r.pid))
	}
	r.stopPumps()

	if c.ctx.Err() != nil {
		c.system(LevelWarn, "Process wait interrupted by shutdown", "pid", derefPID(r.pid), "exit_code", r.exitCode)
	} else {
		c.system(LevelInfo, "Process exited", "pid", derefPID(r.pid), "exit_code", r.exitCode)
	}
	c.finalize(r)
}

// finalize publishes the stopped state exactly once per run.
func (c *Controller) finalize(r *run) {
	r.once.Do(func() {
		r.closeStdin()

		stopped := RunState{Running: false, PID: r.pid, StartTime: &r.startTime}
		select {
		case <-r.exited:
			code := r.exitCode
			stopped.ExitCode = &code
		default:
		}

		c.pubMu.Lock()
		c.mu.Lock()
		if c.current == r {
			c.current = nil
		}
		c.state = stopped
		c.mu.Unlock()
		c.observer.OnRunState(stopped)
		c.pubMu.Unlock()

		close(r.done)
	})
}

// release waits up to timeout for the exit path to finish, then forces it:
// the pipes are closed and the stopped state is published.
func (c *Controller) release(r *run, timeout time.Duration) {
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-r.done:
			return
		case <-timer.C:
		}
	}
	select {
	case <-r.done:
		return
	default:
	}
	r.stopPumps()
	c.finalize(r)
}

func (c *Controller) drainWait() time.Duration {
	return c.opts.DrainTimeout + stopSlack
}

// Stop terminates the running process: graceful signal, then SIGKILL after
// GracePeriod, then unconditional cleanup after KillGracePeriod. Output still
// buffered in the pipes is drained only within the remaining stopSlack, so
// Stop returns within GracePeriod + KillGracePeriod + stopSlack. It is
// idempotent and always returns true.
func (c *Controller) Stop() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	r := c.currentRun()
	if r == nil {
		return true
	}

	deadline := time.Now().Add(c.opts.GracePeriod + c.opts.KillGracePeriod + stopSlack)
	if r.alive() {
		c.system(LevelInfo, "Stopping process", "pid", derefPID(r.pid))
		c.terminate(r, c.opts.GracePeriod)
	}
	c.release(r, min(c.drainWait(), time.Until(deadline)))
	return true
}

// Destroy tears the controller down without waiting for Stop. The process
// gets a short graceful window and is then killed. Start is refused afterwards.
func (c *Controller) Destroy() {
	c.cancel()

	r := c.currentRun()
	if r == nil {
		return
	}
	if r.alive() {
		c.terminate(r, c.opts.DestroyGracePeriod)
	}
	c.release(r, c.drainWait())
}

func (c *Controller) terminate(r *run, grace time.Duration) {
	if err := signalGroup(r.cmd.Process, gracefulSignal); err != nil && !errors.Is(err, os.ErrProcessDone) {
		c.logger.Warn("Failed to send graceful signal", "pid", derefPID(r.pid), "error", err)
	}
	if r.waitExited(grace) {
		// The leader is gone. Leftover members are reaped only while the
		// output pipes are still open: once both streams reached EOF the
		// group may be empty and its id free for reuse.
		if r.pid != nil && !r.pumpsDrained() {
			killGroup(*r.pid)
		}
		return
	}

	c.system(LevelWarn, "Graceful shutdown timeout, forcing kill", "pid", derefPID(r.pid), "timeout", grace)
	if err := signalGroup(r.cmd.Process, killSignal); err != nil && !errors.Is(err, os.ErrProcessDone) {
		c.system(LevelError, "Failed to kill process", "pid", derefPID(r.pid), "error", err)
	}
	if !r.waitExited(c.opts.KillGracePeriod) {
		c.system(LevelError, "Process did not exit after kill signal", "pid", derefPID(r.pid))
	}
}

// Write sends input followed by a newline to the process stdin.
func (c *Controller) Write(input string) bool {
	r := c.currentRun()
	if r == nil || !r.alive() {
		c.logger.Debug("Write ignored", "error", ErrNotRunning)
		return false
	}
	if err := r.write(input); err != nil {
		if errors.Is(err, ErrStdinClosed) {
			return false
		}
		c.system(LevelError, "Failed to write to process stdin", "pid", derefPID(r.pid), "error", err)
		return false
	}
	return true
}

// IsRunning reports whether a process is alive.
func (c *Controller) IsRunning() bool {
	r := c.currentRun()
	return r != nil && r.alive()
}

// State returns the most recently published RunState.
func (c *Controller) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) currentRun() *run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// system logs a lifecycle message and forwards it to the sink.
func (c *Controller) system(level Level, msg string, args ...any) {
	logAtLevel(c.logger, level, msg, args...)
	c.sink.Emit([]LogEntry{{
		Timestamp: time.Now(),
		Level:     level,
		Message:   formatMessage(msg, args...),
		Source:    SourceSystem,
	}})
}

func (r *run) alive() bool {
	select {
	case <-r.exited:
		return false
	default:
		return true
	}
}

func (r *run) waitExited(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.exited:
		return true
	case <-timer.C:
		return false
	}
}

func (r *run) waitPumps(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for _, p := range r.pumps {
		select {
		case <-p.done:
		case <-timer.C:
			return false
		}
	}
	return true
}

// pumpsDrained reports whether every pump has seen the end of its stream.
func (r *run) pumpsDrained() bool {
	for _, p := range r.pumps {
		select {
		case <-p.done:
		default:
			return false
		}
	}
	return true
}

// stopPumps cancels the pumps and closes the read ends, which unblocks any
// pending read.
func (r *run) stopPumps() {
	for _, p := range r.pumps {
		p.cancel()
	}
	closeAll(r.readers...)
}

func (r *run) write(input string) error {
	r.stdinMu.Lock()
	defer r.stdinMu.Unlock()

	if r.stdinClosed.Load() {
		return ErrStdinClosed
	}
	if _, err := r.stdinWriter.WriteString(input + "\n"); err != nil {
		return err
	}
	return r.stdinWriter.Flush()
}

// closeStdin closes the write end without taking stdinMu so a writer blocked
// on a full pipe is released.
func (r *run) closeStdin() {
	if r.stdinClosed.CompareAndSwap(false, true) {
		_ = r.stdin.Close()
	}
}

func checkExecutable(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty executable path", ErrConfig)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrSpawn, path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s is not executable", ErrSpawn, path)
	}
	return nil
}

// exitCodeFromError extracts exit code from a Wait error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

func derefPID(pid *int) int {
	if pid == nil {
		return 0
	}
	return *pid
}

// formatMessage renders slog-style key/value pairs after msg for display.
func formatMessage(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}
	out := msg
	for i := 0; i+1 < len(args); i += 2 {
		out += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	return out
}
