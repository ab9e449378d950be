package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sky22333/svcmgr/internal/logging"
	"github.com/sky22333/svcmgr/internal/process"
)

// Options is the flat CLI/TOML/env view of the supervisor configuration.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"svcmgr.toml"`

	// Service settings
	Executable  string `help:"Executable to supervise, a name or a path" short:"e" toml:"service.executable" env:"SERVICE_EXECUTABLE"`
	Arguments   string `help:"Arguments appended to the command line verbatim" short:"a" toml:"service.arguments" env:"SERVICE_ARGUMENTS"`
	Environment string `help:"Extra environment as KEY=VALUE, separated by commas or newlines" toml:"service.environment" env:"SERVICE_ENVIRONMENT"`
	WorkingDir  string `help:"Working directory for the process" toml:"service.working_dir" env:"SERVICE_WORKING_DIR"`
	BinaryDirs  string `help:"Comma-separated directories searched before $PATH" toml:"service.binary_dirs" env:"SERVICE_BINARY_DIRS"`

	// Restart settings
	AutoRestart    bool `help:"Restart the process after it exits" default:"true" toml:"restart.auto" env:"RESTART_AUTO"`
	RestartDelayMs int  `help:"Delay before an automatic restart in milliseconds" default:"5000" toml:"restart.delay_ms" env:"RESTART_DELAY_MS"`
	MaxRestarts    int  `help:"Maximum automatic restarts, -1 for unlimited" default:"-1" toml:"restart.max_restarts" env:"RESTART_MAX_RESTARTS"`

	// Shutdown settings
	StopTimeoutMs int `help:"Grace period after SIGTERM in milliseconds" default:"5000" toml:"shutdown.stop_timeout_ms" env:"SHUTDOWN_STOP_TIMEOUT_MS"`
	KillTimeoutMs int `help:"Wait after SIGKILL in milliseconds" default:"1000" toml:"shutdown.kill_timeout_ms" env:"SHUTDOWN_KILL_TIMEOUT_MS"`

	// Runtime settings
	ForwardStdin bool   `help:"Forward stdin lines to the process" default:"false" toml:"runtime.forward_stdin" env:"RUNTIME_FORWARD_STDIN"`
	WatchConfig  bool   `help:"Reload the service when the config file changes" default:"true" toml:"runtime.watch_config" env:"RUNTIME_WATCH_CONFIG"`
	ExitOnStop   bool   `help:"Exit once the service stops for good" default:"true" toml:"runtime.exit_on_stop" env:"RUNTIME_EXIT_ON_STOP"`
	LogHistory   int    `help:"Number of output lines kept in memory" default:"1000" toml:"runtime.log_history" env:"RUNTIME_LOG_HISTORY"`
	MetricsAddr  string `help:"Address for the Prometheus /metrics listener, empty to disable" toml:"metrics.addr" env:"METRICS_ADDR"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingProcess    string `help:"Process controller logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingOutput     string `help:"Logging level for the process output" default:"info" toml:"logging.output" env:"LOGGING_OUTPUT"`
	LoggingConfig     string `help:"Config logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingBinary     string `help:"Binary resolver logging level" default:"info" toml:"logging.binary" env:"LOGGING_BINARY"`
}

// ProcessConfig converts the options into the supervisor's config record.
func (o *Options) ProcessConfig() (process.Config, error) {
	env, err := process.ParseEnv(o.Environment)
	if err != nil {
		return process.Config{}, err
	}
	cfg := process.Config{
		Executable:   strings.TrimSpace(o.Executable),
		Arguments:    o.Arguments,
		Environment:  env,
		WorkingDir:   o.WorkingDir,
		AutoRestart:  o.AutoRestart,
		RestartDelay: time.Duration(o.RestartDelayMs) * time.Millisecond,
		MaxRestarts:  o.MaxRestarts,
	}
	if err := cfg.Validate(); err != nil {
		return process.Config{}, err
	}
	return cfg, nil
}

// SearchDirs splits BinaryDirs into a list, dropping empty entries.
func (o *Options) SearchDirs() []string {
	var dirs []string
	for _, dir := range strings.Split(o.BinaryDirs, ",") {
		if dir = strings.TrimSpace(dir); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// StopTimeout returns the SIGTERM grace period.
func (o *Options) StopTimeout() time.Duration {
	return time.Duration(o.StopTimeoutMs) * time.Millisecond
}

// KillTimeout returns the wait after SIGKILL.
func (o *Options) KillTimeout() time.Duration {
	return time.Duration(o.KillTimeoutMs) * time.Millisecond
}

// LoggingSettings returns the logging configuration with per-module levels.
func (o *Options) LoggingSettings() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"supervisor": o.LoggingSupervisor,
			"process":    o.LoggingProcess,
			"output":     o.LoggingOutput,
			"config":     o.LoggingConfig,
			"binary":     o.LoggingBinary,
		},
	}
}

// Reloader returns a loader for the config watcher. Every call starts from
// base, normally the options before the file was first applied, so keys
// removed from the file fall back to their defaults. Flags set on cmd keep
// winning.
func Reloader(base Options, cmd *cobra.Command) func(path string) (Options, error) {
	return func(path string) (Options, error) {
		opts := base
		opts.Config = path
		if err := LoadConfig(&opts, cmd); err != nil {
			return Options{}, err
		}
		if _, err := opts.ProcessConfig(); err != nil {
			return Options{}, fmt.Errorf("invalid service config: %w", err)
		}
		return opts, nil
	}
}
