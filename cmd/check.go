package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/sky22333/svcmgr/internal/binary"
	"github.com/sky22333/svcmgr/internal/config"
	"github.com/sky22333/svcmgr/internal/logging"
)

// ErrCheckFailed is returned by RunCheck when the configuration cannot be used.
var ErrCheckFailed = errors.New("check failed")

// CreateCheckCmd creates the check command. It loads the configuration the
// same way the supervisor does, validates it and resolves the executable
// without starting anything.
func CreateCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and resolve the executable",
		Long: `Loads the configuration from flags, environment and the config file, ` +
			`validates the service settings and locates the executable. Exits non-zero on failure.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *config.Options) {
			if err := config.LoadConfig(opts, cmd); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "config: %v\n", err)
				os.Exit(1)
			}
			resolver := binary.NewDirResolver(opts.SearchDirs(), -1, logging.GetLogger("binary"))
			if err := RunCheck(cmd.OutOrStdout(), opts, resolver); err != nil {
				os.Exit(1)
			}
		}),
	}
}

// RunCheck prints a report for opts to w.
func RunCheck(w io.Writer, opts *config.Options, resolver binary.Resolver) error {
	fmt.Fprintf(w, "config file:   %s\n", opts.Config)

	cfg, err := opts.ProcessConfig()
	if err != nil {
		fmt.Fprintf(w, "service:       invalid: %v\n", err)
		return fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}

	path, err := resolver.Resolve(cfg.Executable)
	if err != nil {
		fmt.Fprintf(w, "executable:    %s (not found)\n", cfg.Executable)
		return fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}

	fmt.Fprintf(w, "executable:    %s\n", path)
	if cfg.Arguments != "" {
		fmt.Fprintf(w, "arguments:     %s\n", cfg.Arguments)
	}
	for _, env := range cfg.Environment {
		fmt.Fprintf(w, "environment:   %s\n", env.Name)
	}
	if cfg.WorkingDir != "" {
		status := "ok"
		if fi, statErr := os.Stat(cfg.WorkingDir); statErr != nil || !fi.IsDir() {
			status = "missing, will be ignored"
		}
		fmt.Fprintf(w, "working dir:   %s (%s)\n", cfg.WorkingDir, status)
	}

	restarts := "disabled"
	if cfg.AutoRestart {
		limit := "unlimited"
		if cfg.MaxRestarts >= 0 {
			limit = fmt.Sprintf("at most %d", cfg.MaxRestarts)
		}
		restarts = fmt.Sprintf("%s, delay %v", limit, cfg.RestartDelay)
	}
	fmt.Fprintf(w, "auto restart:  %s\n", restarts)
	return nil
}
