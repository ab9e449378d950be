package process

import (
	"fmt"
	"strings"
	"time"
)

// Defaults for Config fields that callers usually leave zero.
const (
	DefaultRestartDelay = 5 * time.Second
	UnlimitedRestarts   = -1
)

// EnvVar is one entry of the environment overlay. Order is preserved so
// later entries win when a name repeats.
type EnvVar struct {
	Name  string `json:"name" toml:"name"`
	Value string `json:"value" toml:"value"`
}

// Config describes one supervised executable.
type Config struct {
	// Executable is a binary name or path handed to the resolver.
	Executable string
	// Arguments is appended to the command line verbatim. It is not parsed.
	Arguments   string
	Environment []EnvVar
	// WorkingDir is used only when it exists and is a directory.
	WorkingDir   string
	AutoRestart  bool
	RestartDelay time.Duration
	// MaxRestarts bounds automatic restarts; UnlimitedRestarts disables the bound.
	MaxRestarts int
}

// Validate checks the fields the supervisor relies on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Executable) == "" {
		return fmt.Errorf("%w: executable is required", ErrConfig)
	}
	if c.RestartDelay < 0 {
		return fmt.Errorf("%w: restart delay must not be negative", ErrConfig)
	}
	if c.MaxRestarts < UnlimitedRestarts {
		return fmt.Errorf("%w: max restarts must be -1 or greater", ErrConfig)
	}
	for _, env := range c.Environment {
		if env.Name == "" || strings.ContainsRune(env.Name, '=') {
			return fmt.Errorf("%w: invalid environment variable name %q", ErrConfig, env.Name)
		}
	}
	return nil
}

// Clone returns a deep copy so a running process is unaffected by later edits.
func (c Config) Clone() Config {
	out := c
	if c.Environment != nil {
		out.Environment = make([]EnvVar, len(c.Environment))
		copy(out.Environment, c.Environment)
	}
	return out
}

// CommandLine returns the string handed to sh -c.
func CommandLine(executablePath, arguments string) string {
	args := strings.TrimSpace(arguments)
	if args == "" {
		return executablePath
	}
	return executablePath + " " + args
}

// EnvList returns the overlay in KEY=VALUE form.
func (c *Config) EnvList() []string {
	out := make([]string, 0, len(c.Environment))
	for _, env := range c.Environment {
		out = append(out, env.Name+"="+env.Value)
	}
	return out
}

// ParseEnv parses KEY=VALUE pairs separated by newlines, or by commas when the
// input is a single line. Blank entries and lines starting with # are skipped.
func ParseEnv(s string) ([]EnvVar, error) {
	sep := ","
	if strings.Contains(s, "\n") {
		sep = "\n"
	}

	var out []EnvVar
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part == "" || strings.HasPrefix(part, "#") {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: environment entry %q is not KEY=VALUE", ErrConfig, part)
		}
		out = append(out, EnvVar{Name: name, Value: value})
	}
	return out, nil
}
