// Package binary locates the executable the supervisor should launch.
package binary

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sky22333/svcmgr/internal/logging"
)

// ErrNotFound is returned when no executable matches the requested name.
var ErrNotFound = errors.New("executable not found")

// DefaultCacheTTL is how long a resolved path is trusted before it is
// looked up again.
const DefaultCacheTTL = 8 * time.Hour

// Resolver turns an executable reference into an absolute path.
type Resolver interface {
	Resolve(name string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (string, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(name string) (string, error) { return f(name) }

type cacheEntry struct {
	path    string
	expires time.Time
}

// DirResolver searches a list of directories, then $PATH. Hits are cached
// for the TTL; a cached path that is no longer executable is looked up again.
type DirResolver struct {
	dirs   []string
	ttl    time.Duration
	logger logging.Logger

	now      func() time.Time
	lookPath func(string) (string, error)

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewDirResolver creates a resolver. A ttl of zero selects DefaultCacheTTL; a
// negative ttl disables caching.
func NewDirResolver(dirs []string, ttl time.Duration, logger logging.Logger) *DirResolver {
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = logging.GetLogger("binary")
	}
	clean := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d = strings.TrimSpace(d); d != "" {
			clean = append(clean, d)
		}
	}
	return &DirResolver{
		dirs:     clean,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		lookPath: exec.LookPath,
		cache:    make(map[string]cacheEntry),
	}
}

// Resolve returns an absolute path to an existing executable regular file.
func (r *DirResolver) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrNotFound)
	}

	if path, ok := r.cached(name); ok {
		return path, nil
	}

	path, err := r.search(name)
	if err != nil {
		r.logger.Warn("Executable not found", "name", name, "dirs", r.dirs)
		return "", err
	}

	r.logger.Debug("Resolved executable", "name", name, "path", path)
	if r.ttl > 0 {
		r.mu.Lock()
		r.cache[name] = cacheEntry{path: path, expires: r.now().Add(r.ttl)}
		r.mu.Unlock()
	}
	return path, nil
}

// Invalidate drops every cached path.
func (r *DirResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}

// Dirs returns the configured search directories.
func (r *DirResolver) Dirs() []string {
	return append([]string(nil), r.dirs...)
}

func (r *DirResolver) cached(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[name]
	if !ok {
		return "", false
	}
	if r.now().After(entry.expires) || IsExecutable(entry.path) != nil {
		delete(r.cache, name)
		return "", false
	}
	return entry.path, true
}

func (r *DirResolver) search(name string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		abs, err := filepath.Abs(name)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrNotFound, name, err)
		}
		if err := IsExecutable(abs); err != nil {
			return "", fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return abs, nil
	}

	for _, dir := range r.dirs {
		candidate, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if IsExecutable(candidate) == nil {
			return candidate, nil
		}
	}

	if path, err := r.lookPath(name); err == nil {
		if abs, err := filepath.Abs(path); err == nil && IsExecutable(abs) == nil {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// IsExecutable reports why path cannot be launched, or nil when it can.
func IsExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
