package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sky22333/svcmgr/internal/logging"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 1500 * time.Millisecond

type reloadHandler[T any] struct {
	id uint64
	fn func(T)
}

// Watcher reloads a config file whenever it changes and passes the result to
// the registered handlers. It watches the parent directory, so a file that is
// replaced by rename (as most editors save) keeps being followed.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	load     func(path string) (T, error)
	onError  func(error)
	logger   logging.Logger

	mu       sync.Mutex
	handlers []reloadHandler[T]
	nextID   uint64

	fsw      *fsnotify.Watcher
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce overrides DefaultDebounce.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) { w.debounce = d }
}

// WithErrorHandler registers fn for load failures. Failures are logged either
// way and never reach the reload handlers.
func WithErrorHandler[T any](fn func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) { w.onError = fn }
}

// NewConfigWatcher returns a watcher for path. load is called after every
// settled change.
func NewConfigWatcher[T any](path string, load func(path string) (T, error), logger logging.Logger, opts ...WatcherOption[T]) *Watcher[T] {
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		load:     load,
		logger:   logger,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload adds fn to the handlers and returns a function removing it again.
func (w *Watcher[T]) OnReload(fn func(T)) (unsubscribe func()) {
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.handlers = append(w.handlers, reloadHandler[T]{id: id, fn: fn})
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, h := range w.handlers {
			if h.id == id {
				w.handlers = append(w.handlers[:i:i], w.handlers[i+1:]...)
				return
			}
		}
	}
}

// Start begins watching in the background. The file does not need to exist.
func (w *Watcher[T]) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw

	w.logger.Info("Watching config file", "path", w.path, "debounce", w.debounce)
	go w.loop()
	return nil
}

// Stop ends watching and waits for the background loop. It is safe to call
// more than once and before Start.
func (w *Watcher[T]) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.quit)
		if w.fsw == nil {
			return
		}
		err = w.fsw.Close()
		<-w.done
	})
	return err
}

func (w *Watcher[T]) loop() {
	defer close(w.done)

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-w.quit:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("Config file touched", "op", ev.Op.String())
			settle.Reset(w.debounce)

		case <-settle.C:
			w.logger.Info("Reloading config", "path", w.path)
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watch error", "error", err)
		}
	}
}

// relevant reports whether ev may have produced new content at w.path.
// Remove and Rename alone leave nothing to read; a replacing Create follows.
func (w *Watcher[T]) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)
}

func (w *Watcher[T]) reload() {
	value, err := w.load(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous config", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	handlers := make([]func(T), len(w.handlers))
	for i, h := range w.handlers {
		handlers[i] = h.fn
	}
	w.mu.Unlock()

	for _, fn := range handlers {
		fn(value)
	}
}
