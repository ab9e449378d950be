package process

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sky22333/svcmgr/internal/logging"
)

const (
	defaultBatchSize     = 20
	defaultFlushInterval = 50 * time.Millisecond
	maxLineSize          = 1 << 20
)

// pump reads one output stream line by line and forwards batches to a sink.
// A batch is flushed when it holds batchSize entries or flushInterval after
// its first entry, whichever comes first.
type pump struct {
	source        Source
	sink          LogSink
	parser        LogParser
	logger        logging.Logger
	outputLogger  logging.Logger
	batchSize     int
	flushInterval time.Duration

	mu    sync.Mutex
	batch []LogEntry
	timer *time.Timer

	cancelled atomic.Bool
	done      chan struct{}
}

func newPump(source Source, sink LogSink, parser LogParser, logger, outputLogger logging.Logger, batchSize int, flushInterval time.Duration) *pump {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	if parser == nil {
		parser = DefaultLogParser
	}
	return &pump{
		source:        source,
		sink:          sink,
		parser:        parser,
		logger:        logger,
		outputLogger:  outputLogger,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		batch:         make([]LogEntry, 0, batchSize),
		done:          make(chan struct{}),
	}
}

// run reads until EOF, a read error or cancellation. It always flushes what
// it has read before returning.
func (p *pump) run(r io.Reader) {
	defer close(p.done)
	defer p.flush()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		level, msg := p.parser(p.source, line)
		p.add(LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   msg,
			Source:    p.source,
		})
		if p.outputLogger != nil {
			logAtLevel(p.outputLogger, level, msg, "source", string(p.source))
		}
	}

	err := scanner.Err()
	if err == nil || p.cancelled.Load() {
		return
	}

	switch {
	case errors.Is(err, bufio.ErrTooLong):
		p.report(LevelError, "Output line exceeds maximum length, stream reader stopped", err)
	case errors.Is(err, os.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		p.report(LevelWarn, "Output stream interrupted", err)
	default:
		p.report(LevelError, "Error reading output", err)
	}
}

// cancel marks the pump as cancelled so a subsequent read error is silent.
func (p *pump) cancel() {
	p.cancelled.Store(true)
}

func (p *pump) add(entry LogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.batch = append(p.batch, entry)
	if len(p.batch) >= p.batchSize {
		p.flushLocked()
		return
	}
	if p.timer == nil {
		p.timer = time.AfterFunc(p.flushInterval, p.flush)
	}
}

func (p *pump) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushLocked()
}

// flushLocked emits while holding the lock so batches from the timer and
// from the reader can never be reordered.
func (p *pump) flushLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if len(p.batch) == 0 {
		return
	}
	entries := p.batch
	p.batch = make([]LogEntry, 0, p.batchSize)
	p.sink.Emit(entries)
}

func (p *pump) report(level Level, msg string, err error) {
	logAtLevel(p.logger, level, msg, "source", string(p.source), "error", err)
	p.add(LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg + " (" + string(p.source) + "): " + err.Error(),
		Source:    SourceSystem,
	})
}

func logAtLevel(logger logging.Logger, level Level, msg string, args ...any) {
	switch level {
	case LevelError:
		logger.Error(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelDebug:
		logger.Debug(msg, args...)
	default:
		logger.Info(msg, args...)
	}
}
