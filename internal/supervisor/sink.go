package supervisor

import (
	"sync"

	"github.com/sky22333/svcmgr/internal/events"
	"github.com/sky22333/svcmgr/internal/logging"
	"github.com/sky22333/svcmgr/internal/metrics"
	"github.com/sky22333/svcmgr/internal/process"
)

const defaultHistorySize = 1000

// logSink numbers entries, keeps a bounded history and publishes each batch.
// It never blocks: the history overwrites its oldest entries and the bus
// queues per subscriber.
type logSink struct {
	bus     *events.Bus
	history *logging.RingBuffer[process.LogEntry]

	mu  sync.Mutex
	seq uint64
}

func newLogSink(bus *events.Bus, historySize int) *logSink {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &logSink{
		bus:     bus,
		history: logging.NewRingBuffer[process.LogEntry](historySize),
	}
}

// Emit implements process.LogSink.
func (s *logSink) Emit(entries []process.LogEntry) {
	if len(entries) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.seq + 1
	s.seq += uint64(len(entries))
	s.history.Write(entries...)
	for _, e := range entries {
		metrics.RecordLogEntry(string(e.Source), string(e.Level))
	}
	s.bus.Publish(events.LogBatchEvent{FirstSeq: first, Entries: entries})
}

func (s *logSink) recent(n int) []process.LogEntry {
	if n <= 0 {
		return s.history.ReadAll()
	}
	return s.history.Last(n)
}
