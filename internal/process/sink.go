package process

// LogSink receives batches of log entries from the controller and its pumps.
// Emit is called from pump goroutines and must not block.
type LogSink interface {
	Emit(entries []LogEntry)
}

// LogSinkFunc adapts a function to LogSink.
type LogSinkFunc func(entries []LogEntry)

// Emit implements LogSink.
func (f LogSinkFunc) Emit(entries []LogEntry) { f(entries) }

// StateObserver receives every RunState the controller publishes, in order.
type StateObserver interface {
	OnRunState(state RunState)
}

// StateObserverFunc adapts a function to StateObserver.
type StateObserverFunc func(state RunState)

// OnRunState implements StateObserver.
func (f StateObserverFunc) OnRunState(state RunState) { f(state) }

// LogParser classifies one output line. It returns the level and the message
// to record. Used to extract structured levels from tools that prefix their
// output with a severity.
type LogParser func(source Source, line string) (Level, string)

// DefaultLogParser maps stdout to INFO and stderr to ERROR.
func DefaultLogParser(source Source, line string) (Level, string) {
	if source == SourceStderr {
		return LevelError, line
	}
	return LevelInfo, line
}

type discardSink struct{}

func (discardSink) Emit([]LogEntry) {}

type discardObserver struct{}

func (discardObserver) OnRunState(RunState) {}
