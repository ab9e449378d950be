// Package metrics provides Prometheus metrics for the supervisor and the
// process it runs.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "svcmgr"

// Statuses reported by the status gauge.
var statuses = []string{"stopped", "starting", "running", "stopping", "error"}

var (
	processStarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "starts_total",
		Help:      "Successful process launches",
	})

	processStartFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "start_failures_total",
		Help:      "Launch attempts that did not produce a process",
	}, []string{"reason"})

	processExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "exits_total",
		Help:      "Process exits by exit code",
	}, []string{"exit_code"})

	processRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "running",
		Help:      "1 while the supervised process is alive",
	})

	processStartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "start_time_seconds",
		Help:      "Unix time the current process was started, 0 when stopped",
	})

	restarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "restarts_total",
		Help:      "Automatic restarts scheduled after an unplanned exit",
	})

	restartLimitReached = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "restart_limit_reached_total",
		Help:      "Times the restart budget was exhausted",
	})

	status = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "status",
		Help:      "Current supervisor status, 1 for the active status",
	}, []string{"status"})

	outputLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "output",
		Name:      "lines_total",
		Help:      "Log entries recorded by source and level",
	}, []string{"source", "level"})

	droppedOnce sync.Once
)

// RecordStart counts a successful launch and marks the process running.
func RecordStart(startUnix float64) {
	processStarts.Inc()
	processRunning.Set(1)
	processStartTime.Set(startUnix)
}

// RecordStartFailure counts a launch that failed before a process existed.
func RecordStartFailure(reason string) {
	processStartFailures.WithLabelValues(reason).Inc()
}

// RecordExit counts an exit. A nil code is recorded as "unknown".
func RecordExit(code *int) {
	label := "unknown"
	if code != nil {
		label = strconv.Itoa(*code)
	}
	processExits.WithLabelValues(label).Inc()
	processRunning.Set(0)
	processStartTime.Set(0)
}

// RecordRestart counts a scheduled automatic restart.
func RecordRestart() {
	restarts.Inc()
}

// RecordRestartLimitReached counts an exhausted restart budget.
func RecordRestartLimitReached() {
	restartLimitReached.Inc()
}

// SetStatus marks current as the only active status.
func SetStatus(current string) {
	for _, s := range statuses {
		v := 0.0
		if s == current {
			v = 1
		}
		status.WithLabelValues(s).Set(v)
	}
}

// RecordLogEntry counts one log entry.
func RecordLogEntry(source, level string) {
	outputLines.WithLabelValues(source, level).Inc()
}

// RegisterDroppedEvents exposes a counter read from fn, typically the event
// bus drop count. Only the first call registers.
func RegisterDroppedEvents(fn func() uint64) {
	droppedOnce.Do(func() {
		promauto.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events discarded by slow channel subscribers",
		}, func() float64 { return float64(fn()) })
	})
}
