// Package collectors exports resource usage of the supervised process.
package collectors

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ErrNoProcess is returned by a PID function when nothing is running.
var ErrNoProcess = errors.New("no process running")

// Namespace prefixes the child process metrics, e.g.
// svcmgr_child_process_cpu_seconds_total.
const Namespace = "svcmgr_child"

// NewChildCollector returns a collector reporting CPU, memory and file
// descriptor usage of the process returned by pidFn. Scrapes taken while no
// process runs simply omit the metrics.
func NewChildCollector(pidFn func() (int, error)) prometheus.Collector {
	return collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
		PidFn:     pidFn,
		Namespace: Namespace,
	})
}

// RegisterChild registers the child collector with reg. Registering twice
// is not an error.
func RegisterChild(reg prometheus.Registerer, pidFn func() (int, error)) error {
	err := reg.Register(NewChildCollector(pidFn))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}
