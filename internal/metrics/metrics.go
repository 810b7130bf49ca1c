// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the join-and-load engine.
//
// The package exposes a narrow interface (Backend) focused on counters and
// timing data. A global, pluggable backend defaults to a no-op implementation,
// so metrics are always safe to call even when no real backend is configured.
// Concrete metric systems (Prometheus Pushgateway, Datadog) live in
// subpackages so the engine depends only on this package.
package metrics

import "time"

// Metric names emitted by the engine.
const (
	StepTotal           = "meshjoin_step_total"
	StepDurationSeconds = "meshjoin_step_duration_seconds"
	RecordsTotal        = "meshjoin_records_total"
	BatchesTotal        = "meshjoin_batches_total"
	RefreshesTotal      = "meshjoin_partition_refreshes_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures latency and success/failure of one engine step
// ("segment", "time_dimension", "flush").
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow increments a record-level counter for the given job and kind.
//
// Kinds used by the engine:
//   - "read"       transactions pulled from the source
//   - "resolved"   transactions joined with both dimensions
//   - "skipped"    transactions dropped on an unresolved join
//   - "suppressed" facts withheld by the duplicate policy
//   - "inserted"   fact rows written to the warehouse
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches increments a batch-level counter for the given job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{
		"job": job,
	})
}

// RecordRefresh counts one partition rotation of the named dimension buffer.
func RecordRefresh(job, dimension string) {
	backend.IncCounter(RefreshesTotal, 1, Labels{
		"job":       job,
		"dimension": dimension,
	})
}
