// Package metrics is the backend-neutral metrics surface used by jobs,
// sources, and exporters. Backends (Datadog) live in subpackages; the default
// backend discards everything.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are metric dimensions such as
// {"job": "TR_Real", "segment": "FINANCIERO", "status": "ok"}.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names emitted by this module.
const (
	JobTotal           = "pbietl_job_runs_total"
	JobDurationSeconds = "pbietl_job_duration_seconds"

	SegmentTotal           = "pbietl_segment_runs_total"
	SegmentDurationSeconds = "pbietl_segment_duration_seconds"
	SegmentFailedSteps     = "pbietl_segment_failed_steps_total"

	RowsTotal = "pbietl_rows_total"

	HTTPRequestsTotal          = "pbietl_http_requests_total"
	HTTPErrorsTotal            = "pbietl_http_errors_total"
	HTTPRequestDurationSeconds = "pbietl_http_request_duration_seconds"
	HTTPDownloadBytes          = "pbietl_http_download_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend and returns the previous
// one. A nil b restores the no-op backend.
func SetBackend(b Backend) Backend {
	mu.Lock()
	defer mu.Unlock()
	prev := backend
	if b == nil {
		b = nopBackend{}
	}
	backend = b
	return prev
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter on the current backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the current backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the current backend.
func Flush() error {
	return current().Flush()
}

// RecordJob records the outcome and duration of one job run of segment.
func RecordJob(job, segment, status string, d time.Duration) {
	l := Labels{"job": job, "segment": segment, "status": status}
	IncCounter(JobTotal, 1, l)
	ObserveHistogram(JobDurationSeconds, d.Seconds(), l)
}

// RecordSegment records one orchestrated segment run and how many of its
// steps failed.
func RecordSegment(segment, status string, d time.Duration, failed int) {
	l := Labels{"segment": segment, "status": status}
	IncCounter(SegmentTotal, 1, l)
	ObserveHistogram(SegmentDurationSeconds, d.Seconds(), l)
	if failed > 0 {
		IncCounter(SegmentFailedSteps, float64(failed), Labels{"segment": segment})
	}
}

// RecordRows counts rows of one table by kind ("read", "written").
func RecordRows(kind, table string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RowsTotal, float64(n), Labels{"kind": kind, "table": table})
}

// RecordHTTP records one HTTP request. status 0 means no response arrived
// (dial error, timeout); downloaded < 0 means the size is unknown.
func RecordHTTP(status int, err error, d time.Duration, downloaded int64) {
	l := Labels{"status": "error"}
	if status > 0 {
		l["status"] = strconv.Itoa(status)
	}
	IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status < 200 || status >= 300 {
		IncCounter(HTTPErrorsTotal, 1, l)
	}
	ObserveHistogram(HTTPRequestDurationSeconds, d.Seconds(), l)
	if downloaded >= 0 {
		ObserveHistogram(HTTPDownloadBytes, float64(downloaded), l)
	}
}
