// Package metrics is a small process-wide facade over a pluggable metrics
// backend. The default backend discards everything, so library code can
// record unconditionally and commands decide whether anything is shipped.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names. Backends translate them to their own naming conventions.
const (
	PagesTotal              = "chatextract_pages_total"
	TurnsTotal              = "chatextract_turns_total"
	DroppedTurnsTotal       = "chatextract_dropped_turns_total"
	ExtractDurationSeconds  = "chatextract_extract_duration_seconds"
	HTTPRequestsTotal       = "chatextract_http_requests_total"
	HTTPErrorsTotal         = "chatextract_http_errors_total"
	HTTPRequestDurationSecs = "chatextract_http_request_duration_seconds"
	HTTPDownloadBytes       = "chatextract_http_download_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b process-wide. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend.
func Flush() error {
	return current().Flush()
}

// RecordPage records one page outcome ("ok", "no_containers", "empty",
// "challenge", "load_error", "skipped") and how long extraction took.
func RecordPage(status string, took time.Duration) {
	b := current()
	b.IncCounter(PagesTotal, 1, Labels{"status": status})
	if took > 0 {
		b.ObserveHistogram(ExtractDurationSeconds, took.Seconds(), Labels{"status": status})
	}
}

// RecordTurns records kept turns by role and dropped (empty) turns.
func RecordTurns(byRole map[string]int, dropped int) {
	b := current()
	for role, n := range byRole {
		b.IncCounter(TurnsTotal, float64(n), Labels{"role": role})
	}
	b.IncCounter(DroppedTurnsTotal, float64(dropped), nil)
}

// RecordHTTP records one HTTP fetch.
func RecordHTTP(status string, took time.Duration, bytes int, failed bool) {
	b := current()
	l := Labels{"status": status}
	b.IncCounter(HTTPRequestsTotal, 1, l)
	if failed {
		b.IncCounter(HTTPErrorsTotal, 1, l)
	}
	b.ObserveHistogram(HTTPRequestDurationSecs, took.Seconds(), l)
	if bytes > 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(bytes), l)
	}
}
