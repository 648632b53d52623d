// Package prompush implements a metrics backend that accumulates observations
// in a private Prometheus registry and pushes them to a Pushgateway on Flush.
//
// Batch runs are short-lived jobs, so a scrape endpoint would usually be gone
// before Prometheus looks at it; pushing at the end (and periodically, if the
// caller flushes) is the conventional shape for that.
package prompush

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"chatextract/internal/metrics"
)

// Options configures the backend.
type Options struct {
	// URL is the Pushgateway base URL, e.g. "http://pushgateway:9091".
	URL string

	// Job is the Pushgateway job label. Defaults to "chatextract".
	Job string

	// Grouping adds extra grouping labels (e.g. run_id).
	Grouping map[string]string

	// Client overrides the HTTP client used for pushes.
	Client *http.Client

	// Timeout bounds each push. Defaults to 10s.
	Timeout time.Duration
}

var counterLabels = map[string][]string{
	metrics.PagesTotal:        {"status"},
	metrics.TurnsTotal:        {"role"},
	metrics.DroppedTurnsTotal: nil,
	metrics.HTTPRequestsTotal: {"status"},
	metrics.HTTPErrorsTotal:   {"status"},
}

var histogramBuckets = map[string][]float64{
	metrics.ExtractDurationSeconds:  prometheus.ExponentialBuckets(0.005, 2, 12),
	metrics.HTTPRequestDurationSecs: prometheus.DefBuckets,
	metrics.HTTPDownloadBytes:       prometheus.ExponentialBuckets(1024, 4, 10),
}

// Backend implements metrics.Backend on top of client_golang.
type Backend struct {
	pusher  *push.Pusher
	timeout time.Duration

	// Read-only after New.
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// New builds a Backend with every chatextract metric registered up front.
func New(opts Options) (*Backend, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("prompush: pushgateway URL is required")
	}
	job := opts.Job
	if job == "" {
		job = "chatextract"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	reg := prometheus.NewRegistry()
	b := &Backend{
		timeout:    timeout,
		counters:   make(map[string]*prometheus.CounterVec, len(counterLabels)),
		histograms: make(map[string]*prometheus.HistogramVec, len(histogramBuckets)),
	}
	for name, labels := range counterLabels {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help(name)}, labels)
		if err := reg.Register(cv); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
		b.counters[name] = cv
	}
	for name, buckets := range histogramBuckets {
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help(name), Buckets: buckets}, []string{"status"})
		if err := reg.Register(hv); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
		b.histograms[name] = hv
	}

	p := push.New(opts.URL, job).Gatherer(reg)
	for k, v := range opts.Grouping {
		p = p.Grouping(k, v)
	}
	if opts.Client != nil {
		p = p.Client(opts.Client)
	}
	b.pusher = p
	return b, nil
}

func help(name string) string {
	switch name {
	case metrics.PagesTotal:
		return "Pages processed, by outcome."
	case metrics.TurnsTotal:
		return "Turns extracted, by role."
	case metrics.DroppedTurnsTotal:
		return "Containers dropped because their text normalized to empty."
	case metrics.ExtractDurationSeconds:
		return "Time spent loading and extracting one page."
	case metrics.HTTPRequestsTotal:
		return "HTTP fetches, by status."
	case metrics.HTTPErrorsTotal:
		return "Failed HTTP fetches, by status."
	case metrics.HTTPRequestDurationSecs:
		return "HTTP fetch latency."
	case metrics.HTTPDownloadBytes:
		return "HTTP response body size."
	}
	return name
}

func values(labelNames []string, labels metrics.Labels) []string {
	out := make([]string, len(labelNames))
	for i, n := range labelNames {
		out[i] = labels[n]
	}
	return out
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	cv, ok := b.counters[name]
	if !ok {
		return
	}
	cv.WithLabelValues(values(counterLabels[name], labels)...).Add(delta)
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	hv, ok := b.histograms[name]
	if !ok {
		return
	}
	hv.WithLabelValues(labels["status"]).Observe(value)
}

// Flush pushes the full registry, replacing the group on the gateway.
func (b *Backend) Flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

var _ metrics.Backend = (*Backend)(nil)
