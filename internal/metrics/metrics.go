// Package metrics collects Prometheus counters for a fetch session.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for FilesTotal.
const (
	OutcomeStored        = "stored"
	OutcomeSkippedRemote = "skipped_remote"
	OutcomeSkippedName   = "skipped_name"
	OutcomeFailed        = "failed"
)

// Metrics holds the session collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	FilesTotal      *prometheus.CounterVec
	BytesDownloaded prometheus.Counter
	BytesUploaded   prometheus.Counter
	InProgress      prometheus.Gauge
	Duration        prometheus.Histogram
}

// New creates and registers the collectors on a private registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Archive links processed, by outcome.",
		}, []string{"outcome"}),
		BytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes written to the download directory.",
		}),
		BytesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes written to object storage.",
		}),
		InProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_progress",
			Help:      "Links currently being processed.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent processing one link.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	m.registry.MustRegister(m.FilesTotal, m.BytesDownloaded, m.BytesUploaded, m.InProgress, m.Duration)
	return m
}

// Registry returns the registry holding the session collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// File records the outcome of one link.
func (m *Metrics) File(outcome string) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(outcome).Inc()
}

// Downloaded adds n downloaded bytes.
func (m *Metrics) Downloaded(n int64) {
	if m == nil {
		return
	}
	m.BytesDownloaded.Add(float64(n))
}

// Uploaded adds n uploaded bytes.
func (m *Metrics) Uploaded(n int64) {
	if m == nil {
		return
	}
	m.BytesUploaded.Add(float64(n))
}

// Start marks a link as in progress and returns a func that ends it.
func (m *Metrics) Start() func() {
	if m == nil {
		return func() {}
	}
	m.InProgress.Inc()
	timer := prometheus.NewTimer(m.Duration)
	return func() {
		timer.ObserveDuration()
		m.InProgress.Dec()
	}
}

// WriteFile writes the current values in the Prometheus text format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
