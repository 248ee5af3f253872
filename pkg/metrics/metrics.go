// Package metrics provides Prometheus metrics for extraction runs.
//
// # Overview
//
// All metrics are registered with the default registry through promauto and
// labelled by source adapter (and sink, for write latency). A Collector binds
// the labels of one adapter so the orchestrator can record without repeating
// them.
//
// # Basic Usage
//
//	collector := metrics.NewCollector("postgresql", "file")
//	timer := metrics.NewTimer("fetch")
//	page, err := adapter.FetchPage(ctx, c)
//	collector.ObserveFetch(timer.Stop(), page.Len())
//
// # Metric Types
//
// Counter: runs, pages, empty pages, and records
// Gauge: active backend connections
// Histogram: run duration, fetch latency, and sink write latency
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts completed runs by outcome.
	// Labels: source, status (succeeded/failed)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_extract_runs_total",
			Help: "Total number of extraction runs by outcome",
		},
		[]string{"source", "status"},
	)

	// PagesTotal counts pages fetched.
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_extract_pages_total",
			Help: "Total number of pages fetched",
		},
		[]string{"source"},
	)

	// EmptyPagesTotal counts pages with zero records that did not end the scan.
	EmptyPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_extract_empty_pages_total",
			Help: "Total number of empty, non-exhausted pages fetched",
		},
		[]string{"source"},
	)

	// RecordsTotal counts records handed to the sink.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_extract_records_total",
			Help: "Total number of records written to sinks",
		},
		[]string{"source"},
	)

	// RunDuration tracks the wall time of whole runs.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nebula_extract_run_duration_seconds",
			Help:    "Duration of extraction runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10), // 100ms .. ~7h
		},
		[]string{"source"},
	)

	// FetchLatency tracks the latency of single page fetches.
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nebula_extract_fetch_latency_seconds",
			Help:    "Latency of page fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// SinkLatency tracks the latency of single page writes.
	SinkLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nebula_extract_sink_latency_seconds",
			Help:    "Latency of sink writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	// ActiveConnections tracks open backend sessions.
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nebula_extract_active_connections",
			Help: "Number of open source adapter connections",
		},
		[]string{"source"},
	)
)

// Collector records metrics for one source adapter and sink pair.
type Collector struct {
	source string
	sink   string
}

// NewCollector creates a collector bound to the given source and sink names.
func NewCollector(source, sink string) *Collector {
	return &Collector{source: source, sink: sink}
}

// Source returns the bound source label.
func (c *Collector) Source() string { return c.source }

// Connected records an opened backend session.
func (c *Collector) Connected() {
	ActiveConnections.WithLabelValues(c.source).Inc()
}

// Disconnected records a released backend session.
func (c *Collector) Disconnected() {
	ActiveConnections.WithLabelValues(c.source).Dec()
}

// ObserveFetch records one page fetch.
func (c *Collector) ObserveFetch(d time.Duration, records int, exhausted bool) {
	FetchLatency.WithLabelValues(c.source).Observe(d.Seconds())
	PagesTotal.WithLabelValues(c.source).Inc()
	if records == 0 && !exhausted {
		EmptyPagesTotal.WithLabelValues(c.source).Inc()
	}
}

// ObserveWrite records one sink write.
func (c *Collector) ObserveWrite(d time.Duration, records int) {
	SinkLatency.WithLabelValues(c.sink).Observe(d.Seconds())
	RecordsTotal.WithLabelValues(c.source).Add(float64(records))
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(status string, d time.Duration) {
	RunsTotal.WithLabelValues(c.source, status).Inc()
	RunDuration.WithLabelValues(c.source).Observe(d.Seconds())
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with.
func (t *Timer) Name() string { return t.name }

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
