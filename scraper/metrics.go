package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawl.
type Metrics struct {
	Registry              *prometheus.Registry
	FetchAttemptsTotal    *prometheus.CounterVec
	FetchDuration         prometheus.Histogram
	ProductsDiscovered    prometheus.Counter
	RecordsExtractedTotal prometheus.Counter
	RetriesTotal          prometheus.Counter
	FailuresTotal         *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookharvest_fetch_attempts_total",
			Help: "Fetch attempts issued by the worker pool.",
		},
		[]string{"phase"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookharvest_fetch_duration_seconds",
			Help:    "Latency of individual fetch attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)
	discovered := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookharvest_products_discovered_total",
			Help: "Product URLs found during the listing walk.",
		},
	)
	extracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookharvest_records_extracted_total",
			Help: "Records successfully extracted and handed to the collector.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookharvest_retries_total",
			Help: "Retry waits scheduled by the backoff policy.",
		},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookharvest_failures_total",
			Help: "Fetch and parse failures by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(attempts, fetchDuration, discovered, extracted, retries, failures)

	return &Metrics{
		Registry:              registry,
		FetchAttemptsTotal:    attempts,
		FetchDuration:         fetchDuration,
		ProductsDiscovered:    discovered,
		RecordsExtractedTotal: extracted,
		RetriesTotal:          retries,
		FailuresTotal:         failures,
	}
}

// IncAttempt increments the fetch attempts counter.
func (m *Metrics) IncAttempt(phase string) {
	if m == nil {
		return
	}
	m.FetchAttemptsTotal.WithLabelValues(phase).Inc()
}

// ObserveFetchDuration records the latency of one fetch attempt.
func (m *Metrics) ObserveFetchDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// AddDiscovered adds to the discovered products counter.
func (m *Metrics) AddDiscovered(n int) {
	if m == nil {
		return
	}
	m.ProductsDiscovered.Add(float64(n))
}

// IncRecords increments the extracted records counter.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsExtractedTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncFailure increments the failures counter for a type label.
func (m *Metrics) IncFailure(errorType string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(errorType).Inc()
}
