// internal/utils/metrics.go
package utils

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "lecture_companion"

// MetricsCollector owns a prometheus registry and the application's instruments.
// All methods are safe for concurrent use.
type MetricsCollector struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	llmRequests   *prometheus.CounterVec
	llmDuration   *prometheus.HistogramVec
	llmTokens     *prometheus.CounterVec
	alignmentRuns *prometheus.CounterVec
	alignSegments prometheus.Histogram
	droppedLinks  prometheus.Counter
	jobsActive    *prometheus.GaugeVec
	jobsFinished  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the process-wide collector.
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector(true)
	})
	return globalMetrics
}

// NewMetricsCollector builds a collector on a fresh registry. Tests pass
// withRuntime=false to keep the registry small.
func NewMetricsCollector(withRuntime bool) *MetricsCollector {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &MetricsCollector{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "llm_requests_total",
			Help:      "Model completions by provider and outcome.",
		}, []string{"provider", "outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Model completion latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"provider"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by the provider.",
		}, []string{"provider", "model"}),
		alignmentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alignment_runs_total",
			Help:      "Alignment requests by outcome.",
		}, []string{"outcome"}),
		alignSegments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "alignment_segments",
			Help:      "Segments per alignment request.",
			Buckets:   prometheus.LinearBuckets(5, 5, 8),
		}),
		droppedLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alignment_segments_unmatched_total",
			Help:      "Segments that received no usable record from the model.",
		}),
		jobsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_active",
			Help:      "Background jobs currently running.",
		}, []string{"kind"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_finished_total",
			Help:      "Background jobs by kind and final status.",
		}, []string{"kind", "status"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "errors_total",
			Help:      "Errors by type and component.",
		}, []string{"type", "component"}),
	}

	reg.MustRegister(
		m.httpRequests, m.httpDuration,
		m.llmRequests, m.llmDuration, m.llmTokens,
		m.alignmentRuns, m.alignSegments, m.droppedLinks,
		m.jobsActive, m.jobsFinished, m.errorsTotal,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordAPIRequest records one HTTP request.
func (m *MetricsCollector) RecordAPIRequest(route, method string, statusCode int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(statusCode)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordLLMRequest records one completion call.
func (m *MetricsCollector) RecordLLMRequest(provider, model string, tokensUsed int, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.llmRequests.WithLabelValues(provider, outcome).Inc()
	m.llmDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if tokensUsed > 0 {
		m.llmTokens.WithLabelValues(provider, model).Add(float64(tokensUsed))
	}
}

// RecordAlignment records an alignment run. unmatched counts segments the
// model response did not cover.
func (m *MetricsCollector) RecordAlignment(outcome string, segments, unmatched int) {
	m.alignmentRuns.WithLabelValues(outcome).Inc()
	if segments > 0 {
		m.alignSegments.Observe(float64(segments))
	}
	if unmatched > 0 {
		m.droppedLinks.Add(float64(unmatched))
	}
}

// JobStarted and JobFinished track background job lifecycles.
func (m *MetricsCollector) JobStarted(kind string) {
	m.jobsActive.WithLabelValues(kind).Inc()
}

func (m *MetricsCollector) JobFinished(kind, status string) {
	m.jobsActive.WithLabelValues(kind).Dec()
	m.jobsFinished.WithLabelValues(kind, status).Inc()
}

// RecordError counts an error by type and component.
func (m *MetricsCollector) RecordError(errorType, component string) {
	m.errorsTotal.WithLabelValues(errorType, component).Inc()
}
