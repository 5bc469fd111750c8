// Package monitoring - metrics.go exports Prometheus metrics.
//
// DESIGN: Each MetricsCollector owns its registry, so several gateways (and
// tests) can run in one process without duplicate-registration panics.
//
// Metrics:
//   - contextualizer_requests_total{status}          - HTTP requests by outcome
//   - contextualizer_request_duration_seconds         - HTTP latency
//   - contextualizer_runs_total{result}               - pipeline invocations
//   - contextualizer_pipeline_duration_seconds        - time inside the pipeline
//   - contextualizer_compression_ratio                - packed/total token ratio
//   - contextualizer_clusters_total{outcome}          - packed vs dropped clusters
//   - contextualizer_audit_failures_total             - dropped or failed ledger writes
//   - contextualizer_stats_cache_total{result}        - usage report cache hits/misses
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "contextualizer"

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  prometheus.Histogram
	runs             *prometheus.CounterVec
	pipelineDuration prometheus.Histogram
	compressionRatio prometheus.Histogram
	clusters         *prometheus.CounterVec
	auditFailures    prometheus.Counter
	statsCache       *prometheus.CounterVec
}

// NewMetricsCollector creates a collector backed by a fresh registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "HTTP requests handled, by outcome.",
		}, []string{"status"}), // "success" or "error"
		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Pipeline invocations, by result.",
		}, []string{"result"}), // "ok" or "failed"
		pipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time spent inside the contextualization pipeline.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		compressionRatio: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "compression_ratio",
			Help:      "Packed tokens over total cluster tokens.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		clusters: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "clusters_total",
			Help:      "Clusters produced, by packing outcome.",
		}, []string{"outcome"}), // "packed" or "dropped"
		auditFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "audit_failures_total",
			Help:      "Audit ledger writes that failed or were dropped.",
		}),
		statsCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stats_cache_total",
			Help:      "Usage report cache lookups, by result.",
		}, []string{"result"}), // "hit" or "miss"
	}
}

// RecordRequest records an HTTP request.
func (mc *MetricsCollector) RecordRequest(success bool, latency time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	mc.requests.WithLabelValues(status).Inc()
	mc.requestDuration.Observe(latency.Seconds())
}

// RecordRun records one pipeline invocation.
func (mc *MetricsCollector) RecordRun(packed, dropped int, ratio float64, elapsed time.Duration) {
	mc.runs.WithLabelValues("ok").Inc()
	mc.pipelineDuration.Observe(elapsed.Seconds())
	mc.compressionRatio.Observe(ratio)
	mc.clusters.WithLabelValues("packed").Add(float64(packed))
	mc.clusters.WithLabelValues("dropped").Add(float64(dropped))
}

// RecordRunFailure records a pipeline invocation that returned an error.
func (mc *MetricsCollector) RecordRunFailure() {
	mc.runs.WithLabelValues("failed").Inc()
}

// RecordAuditFailure records a failed or dropped ledger write.
func (mc *MetricsCollector) RecordAuditFailure() { mc.auditFailures.Inc() }

// RecordCacheHit records a usage report cache hit.
func (mc *MetricsCollector) RecordCacheHit() { mc.statsCache.WithLabelValues("hit").Inc() }

// RecordCacheMiss records a usage report cache miss.
func (mc *MetricsCollector) RecordCacheMiss() { mc.statsCache.WithLabelValues("miss").Inc() }

// Registry exposes the underlying registry.
func (mc *MetricsCollector) Registry() *prometheus.Registry { return mc.registry }

// Handler serves the registry in the Prometheus exposition format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}
