package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zombar/promptscore/internal/cache"
	"github.com/zombar/promptscore/internal/models"
	"github.com/zombar/promptscore/internal/tracing"
)

// BusinessMetrics tracks scoring, optimization and job activity.
// A nil *BusinessMetrics is valid and records nothing.
type BusinessMetrics struct {
	reg prometheus.Registerer

	OperationsTotal   *prometheus.CounterVec
	OverallScore      *prometheus.HistogramVec
	IntentViolations  *prometheus.CounterVec
	LLMFallbacksTotal *prometheus.CounterVec
	TasksTotal        *prometheus.CounterVec
	TaskDuration      *prometheus.HistogramVec
	CacheSweptTotal   prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewBusinessMetrics registers the service metrics on the default registry
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	return NewBusinessMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewBusinessMetricsWith registers the service metrics on reg
func NewBusinessMetricsWith(namespace string, reg prometheus.Registerer) *BusinessMetrics {
	f := promauto.With(reg)

	return &BusinessMetrics{
		reg: reg,
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Scoring operations by operation, media type and outcome",
		}, []string{"operation", "media_type", "status"}),
		OverallScore: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "overall_score",
			Help:      "Distribution of overall quality scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}, []string{"operation", "media_type"}),
		IntentViolations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_violations_total",
			Help:      "Optimized prompts that added unsolicited details",
		}, []string{"operation"}),
		LLMFallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_fallbacks_total",
			Help:      "LLM calls that failed and fell back to rule-based behaviour",
		}, []string{"provider", "operation"}),
		TasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Background tasks by type and outcome",
		}, []string{"task_type", "status"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Background task processing time",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"task_type"}),
		CacheSweptTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_swept_entries_total",
			Help:      "Expired cache entries removed by the sweeper",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path and status",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// ObserveScore records a completed scoring operation
func (m *BusinessMetrics) ObserveScore(ctx context.Context, operation string, mediaType models.MediaType, score models.QualityScore) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, string(mediaType), "success").Inc()
	m.observeWithExemplar(ctx, m.OverallScore.WithLabelValues(operation, string(mediaType)), float64(score.Overall))
	if score.IntentPreservation < 100 {
		m.IntentViolations.WithLabelValues(operation).Inc()
	}
}

// ObserveIntent records a standalone intent check
func (m *BusinessMetrics) ObserveIntent(operation string, result models.IntentResult) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, "", "success").Inc()
	if !result.Preserved {
		m.IntentViolations.WithLabelValues(operation).Inc()
	}
}

// ObserveFailure records a failed operation
func (m *BusinessMetrics) ObserveFailure(operation string, mediaType models.MediaType) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, string(mediaType), "error").Inc()
}

// RecordFallback records an LLM failure that was served by the rules instead
func (m *BusinessMetrics) RecordFallback(provider, operation string) {
	if m == nil {
		return
	}
	m.LLMFallbacksTotal.WithLabelValues(provider, operation).Inc()
}

// RecordTask records a finished background task
func (m *BusinessMetrics) RecordTask(ctx context.Context, taskType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(taskType, status).Inc()
	m.observeWithExemplar(ctx, m.TaskDuration.WithLabelValues(taskType), d.Seconds())
}

// RecordSweep records entries removed by one sweeper pass
func (m *BusinessMetrics) RecordSweep(removed int) {
	if m == nil {
		return
	}
	m.CacheSweptTotal.Add(float64(removed))
}

// StatsSource is anything that reports cache statistics
type StatsSource interface {
	Stats(ctx context.Context) cache.Stats
}

// RegisterCache exposes size, hit and miss counts of a cache
func (m *BusinessMetrics) RegisterCache(namespace string, src StatsSource) {
	if m == nil {
		return
	}
	m.reg.MustRegister(newCacheCollector(namespace, src))
}

// cacheCollector reads Stats once per scrape. Size on the Redis backend is a
// SCAN, so the three series must share one call.
type cacheCollector struct {
	src     StatsSource
	entries *prometheus.Desc
	hits    *prometheus.Desc
	misses  *prometheus.Desc
}

func newCacheCollector(namespace string, src StatsSource) *cacheCollector {
	labels := prometheus.Labels{"cache": src.Stats(context.Background()).Name}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, labels)
	}
	return &cacheCollector{
		src:     src,
		entries: desc("cache_entries", "Entries currently stored in the cache"),
		hits:    desc("cache_hits_total", "Cache lookups that found a live entry"),
		misses:  desc("cache_misses_total", "Cache lookups that found nothing or an expired entry"),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.hits
	ch <- c.misses
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.src.Stats(context.Background())
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(stats.Size))
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses))
}

// HTTPMiddleware counts requests and records their latency
func (m *BusinessMetrics) HTTPMiddleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := routeLabel(r.URL.Path)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// observeWithExemplar links the observation to the current trace when one exists
func (m *BusinessMetrics) observeWithExemplar(ctx context.Context, o prometheus.Observer, v float64) {
	traceID := tracing.TraceIDFromContext(ctx)
	if eo, ok := o.(prometheus.ExemplarObserver); ok && traceID != "" {
		eo.ObserveWithExemplar(v, prometheus.Labels{"trace_id": traceID})
		return
	}
	o.Observe(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// routes are the paths served by the API. Anything else is labelled "other"
// so scanners cannot grow the series count.
var routes = map[string]bool{
	"/metrics":                true,
	"/health":                 true,
	"/api/analyze":            true,
	"/api/intent":             true,
	"/api/score":              true,
	"/api/optimize/quick":     true,
	"/api/optimize/questions": true,
	"/api/optimize/build":     true,
	"/api/jobs":               true,
	"/api/cache/stats":        true,
}

// routeLabel maps a request path onto a bounded set of label values
func routeLabel(path string) string {
	const jobs = "/api/jobs/"
	switch {
	case routes[path]:
		return path
	case strings.HasPrefix(path, jobs) && len(path) > len(jobs):
		return jobs + "{id}"
	default:
		return "other"
	}
}
