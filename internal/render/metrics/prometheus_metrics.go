package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// PrometheusMetrics provides high-performance metrics collection for the
// render service.
type PrometheusMetrics struct {
	poolSize         prometheus.Gauge
	poolAvailable    prometheus.Gauge
	permitsAvailable prometheus.Gauge

	rendersTotal   *prometheus.CounterVec
	renderDuration prometheus.Histogram

	httpRequests *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewPrometheusMetrics creates a new Prometheus-based metrics collector.
func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewPrometheusMetricsWithRegistry creates a new Prometheus-based metrics
// collector registered against a caller-supplied registry, for test
// isolation.
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{
		logger: logger,
	}

	pm.poolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "pool_size",
		Help:      "Total number of browser instances in the pool",
	})

	pm.poolAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "pool_available",
		Help:      "Number of idle browser instances available for acquire",
	})

	pm.permitsAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "permits_available",
		Help:      "Number of render permits currently free",
	})

	pm.rendersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "renders_total",
		Help:      "Total number of render requests by outcome",
	}, []string{"outcome"}) // outcome: success, error, timeout

	pm.renderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "render_duration_seconds",
		Help:      "Time spent rendering, from permit acquisition to capture",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to 51.2s
	})

	pm.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by path and status",
	}, []string{"path", "status"})

	pm.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "errors_total",
		Help:      "Total errors by kind",
	}, []string{"kind"})

	registerer.MustRegister(
		pm.poolSize,
		pm.poolAvailable,
		pm.permitsAvailable,
		pm.rendersTotal,
		pm.renderDuration,
		pm.httpRequests,
		pm.errorsTotal,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Info("render service Prometheus metrics initialized")
	return pm
}

// UpdatePoolSize updates the browser pool size gauge.
func (pm *PrometheusMetrics) UpdatePoolSize(size float64) {
	pm.poolSize.Set(size)
}

// UpdatePoolAvailable updates the idle-instance gauge.
func (pm *PrometheusMetrics) UpdatePoolAvailable(available float64) {
	pm.poolAvailable.Set(available)
}

// UpdatePermitsAvailable updates the free-permit gauge.
func (pm *PrometheusMetrics) UpdatePermitsAvailable(available float64) {
	pm.permitsAvailable.Set(available)
}

// RecordRender records a render request outcome.
func (pm *PrometheusMetrics) RecordRender(outcome string) {
	pm.rendersTotal.WithLabelValues(outcome).Inc()
}

// RecordRenderDuration records render duration in seconds.
func (pm *PrometheusMetrics) RecordRenderDuration(seconds float64) {
	pm.renderDuration.Observe(seconds)
}

// RecordHTTPRequest records an HTTP request by path and status.
func (pm *PrometheusMetrics) RecordHTTPRequest(path, status string) {
	pm.httpRequests.WithLabelValues(path, status).Inc()
}

// RecordError records an error by kind.
func (pm *PrometheusMetrics) RecordError(kind string) {
	pm.errorsTotal.WithLabelValues(kind).Inc()
}

// ServeHTTP serves Prometheus metrics via HTTP.
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}
