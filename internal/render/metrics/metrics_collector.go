package metrics

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// MetricsCollector centralizes all metrics recording for the render service.
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

// NewMetricsCollector creates a new MetricsCollector instance.
func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetrics(namespace, logger),
		logger:     logger,
	}
}

// UpdatePoolSize updates the browser pool size gauge.
func (mc *MetricsCollector) UpdatePoolSize(size int) {
	mc.prometheus.UpdatePoolSize(float64(size))
}

// UpdatePoolAvailable updates the idle-instance gauge.
func (mc *MetricsCollector) UpdatePoolAvailable(available int) {
	mc.prometheus.UpdatePoolAvailable(float64(available))
}

// UpdatePermitsAvailable updates the free-permit gauge.
func (mc *MetricsCollector) UpdatePermitsAvailable(available int) {
	mc.prometheus.UpdatePermitsAvailable(float64(available))
}

// RecordRenderSuccess records a successful render.
func (mc *MetricsCollector) RecordRenderSuccess() {
	mc.prometheus.RecordRender("success")
}

// RecordRenderError records a render error.
func (mc *MetricsCollector) RecordRenderError() {
	mc.prometheus.RecordRender("error")
}

// RecordRenderTimeout records a render that exceeded its timeout.
func (mc *MetricsCollector) RecordRenderTimeout() {
	mc.prometheus.RecordRender("timeout")
}

// RecordRenderDuration records render duration in seconds.
func (mc *MetricsCollector) RecordRenderDuration(seconds float64) {
	mc.prometheus.RecordRenderDuration(seconds)
}

// RecordHTTPRequest records an HTTP request by path and status.
func (mc *MetricsCollector) RecordHTTPRequest(path, status string) {
	mc.prometheus.RecordHTTPRequest(path, status)
}

// RecordError records an error by taxonomy kind (§7).
func (mc *MetricsCollector) RecordError(kind string) {
	mc.prometheus.RecordError(kind)
}

// RecordValidationError records a validation error.
func (mc *MetricsCollector) RecordValidationError() {
	mc.prometheus.RecordError("validation")
}

// RecordRenderErrorMetric records a render-pipeline error.
func (mc *MetricsCollector) RecordRenderErrorMetric() {
	mc.prometheus.RecordError("render")
}

// RecordTimeoutError records a timeout error.
func (mc *MetricsCollector) RecordTimeoutError() {
	mc.prometheus.RecordError("timeout")
}

// RecordInternalError records an internal error.
func (mc *MetricsCollector) RecordInternalError() {
	mc.prometheus.RecordError("internal")
}

// ServeHTTP serves Prometheus metrics via HTTP.
func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.ServeHTTP(ctx)
}
