package service

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/chartforge/render-engine/internal/render/compose"
	"github.com/chartforge/render-engine/internal/render/executor"
	"github.com/chartforge/render-engine/internal/render/metrics"
	"github.com/chartforge/render-engine/internal/render/registry"
	"github.com/chartforge/render-engine/pkg/types"
)

// errorResponse is the JSON body written for every non-2xx response. Every
// kind in the error taxonomy maps to a 500-class status per the spec's
// propagation policy; only request validation failures get a 400.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(ctx *fasthttp.RequestCtx, status int, kind, message string, metricsCollector *metrics.MetricsCollector, logger *zap.Logger) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(errorResponse{Error: message, Kind: kind})
	ctx.SetBody(body)
	metricsCollector.RecordHTTPRequest("/render", strconv.Itoa(status))
	metricsCollector.RecordError(kind)
	logger.Warn("request failed", zap.String("kind", kind), zap.String("detail", message))
}

// classifyError maps a render error to its taxonomy kind, per §7.
func classifyError(err error) string {
	switch {
	case errors.As(err, new(*registry.ErrUnsupportedLibrary)):
		return "UnsupportedLibrary"
	case errors.As(err, new(*compose.ErrInvalidCDN)):
		return "InvalidCdn"
	case errors.As(err, new(*compose.ErrSerialization)):
		return "SerializationFailure"
	case errors.As(err, new(*executor.RenderInitFailedError)):
		return "RenderInitFailed"
	case errors.Is(err, executor.ErrBrowserUnavailable):
		return "BrowserUnavailable"
	case errors.Is(err, executor.ErrNavigationFailed):
		return "NavigationFailed"
	case errors.Is(err, executor.ErrSelectorTimeout):
		return "SelectorTimeout"
	case errors.Is(err, executor.ErrReadinessTimeout):
		return "ReadinessTimeout"
	case errors.Is(err, executor.ErrUnsupportedFormat):
		return "UnsupportedFormat"
	case errors.Is(err, executor.ErrCaptureFailed):
		return "CaptureFailed"
	case errors.Is(err, executor.ErrCancelled):
		return "Cancelled"
	default:
		return "Internal"
	}
}

// HandleRender implements POST /render: binary bytes by default, a JSON
// base64 envelope when options.return_base64 is set.
func HandleRender(ctx *fasthttp.RequestCtx, facade *Facade, metricsCollector *metrics.MetricsCollector, logger *zap.Logger) {
	var req types.RenderRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "InvalidRequest", "request body is not valid JSON", metricsCollector, logger)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "InvalidRequest", err.Error(), metricsCollector, logger)
		metricsCollector.RecordValidationError()
		return
	}

	start := time.Now()

	if req.Options.ReturnBase64 {
		resp, err := facade.RenderBase64(ctx, &req)
		if err != nil {
			kind := classifyError(err)
			status := fasthttp.StatusInternalServerError
			if kind == "Cancelled" {
				status = fasthttp.StatusServiceUnavailable
			}
			writeError(ctx, status, kind, err.Error(), metricsCollector, logger)
			metricsCollector.RecordRenderError()
			return
		}
		metricsCollector.RecordRenderDuration(time.Since(start).Seconds())
		metricsCollector.RecordRenderSuccess()
		metricsCollector.RecordHTTPRequest("/render", "200")

		body, _ := json.Marshal(resp)
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
		return
	}

	data, mimeType, err := facade.Render(ctx, &req)
	if err != nil {
		kind := classifyError(err)
		status := fasthttp.StatusInternalServerError
		if kind == "Cancelled" {
			status = fasthttp.StatusServiceUnavailable
		}
		writeError(ctx, status, kind, err.Error(), metricsCollector, logger)
		metricsCollector.RecordRenderError()
		return
	}
	metricsCollector.RecordRenderDuration(time.Since(start).Seconds())
	metricsCollector.RecordRenderSuccess()
	metricsCollector.RecordHTTPRequest("/render", "200")

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(mimeType)
	ctx.SetBody(data)
}

// HandleLibraries implements GET /libraries: the registry's static catalog.
func HandleLibraries(ctx *fasthttp.RequestCtx, metricsCollector *metrics.MetricsCollector) {
	body, _ := json.Marshal(registry.List())
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
	metricsCollector.RecordHTTPRequest("/libraries", "200")
}

// HandleHealth implements GET /health: the pool/permit snapshot plus derived
// utilization percentages.
func HandleHealth(ctx *fasthttp.RequestCtx, facade *Facade, metricsCollector *metrics.MetricsCollector) {
	snapshot := facade.HealthSnapshot()
	metricsCollector.UpdatePoolSize(snapshot.PoolSize)
	metricsCollector.UpdatePermitsAvailable(snapshot.PermitsAvailable)

	body, _ := json.Marshal(struct {
		types.HealthSnapshot
		PoolUtilizationPercent   float64 `json:"pool_utilization_percent"`
		PermitUtilizationPercent float64 `json:"permit_utilization_percent"`
	}{
		HealthSnapshot:           snapshot,
		PoolUtilizationPercent:   snapshot.PoolUtilizationPercent(),
		PermitUtilizationPercent: snapshot.PermitUtilizationPercent(),
	})
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
	metricsCollector.RecordHTTPRequest("/health", "200")
}
