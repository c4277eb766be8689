package service

import (
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/chartforge/render-engine/internal/render/metrics"
)

// CreateHTTPHandler builds the fasthttp handler for the three HTTP-adapted
// operations: POST /render, GET /libraries, GET /health. prefix, if
// non-empty, mounts all three under that path (e.g. "/v1" turns
// "/v1/render" into "/render" before routing); it must start with "/" per
// rs_config.go's validation.
func CreateHTTPHandler(facade *Facade, metricsCollector *metrics.MetricsCollector, logger *zap.Logger, prefix string) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		method := string(ctx.Method())

		if prefix != "" {
			trimmed := strings.TrimPrefix(path, prefix)
			if trimmed == path {
				ctx.SetStatusCode(fasthttp.StatusNotFound)
				ctx.SetBodyString("not found")
				metricsCollector.RecordHTTPRequest(path, "404")
				return
			}
			if trimmed == "" {
				trimmed = "/"
			}
			path = trimmed
		}

		switch {
		case method == "POST" && path == "/render":
			HandleRender(ctx, facade, metricsCollector, logger)
		case method == "GET" && path == "/libraries":
			HandleLibraries(ctx, metricsCollector)
		case method == "GET" && path == "/health":
			HandleHealth(ctx, facade, metricsCollector)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("not found")
			metricsCollector.RecordHTTPRequest(path, "404")
		}
	}
}
