// Package service exposes the render pipeline as a small set of named
// operations (render, render_base64, health_snapshot) and adapts them onto
// an HTTP surface.
package service

import (
	"context"
	"encoding/base64"

	"go.uber.org/zap"

	"github.com/chartforge/render-engine/internal/common/requestid"
	"github.com/chartforge/render-engine/internal/render/browser"
	"github.com/chartforge/render-engine/internal/render/executor"
	"github.com/chartforge/render-engine/pkg/types"
)

// Facade is the single entry point callers (the HTTP adapter, tests, or any
// future adapter) use to drive a render. Render and RenderBase64 tag their
// work with a request ID for log correlation.
type Facade struct {
	exec   *executor.Executor
	pool   *browser.Pool
	logger *zap.Logger
}

// NewFacade builds a Facade over an already-constructed executor and pool.
func NewFacade(exec *executor.Executor, pool *browser.Pool, logger *zap.Logger) *Facade {
	return &Facade{exec: exec, pool: pool, logger: logger}
}

// Render executes req and returns the raw captured bytes plus MIME type.
func (f *Facade) Render(ctx context.Context, req *types.RenderRequest) ([]byte, string, error) {
	requestID := requestid.GenerateRequestID(req.Library.Name)
	logger := f.logger.With(zap.String("request_id", requestID), zap.String("library", req.Library.Name))

	data, mimeType, err := f.exec.Execute(ctx, req)
	if err != nil {
		logger.Warn("render failed", zap.Error(err))
		return nil, "", err
	}
	logger.Info("render succeeded", zap.Int("bytes", len(data)))
	return data, mimeType, nil
}

// RenderBase64 executes req and returns the base64 envelope variant.
func (f *Facade) RenderBase64(ctx context.Context, req *types.RenderRequest) (*types.Base64Response, error) {
	data, mimeType, err := f.Render(ctx, req)
	if err != nil {
		return nil, err
	}
	return &types.Base64Response{
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}, nil
}

// HealthSnapshot reports the current pool and permit utilization.
func (f *Facade) HealthSnapshot() types.HealthSnapshot {
	stats := f.pool.Stats()
	return types.HealthSnapshot{
		PoolSize:         stats.CurrentSize,
		PoolCapacity:     stats.MaxSize,
		PermitsAvailable: f.exec.PermitsAvailable(),
		PermitsCapacity:  f.exec.PermitsCapacity(),
	}
}
