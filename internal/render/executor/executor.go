package executor

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/chartforge/render-engine/internal/render/browser"
	"github.com/chartforge/render-engine/internal/render/compose"
	"github.com/chartforge/render-engine/internal/render/registry"
	"github.com/chartforge/render-engine/pkg/types"
)

// selectorWaitTimeout bounds how long the executor waits for a library's
// wait selector to appear in the DOM before giving up.
const selectorWaitTimeout = 10 * time.Second

// maxReadinessAttempts bounds the renderReady/renderError poll loop
// regardless of the configured poll interval.
const maxReadinessAttempts = 50

// Executor runs the render pipeline: acquire a permit, acquire a browser
// instance, open a tab, navigate to the composed document, wait for the
// in-page readiness protocol, capture output, and release every resource on
// every exit path.
type Executor struct {
	pool    *browser.Pool
	permits *semaphore.Weighted
	logger  *zap.Logger

	permitCapacity int64
	inFlight       atomic.Int64
}

// New builds an Executor bounded by permitCapacity concurrent renders,
// regardless of how many browser instances the pool can supply.
func New(pool *browser.Pool, permitCapacity int, logger *zap.Logger) *Executor {
	return &Executor{
		pool:           pool,
		permits:        semaphore.NewWeighted(int64(permitCapacity)),
		logger:         logger,
		permitCapacity: int64(permitCapacity),
	}
}

// PermitsAvailable reports how many render permits are currently free, for
// the health snapshot. semaphore.Weighted exposes no query method, so the
// executor tracks in-flight renders itself.
func (e *Executor) PermitsAvailable() int {
	return int(e.permitCapacity - e.inFlight.Load())
}

// PermitsCapacity returns the configured concurrency ceiling.
func (e *Executor) PermitsCapacity() int {
	return int(e.permitCapacity)
}

// Execute runs the full render pipeline and returns the captured bytes plus
// the format's MIME type.
func (e *Executor) Execute(ctx context.Context, req *types.RenderRequest) ([]byte, string, error) {
	if err := e.permits.Acquire(ctx, 1); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	e.inFlight.Add(1)
	defer func() {
		e.inFlight.Add(-1)
		e.permits.Release(1)
	}()

	// Defensive re-resolution: the composer already looked this name up, but
	// the executor never trusts that state survived across the boundary.
	tmpl, err := registry.Lookup(req.Library.Name)
	if err != nil {
		return nil, "", err
	}

	html, err := compose.Compose(req)
	if err != nil {
		return nil, "", err
	}

	inst, err := e.pool.Acquire()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}
	defer e.pool.Release(inst)

	tabCtx, cancel, err := inst.NewTab()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}
	defer cancel()

	timeout := time.Duration(req.Options.EffectiveTimeoutMs()) * time.Millisecond
	renderCtx, renderCancel := context.WithTimeout(tabCtx, timeout)
	defer renderCancel()

	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))

	width := int64(req.Options.Width)
	height := int64(req.Options.Height)
	scaleFactor := req.Options.EffectiveDeviceScaleFactor()

	actions := []chromedp.Action{chromedp.EmulateViewport(width, height)}
	if scaleFactor != 1.0 {
		// Only a non-default scale factor needs the explicit override; the
		// plain viewport emulation above already covers the common case and
		// matches what the original renderer's set_bounds call does
		// unconditionally before its own scale-gated override.
		actions = append(actions, emulation.SetDeviceMetricsOverride(width, height, scaleFactor, false).
			WithScreenWidth(width).
			WithScreenHeight(height).
			WithPositionX(0).
			WithPositionY(0))
	}
	actions = append(actions, chromedp.Navigate(dataURL))

	if err := chromedp.Run(renderCtx, actions...); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}

	selectorCtx, selectorCancel := context.WithTimeout(renderCtx, selectorWaitTimeout)
	defer selectorCancel()
	if err := chromedp.Run(selectorCtx, chromedp.WaitVisible(tmpl.WaitSelector, chromedp.ByQuery)); err != nil {
		return nil, "", fmt.Errorf("%w: selector %q: %v", ErrSelectorTimeout, tmpl.WaitSelector, err)
	}

	if err := e.awaitReadiness(renderCtx, req.Options.EffectivePollIntervalMs()); err != nil {
		return nil, "", err
	}

	settle := time.Duration(req.Options.EffectiveRenderDelayMs()) * time.Millisecond
	if settle > 0 {
		select {
		case <-time.After(settle):
		case <-renderCtx.Done():
			return nil, "", fmt.Errorf("%w: %v", ErrReadinessTimeout, renderCtx.Err())
		}
	}

	data, err := e.capture(renderCtx, req.Options)
	if err != nil {
		return nil, "", err
	}

	return data, types.MimeTypeForFormat(req.Options.Format), nil
}

// awaitReadiness polls window.renderReady / window.renderError, failing fast
// on the first error signal and giving up after maxReadinessAttempts.
func (e *Executor) awaitReadiness(ctx context.Context, pollIntervalMs int) error {
	interval := time.Duration(pollIntervalMs) * time.Millisecond

	for attempt := 0; attempt < maxReadinessAttempts; attempt++ {
		var ready bool
		var renderErr string

		err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.renderReady === true`, &ready),
			chromedp.Evaluate(`window.renderError ? String(window.renderError) : ""`, &renderErr),
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrReadinessTimeout, err)
		}
		if renderErr != "" {
			return &RenderInitFailedError{Message: renderErr}
		}
		if ready {
			return nil
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrReadinessTimeout, ctx.Err())
		}
	}

	return ErrReadinessTimeout
}

// capture dispatches to the codec matching the requested output format.
func (e *Executor) capture(ctx context.Context, opts types.RenderOptions) ([]byte, error) {
	switch opts.Format {
	case types.FormatPNG, types.FormatJPEG, types.FormatJPG:
		// FullScreenshot encodes PNG only when quality is 100 and JPEG for any
		// other value, so PNG requests always pass 100; the caller's quality
		// is accepted for PNG but only applied to JPEG.
		quality := opts.EffectiveQuality()
		if opts.Format == types.FormatPNG {
			quality = 100
		}
		var buf []byte
		if err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, quality)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
		}
		return buf, nil

	case types.FormatPDF:
		var buf []byte
		if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return err
			}
			buf = data
			return nil
		})); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
		}
		return buf, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}
}
