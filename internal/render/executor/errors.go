// Package executor drives the end-to-end per-request render pipeline:
// compose the HTML document, acquire a browser instance and a tab, navigate,
// await the in-page readiness protocol, capture output, and release every
// resource on every exit path.
package executor

import "errors"

// Errors surfaced by Execute, mapped to the spec's error taxonomy (§7).
var (
	ErrBrowserUnavailable = errors.New("browser unavailable")
	ErrNavigationFailed   = errors.New("navigation to render document failed")
	ErrSelectorTimeout    = errors.New("wait selector never appeared")
	ErrReadinessTimeout   = errors.New("render readiness was never signalled")
	ErrUnsupportedFormat  = errors.New("unsupported output format")
	ErrCaptureFailed      = errors.New("capture failed")
	ErrCancelled          = errors.New("render cancelled before a permit was granted")
)

// RenderInitFailedError wraps the verbatim message the page wrote to
// window.renderError.
type RenderInitFailedError struct {
	Message string
}

func (e *RenderInitFailedError) Error() string {
	return "render init failed: " + e.Message
}
