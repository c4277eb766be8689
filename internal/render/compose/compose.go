// Package compose builds the self-contained HTML document the Render
// Executor navigates a browser tab to. It resolves the library template,
// validates any caller-supplied CDN URL, and embeds the caller's JSON data
// into the page's init script such that no input can escape its embedding
// context.
package compose

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/chartforge/render-engine/internal/common/urlutil"
	"github.com/chartforge/render-engine/internal/render/registry"
	"github.com/chartforge/render-engine/pkg/types"
)

// ErrInvalidCDN is returned when a caller-supplied CDN URL fails validation:
// it doesn't parse, isn't https, or its host isn't allow-listed.
type ErrInvalidCDN struct {
	URL    string
	Reason string
}

func (e *ErrInvalidCDN) Error() string {
	return fmt.Sprintf("invalid cdn_url %q: %s", e.URL, e.Reason)
}

// ErrSerialization is returned when request.Data cannot be JSON-encoded.
type ErrSerialization struct {
	Cause error
}

func (e *ErrSerialization) Error() string {
	return fmt.Sprintf("failed to serialize render data: %v", e.Cause)
}

func (e *ErrSerialization) Unwrap() error { return e.Cause }

// AllowedCDNHosts is the initial CDN host allow-list.
var AllowedCDNHosts = map[string]bool{
	"cdn.jsdelivr.net":    true,
	"unpkg.com":           true,
	"cdnjs.cloudflare.com": true,
}

// Compose produces the HTML document for a render request. It consults the
// Library Registry by name; the Render Executor independently re-resolves
// the same name defensively before navigation.
func Compose(req *types.RenderRequest) (string, error) {
	tmpl, err := registry.Lookup(req.Library.Name)
	if err != nil {
		return "", err
	}

	cdnURL, err := resolveCDNURL(tmpl, req.Library)
	if err != nil {
		return "", err
	}

	dataJSON, err := json.Marshal(json.RawMessage(req.Data))
	if err != nil {
		return "", &ErrSerialization{Cause: err}
	}

	parseExpr := "JSON.parse(dataJson)"
	initScript := tmpl.InitScript
	initScript = strings.ReplaceAll(initScript, "{data}", parseExpr)
	initScript = strings.ReplaceAll(initScript, "{width}", strconv.Itoa(req.Options.Width))
	initScript = strings.ReplaceAll(initScript, "{height}", strconv.Itoa(req.Options.Height))

	canvasElement := ""
	if tmpl.HasDedicatedCanvas {
		canvasElement = `<canvas id="chart-canvas"></canvas>`
	}

	html := renderDocument(documentParams{
		Width:             req.Options.Width,
		Height:            req.Options.Height,
		CanvasElement:     canvasElement,
		DevicePixelRatio:  req.Options.EffectiveDeviceScaleFactor(),
		EscapedDataJSON:   escapeForSingleQuotedJS(string(dataJSON)),
		CDNUrl:            cdnURL,
		InitScript:        initScript,
	})

	return html, nil
}

// resolveCDNURL resolves the effective CDN URL: the caller-supplied one,
// validated, or the template's pattern with {version} substituted.
func resolveCDNURL(tmpl registry.Template, lib types.LibraryRef) (string, error) {
	if lib.CDNUrl != "" {
		if err := validateCDNURL(lib.CDNUrl); err != nil {
			return "", err
		}
		return lib.CDNUrl, nil
	}
	return strings.ReplaceAll(tmpl.CDNURLPattern, "{version}", lib.Version), nil
}

// validateCDNURL enforces: parses as a URL, scheme is https, host is
// allow-listed. Any failure yields ErrInvalidCDN without a network call.
func validateCDNURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return &ErrInvalidCDN{URL: raw, Reason: "does not parse as a URL"}
	}
	if parsed.Scheme != "https" {
		return &ErrInvalidCDN{URL: raw, Reason: "scheme must be https"}
	}
	host := urlutil.ExtractHostname(urlutil.ExtractHost(raw))
	if !AllowedCDNHosts[host] {
		return &ErrInvalidCDN{URL: raw, Reason: fmt.Sprintf("host %q is not allow-listed", host)}
	}
	return nil
}

// escapeForSingleQuotedJS escapes a string for safe embedding as the body of
// a single-quoted JavaScript string literal: backslash first (so later
// escapes aren't themselves escaped), then single quote, then newline.
func escapeForSingleQuotedJS(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	// The string literal still sits inside an HTML <script> element; the HTML
	// tokenizer looks for "</script" regardless of JS quoting, so any embedded
	// closing tag would truncate the page before JSON.parse ever runs.
	s = strings.ReplaceAll(s, "</", `<\/`)
	return s
}
