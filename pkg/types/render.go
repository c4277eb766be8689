package types

import (
	"encoding/json"
	"fmt"
)

// Supported output formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatJPG  = "jpg"
	FormatPDF  = "pdf"
)

// LibraryRef identifies the visualization library a render request targets.
type LibraryRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	CDNUrl  string `json:"cdn_url,omitempty"`
}

// RenderOptions carries the bounded knobs of a render request. Pointer fields
// distinguish "not supplied" from the zero value so defaults can be applied.
type RenderOptions struct {
	Width            int      `json:"width"`
	Height           int      `json:"height"`
	Format           string   `json:"format"`
	Quality          *int     `json:"quality,omitempty"`
	DeviceScaleFactor *float64 `json:"device_scale_factor,omitempty"`
	PollIntervalMs   *int     `json:"poll_interval_ms,omitempty"`
	RenderDelayMs    *int     `json:"render_delay_ms,omitempty"`
	TimeoutMs        *int     `json:"timeout_ms,omitempty"`
	ReturnBase64     bool     `json:"return_base64,omitempty"`
}

// Default option bounds and fallbacks, per the data model.
const (
	MinDimension = 100
	MaxDimension = 4000

	DefaultQuality           = 90
	MinQuality               = 1
	MaxQuality               = 100
	DefaultDeviceScaleFactor = 1.0
	MinDeviceScaleFactor     = 0.5
	MaxDeviceScaleFactor     = 3.0

	DefaultPollIntervalMs = 100
	MinPollIntervalMs     = 50
	MaxPollIntervalMs     = 1000

	MinRenderDelayMs = 0
	MaxRenderDelayMs = 5000

	DefaultTimeoutMs = 5000
	MinTimeoutMs     = 1000
	MaxTimeoutMs     = 60000
)

// EffectiveQuality returns the quality to pass to the codec.
func (o *RenderOptions) EffectiveQuality() int {
	if o.Quality != nil {
		return *o.Quality
	}
	return DefaultQuality
}

// EffectiveDeviceScaleFactor returns the device scale factor to apply.
func (o *RenderOptions) EffectiveDeviceScaleFactor() float64 {
	if o.DeviceScaleFactor != nil {
		return *o.DeviceScaleFactor
	}
	return DefaultDeviceScaleFactor
}

// EffectivePollIntervalMs returns the readiness poll interval in milliseconds.
func (o *RenderOptions) EffectivePollIntervalMs() int {
	if o.PollIntervalMs != nil {
		return *o.PollIntervalMs
	}
	return DefaultPollIntervalMs
}

// EffectiveRenderDelayMs returns the post-readiness settle delay: render_delay_ms
// if the caller supplied one, otherwise the poll interval.
func (o *RenderOptions) EffectiveRenderDelayMs() int {
	if o.RenderDelayMs != nil {
		return *o.RenderDelayMs
	}
	return o.EffectivePollIntervalMs()
}

// EffectiveTimeoutMs returns the overall render timeout in milliseconds.
func (o *RenderOptions) EffectiveTimeoutMs() int {
	if o.TimeoutMs != nil {
		return *o.TimeoutMs
	}
	return DefaultTimeoutMs
}

// Validate checks the option bounds from the data model.
func (o *RenderOptions) Validate() error {
	if o.Width < MinDimension || o.Width > MaxDimension {
		return fmt.Errorf("width must be between %d and %d", MinDimension, MaxDimension)
	}
	if o.Height < MinDimension || o.Height > MaxDimension {
		return fmt.Errorf("height must be between %d and %d", MinDimension, MaxDimension)
	}
	switch o.Format {
	case FormatPNG, FormatJPEG, FormatJPG, FormatPDF:
	default:
		return fmt.Errorf("unsupported format %q", o.Format)
	}
	if o.Quality != nil && (*o.Quality < MinQuality || *o.Quality > MaxQuality) {
		return fmt.Errorf("quality must be between %d and %d", MinQuality, MaxQuality)
	}
	if o.DeviceScaleFactor != nil && (*o.DeviceScaleFactor < MinDeviceScaleFactor || *o.DeviceScaleFactor > MaxDeviceScaleFactor) {
		return fmt.Errorf("device_scale_factor must be between %v and %v", MinDeviceScaleFactor, MaxDeviceScaleFactor)
	}
	if o.PollIntervalMs != nil && (*o.PollIntervalMs < MinPollIntervalMs || *o.PollIntervalMs > MaxPollIntervalMs) {
		return fmt.Errorf("poll_interval_ms must be between %d and %d", MinPollIntervalMs, MaxPollIntervalMs)
	}
	if o.RenderDelayMs != nil && (*o.RenderDelayMs < MinRenderDelayMs || *o.RenderDelayMs > MaxRenderDelayMs) {
		return fmt.Errorf("render_delay_ms must be between %d and %d", MinRenderDelayMs, MaxRenderDelayMs)
	}
	if o.TimeoutMs != nil && (*o.TimeoutMs < MinTimeoutMs || *o.TimeoutMs > MaxTimeoutMs) {
		return fmt.Errorf("timeout_ms must be between %d and %d", MinTimeoutMs, MaxTimeoutMs)
	}
	return nil
}

// RenderRequest is the input unit accepted by the Service Façade.
type RenderRequest struct {
	Library LibraryRef      `json:"library"`
	Data    json.RawMessage `json:"data"`
	Options RenderOptions   `json:"options"`
}

// Validate checks the request's structural and option bounds. Library/version
// presence is required; library-name resolution is the registry's job.
func (r *RenderRequest) Validate() error {
	if r.Library.Name == "" {
		return fmt.Errorf("library.name is required")
	}
	if r.Library.Version == "" {
		return fmt.Errorf("library.version is required")
	}
	if len(r.Data) == 0 {
		r.Data = json.RawMessage("null")
	}
	return r.Options.Validate()
}

// Base64Response is the envelope returned when options.return_base64 is set.
type Base64Response struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// MimeTypeForFormat is a pure function of the output format.
func MimeTypeForFormat(format string) string {
	switch format {
	case FormatPNG:
		return "image/png"
	case FormatJPEG, FormatJPG:
		return "image/jpeg"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// HealthSnapshot is the value type returned by the façade's health operation.
type HealthSnapshot struct {
	PoolSize         int `json:"pool_size"`
	PoolCapacity     int `json:"pool_capacity"`
	PermitsAvailable int `json:"permits_available"`
	PermitsCapacity  int `json:"permits_capacity"`
}

// PoolUtilizationPercent returns the share of pool capacity currently
// instantiated, for the GET /health adapter's derived-percentage fields.
func (h HealthSnapshot) PoolUtilizationPercent() float64 {
	if h.PoolCapacity == 0 {
		return 0
	}
	return float64(h.PoolSize) / float64(h.PoolCapacity) * 100.0
}

// PermitUtilizationPercent returns the share of render permits in use.
func (h HealthSnapshot) PermitUtilizationPercent() float64 {
	if h.PermitsCapacity == 0 {
		return 0
	}
	inUse := h.PermitsCapacity - h.PermitsAvailable
	return float64(inUse) / float64(h.PermitsCapacity) * 100.0
}
