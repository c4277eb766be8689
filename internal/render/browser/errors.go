package browser

import "errors"

// Errors surfaced while constructing or operating on a single Instance.
var (
	ErrTabOpenFailed      = errors.New("failed to open new tab")
	ErrBrowserSpawnFailed = errors.New("browser process could not be spawned")
)

// Errors surfaced by the Pool.
var (
	ErrPoolShutdown       = errors.New("pool is shutting down")
	ErrBrowserUnavailable = errors.New("acquire exhausted all fallbacks")
)
