package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// launchFlags are the headless-Chrome flags this service always launches
// with: disable sandbox (containers rarely have the privileges it needs),
// GPU, extensions, background networking, sync, default apps and audio, and
// reduce first-run noise so startup is deterministic.
func launchFlags() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	}
}

// NewInstance spawns one Chrome process and performs the initial handshake.
// Returns ErrBrowserSpawnFailed if the binary can't be located or the
// handshake times out.
func NewInstance(id int, temporary bool, cfg *Config, logger *zap.Logger) (*Instance, error) {
	now := time.Now().UTC()
	inst := &Instance{
		ID:           id,
		Temporary:    temporary,
		createdAt:    now,
		logger:       logger,
		status:       int32(StatusIdle),
		lastUsedNano: now.UnixNano(),
	}

	if err := inst.spawn(); err != nil {
		return nil, fmt.Errorf("%w: instance %d: %v", ErrBrowserSpawnFailed, id, err)
	}

	if cfg.WarmupURL != "" {
		if err := inst.warmup(cfg.WarmupTimeout, cfg.WarmupURL); err != nil {
			logger.Warn("instance warmup failed, continuing anyway",
				zap.Int("instance_id", id), zap.Error(err))
		}
	}

	return inst, nil
}

func (i *Instance) spawn() error {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], launchFlags()...)
	i.allocatorCtx, i.allocatorCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	i.ctx, i.cancel = chromedp.NewContext(i.allocatorCtx)

	handshakeCtx, cancel := context.WithTimeout(i.ctx, 15*time.Second)
	defer cancel()
	if err := chromedp.Run(handshakeCtx); err != nil {
		if i.cancel != nil {
			i.cancel()
		}
		if i.allocatorCancel != nil {
			i.allocatorCancel()
		}
		return err
	}

	_ = chromedp.Run(i.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, product, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
		if err == nil {
			i.browserVersion = product
		}
		return err
	}))

	return nil
}

func (i *Instance) warmup(timeout time.Duration, url string) error {
	ctx, cancel := context.WithTimeout(i.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.Navigate(url))
}

// NewTab returns a fresh browser context scoped to one render. Callers must
// cancel the returned function on every exit path.
func (i *Instance) NewTab() (context.Context, context.CancelFunc, error) {
	if i.Status() == StatusDead {
		return nil, nil, ErrTabOpenFailed
	}
	tabCtx, cancel := chromedp.NewContext(i.ctx)
	// chromedp lazily starts the target on first Run; force it now so a dead
	// process is detected here rather than deep inside the render pipeline.
	probeCtx, probeCancel := context.WithTimeout(tabCtx, 10*time.Second)
	defer probeCancel()
	if err := chromedp.Run(probeCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%w: %v", ErrTabOpenFailed, err)
	}
	return tabCtx, cancel, nil
}

// Probe issues a cheap metadata round-trip and refreshes the liveness
// timestamp on success. This is the sole definition of "healthy" for the
// pool's acquire/release paths.
func (i *Instance) Probe() bool {
	if i.Status() == StatusDead {
		return false
	}
	ctx, cancel := context.WithTimeout(i.ctx, 5*time.Second)
	defer cancel()

	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
		return err
	}))
	if err != nil {
		return false
	}
	atomic.StoreInt64(&i.lastUsedNano, time.Now().UTC().UnixNano())
	return true
}

// Close terminates the underlying browser process. Safe to call more than
// once.
func (i *Instance) Close() {
	atomic.StoreInt32(&i.status, int32(StatusDead))
	if i.cancel != nil {
		i.cancel()
	}
	if i.allocatorCancel != nil {
		i.allocatorCancel()
	}
}

// Status returns the instance's current lifecycle state.
func (i *Instance) Status() Status {
	return Status(atomic.LoadInt32(&i.status))
}

// SetStatus updates the instance's lifecycle state.
func (i *Instance) SetStatus(s Status) {
	atomic.StoreInt32(&i.status, int32(s))
}

// IncrementRequests records that one render completed on this instance.
func (i *Instance) IncrementRequests() {
	atomic.AddInt32(&i.requestsDone, 1)
	atomic.StoreInt64(&i.lastUsedNano, time.Now().UTC().UnixNano())
}

// RequestsDone returns the number of renders completed on this instance.
func (i *Instance) RequestsDone() int32 {
	return atomic.LoadInt32(&i.requestsDone)
}

// Age returns how long the underlying process has been running.
func (i *Instance) Age() time.Duration {
	return time.Since(i.createdAt)
}

// BrowserVersion returns the Chrome product string captured at spawn time.
func (i *Instance) BrowserVersion() string {
	return i.browserVersion
}

// Context returns the instance's browser-scoped context, for callers (e.g.
// the executor) that need to derive further contexts directly.
func (i *Instance) Context() context.Context {
	return i.ctx
}
