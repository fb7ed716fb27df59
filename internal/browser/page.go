// File: internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/karstlabs/vizdiff/internal/config"
)

// LifecycleEvent names understood by Navigate.
const (
	EventLoad        = "load"
	EventNetworkIdle = "networkIdle"
)

// Page is one isolated browser tab. It is a scoped resource: opened at
// pipeline start and closed on every exit path, never shared between
// concurrent pipelines.
type Page struct {
	id     string
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	viewport config.ViewportConfig

	mu     sync.Mutex
	closed bool
	wg     *sync.WaitGroup
}

// newPage creates the tab and applies the deterministic browsing
// configuration (viewport emulation, locale, timezone, cache policy).
func newPage(ctx context.Context, allocCtx context.Context, logger *zap.Logger, cfg config.BrowserConfig, viewport config.ViewportConfig, wg *sync.WaitGroup) (*Page, error) {
	id := uuid.New().String()
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	p := &Page{
		id:       id,
		logger:   logger.With(zap.String("page_id", id[:8])),
		ctx:      tabCtx,
		cancel:   cancel,
		viewport: viewport,
		wg:       wg,
	}

	setup := chromedp.Tasks{
		chromedp.EmulateViewport(int64(viewport.Width), int64(viewport.Height)),
		emulation.SetLocaleOverride().WithLocale(cfg.Locale),
		emulation.SetTimezoneOverride(cfg.Timezone),
	}
	if cfg.DisableCache {
		setup = append(setup, network.SetCacheDisabled(true))
	}

	// Bound the setup by the caller's deadline as well as the tab's own life.
	runCtx, cancelRun := deriveRunContext(tabCtx, ctx)
	defer cancelRun()

	if err := chromedp.Run(runCtx, setup); err != nil {
		cancel()
		return nil, fmt.Errorf("page setup failed: %w", err)
	}

	p.logger.Debug("Page opened.",
		zap.Int("viewport_width", viewport.Width),
		zap.Int("viewport_height", viewport.Height))
	return p, nil
}

// deriveRunContext bounds a chromedp run on the tab context by an external
// caller context's deadline without making the tab a child of the caller.
func deriveRunContext(tabCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := callerCtx.Deadline(); ok {
		return context.WithDeadline(tabCtx, deadline)
	}
	return context.WithCancel(tabCtx)
}

// ID returns the unique identifier for this page.
func (p *Page) ID() string { return p.id }

// Context returns the underlying chromedp tab context. Callers use it to run
// their own actions against this page.
func (p *Page) Context() context.Context { return p.ctx }

// Viewport returns the viewport the page was opened with.
func (p *Page) Viewport() config.ViewportConfig { return p.viewport }

// Run executes chromedp actions against this page, bounded by the timeout.
func (p *Page) Run(timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads a URL and waits for the given page lifecycle event
// ("load" or "networkIdle") on the navigation it started. Lifecycle events
// are matched on both frame and loader id so a redirect chain is tracked
// correctly.
func (p *Page) Navigate(url, waitEvent string, timeout time.Duration) error {
	p.logger.Debug("Navigating.", zap.String("url", url), zap.String("wait_event", waitEvent))

	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	if err := chromedp.Run(runCtx, page.SetLifecycleEventsEnabled(true)); err != nil {
		return fmt.Errorf("failed to enable lifecycle events: %w", err)
	}

	var frameID, loaderID string
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		fid, lid, errText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if nerr := navigationFailure(errText); nerr != nil {
			return nerr
		}
		frameID = string(fid)
		loaderID = string(lid)
		return nil
	}))
	if err != nil {
		return err
	}

	return p.waitLifecycleEvent(runCtx, waitEvent, frameID, loaderID)
}

// navigationFailure converts the error text a completed Navigate command
// reported into an error. Empty text means the navigation was accepted.
func navigationFailure(errText string) error {
	if errText == "" {
		return nil
	}
	return fmt.Errorf("page load error %s", errText)
}

// waitLifecycleEvent blocks until the named lifecycle event arrives for the
// tracked navigation, or the context expires.
func (p *Page) waitLifecycleEvent(ctx context.Context, eventName, frameID, loaderID string) error {
	ch := make(chan struct{})
	listenerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chromedp.ListenTarget(listenerCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok {
			if string(e.FrameID) == frameID && string(e.LoaderID) == loaderID && string(e.Name) == eventName {
				cancel()
				close(ch)
			}
		}
	})

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for lifecycle event %q: %w", eventName, ctx.Err())
	}
}

// WaitVisible blocks until the selector matches a visible element.
func (p *Page) WaitVisible(selector string, timeout time.Duration) error {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Title returns the current document title.
func (p *Page) Title() (string, error) {
	var title string
	err := p.Run(10*time.Second, chromedp.Title(&title))
	return title, err
}

// Location returns the final URL after any redirects.
func (p *Page) Location() (string, error) {
	var loc string
	err := p.Run(10*time.Second, chromedp.Location(&loc))
	return loc, err
}

// Close tears the tab down. It is idempotent and always signals the owning
// session exactly once.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	// Wait for the tab context to wind down, respecting the caller deadline.
	waitCtx, cancelWait := context.WithTimeout(ctx, 10*time.Second)
	defer cancelWait()
	select {
	case <-p.ctx.Done():
		p.logger.Debug("Page closed.")
	case <-waitCtx.Done():
		p.logger.Warn("Deadline exceeded waiting for page to close.", zap.Error(waitCtx.Err()))
	}

	p.wg.Done()
	return nil
}
