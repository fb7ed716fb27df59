// File: internal/capture/capturer.go
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/karstlabs/vizdiff/internal/browser"
	"github.com/karstlabs/vizdiff/internal/errs"
)

// Screenshotter is the narrow surface the fallback chain drives. Each method
// corresponds to one capture strategy.
type Screenshotter interface {
	// FullPage asks the automation layer for a native full-page screenshot.
	FullPage(ctx context.Context) ([]byte, error)
	// ContentSize reports the DOM's maximum scroll extents.
	ContentSize(ctx context.Context) (width, height float64, err error)
	// Clipped captures a region of exactly width×height anchored at the origin.
	Clipped(ctx context.Context, width, height float64) ([]byte, error)
	// Viewport captures only the configured viewport.
	Viewport(ctx context.Context) ([]byte, error)
}

// maxClipDim bounds DOM-reported extents for the clip strategy; beyond this
// the measurement is treated as nonsense rather than a capture target.
const maxClipDim = 10000

// strategy is one state of the capture fallback chain. Each is attempted at
// most once, in order.
type strategy struct {
	method CaptureMethod
	run    func(ctx context.Context) ([]byte, error)
}

// Capturer executes the ordered screenshot fallback chain and records which
// strategy succeeded.
type Capturer struct {
	logger *zap.Logger
}

// NewCapturer creates a Capturer.
func NewCapturer(logger *zap.Logger) *Capturer {
	return &Capturer{logger: logger.Named("capturer")}
}

// Capture runs the applicable strategies in order and returns the raster of
// the first that succeeds, together with its method tag. When every
// applicable strategy fails, the error from the first state propagates,
// tagged as a capture failure.
func (c *Capturer) Capture(ctx context.Context, shot Screenshotter, fullPage bool) ([]byte, CaptureMethod, error) {
	chain := c.buildChain(shot, fullPage)

	var firstErr error
	for _, st := range chain {
		buf, err := st.run(ctx)
		if err == nil {
			if len(buf) == 0 {
				err = fmt.Errorf("strategy %s produced an empty buffer", st.method)
			} else {
				c.logger.Debug("Screenshot captured.",
					zap.String("method", string(st.method)), zap.Int("bytes", len(buf)))
				return buf, st.method, nil
			}
		}
		if firstErr == nil {
			firstErr = err
		}
		c.logger.Warn("Capture strategy failed; falling back.",
			zap.String("method", string(st.method)), zap.Error(err))
	}

	return nil, "", errs.Wrap(errs.KindCapture, "screenshot", "all capture strategies exhausted", firstErr)
}

// buildChain assembles the ordered strategy list for this request. A
// non-full-page request goes straight to the viewport strategy; a full-page
// request ends in the viewport as a degraded fallback.
func (c *Capturer) buildChain(shot Screenshotter, fullPage bool) []strategy {
	if !fullPage {
		return []strategy{{method: MethodViewport, run: shot.Viewport}}
	}
	return []strategy{
		{method: MethodStandardFullPage, run: shot.FullPage},
		{method: MethodClipFullPage, run: func(ctx context.Context) ([]byte, error) {
			return clipToContent(ctx, shot)
		}},
		{method: MethodFallbackViewport, run: shot.Viewport},
	}
}

// clipToContent measures the DOM scroll extents, validates them, and captures
// a screenshot clipped to exactly those dimensions.
func clipToContent(ctx context.Context, shot Screenshotter) ([]byte, error) {
	w, h, err := shot.ContentSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to measure content extents: %w", err)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("content extents not positive: %.0fx%.0f", w, h)
	}
	if w > maxClipDim || h > maxClipDim {
		return nil, fmt.Errorf("content extents %.0fx%.0f exceed the %dx%d clip limit", w, h, maxClipDim, maxClipDim)
	}
	return shot.Clipped(ctx, w, h)
}

// pageScreenshotter adapts a live page to the Screenshotter interface
// using CDP capture commands.
type pageScreenshotter struct {
	page    *browser.Page
	timeout time.Duration
}

// NewPageScreenshotter wraps a page for the capture chain.
func NewPageScreenshotter(p *browser.Page, timeout time.Duration) Screenshotter {
	return &pageScreenshotter{page: p, timeout: timeout}
}

func (s *pageScreenshotter) FullPage(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.page.Run(s.timeout, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *pageScreenshotter) ContentSize(ctx context.Context) (float64, float64, error) {
	var m PageMetrics
	if err := s.page.Run(s.timeout, chromedp.Evaluate(metricsJS, &m)); err != nil {
		return 0, 0, err
	}
	return m.ScrollWidth, m.ScrollHeight, nil
}

func (s *pageScreenshotter) Clipped(ctx context.Context, width, height float64) ([]byte, error) {
	var buf []byte
	action := chromedp.ActionFunc(func(ctx context.Context) error {
		res, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(&page.Viewport{X: 0, Y: 0, Width: width, Height: height, Scale: 1}).
			WithFromSurface(true).
			WithCaptureBeyondViewport(true).
			Do(ctx)
		if err != nil {
			return err
		}
		buf = res
		return nil
	})
	if err := s.page.Run(s.timeout, action); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *pageScreenshotter) Viewport(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.page.Run(s.timeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}
