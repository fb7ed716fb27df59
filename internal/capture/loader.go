// File: internal/capture/loader.go
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/karstlabs/vizdiff/internal/browser"
	"github.com/karstlabs/vizdiff/internal/config"
)

// PageMetrics is one observation of the document's scroll extents.
type PageMetrics struct {
	ScrollWidth  float64 `json:"scrollWidth"`
	ScrollHeight float64 `json:"scrollHeight"`
}

// Scroller abstracts the page operations the convergence loop needs, so the
// termination conditions are testable without a browser.
type Scroller interface {
	Metrics(ctx context.Context) (PageMetrics, error)
	ScrollTo(ctx context.Context, x, y float64) error
}

// Sleeper abstracts timed settles, so tests run without real timers.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// realSleeper sleeps on the wall clock, respecting context cancellation.
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Loader drives scrolling to trigger lazy-loaded content and waits until
// page dimensions stop growing. This is a convergence loop: it terminates on
// observed stabilization, a step cap, or a height ceiling, whichever comes
// first, and therefore tolerates pages that grow indefinitely.
type Loader struct {
	cfg    config.ScrollConfig
	logger *zap.Logger
	sleep  Sleeper
}

// NewLoader creates a Loader with a wall-clock sleeper.
func NewLoader(cfg config.ScrollConfig, logger *zap.Logger) *Loader {
	return &Loader{cfg: cfg, logger: logger.Named("content_loader"), sleep: realSleeper{}}
}

// NewLoaderWithSleeper injects the clock abstraction. Tests only.
func NewLoaderWithSleeper(cfg config.ScrollConfig, logger *zap.Logger, sleep Sleeper) *Loader {
	return &Loader{cfg: cfg, logger: logger.Named("content_loader"), sleep: sleep}
}

// Load runs the convergence loop and returns the final content extents.
// On return the page has been scrolled back to the origin and given a final
// settle delay.
func (l *Loader) Load(ctx context.Context, sc Scroller) (PageDimensions, error) {
	m, err := sc.Metrics(ctx)
	if err != nil {
		return PageDimensions{}, fmt.Errorf("failed to read initial page metrics: %w", err)
	}

	var (
		pos      float64
		noChange int
		steps    int
	)
	lastW, lastH := m.ScrollWidth, m.ScrollHeight
	ceiling := float64(l.cfg.HeightCeilingPx)

	for steps = 0; steps < l.cfg.MaxSteps; steps++ {
		if lastH >= ceiling {
			l.logger.Warn("Page height hit the hard ceiling; capturing as-is.",
				zap.Float64("height", lastH), zap.Float64("ceiling", ceiling))
			break
		}

		step := lastH * l.cfg.StepFraction
		if floor := float64(l.cfg.MinStepPx); step < floor {
			step = floor
		}
		pos += step

		if err := sc.ScrollTo(ctx, 0, pos); err != nil {
			return PageDimensions{}, fmt.Errorf("scroll step failed: %w", err)
		}
		if err := l.sleep.Sleep(ctx, l.cfg.SettleInterval); err != nil {
			return PageDimensions{}, err
		}

		m, err = sc.Metrics(ctx)
		if err != nil {
			return PageDimensions{}, fmt.Errorf("failed to re-measure page: %w", err)
		}

		if m.ScrollHeight > lastH || m.ScrollWidth > lastW {
			noChange = 0
			lastW, lastH = m.ScrollWidth, m.ScrollHeight
			continue
		}

		noChange++
		if noChange >= l.cfg.NoChangeThreshold {
			break
		}
	}

	l.logger.Debug("Lazy-content scroll converged.",
		zap.Int("steps", steps),
		zap.Int("no_change", noChange),
		zap.Float64("final_height", lastH))

	// Return to origin so every capture starts from the same scroll state.
	if err := sc.ScrollTo(ctx, 0, 0); err != nil {
		return PageDimensions{}, fmt.Errorf("failed to scroll back to origin: %w", err)
	}
	if err := l.sleep.Sleep(ctx, l.cfg.FinalSettle); err != nil {
		return PageDimensions{}, err
	}

	return PageDimensions{Width: int(lastW), Height: int(lastH)}, nil
}

// pageScroller adapts a live browser page to the Scroller interface.
type pageScroller struct {
	page    *browser.Page
	timeout time.Duration
}

// NewPageScroller wraps a page for the convergence loop. Each individual
// operation is bounded by the given timeout.
func NewPageScroller(p *browser.Page, timeout time.Duration) Scroller {
	return &pageScroller{page: p, timeout: timeout}
}

const metricsJS = `({
  scrollWidth: Math.max(document.body ? document.body.scrollWidth : 0, document.documentElement.scrollWidth),
  scrollHeight: Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)
})`

func (ps *pageScroller) Metrics(ctx context.Context) (PageMetrics, error) {
	var m PageMetrics
	err := ps.page.Run(ps.timeout, chromedp.Evaluate(metricsJS, &m))
	return m, err
}

func (ps *pageScroller) ScrollTo(ctx context.Context, x, y float64) error {
	script := fmt.Sprintf("window.scrollTo(%f, %f)", x, y)
	return ps.page.Run(ps.timeout, chromedp.Evaluate(script, nil))
}
