// File: internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/karstlabs/vizdiff/internal/config"
)

// MaxViewportDim caps viewport dimensions in either axis. Anything beyond
// this is a misconfiguration, not a real display.
const MaxViewportDim = 10000

// ErrSessionDisposed is returned when a disposed session is asked for a page.
var ErrSessionDisposed = errors.New("browser session already disposed")

// Session owns one headless browser process and the browsing configuration
// (viewport, locale, timezone, user agent) applied to every page it opens.
// The process may be reused across sequential comparisons; pages are never
// shared.
type Session struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx manages the browser process. Page contexts derive from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	mu       sync.Mutex
	viewport config.ViewportConfig
	disposed bool

	// wg tracks open pages for a graceful dispose.
	wg sync.WaitGroup
}

// NewSession launches the browser process and verifies it is responsive.
func NewSession(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (*Session, error) {
	s := &Session{
		logger:   logger.Named("browser_session"),
		cfg:      cfg,
		viewport: cfg.Viewport,
	}
	if err := s.validateViewport(cfg.Viewport.Width, cfg.Viewport.Height); err != nil {
		return nil, err
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, s.buildAllocatorOptions()...)
	s.allocatorCtx = allocCtx
	s.allocatorCancel = cancel

	// Verify the browser starts and responds before handing the session out.
	probeCtx, cancelProbe := context.WithTimeout(allocCtx, 30*time.Second)
	probeCtx, cancelProbeTab := chromedp.NewContext(probeCtx)
	defer cancelProbeTab()
	defer cancelProbe()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		s.allocatorCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	s.logger.Info("Browser launched and responsive.")
	return s, nil
}

// buildAllocatorOptions assembles flags for a deterministic headless
// instance. Allocator options are opaque functions, so the defaults are
// taken whole and individual flags overridden afterwards; later entries win.
func (s *Session) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		// The enable-automation infobar shifts layout; a false bool flag
		// suppresses it.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", s.cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", s.cfg.Headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("force-color-profile", "srgb"),
		chromedp.UserAgent(s.cfg.UserAgent),
	)

	// Custom arguments from the config file.
	for _, arg := range s.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required for running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

func (s *Session) validateViewport(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("viewport dimensions must be positive, got %dx%d", width, height)
	}
	if width > MaxViewportDim || height > MaxViewportDim {
		return fmt.Errorf("viewport dimensions exceed %dx%d limit, got %dx%d",
			MaxViewportDim, MaxViewportDim, width, height)
	}
	return nil
}

// SetViewport changes the viewport applied to subsequently opened pages.
func (s *Session) SetViewport(width, height int) error {
	if err := s.validateViewport(width, height); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrSessionDisposed
	}
	s.viewport = config.ViewportConfig{Width: width, Height: height}
	return nil
}

// Viewport returns the viewport applied to newly opened pages.
func (s *Session) Viewport() config.ViewportConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// OpenPage creates a new isolated page (tab) bound to this session's
// browsing configuration. The caller must Close the page on every exit path.
func (s *Session) OpenPage(ctx context.Context) (*Page, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrSessionDisposed
	}
	viewport := s.viewport
	s.wg.Add(1)
	s.mu.Unlock()

	p, err := newPage(ctx, s.allocatorCtx, s.logger, s.cfg, viewport, &s.wg)
	if err != nil {
		s.wg.Done()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return p, nil
}

// Dispose closes the browser process. It is idempotent; a disposed session
// refuses to open new pages. Open pages are given until the ctx deadline to
// finish before the process is torn down underneath them.
func (s *Session) Dispose(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debug("All pages closed.")
	case <-ctx.Done():
		s.logger.Warn("Dispose deadline exceeded; forcing browser termination.", zap.Error(ctx.Err()))
	}

	if s.allocatorCancel != nil {
		s.allocatorCancel()
		<-s.allocatorCtx.Done()
	}
	s.logger.Info("Browser session disposed.")
	return nil
}
