// File: internal/capture/pipeline.go
package capture

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/karstlabs/vizdiff/internal/browser"
	"github.com/karstlabs/vizdiff/internal/config"
	"github.com/karstlabs/vizdiff/internal/errs"
)

// Pipeline runs one URL through stabilize → lazy-load → screenshot on its
// own page. The page is opened at pipeline start and closed on every exit
// path; two concurrent pipelines never share one.
type Pipeline struct {
	session    *browser.Session
	stabilizer *Stabilizer
	loader     *Loader
	capturer   *Capturer
	cfg        config.CaptureConfig
	logger     *zap.Logger
}

// NewPipeline assembles a capture pipeline over a browser session.
func NewPipeline(session *browser.Session, cfg *config.Config, logger *zap.Logger) *Pipeline {
	l := logger.Named("capture_pipeline")
	return &Pipeline{
		session:    session,
		stabilizer: NewStabilizer(l),
		loader:     NewLoader(cfg.Scroll, l),
		capturer:   NewCapturer(l),
		cfg:        cfg.Capture,
		logger:     l,
	}
}

// Capture executes the full pipeline for one request. Every failure is
// classified into the error taxonomy; the raw cause is preserved underneath.
func (pl *Pipeline) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = pl.cfg.NavigationTimeout
	}

	p, err := pl.session.OpenPage(ctx)
	if err != nil {
		return nil, errs.Classify("session", err)
	}
	// The page must die with the pipeline regardless of outcome. A fresh
	// context guarantees close even when ctx has already expired.
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := p.Close(closeCtx); cerr != nil {
			pl.logger.Warn("Page close failed.", zap.Error(cerr))
		}
	}()

	if err := pl.stabilizer.PrepareBeforeLoad(p, timeout); err != nil {
		return nil, errs.Classify("stabilization", err)
	}

	// A selector wait takes over from network idle once the load event fires.
	event := browser.EventNetworkIdle
	if req.Wait.Selector != "" {
		event = browser.EventLoad
	}
	if err := p.Navigate(req.URL, event, timeout); err != nil {
		return nil, errs.Classify("navigation", err)
	}
	if req.Wait.Selector != "" {
		if err := p.WaitVisible(req.Wait.Selector, timeout); err != nil {
			return nil, errs.Wrap(errs.KindContent, "wait",
				"wait-for-selector condition never satisfied: "+req.Wait.Selector, err)
		}
	}

	if err := pl.stabilizer.DismissConsent(p, pl.cfg.ConsentSettle, timeout); err != nil {
		return nil, errs.Classify("stabilization", err)
	}
	pl.stabilizer.ApplyMasks(p, req.MaskSelectors, timeout)

	dims, err := pl.loader.Load(ctx, NewPageScroller(p, timeout))
	if err != nil {
		return nil, errs.Classify("scroll", err)
	}

	if delay := req.StabilizationDelay; delay > 0 {
		if err := pl.loader.sleep.Sleep(ctx, delay); err != nil {
			return nil, errs.Classify("stabilization", err)
		}
	}

	raster, method, err := pl.capturer.Capture(ctx, NewPageScreenshotter(p, timeout), req.FullPage)
	if err != nil {
		return nil, errs.Classify("screenshot", err)
	}

	// Metadata reads are best-effort; the raster is already in hand.
	title, terr := p.Title()
	if terr != nil {
		pl.logger.Warn("Could not read page title.", zap.Error(terr))
	}
	finalURL, uerr := p.Location()
	if uerr != nil {
		finalURL = req.URL
	}

	return &CaptureResult{
		Raster:         raster,
		FinalURL:       finalURL,
		Title:          title,
		TimestampUTC:   time.Now().UTC(),
		Viewport:       p.Viewport(),
		PageDimensions: dims,
		Method:         method,
	}, nil
}
