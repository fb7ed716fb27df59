// File: internal/comparison/orchestrator.go
// Package comparison coordinates two capture pipelines and the diff engine
// into a single atomic comparison: both captures run concurrently, either
// failure aborts the whole operation, and a result is only ever returned
// fully populated.
package comparison

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/karstlabs/vizdiff/internal/capture"
	"github.com/karstlabs/vizdiff/internal/config"
	"github.com/karstlabs/vizdiff/internal/diff"
	"github.com/karstlabs/vizdiff/internal/errs"
)

// Capturer runs one capture request end to end. Satisfied by
// *capture.Pipeline.
type Capturer interface {
	Capture(ctx context.Context, req capture.CaptureRequest) (*capture.CaptureResult, error)
}

// Orchestrator runs comparisons. It may be reused across sequential
// comparisons; each comparison opens its own pair of pages.
type Orchestrator struct {
	pipeline Capturer
	diffCfg  config.DiffConfig
	logger   *zap.Logger
}

// NewOrchestrator creates an Orchestrator on top of a capture pipeline.
func NewOrchestrator(pipeline Capturer, diffCfg config.DiffConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		pipeline: pipeline,
		diffCfg:  diffCfg,
		logger:   logger.Named("orchestrator"),
	}
}

// Compare captures urlA and urlB concurrently, diffs the two rasters, and
// returns one fully populated Result. If either capture fails the other is
// canceled and no partial result is produced.
func (o *Orchestrator) Compare(ctx context.Context, urlA, urlB string, opts Options) (*Result, error) {
	n, err := opts.Normalize()
	if err != nil {
		return nil, errs.Wrap(errs.KindComparison, "options", "rejected comparison options", err)
	}

	reqA := n.request(urlA)
	reqB := n.request(urlB)

	o.logger.Info("Starting comparison.",
		zap.String("url_a", urlA), zap.String("url_b", urlB),
		zap.Bool("full_page", n.fullPage), zap.Duration("timeout", n.timeout))

	var resA, resB *capture.CaptureResult
	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := o.pipeline.Capture(groupCtx, reqA)
		if err != nil {
			return err
		}
		resA = r
		return nil
	})
	g.Go(func() error {
		r, err := o.pipeline.Capture(groupCtx, reqB)
		if err != nil {
			return err
		}
		resB = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	diffCfg := o.diffCfg
	diffCfg.Threshold = n.diffThreshold
	diffCfg.IncludeAA = n.includeAA
	diffRes, err := diff.NewEngine(diffCfg, o.logger).Compare(resA.Raster, resB.Raster)
	if err != nil {
		return nil, err
	}

	o.logger.Info("Comparison complete.",
		zap.Float64("mismatch_percent", diffRes.Metrics.MismatchPercent),
		zap.Int("changed_pixels", diffRes.Metrics.ChangedPixels))

	return &Result{
		ID:         uuid.NewString(),
		RequestA:   reqA,
		RequestB:   reqB,
		CaptureA:   resA,
		CaptureB:   resB,
		Diff:       diffRes,
		ComparedAt: time.Now().UTC(),
	}, nil
}
