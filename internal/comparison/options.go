// File: internal/comparison/options.go
package comparison

import (
	"fmt"
	"time"

	"github.com/karstlabs/vizdiff/internal/capture"
)

// Caps on caller-supplied timing values.
const (
	maxTimeout            = 120000 * time.Millisecond
	maxStabilizationDelay = 5000 * time.Millisecond

	defaultTimeout            = 30000 * time.Millisecond
	defaultStabilizationDelay = 1000 * time.Millisecond
	defaultDiffThreshold      = 0.1
)

// defaultMaskSelectors hides the regions that most commonly differ between
// two loads of the same page: consent banners, ad slots, and live tickers.
var defaultMaskSelectors = []string{
	"#onetrust-banner-sdk",
	"#CybotCookiebotDialog",
	"[id*=\"cookie-banner\"]",
	".cookie-consent",
	".cc-window",
	"[class*=\"ad-slot\"]",
	"[id*=\"google_ads\"]",
	"iframe[src*=\"doubleclick\"]",
	"[data-testid=\"live-ticker\"]",
}

// Options is the caller-facing knob set for one comparison. Construct with
// DefaultOptions and override fields from there: values are taken literally
// (FullPage=false and DiffThreshold=0 mean exactly that), except that a zero
// Timeout and an empty WaitFor or MaskSelectors fall back to their defaults.
// Validation and clamping happen exactly once, in Normalize, at the
// orchestration boundary.
type Options struct {
	// WaitFor is "networkidle" (default) or "css:<selector>".
	WaitFor string
	// FullPage requests a full-page capture. Defaults to true.
	FullPage bool
	// MaskSelectors are hidden before capture. Empty means the default set;
	// masking can be disabled by passing a single blank selector.
	MaskSelectors []string
	// DiffThreshold is the perceptual pixel threshold in [0,1]. Values
	// outside the range are clamped.
	DiffThreshold float64
	// IncludeAA counts anti-aliasing pixels as changes. Defaults to true.
	IncludeAA bool
	// Timeout bounds each capture. Zero means the default; values above the
	// cap are reduced to it.
	Timeout time.Duration
	// StabilizationDelay is the quiet period before the screenshot, capped.
	StabilizationDelay time.Duration
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		WaitFor:            capture.WaitNetworkIdle,
		FullPage:           true,
		MaskSelectors:      nil,
		DiffThreshold:      defaultDiffThreshold,
		IncludeAA:          true,
		Timeout:            defaultTimeout,
		StabilizationDelay: defaultStabilizationDelay,
	}
}

// normalized is the validated, clamped form the orchestrator actually runs
// with.
type normalized struct {
	wait               capture.WaitStrategy
	fullPage           bool
	maskSelectors      []string
	diffThreshold      float64
	includeAA          bool
	timeout            time.Duration
	stabilizationDelay time.Duration
}

// Normalize validates the options and resolves defaults, clamps, and caps.
func (o Options) Normalize() (normalized, error) {
	wait, err := capture.ParseWaitStrategy(o.WaitFor)
	if err != nil {
		return normalized{}, fmt.Errorf("invalid waitFor option: %w", err)
	}

	threshold := o.DiffThreshold
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}

	delay := o.StabilizationDelay
	if delay < 0 {
		delay = defaultStabilizationDelay
	}
	if delay > maxStabilizationDelay {
		delay = maxStabilizationDelay
	}

	masks := o.MaskSelectors
	if len(masks) == 0 {
		masks = defaultMaskSelectors
	}

	return normalized{
		wait:               wait,
		fullPage:           o.FullPage,
		maskSelectors:      masks,
		diffThreshold:      threshold,
		includeAA:          o.IncludeAA,
		timeout:            timeout,
		stabilizationDelay: delay,
	}, nil
}

// request builds the capture request for one URL from the normalized
// options.
func (n normalized) request(url string) capture.CaptureRequest {
	return capture.CaptureRequest{
		URL:                url,
		Wait:               n.wait,
		FullPage:           n.fullPage,
		MaskSelectors:      n.maskSelectors,
		Timeout:            n.timeout,
		StabilizationDelay: n.stabilizationDelay,
	}
}
