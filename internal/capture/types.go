// File: internal/capture/types.go
package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/karstlabs/vizdiff/internal/config"
)

// CaptureMethod records which screenshot strategy actually produced a given
// raster. It always names the strategy that succeeded, never one that was
// attempted and failed.
type CaptureMethod string

const (
	// MethodStandardFullPage is a native full-page screenshot.
	MethodStandardFullPage CaptureMethod = "standard-full-page"
	// MethodClipFullPage is a screenshot clipped to DOM-reported content
	// extents, used when the native full-page path fails.
	MethodClipFullPage CaptureMethod = "clip-based-full-page"
	// MethodViewport is a plain viewport capture, used when full page was
	// never requested.
	MethodViewport CaptureMethod = "viewport"
	// MethodFallbackViewport is a viewport capture standing in for a
	// requested-but-unachievable full-page one: degraded, not failed.
	MethodFallbackViewport CaptureMethod = "fallback-viewport"
)

// Wait event names for the navigation wait strategy.
const (
	WaitNetworkIdle = "networkidle"
	waitCSSPrefix   = "css:"
)

// WaitStrategy describes what Navigate blocks on before the page is
// considered loaded. Either the network-idle lifecycle event, or a CSS
// selector becoming visible.
type WaitStrategy struct {
	NetworkIdle bool
	Selector    string
}

// ParseWaitStrategy parses "networkidle" or "css:<selector>".
func ParseWaitStrategy(s string) (WaitStrategy, error) {
	switch {
	case s == "" || s == WaitNetworkIdle:
		return WaitStrategy{NetworkIdle: true}, nil
	case strings.HasPrefix(s, waitCSSPrefix):
		sel := strings.TrimSpace(strings.TrimPrefix(s, waitCSSPrefix))
		if sel == "" {
			return WaitStrategy{}, fmt.Errorf("empty selector in wait strategy %q", s)
		}
		return WaitStrategy{Selector: sel}, nil
	default:
		return WaitStrategy{}, fmt.Errorf("unrecognized wait strategy %q", s)
	}
}

// String renders the strategy back into its external form.
func (w WaitStrategy) String() string {
	if w.Selector != "" {
		return waitCSSPrefix + w.Selector
	}
	return WaitNetworkIdle
}

// CaptureRequest describes one URL capture. Immutable once issued.
type CaptureRequest struct {
	URL                string
	Wait               WaitStrategy
	FullPage           bool
	MaskSelectors      []string
	Timeout            time.Duration
	StabilizationDelay time.Duration
}

// PageDimensions are the content scroll extents observed after lazy loading
// converged.
type PageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CaptureResult is the outcome of one capture pipeline run. The raster
// buffer is owned exclusively by the result; the diff stage consumes and
// releases it.
type CaptureResult struct {
	Raster         []byte
	FinalURL       string
	Title          string
	TimestampUTC   time.Time
	Viewport       config.ViewportConfig
	PageDimensions PageDimensions
	Method         CaptureMethod
}

// Degraded reports whether a full-page capture was requested but only a
// viewport raster was actually produced.
func (r *CaptureResult) Degraded() bool {
	return r.Method == MethodFallbackViewport
}
