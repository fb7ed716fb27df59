// File: internal/capture/stabilizer.go
package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/karstlabs/vizdiff/internal/browser"
)

// freezeCSS neutralizes time-dependent rendering: animations and transitions
// collapse to their end state, the caret never blinks, and scrolling is
// never smooth.
const freezeCSS = `*, *::before, *::after {
  animation-duration: 0s !important;
  animation-delay: 0s !important;
  transition-duration: 0s !important;
  transition-delay: 0s !important;
  caret-color: transparent !important;
}
html {
  scroll-behavior: auto !important;
}`

// consentSelectors is the ordered candidate list for consent banner accept
// buttons: attribute-based accept buttons first, then well-known banner
// library handles, then loose class/id matches. First visible match wins.
var consentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"#didomi-notice-agree-button",
	"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",
	"button[data-testid='uc-accept-all-button']",
	".cc-btn.cc-allow",
	"button[aria-label*='accept' i]",
	"button[id*='accept' i]",
	"button[class*='consent' i][class*='accept' i]",
}

// consentTexts are lowercase labels treated as accept triggers when no
// selector candidate matched.
var consentTexts = []string{
	"accept all", "accept cookies", "accept", "i agree", "agree", "allow all", "got it",
}

// Stabilizer neutralizes sources of run-to-run visual non-determinism before
// content is captured.
type Stabilizer struct {
	logger *zap.Logger
}

// NewStabilizer creates a Stabilizer.
func NewStabilizer(logger *zap.Logger) *Stabilizer {
	return &Stabilizer{logger: logger.Named("stabilizer")}
}

// PrepareBeforeLoad arms the page before navigation: the freeze stylesheet
// is installed on every new document prior to first paint, and the browser
// is asked for a reduced-motion media preference.
func (s *Stabilizer) PrepareBeforeLoad(p *browser.Page, timeout time.Duration) error {
	script := injectStyleScript(freezeCSS)

	err := p.Run(timeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
		emulation.SetEmulatedMedia().WithFeatures([]*emulation.MediaFeature{
			{Name: "prefers-reduced-motion", Value: "reduce"},
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to arm stabilization overrides: %w", err)
	}
	return nil
}

// injectStyleScript returns a script that appends a style element as soon as
// the document root exists, ahead of first paint.
func injectStyleScript(css string) string {
	cssJSON, _ := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(css)
	return fmt.Sprintf(`(() => {
  const style = document.createElement('style');
  style.textContent = %s;
  const attach = () => (document.head || document.documentElement).appendChild(style);
  if (document.documentElement) { attach(); }
  else { document.addEventListener('readystatechange', attach, { once: true }); }
})();`, cssJSON)
}

// DismissConsent walks the ordered consent candidates and clicks the first
// visible match, then waits briefly for the banner to leave. Single-shot and
// best-effort: a page without a banner is not an error.
func (s *Stabilizer) DismissConsent(p *browser.Page, settle, timeout time.Duration) error {
	json := jsoniter.ConfigCompatibleWithStandardLibrary
	selectorsJSON, _ := json.MarshalToString(consentSelectors)
	textsJSON, _ := json.MarshalToString(consentTexts)

	script := fmt.Sprintf(`(() => {
  const visible = (el) => {
    if (!el) return false;
    const rect = el.getBoundingClientRect();
    return rect.width > 0 && rect.height > 0 && getComputedStyle(el).visibility !== 'hidden';
  };
  for (const sel of %s) {
    let el;
    try { el = document.querySelector(sel); } catch (e) { continue; }
    if (visible(el)) { el.click(); return sel; }
  }
  const texts = %s;
  for (const el of document.querySelectorAll('button, a, [role="button"]')) {
    const label = (el.textContent || '').trim().toLowerCase();
    if (texts.includes(label) && visible(el)) { el.click(); return 'text:' + label; }
  }
  return '';
})();`, selectorsJSON, textsJSON)

	var matched string
	if err := p.Run(timeout, chromedp.Evaluate(script, &matched)); err != nil {
		return fmt.Errorf("consent dismissal probe failed: %w", err)
	}
	if matched == "" {
		s.logger.Debug("No consent banner detected.")
		return nil
	}

	s.logger.Debug("Dismissed consent banner.", zap.String("trigger", matched))
	return p.Run(timeout, chromedp.Sleep(settle))
}

// BuildMaskCSS renders the rule hiding all elements matching the mask
// selectors, so volatile regions never register as diffs.
func BuildMaskCSS(selectors []string) string {
	trimmed := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		if s := strings.TrimSpace(sel); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return ""
	}
	return strings.Join(trimmed, ", ") + " { visibility: hidden !important; opacity: 0 !important; }"
}

// ApplyMasks hides the caller-supplied mask selectors on the live document.
// Failure is logged and non-fatal; a missing mask degrades the diff rather
// than aborting the capture.
func (s *Stabilizer) ApplyMasks(p *browser.Page, selectors []string, timeout time.Duration) {
	css := BuildMaskCSS(selectors)
	if css == "" {
		return
	}

	script := injectStyleScript(css)
	if err := p.Run(timeout, chromedp.Evaluate(script, nil)); err != nil {
		s.logger.Warn("Failed to apply mask selectors; volatile regions may diff.",
			zap.Int("selector_count", len(selectors)), zap.Error(err))
	}
}
