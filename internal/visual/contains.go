package visual

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/shotcheck/internal/renderer"
)

// Containment describes one element presence check.
type Containment struct {
	// URL is loaded first unless the page already shows it.
	URL      string
	Selector string
	// Screen, when set, keeps a suite-prefixed debug screenshot of the page.
	Screen string
	// Negate asserts the element is absent.
	Negate bool
	Setup  renderer.SetupFunc
}

// Contains checks that the page has (or, negated, lacks) an element matching
// c.Selector. It never compares screenshots and never records failures in
// the failure log.
func (e *Engine) Contains(ctx context.Context, c Containment) error {
	if c.Selector == "" {
		return ErrEmptySelector
	}
	setup := c.Setup
	if setup == nil {
		setup = renderer.NoSetup
	}
	logger := e.logger.With(zap.String("selector", c.Selector), zap.Bool("negate", c.Negate))

	if c.URL != "" && e.renderer.CurrentURL() != c.URL {
		if err := e.renderer.Load(ctx, c.URL); err != nil {
			logger.Warn("Page load failed.", zap.String("url", c.URL), zap.Error(err))
			return e.containmentCaptureFailure(c.URL, err)
		}
	}
	if err := setup(ctx, e.renderer); err != nil {
		return e.containmentCaptureFailure("", err)
	}

	var capturePath string
	if c.Screen != "" {
		base := e.suite.BaseDirectory
		if err := e.store.EnsureDir(e.store.ProcessedDir(base)); err != nil {
			return e.containmentCaptureFailure("", err)
		}
		capturePath = e.store.ProcessedPath(base, e.ScreenshotName(c.Screen))
	}
	if err := e.renderer.Capture(ctx, capturePath, ""); err != nil {
		return e.containmentCaptureFailure("", err)
	}

	found, err := e.renderer.Contains(ctx, c.Selector)
	if err != nil {
		return e.containmentCaptureFailure("", err)
	}
	if found != c.Negate {
		logger.Debug("Containment check passed.")
		return nil
	}

	var message string
	if c.Negate {
		message = fmt.Sprintf("Expected page to not contain element '%s', but found it in page.", c.Selector)
	} else {
		message = fmt.Sprintf("Expected page to contain element '%s', but could not find it in page.", c.Selector)
	}
	logger.Info("Containment check failed.", zap.Bool("found", found))

	var shown string
	if capturePath != "" {
		var found string
		if e.store.IsFile(capturePath) {
			found = capturePath
		}
		shown = artifactLocation(found, capturePath)
	}
	return &Failure{
		kind:       KindStructuralMismatch,
		reason:     message,
		diagnostic: containmentDiagnostic(message, e.renderer.CurrentURL(), shown, e.renderer.PageLogs()),
	}
}

// ContainsAsync runs Contains in the background and reports the verdict to
// done exactly once. Usage errors are returned directly.
func (e *Engine) ContainsAsync(ctx context.Context, c Containment, done func(error)) error {
	if done == nil {
		return ErrNoCompletion
	}
	if c.Selector == "" {
		return ErrEmptySelector
	}
	go func() {
		done(e.Contains(ctx, c))
	}()
	return nil
}

// containmentCaptureFailure reports url, or the page's current url when url
// is empty.
func (e *Engine) containmentCaptureFailure(url string, err error) error {
	if url == "" {
		url = e.renderer.CurrentURL()
	}
	return &Failure{
		kind:       KindCapture,
		reason:     fmt.Sprintf("Could not check page contents: %v", err),
		diagnostic: rendererDiagnostic(err.Error(), url, e.renderer.PageLogs()),
		cause:      err,
	}
}
