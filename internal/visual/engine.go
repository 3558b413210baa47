// Package visual decides whether a rendered page matches its stored baseline
// screenshot, and whether it contains a given element.
package visual

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/shotcheck/internal/imagestore"
	"github.com/xkilldash9x/shotcheck/internal/perceptual"
	"github.com/xkilldash9x/shotcheck/internal/renderer"
)

// Suite identifies the test suite the checks belong to.
type Suite struct {
	// Title prefixes screenshot names built by ScreenshotName.
	Title string
	// BaseDirectory holds the expected screenshots, and the processed and
	// diff screenshots unless a repository root overrides them.
	BaseDirectory string
}

type Options struct {
	// PrintLogs writes page logs to Out after passing screenshot checks.
	PrintLogs bool
}

// Deps are the collaborators an Engine works with.
type Deps struct {
	Renderer renderer.Renderer
	Store    *imagestore.Store
	Diff     perceptual.Client
	Failures *FailureLog
	Suite    Suite
	Options  Options
	Logger   *zap.Logger
	Out      io.Writer
}

// Engine runs screenshot and containment checks against a single renderer.
// It holds no per-check state; callers serialise checks because the renderer
// is one stateful page.
type Engine struct {
	renderer renderer.Renderer
	store    *imagestore.Store
	diff     perceptual.Client
	failures *FailureLog
	suite    Suite
	opts     Options
	logger   *zap.Logger
	out      io.Writer
}

func New(deps Deps) (*Engine, error) {
	if deps.Renderer == nil {
		return nil, ErrNoRenderer
	}
	if deps.Store == nil {
		return nil, ErrNoStore
	}
	if deps.Diff == nil {
		return nil, ErrNoDiffClient
	}

	e := &Engine{
		renderer: deps.Renderer,
		store:    deps.Store,
		diff:     deps.Diff,
		failures: deps.Failures,
		suite:    deps.Suite,
		opts:     deps.Options,
		logger:   deps.Logger,
		out:      deps.Out,
	}
	if e.failures == nil {
		e.failures = NewFailureLog()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.out == nil {
		e.out = os.Stdout
	}
	e.logger = e.logger.Named("visual")
	return e, nil
}

// WithSuite returns an engine sharing every collaborator, including the
// failure log, but checking screenshots of another suite.
func (e *Engine) WithSuite(s Suite) *Engine {
	clone := *e
	clone.suite = s
	return &clone
}

func (e *Engine) Suite() Suite { return e.suite }

func (e *Engine) Failures() *FailureLog { return e.failures }

// ScreenshotName prefixes file with the suite title.
func (e *Engine) ScreenshotName(file string) string {
	return e.suite.Title + "_" + file
}

// Capture describes one screenshot check.
type Capture struct {
	// Screen names the processed screenshot. Required.
	Screen string
	// Baseline names the expected screenshot. Defaults to Screen.
	Baseline string
	// Selector limits the capture to one element's box.
	Selector string
	Setup    renderer.SetupFunc
}

// Capture checks the page against baseline, saving the processed screenshot
// under the same name.
func (e *Engine) Capture(ctx context.Context, baseline string, setup renderer.SetupFunc) error {
	return e.Verify(ctx, Capture{Screen: baseline, Baseline: baseline, Setup: setup})
}

// CaptureNamed checks the page against baseline, saving the processed
// screenshot as the suite-prefixed screen name.
func (e *Engine) CaptureNamed(ctx context.Context, baseline, screen string, setup renderer.SetupFunc) error {
	if screen == "" {
		return ErrEmptyScreen
	}
	return e.Verify(ctx, Capture{Screen: e.ScreenshotName(screen), Baseline: baseline, Setup: setup})
}

func (e *Engine) CaptureSelector(ctx context.Context, baseline, selector string, setup renderer.SetupFunc) error {
	return e.Verify(ctx, Capture{Screen: baseline, Baseline: baseline, Selector: selector, Setup: setup})
}

func (e *Engine) CaptureSelectorNamed(ctx context.Context, baseline, screen, selector string, setup renderer.SetupFunc) error {
	if screen == "" {
		return ErrEmptyScreen
	}
	return e.Verify(ctx, Capture{Screen: e.ScreenshotName(screen), Baseline: baseline, Selector: selector, Setup: setup})
}

// VerifyAsync runs Verify in the background and reports the verdict to done
// exactly once. Usage errors are returned directly and done is not called.
func (e *Engine) VerifyAsync(ctx context.Context, c Capture, done func(error)) error {
	if done == nil {
		return ErrNoCompletion
	}
	if c.Screen == "" {
		return ErrEmptyScreen
	}
	go func() {
		done(e.Verify(ctx, c))
	}()
	return nil
}

// Verify captures the page and compares it with the expected screenshot.
// It returns nil on a match, a *Failure when the check fails and a usage
// error when c is invalid.
func (e *Engine) Verify(ctx context.Context, c Capture) error {
	if c.Screen == "" {
		return ErrEmptyScreen
	}
	baseline := c.Baseline
	if baseline == "" {
		baseline = c.Screen
	}
	setup := c.Setup
	if setup == nil {
		setup = renderer.NoSetup
	}

	base := e.suite.BaseDirectory
	fileName := c.Screen + imagestore.Extension
	processedPath := e.store.ProcessedPath(base, c.Screen)
	expectedPath := e.store.ExpectedPath(base, baseline)
	logger := e.logger.With(zap.String("screen", c.Screen), zap.String("baseline", baseline))

	for _, dir := range []string{e.store.ProcessedDir(base), e.store.DiffDir(base)} {
		if err := e.store.EnsureDir(dir); err != nil {
			return e.rendererFailure(fileName, err)
		}
	}
	// A screenshot left over from an earlier run must not pass for this one.
	if err := e.store.Remove(processedPath); err != nil {
		return e.rendererFailure(fileName, err)
	}

	if err := setup(ctx, e.renderer); err != nil {
		logger.Warn("Page setup failed.", zap.Error(err))
		return e.rendererFailure(fileName, err)
	}
	if err := e.renderer.Capture(ctx, processedPath, c.Selector); err != nil {
		logger.Warn("Screenshot capture failed.", zap.Error(err))
		return e.rendererFailure(fileName, err)
	}

	test := ScreenshotTest{Name: c.Screen, BaseDirectory: base}
	if e.store.IsFile(processedPath) {
		test.ProcessedPath = processedPath
	}
	if e.store.IsFile(expectedPath) {
		test.ExpectedPath = expectedPath
	}
	cmp := comparison{test: test, processed: processedPath, expected: expectedPath}

	if test.ProcessedPath == "" {
		return e.fail(cmp, KindMissingArtifact, "Failed to generate screenshot to "+fileName+".", nil, nil)
	}
	if test.ExpectedPath == "" {
		return e.fail(cmp, KindMissingArtifact, "No expected screenshot found for "+fileName+".", nil, nil)
	}

	expected, err := e.store.Read(expectedPath)
	if err != nil {
		return e.fail(cmp, KindMissingArtifact, "Could not read expected screenshot for "+fileName+".", nil, err)
	}
	processed, err := e.store.Read(processedPath)
	if err != nil {
		return e.fail(cmp, KindMissingArtifact, "Could not read generated screenshot "+fileName+".", nil, err)
	}

	if bytes.Equal(processed, expected) {
		logger.Debug("Screenshot matches byte for byte.")
		return e.pass()
	}

	mismatch, err := e.diff.Compare(ctx, perceptual.FileURI(processedPath), perceptual.FileURI(expectedPath))
	if err != nil {
		logger.Warn("Perceptual comparison failed.", zap.Error(err))
		return e.fail(cmp, KindDiff, fmt.Sprintf("Could not compare processed screenshot with expected for %s: %v", fileName, err), nil, err)
	}
	if mismatch.Percentage != 0 {
		logger.Info("Screenshot differs from baseline.",
			zap.Stringer("mismatch", mismatch), zap.Int("diff_pixels", mismatch.DiffPixels))
		msg := fmt.Sprintf("Processed screenshot does not match expected for %s. (mismatch = %s)", fileName, mismatch)
		return e.fail(cmp, KindVisualMismatch, msg, &mismatch, nil)
	}

	logger.Debug("Screenshot matches perceptually.")
	return e.pass()
}

// comparison carries the resolved artifacts of one Verify call.
type comparison struct {
	test      ScreenshotTest
	processed string
	expected  string
}

func (e *Engine) pass() error {
	if e.opts.PrintLogs {
		if logs := FormatLogs(e.renderer.PageLogs(), diagnosticIndent); logs != "" {
			fmt.Fprintln(e.out, logs)
		}
	}
	return nil
}

func (e *Engine) fail(cmp comparison, kind Kind, message string, mismatch *perceptual.Mismatch, cause error) error {
	e.failures.Add(cmp.test)

	test := cmp.test
	return &Failure{
		kind:   kind,
		reason: message,
		diagnostic: screenshotDiagnostic(
			message,
			e.renderer.CurrentURL(),
			artifactLocation(test.ProcessedPath, cmp.processed),
			artifactLocation(test.ExpectedPath, cmp.expected),
			e.renderer.PageLogs(),
		),
		test:     &test,
		mismatch: mismatch,
		cause:    cause,
	}
}

func (e *Engine) rendererFailure(fileName string, err error) error {
	return &Failure{
		kind:       KindCapture,
		reason:     fmt.Sprintf("Capture of %s failed: %v", fileName, err),
		diagnostic: rendererDiagnostic(err.Error(), e.renderer.CurrentURL(), e.renderer.PageLogs()),
		cause:      err,
	}
}
