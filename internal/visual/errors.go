package visual

import (
	"errors"

	"github.com/xkilldash9x/shotcheck/internal/perceptual"
)

// Usage errors are returned synchronously, before any page work starts.
var (
	ErrNoCompletion  = errors.New("visual: no completion callback specified")
	ErrEmptyScreen   = errors.New("visual: screen name must not be empty")
	ErrEmptySelector = errors.New("visual: element selector must not be empty")
	ErrNoRenderer    = errors.New("visual: a renderer is required")
	ErrNoStore       = errors.New("visual: an image store is required")
	ErrNoDiffClient  = errors.New("visual: a perceptual diff client is required")
)

// Kind classifies a failed verdict.
type Kind int

const (
	// KindCapture: the renderer could not set up or capture the page.
	KindCapture Kind = iota + 1
	// KindMissingArtifact: no processed or no expected screenshot.
	KindMissingArtifact
	// KindVisualMismatch: the perceptual diff is non-zero.
	KindVisualMismatch
	// KindStructuralMismatch: a containment assertion was violated.
	KindStructuralMismatch
	// KindDiff: the perceptual diff client itself failed.
	KindDiff
)

func (k Kind) String() string {
	switch k {
	case KindCapture:
		return "capture_failure"
	case KindMissingArtifact:
		return "missing_artifact"
	case KindVisualMismatch:
		return "visual_mismatch"
	case KindStructuralMismatch:
		return "structural_mismatch"
	case KindDiff:
		return "diff_failure"
	default:
		return "unknown"
	}
}

// Failure is a Fail verdict. It is fully built when created and has no setters.
type Failure struct {
	kind       Kind
	reason     string
	diagnostic string
	test       *ScreenshotTest
	mismatch   *perceptual.Mismatch
	cause      error
}

func (f *Failure) Error() string { return f.reason }

func (f *Failure) Unwrap() error { return f.cause }

func (f *Failure) Kind() Kind { return f.kind }

// Reason is the one-line failure message.
func (f *Failure) Reason() string { return f.reason }

// Diagnostic is the multi-line report: reason, reproduction url, artifact
// paths and page logs.
func (f *Failure) Diagnostic() string { return f.diagnostic }

// Test returns the screenshot test the failure is about, if any.
func (f *Failure) Test() (ScreenshotTest, bool) {
	if f.test == nil {
		return ScreenshotTest{}, false
	}
	return *f.test, true
}

// Mismatch returns the perceptual result for visual mismatches.
func (f *Failure) Mismatch() (perceptual.Mismatch, bool) {
	if f.mismatch == nil {
		return perceptual.Mismatch{}, false
	}
	return *f.mismatch, true
}

// AsFailure extracts the Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
