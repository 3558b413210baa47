package visual

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/shotcheck/internal/imagestore"
	"github.com/xkilldash9x/shotcheck/internal/perceptual"
	"github.com/xkilldash9x/shotcheck/internal/renderer"
)

const (
	suiteDir      = "/suite"
	expectedRed   = "/suite/expected-screenshots/red.png"
	processedRed  = "/suite/processed-screenshots/red.png"
	reproducePage = "index.php?module=Dashboard"
)

var (
	redPNG  = []byte("\x89PNG red")
	bluePNG = []byte("\x89PNG blue")
)

type fixture struct {
	fs       *countingFs
	store    *imagestore.Store
	page     *fakeRenderer
	diff     *fakeDiff
	failures *FailureLog
	out      *bytes.Buffer
	engine   *Engine
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()
	fs := newCountingFs(afero.NewMemMapFs())
	f := &fixture{
		fs: fs,
		store: imagestore.New(fs, imagestore.Layout{
			ExpectedDir:  "expected-screenshots",
			ProcessedDir: "processed-screenshots",
			DiffDir:      "screenshot-diffs",
		}),
		page:     &fakeRenderer{fs: fs, url: reproducePage, shot: redPNG},
		diff:     &fakeDiff{},
		failures: NewFailureLog(),
		out:      &bytes.Buffer{},
	}
	deps := Deps{
		Renderer: f.page,
		Store:    f.store,
		Diff:     f.diff,
		Failures: f.failures,
		Suite:    Suite{Title: "Dashboard", BaseDirectory: suiteDir},
		Logger:   zaptest.NewLogger(t),
		Out:      f.out,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	e, err := New(deps)
	require.NoError(t, err)
	f.engine = e
	return f
}

func (f *fixture) writeExpected(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, f.store.Write(path, data))
}

func requireFailure(t *testing.T, err error, kind Kind) *Failure {
	t.Helper()
	require.Error(t, err)
	failure, ok := AsFailure(err)
	require.True(t, ok, "expected a *Failure, got %T: %v", err, err)
	require.Equal(t, kind, failure.Kind(), "reason: %s", failure.Reason())
	return failure
}

func TestNew_RequiresCollaborators(t *testing.T) {
	store := imagestore.New(afero.NewMemMapFs(), imagestore.Layout{})
	page := &fakeRenderer{}
	diff := &fakeDiff{}

	_, err := New(Deps{Store: store, Diff: diff})
	assert.ErrorIs(t, err, ErrNoRenderer)
	_, err = New(Deps{Renderer: page, Diff: diff})
	assert.ErrorIs(t, err, ErrNoStore)
	_, err = New(Deps{Renderer: page, Store: store})
	assert.ErrorIs(t, err, ErrNoDiffClient)

	e, err := New(Deps{Renderer: page, Store: store, Diff: diff})
	require.NoError(t, err)
	assert.NotNil(t, e.Failures(), "a failure log is created when none is shared")
}

func TestVerify_IdenticalBytesPass(t *testing.T) {
	f := newFixture(t)
	f.writeExpected(t, expectedRed, redPNG)

	err := f.engine.Capture(context.Background(), "red", nil)
	require.NoError(t, err)
	assert.Empty(t, f.diff.Calls(), "identical bytes never reach the diff client")
	assert.Zero(t, f.failures.Len())
	assert.True(t, f.store.IsDirectory("/suite/screenshot-diffs"), "diff directory is prepared")
}

func TestVerify_ZeroPerceptualMismatchPasses(t *testing.T) {
	f := newFixture(t)
	f.writeExpected(t, expectedRed, bluePNG)

	err := f.engine.Capture(context.Background(), "red", nil)
	require.NoError(t, err)

	calls := f.diff.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, [2]string{perceptual.FileURI(processedRed), perceptual.FileURI(expectedRed)}, calls[0],
		"processed screenshot is compared against the expected one")
	assert.Zero(t, f.failures.Len())
}

func TestVerify_MismatchFails(t *testing.T) {
	tests := []struct {
		name     string
		mismatch perceptual.Mismatch
		want     string
	}{
		{"five percent", perceptual.Mismatch{Percentage: 5, DiffPixels: 5, TotalPixels: 100}, "(mismatch = 5)"},
		{"single pixel on a large page", perceptual.Mismatch{Percentage: 0.0001, DiffPixels: 1, TotalPixels: 1000000}, "(mismatch = 0.0001)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.page.logs = []string{"console.error: widget failed"}
			f.writeExpected(t, expectedRed, bluePNG)
			f.diff.mismatch = tt.mismatch

			err := f.engine.Capture(context.Background(), "red", nil)
			failure := requireFailure(t, err, KindVisualMismatch)

			assert.Equal(t, "Processed screenshot does not match expected for red.png. "+tt.want, failure.Reason())
			assert.Contains(t, failure.Diagnostic(), "Url to reproduce: "+reproducePage)
			assert.Contains(t, failure.Diagnostic(), "Generated screenshot: "+processedRed)
			assert.Contains(t, failure.Diagnostic(), "Expected screenshot: "+expectedRed)
			assert.Contains(t, failure.Diagnostic(), "Rendering logs:\n"+diagnosticIndent+"  console.error: widget failed")

			m, ok := failure.Mismatch()
			require.True(t, ok)
			assert.Equal(t, tt.mismatch, m)

			want := ScreenshotTest{Name: "red", ExpectedPath: expectedRed, ProcessedPath: processedRed, BaseDirectory: suiteDir}
			got, ok := failure.Test()
			require.True(t, ok)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("failure test mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]ScreenshotTest{want}, f.failures.Entries()); diff != "" {
				t.Errorf("failure log mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVerify_MissingExpected(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Capture(context.Background(), "red", nil)
	failure := requireFailure(t, err, KindMissingArtifact)

	assert.Equal(t, "No expected screenshot found for red.png.", failure.Reason())
	assert.Contains(t, failure.Diagnostic(), "Expected screenshot: "+expectedRed+" (not found)")
	assert.Contains(t, failure.Diagnostic(), "Generated screenshot: "+processedRed+"\n")
	assert.Empty(t, f.diff.Calls(), "no perceptual comparison without a baseline")

	got, ok := failure.Test()
	require.True(t, ok)
	assert.Empty(t, got.ExpectedPath)
	assert.Equal(t, processedRed, got.ProcessedPath)
	assert.Equal(t, 1, f.failures.Len())
}

func TestVerify_MissingProcessed(t *testing.T) {
	f := newFixture(t)
	f.writeExpected(t, expectedRed, redPNG)
	f.page.shot = nil
	// A capture from an earlier run must not stand in for this one.
	require.NoError(t, f.store.Write(processedRed, redPNG))
	opensBefore := f.fs.Opens(expectedRed)

	err := f.engine.Capture(context.Background(), "red", nil)
	failure := requireFailure(t, err, KindMissingArtifact)

	assert.Equal(t, "Failed to generate screenshot to red.png.", failure.Reason())
	assert.Contains(t, failure.Diagnostic(), "Generated screenshot: "+processedRed+" (not found)")
	assert.Equal(t, opensBefore, f.fs.Opens(expectedRed), "expected screenshot is never read")
	assert.Empty(t, f.diff.Calls())
	assert.Equal(t, 1, f.failures.Len())
}

func TestVerify_RendererFailures(t *testing.T) {
	boom := errors.New("boom")

	t.Run("capture error", func(t *testing.T) {
		f := newFixture(t)
		f.page.logs = []string{"console.log: hi"}
		f.page.captureErr = boom

		err := f.engine.Capture(context.Background(), "red", nil)
		failure := requireFailure(t, err, KindCapture)

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "Capture of red.png failed: boom", failure.Reason())
		assert.Equal(t, "boom\n     Url to reproduce: "+reproducePage+"\n\n     Rendering logs:\n       console.log: hi", failure.Diagnostic())
		_, hasTest := failure.Test()
		assert.False(t, hasTest)
		assert.Zero(t, f.failures.Len(), "renderer failures are not comparison failures")
	})

	t.Run("setup error skips capture", func(t *testing.T) {
		f := newFixture(t)
		setup := func(ctx context.Context, page renderer.Page) error {
			if err := page.Click(ctx, "#menu"); err != nil {
				return err
			}
			return boom
		}

		err := f.engine.Capture(context.Background(), "red", setup)
		requireFailure(t, err, KindCapture)
		assert.Equal(t, []string{"click:#menu"}, f.page.Calls())
	})

	t.Run("diff client error", func(t *testing.T) {
		f := newFixture(t)
		f.writeExpected(t, expectedRed, bluePNG)
		f.diff.err = boom

		err := f.engine.Capture(context.Background(), "red", nil)
		requireFailure(t, err, KindDiff)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, f.failures.Len())
	})
}

func TestVerify_Naming(t *testing.T) {
	ctx := context.Background()

	t.Run("named screen compares against the baseline", func(t *testing.T) {
		f := newFixture(t)
		f.writeExpected(t, "/suite/expected-screenshots/Dashboard_base.png", redPNG)

		err := f.engine.CaptureNamed(ctx, f.engine.ScreenshotName("base"), "mobile", nil)
		require.NoError(t, err)
		assert.True(t, f.store.IsFile("/suite/processed-screenshots/Dashboard_mobile.png"))
	})

	t.Run("selector is passed to the renderer", func(t *testing.T) {
		f := newFixture(t)
		f.writeExpected(t, expectedRed, redPNG)

		require.NoError(t, f.engine.CaptureSelector(ctx, "red", "#widget", nil))
		assert.Equal(t, []string{"capture:" + processedRed + "|#widget"}, f.page.Calls())
	})

	t.Run("named selector capture", func(t *testing.T) {
		f := newFixture(t)
		f.writeExpected(t, expectedRed, redPNG)

		require.NoError(t, f.engine.CaptureSelectorNamed(ctx, "red", "widget", "#widget", nil))
		assert.Equal(t, []string{"capture:/suite/processed-screenshots/Dashboard_widget.png|#widget"}, f.page.Calls())
	})

	t.Run("empty screen name", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.engine.Verify(ctx, Capture{Baseline: "red"}), ErrEmptyScreen)
		assert.ErrorIs(t, f.engine.CaptureNamed(ctx, "red", "", nil), ErrEmptyScreen)
		assert.Empty(t, f.page.Calls(), "usage errors do no page work")
	})

	t.Run("processed screenshots in a repository root", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		store := imagestore.New(fs, imagestore.Layout{
			ExpectedDir:  "expected-screenshots",
			ProcessedDir: "processed-screenshots",
			DiffDir:      "screenshot-diffs",
			RepoRoot:     "/ui-tests",
		})
		page := &fakeRenderer{fs: fs, shot: redPNG}
		e, err := New(Deps{Renderer: page, Store: store, Diff: &fakeDiff{}, Suite: Suite{Title: "Dashboard", BaseDirectory: suiteDir}})
		require.NoError(t, err)
		require.NoError(t, store.Write(expectedRed, redPNG))

		require.NoError(t, e.Capture(ctx, "red", nil))
		assert.True(t, store.IsFile("/ui-tests/processed-screenshots/red.png"))
	})
}

func TestVerify_FailureLogHoldsEachTestOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	requireFailure(t, f.engine.Capture(ctx, "red", nil), KindMissingArtifact)
	requireFailure(t, f.engine.Capture(ctx, "red", nil), KindMissingArtifact)
	assert.Equal(t, 1, f.failures.Len())

	other := f.engine.WithSuite(Suite{Title: "Other", BaseDirectory: "/other"})
	requireFailure(t, other.Capture(ctx, "red", nil), KindMissingArtifact)
	assert.Equal(t, 2, f.failures.Len(), "suites share the failure log")
}

func TestVerify_PrintLogs(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Options.PrintLogs = true })
	f.page.logs = []string{"console.log: rendered"}
	f.writeExpected(t, expectedRed, redPNG)

	require.NoError(t, f.engine.Capture(context.Background(), "red", nil))
	assert.True(t, strings.Contains(f.out.String(), "Rendering logs:"))
	assert.Contains(t, f.out.String(), "console.log: rendered")

	quiet := newFixture(t)
	quiet.page.logs = []string{"console.log: rendered"}
	quiet.writeExpected(t, expectedRed, redPNG)
	require.NoError(t, quiet.engine.Capture(context.Background(), "red", nil))
	assert.Empty(t, quiet.out.String())
}

func TestVerifyAsync(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	t.Run("missing completion", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.engine.VerifyAsync(ctx, Capture{Screen: "red"}, nil), ErrNoCompletion)
		assert.Empty(t, f.page.Calls())
	})

	t.Run("empty screen", func(t *testing.T) {
		f := newFixture(t)
		called := false
		err := f.engine.VerifyAsync(ctx, Capture{}, func(error) { called = true })
		assert.ErrorIs(t, err, ErrEmptyScreen)
		assert.False(t, called)
	})

	t.Run("completes exactly once", func(t *testing.T) {
		f := newFixture(t)
		f.writeExpected(t, expectedRed, bluePNG)
		f.diff.mismatch = perceptual.Mismatch{Percentage: 5}

		results := make(chan error, 2)
		require.NoError(t, f.engine.VerifyAsync(ctx, Capture{Screen: "red"}, func(err error) { results <- err }))

		select {
		case err := <-results:
			requireFailure(t, err, KindVisualMismatch)
		case <-time.After(5 * time.Second):
			t.Fatal("completion was never called")
		}
		select {
		case err := <-results:
			t.Fatalf("completion called twice, second verdict: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
	})
}
