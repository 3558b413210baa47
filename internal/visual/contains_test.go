package visual

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/shotcheck/internal/renderer"
)

func openMenu(ctx context.Context, page renderer.Page) error {
	return page.Click(ctx, "#menu")
}

func TestContains_Navigation(t *testing.T) {
	ctx := context.Background()

	t.Run("current url is not reloaded", func(t *testing.T) {
		f := newFixture(t)
		f.page.present = map[string]bool{".widget": true}

		err := f.engine.Contains(ctx, Containment{URL: reproducePage, Selector: ".widget", Setup: openMenu})
		require.NoError(t, err)
		assert.Equal(t, []string{"click:#menu", "capture:|", "contains:.widget"}, f.page.Calls())
	})

	t.Run("other url is loaded once before setup", func(t *testing.T) {
		f := newFixture(t)
		f.page.present = map[string]bool{".widget": true}

		err := f.engine.Contains(ctx, Containment{URL: "index.php?module=Goals", Selector: ".widget", Setup: openMenu})
		require.NoError(t, err)
		assert.Equal(t, []string{"load:index.php?module=Goals", "click:#menu", "capture:|", "contains:.widget"}, f.page.Calls())
	})

	t.Run("no url keeps the page", func(t *testing.T) {
		f := newFixture(t)
		f.page.present = map[string]bool{".widget": true}

		require.NoError(t, f.engine.Contains(ctx, Containment{Selector: ".widget"}))
		assert.Equal(t, []string{"capture:|", "contains:.widget"}, f.page.Calls())
	})
}

func TestContains_Verdicts(t *testing.T) {
	ctx := context.Background()

	t.Run("negated and absent", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.engine.Contains(ctx, Containment{Selector: ".error", Negate: true}))
	})

	t.Run("missing element", func(t *testing.T) {
		f := newFixture(t)
		f.page.logs = []string{"console.warn: slow"}

		err := f.engine.Contains(ctx, Containment{Selector: ".widget"})
		failure := requireFailure(t, err, KindStructuralMismatch)

		assert.Equal(t, "Expected page to contain element '.widget', but could not find it in page.", failure.Reason())
		assert.Contains(t, failure.Diagnostic(), "Url to reproduce: "+reproducePage+"\n")
		assert.Contains(t, failure.Diagnostic(), "NOTE: No screenshot name was supplied")
		assert.Contains(t, failure.Diagnostic(), "Rendering logs:")
	})

	t.Run("unexpected element with debug screenshot", func(t *testing.T) {
		f := newFixture(t)
		f.page.present = map[string]bool{".error": true}

		err := f.engine.Contains(ctx, Containment{Selector: ".error", Negate: true, Screen: "menu"})
		failure := requireFailure(t, err, KindStructuralMismatch)

		const shot = "/suite/processed-screenshots/Dashboard_menu.png"
		assert.Equal(t, "Expected page to not contain element '.error', but found it in page.", failure.Reason())
		assert.Contains(t, failure.Diagnostic(), "View the captured screenshot at '"+shot+"'.")
		assert.True(t, f.store.IsFile(shot))
	})

	t.Run("debug screenshot the renderer did not write", func(t *testing.T) {
		f := newFixture(t)
		f.page.shot = nil
		f.page.present = map[string]bool{".error": true}

		err := f.engine.Contains(ctx, Containment{Selector: ".error", Negate: true, Screen: "menu"})
		failure := requireFailure(t, err, KindStructuralMismatch)

		const shot = "/suite/processed-screenshots/Dashboard_menu.png"
		assert.Contains(t, failure.Diagnostic(), "View the captured screenshot at '"+shot+" (not found)'.")
		assert.False(t, f.store.IsFile(shot))
	})

	t.Run("never compares or records failures", func(t *testing.T) {
		f := newFixture(t)
		_ = f.engine.Contains(ctx, Containment{Selector: ".widget", Screen: "menu"})
		assert.Empty(t, f.diff.Calls())
		assert.Zero(t, f.failures.Len())
	})
}

func TestContains_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("net::ERR_CONNECTION_REFUSED")

	t.Run("empty selector", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.engine.Contains(ctx, Containment{URL: "x"}), ErrEmptySelector)
		assert.Empty(t, f.page.Calls())
	})

	t.Run("load error", func(t *testing.T) {
		f := newFixture(t)
		f.page.loadErr = boom

		err := f.engine.Contains(ctx, Containment{URL: "index.php", Selector: ".widget", Setup: openMenu})
		failure := requireFailure(t, err, KindCapture)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"load:index.php"}, f.page.Calls(), "setup does not run after a failed load")
		assert.Equal(t, boom.Error()+"\n"+diagnosticIndent+"Url to reproduce: index.php", failure.Diagnostic())
	})

	t.Run("capture error", func(t *testing.T) {
		f := newFixture(t)
		f.page.captureErr = boom

		err := f.engine.Contains(ctx, Containment{Selector: ".widget"})
		failure := requireFailure(t, err, KindCapture)
		assert.Equal(t, boom.Error()+"\n"+diagnosticIndent+"Url to reproduce: "+reproducePage, failure.Diagnostic())
	})
}

func TestContainsAsync(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.engine.ContainsAsync(ctx, Containment{Selector: ".widget"}, nil), ErrNoCompletion)
	assert.ErrorIs(t, f.engine.ContainsAsync(ctx, Containment{}, func(error) {}), ErrEmptySelector)

	done := make(chan error, 1)
	require.NoError(t, f.engine.ContainsAsync(ctx, Containment{Selector: ".widget", Negate: true}, func(err error) { done <- err }))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("completion was never called")
	}
}
