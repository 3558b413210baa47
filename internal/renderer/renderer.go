// Package renderer drives the browser page that screenshots are taken from.
package renderer

import (
	"context"
	"time"
)

// Page is what page setup functions see: enough to put the page into the
// state a screenshot should show.
type Page interface {
	// Load navigates to url. Relative urls resolve against the configured base URL.
	Load(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, text string) error
	// Evaluate runs script in the page and decodes its result into res (may be nil).
	Evaluate(ctx context.Context, script string, res interface{}) error
	WaitVisible(ctx context.Context, selector string) error
	Sleep(ctx context.Context, d time.Duration) error
	SetViewport(ctx context.Context, width, height int) error
}

// Renderer is the single, stateful page the verdict engines work against.
// Calls must be serialised by the caller.
type Renderer interface {
	Page
	// Capture waits for the page to settle and writes a PNG to dest, limited
	// to selector's bounding box when selector is non-empty. An empty dest
	// settles the page without writing anything.
	Capture(ctx context.Context, dest, selector string) error
	// Contains reports whether at least one element matches selector.
	Contains(ctx context.Context, selector string) (bool, error)
	CurrentURL() string
	// PageLogs returns a copy of the messages captured since the last reset.
	PageLogs() []string
	ResetLogs()
}

// SetupFunc positions the page before a capture.
type SetupFunc func(ctx context.Context, page Page) error

// NoSetup leaves the page as it is.
func NoSetup(context.Context, Page) error { return nil }
