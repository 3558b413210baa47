package renderer

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shotcheck/internal/config"
)

const locationTimeout = 5 * time.Second

// Chrome is a Renderer backed by a single headless Chrome tab.
type Chrome struct {
	cfg     config.BrowserConfig
	baseURL *url.URL
	fs      afero.Fs
	logger  *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	logs pageLog

	mu            sync.Mutex
	lastRequested string
	lastResolved  string
	isClosed      bool
}

var _ Renderer = (*Chrome)(nil)

// NewChrome launches the browser and attaches to its first tab. Screenshots
// are written through fs.
func NewChrome(ctx context.Context, cfg config.BrowserConfig, baseURL string, fs afero.Fs, logger *zap.Logger) (*Chrome, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	c := &Chrome{
		cfg:     cfg,
		baseURL: base,
		fs:      fs,
		logger:  logger.Named("renderer"),
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(c.logger.Sugar().Debugf),
		chromedp.WithErrorf(c.logger.Sugar().Debugf),
	)
	c.allocCancel, c.browserCtx, c.browserCancel = allocCancel, browserCtx, browserCancel

	chromedp.ListenTarget(browserCtx, c.logs.handle)

	if err := chromedp.Run(browserCtx, runtime.Enable(), log.Enable()); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	c.logger.Info("Browser started.",
		zap.Bool("headless", cfg.Headless),
		zap.Int("viewport_width", cfg.Viewport.Width),
		zap.Int("viewport_height", cfg.Viewport.Height))
	return c, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (c *Chrome) Close() {
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return
	}
	c.isClosed = true
	c.mu.Unlock()

	c.browserCancel()
	c.allocCancel()
	c.logger.Debug("Browser closed.")
}

func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(c.browserCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Resolve turns a suite-relative url into an absolute one.
func (c *Chrome) Resolve(rawURL string) (string, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

// Load navigates the tab and starts a fresh page log.
func (c *Chrome) Load(ctx context.Context, rawURL string) error {
	target, err := c.Resolve(rawURL)
	if err != nil {
		return err
	}

	if c.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.NavigationTimeout)
		defer cancel()
	}

	c.logs.reset()
	c.logger.Debug("Loading page.", zap.String("url", target))
	if err := c.run(ctx, chromedp.Navigate(target), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to load %s: %w", target, err)
	}

	var location string
	if err := c.run(ctx, chromedp.Location(&location)); err != nil {
		location = target
	}

	c.mu.Lock()
	c.lastRequested, c.lastResolved = rawURL, location
	c.mu.Unlock()
	return nil
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	if err := c.run(ctx, chromedp.Click(selector, chromedp.NodeVisible, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to click %q: %w", selector, err)
	}
	return nil
}

func (c *Chrome) SendKeys(ctx context.Context, selector, text string) error {
	if err := c.run(ctx, chromedp.SendKeys(selector, text, chromedp.NodeVisible, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to type into %q: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Evaluate(ctx context.Context, script string, res interface{}) error {
	if err := c.run(ctx, chromedp.Evaluate(script, res)); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

func (c *Chrome) WaitVisible(ctx context.Context, selector string) error {
	if err := c.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed waiting for %q: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Chrome) SetViewport(ctx context.Context, width, height int) error {
	if err := c.run(ctx, chromedp.EmulateViewport(int64(width), int64(height))); err != nil {
		return fmt.Errorf("failed to set viewport %dx%d: %w", width, height, err)
	}
	return nil
}

// Capture settles the page and writes a PNG screenshot to dest.
func (c *Chrome) Capture(ctx context.Context, dest, selector string) error {
	var buf []byte
	tasks := chromedp.Tasks{chromedp.WaitReady("body", chromedp.ByQuery)}
	if c.cfg.PostLoadWait > 0 {
		tasks = append(tasks, chromedp.Sleep(c.cfg.PostLoadWait))
	}
	if dest != "" {
		if selector != "" {
			tasks = append(tasks, chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, chromedp.ByQuery))
		} else {
			// Quality 100 makes chromedp encode PNG instead of JPEG.
			tasks = append(tasks, chromedp.FullScreenshot(&buf, 100))
		}
	}

	if err := c.run(ctx, tasks); err != nil {
		if selector != "" {
			return fmt.Errorf("failed to capture selector %q: %w", selector, err)
		}
		return fmt.Errorf("failed to capture page: %w", err)
	}
	if dest == "" {
		return nil
	}

	if err := c.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := afero.WriteFile(c.fs, dest, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot %s: %w", dest, err)
	}
	c.logger.Debug("Screenshot captured.", zap.String("path", dest), zap.Int("bytes", len(buf)))
	return nil
}

func (c *Chrome) Contains(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return false, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	return len(nodes) > 0, nil
}

// CurrentURL returns the url last passed to Load while the tab is still
// there, and the tab's absolute location once the page navigated elsewhere.
func (c *Chrome) CurrentURL() string {
	ctx, cancel := context.WithTimeout(context.Background(), locationTimeout)
	defer cancel()

	var location string
	if err := c.run(ctx, chromedp.Location(&location)); err != nil {
		c.logger.Debug("Could not read tab location.", zap.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if location == "" || location == c.lastResolved {
		return c.lastRequested
	}
	return location
}

func (c *Chrome) PageLogs() []string { return c.logs.snapshot() }

func (c *Chrome) ResetLogs() { c.logs.reset() }
