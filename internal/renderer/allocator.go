package renderer

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/shotcheck/internal/config"
)

// AllocatorOptions builds the exec allocator options for cfg. Screenshots need
// deterministic rendering, so GPU and scrollbars are off.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("force-device-scale-factor", "1"),
		chromedp.Flag("font-render-hinting", "none"),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
	)

	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	for _, arg := range cfg.Args {
		name, value := parseFlag(arg)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseFlag splits "--name=value" into its parts; a bare "--name" is a boolean flag.
func parseFlag(arg string) (string, interface{}) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return "", nil
	}
	name, value, found := strings.Cut(arg, "=")
	if !found {
		return name, true
	}
	return name, value
}
