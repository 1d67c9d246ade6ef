// internal/browser/options.go
package browser

import (
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/waypoint/internal/config"
)

// execAllocatorOptions translates the browser config into Chrome flags.
func execAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	// Copy so the package-level defaults are never appended to in place.
	opts := make([]chromedp.ExecAllocatorOption, 0, len(chromedp.DefaultExecAllocatorOptions)+8)
	opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	// Debug runs are always headed so the operator can watch the flow.
	headless := cfg.Headless && !cfg.Debug
	opts = append(opts, chromedp.Flag("headless", headless))

	if cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if !hasValue {
			opts = append(opts, chromedp.Flag(name, true))
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}
