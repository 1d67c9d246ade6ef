// internal/browser/playwright.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
)

// PlaywrightDriver drives a single Chromium page through Playwright.
// Playwright calls are not context aware, so every call takes its timeout
// from the smaller of the requested value and the context deadline.
type PlaywrightDriver struct {
	logger     *zap.Logger
	navTimeout time.Duration
	pw         *playwright.Playwright
	browser    playwright.Browser
	bctx       playwright.BrowserContext
	page       playwright.Page
	closeOnce  sync.Once
	closeErr   error
}

var _ schemas.BrowserDriver = (*PlaywrightDriver)(nil)

// NewPlaywrightDriver starts the Playwright driver, a Chromium instance and one page.
func NewPlaywrightDriver(ctx context.Context, cfg config.BrowserConfig, navTimeout time.Duration, logger *zap.Logger) (*PlaywrightDriver, error) {
	log := logger.Named("playwright")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if cfg.InstallDrivers {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	headless := cfg.Headless && !cfg.Debug
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args:     normalizeArgs(cfg.Args),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(cfg.IgnoreTLSErrors),
	}
	if cfg.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(cfg.UserAgent)
	}
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if navTimeout <= 0 {
		navTimeout = 15 * time.Second
	}
	log.Info("Playwright session started.", zap.Bool("headless", headless))
	return &PlaywrightDriver{
		logger:     log,
		navTimeout: navTimeout,
		pw:         pw,
		browser:    browser,
		bctx:       bctx,
		page:       page,
	}, nil
}

func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "" {
			continue
		}
		if !strings.HasPrefix(a, "--") {
			a = "--" + strings.TrimLeft(a, "-")
		}
		out = append(out, a)
	}
	return out
}

// millis converts the effective timeout into Playwright's milliseconds.
func millis(ctx context.Context, timeout time.Duration) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	eff := effectiveTimeout(ctx, timeout)
	if eff <= 0 {
		return nil, context.DeadlineExceeded
	}
	return playwright.Float(float64(eff.Milliseconds())), nil
}

func waitUntil(wait schemas.WaitStrategy) *playwright.WaitUntilState {
	switch wait {
	case schemas.WaitLoad:
		return playwright.WaitUntilStateLoad
	case schemas.WaitNetworkIdle:
		return playwright.WaitUntilStateNetworkidle
	default:
		return playwright.WaitUntilStateDomcontentloaded
	}
}

func (d *PlaywrightDriver) Navigate(ctx context.Context, url string, wait schemas.WaitStrategy) error {
	d.logger.Debug("Navigating.", zap.String("url", url), zap.String("wait", string(wait)))
	ms, err := millis(ctx, d.navTimeout)
	if err != nil {
		return fmt.Errorf("navigation to %s not started: %w", url, err)
	}
	if _, err := d.page.Goto(url, playwright.PageGotoOptions{WaitUntil: waitUntil(wait), Timeout: ms}); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (d *PlaywrightDriver) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.page.URL(), nil
}

// EvaluateScript spreads args into the function expression, mirroring ChromeDriver.
func (d *PlaywrightDriver) EvaluateScript(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if args == nil {
		args = []interface{}{}
	}
	wrapped := fmt.Sprintf("(args) => (%s)(...args)", strings.TrimSpace(script))
	result, err := d.page.Evaluate(wrapped, args)
	if err != nil {
		return nil, fmt.Errorf("script evaluation failed: %w", err)
	}
	raw, err := jsonArgs.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode script result: %w", err)
	}
	return raw, nil
}

func (d *PlaywrightDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	ms, err := millis(ctx, timeout)
	if err != nil {
		return err
	}
	if err := d.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: ms}); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

func (d *PlaywrightDriver) ClickByText(ctx context.Context, text string, timeout time.Duration) error {
	ms, err := millis(ctx, timeout)
	if err != nil {
		return err
	}
	loc := d.page.Locator(`a, button, [role="button"], input[type="submit"]`, playwright.PageLocatorOptions{
		HasText: strings.TrimSpace(text),
	}).First()
	if err := loc.Click(playwright.LocatorClickOptions{Timeout: ms}); err != nil {
		return fmt.Errorf("click on text %q failed: %w", text, err)
	}
	return nil
}

func (d *PlaywrightDriver) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	ms, err := millis(ctx, timeout)
	if err != nil {
		return err
	}
	if err := d.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{Timeout: ms}); err != nil {
		return fmt.Errorf("fill of %q failed: %w", selector, err)
	}
	return nil
}

func (d *PlaywrightDriver) WaitForLoad(ctx context.Context, timeout time.Duration) error {
	return d.waitForState(ctx, playwright.LoadStateLoad, timeout)
}

func (d *PlaywrightDriver) WaitIdle(ctx context.Context, timeout time.Duration) error {
	return d.waitForState(ctx, playwright.LoadStateNetworkidle, timeout)
}

func (d *PlaywrightDriver) waitForState(ctx context.Context, state *playwright.LoadState, timeout time.Duration) error {
	ms, err := millis(ctx, timeout)
	if err != nil {
		return err
	}
	if err := d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: state, Timeout: ms}); err != nil {
		return fmt.Errorf("wait for %s failed: %w", *state, err)
	}
	return nil
}

// Close tears down the page, browser and driver process in that order.
func (d *PlaywrightDriver) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		var errs []string
		if err := d.page.Close(); err != nil {
			errs = append(errs, "page: "+err.Error())
		}
		if err := d.bctx.Close(); err != nil {
			errs = append(errs, "context: "+err.Error())
		}
		if err := d.browser.Close(); err != nil {
			errs = append(errs, "browser: "+err.Error())
		}
		if err := d.pw.Stop(); err != nil {
			errs = append(errs, "driver: "+err.Error())
		}
		if len(errs) > 0 {
			d.closeErr = fmt.Errorf("failed to close playwright session: %s", strings.Join(errs, "; "))
		}
		d.logger.Debug("Playwright session closed.")
	})
	return d.closeErr
}
