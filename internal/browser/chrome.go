// internal/browser/chrome.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
)

var jsonArgs = jsoniter.ConfigCompatibleWithStandardLibrary

// pollInterval is how often readiness probes re-check the page.
const pollInterval = 100 * time.Millisecond

// ChromeDriver drives a single Chrome tab over CDP.
type ChromeDriver struct {
	logger      *zap.Logger
	navTimeout  time.Duration
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	closeOnce   sync.Once
	closeErr    error
}

var _ schemas.BrowserDriver = (*ChromeDriver)(nil)

// NewChromeDriver launches Chrome and opens the tab every later call runs in.
func NewChromeDriver(ctx context.Context, cfg config.BrowserConfig, navTimeout time.Duration, logger *zap.Logger) (*ChromeDriver, error) {
	log := logger.Named("chromedp")

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execAllocatorOptions(cfg)...)

	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Warnf),
	}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(log.Sugar().Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// The first Run starts the browser process.
	startCtx, startCancel := CombineContext(tabCtx, ctx)
	defer startCancel()
	if err := chromedp.Run(startCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	if navTimeout <= 0 {
		navTimeout = 15 * time.Second
	}
	log.Info("Chrome session started.", zap.Bool("headless", cfg.Headless && !cfg.Debug))
	return &ChromeDriver{
		logger:      log,
		navTimeout:  navTimeout,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}, nil
}

// run executes actions in the tab, bounded by both ctx and timeout.
func (d *ChromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, opCancel := CombineContext(d.tabCtx, ctx)
	defer opCancel()
	runCtx, cancel := withOptionalTimeout(opCtx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("timed out after %s: %w", timeout, err)
	}
	return err
}

// Navigate loads url. chromedp.Navigate returns after the load event, which
// also satisfies the DOMContentLoaded strategy.
func (d *ChromeDriver) Navigate(ctx context.Context, url string, wait schemas.WaitStrategy) error {
	d.logger.Debug("Navigating.", zap.String("url", url), zap.String("wait", string(wait)))

	if err := d.run(ctx, d.navTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	if wait == schemas.WaitNetworkIdle {
		return d.WaitIdle(ctx, d.navTimeout)
	}
	return nil
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := d.run(ctx, 0, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// EvaluateScript calls a function expression with JSON-encoded arguments and
// awaits the result if it is a promise.
func (d *ChromeDriver) EvaluateScript(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error) {
	expr, err := callExpression(script, args)
	if err != nil {
		return nil, err
	}

	var raw []byte
	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}
	if err := d.run(ctx, 0, chromedp.Evaluate(expr, &raw, awaitPromise)); err != nil {
		return nil, fmt.Errorf("script evaluation failed: %w", err)
	}
	return json.RawMessage(raw), nil
}

// callExpression renders `(script)(arg1, arg2, ...)`.
func callExpression(script string, args []interface{}) (string, error) {
	encoded := make([]string, 0, len(args))
	for i, a := range args {
		b, err := jsonArgs.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("failed to encode script argument %d: %w", i, err)
		}
		encoded = append(encoded, string(b))
	}
	return fmt.Sprintf("(%s)(%s)", strings.TrimSpace(script), strings.Join(encoded, ", ")), nil
}

func (d *ChromeDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	d.logger.Debug("Clicking element.", zap.String("selector", selector))
	err := d.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

// ClickByText clicks the first link or button whose visible text contains text.
func (d *ChromeDriver) ClickByText(ctx context.Context, text string, timeout time.Duration) error {
	d.logger.Debug("Clicking element by text.", zap.String("text", text))
	xpath := textXPath(text)
	err := d.run(ctx, timeout,
		chromedp.WaitVisible(xpath, chromedp.BySearch),
		chromedp.ScrollIntoView(xpath, chromedp.BySearch),
		chromedp.Click(xpath, chromedp.BySearch),
	)
	if err != nil {
		return fmt.Errorf("click on text %q failed: %w", text, err)
	}
	return nil
}

// textXPath matches anchors, buttons and role=button elements by contained text.
func textXPath(text string) string {
	lit := xpathLiteral(strings.TrimSpace(text))
	cond := fmt.Sprintf("contains(normalize-space(.), %s)", lit)
	return fmt.Sprintf("(//a[%[1]s] | //button[%[1]s] | //*[@role='button'][%[1]s] | //input[@type='submit'][contains(@value, %[2]s)])",
		cond, lit)
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func (d *ChromeDriver) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	d.logger.Debug("Filling input.", zap.String("selector", selector), zap.Int("length", len(value)))
	err := d.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill of %q failed: %w", selector, err)
	}
	return nil
}

// WaitForLoad blocks until document.readyState is complete.
func (d *ChromeDriver) WaitForLoad(ctx context.Context, timeout time.Duration) error {
	return d.poll(ctx, timeout, `document.readyState === "complete"`)
}

// WaitIdle blocks until the page is loaded and no new resources have started
// for half a second.
func (d *ChromeDriver) WaitIdle(ctx context.Context, timeout time.Duration) error {
	const quiet = 500 * time.Millisecond
	const probe = `document.readyState === "complete" ? performance.getEntriesByType("resource").length : -1`

	opCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	last, stableSince := -1, time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var count int
		if err := d.run(opCtx, 0, chromedp.Evaluate(probe, &count)); err != nil {
			return fmt.Errorf("idle wait failed: %w", err)
		}
		if count != last || count < 0 {
			last, stableSince = count, time.Now()
		} else if time.Since(stableSince) >= quiet {
			return nil
		}

		select {
		case <-opCtx.Done():
			return fmt.Errorf("page did not settle within %s: %w", timeout, opCtx.Err())
		case <-ticker.C:
		}
	}
}

func (d *ChromeDriver) poll(ctx context.Context, timeout time.Duration, condition string) error {
	opCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var ok bool
		// Evaluation fails transiently while a navigation swaps the document.
		if err := d.run(opCtx, 0, chromedp.Evaluate(condition, &ok)); err == nil && ok {
			return nil
		}
		select {
		case <-opCtx.Done():
			return fmt.Errorf("wait for %q failed after %s: %w", condition, timeout, opCtx.Err())
		case <-ticker.C:
		}
	}
}

// Close shuts the tab and the browser process. Safe to call more than once.
func (d *ChromeDriver) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(d.tabCtx) }()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				d.closeErr = fmt.Errorf("failed to close chrome: %w", err)
			}
		case <-ctx.Done():
			d.closeErr = fmt.Errorf("chrome close interrupted: %w", ctx.Err())
		}
		d.tabCancel()
		d.allocCancel()
		d.logger.Debug("Chrome session closed.")
	})
	return d.closeErr
}
