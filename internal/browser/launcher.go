// internal/browser/launcher.go
package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
	"github.com/xkilldash9x/waypoint/internal/config"
)

// Launcher starts the browser driver for one run.
type Launcher func(ctx context.Context) (schemas.BrowserDriver, error)

// NewLauncher returns the Launcher for the configured engine.
func NewLauncher(cfg *config.Config, logger *zap.Logger) (Launcher, error) {
	browserCfg := cfg.Browser
	navTimeout := cfg.Network.NavigationTimeout

	switch browserCfg.Engine {
	case config.EngineChromedp, "":
		return func(ctx context.Context) (schemas.BrowserDriver, error) {
			return NewChromeDriver(ctx, browserCfg, navTimeout, logger)
		}, nil
	case config.EnginePlaywright:
		return func(ctx context.Context) (schemas.BrowserDriver, error) {
			return NewPlaywrightDriver(ctx, browserCfg, navTimeout, logger)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported browser engine %q", browserCfg.Engine)
	}
}
