// internal/verify/inspector.go
package verify

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waypoint/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed signals.js
var signalsScript string

// Inspector reads login signals off the live page.
type Inspector struct {
	driver  schemas.BrowserDriver
	logger  *zap.Logger
	timeout time.Duration
}

// NewInspector creates an Inspector. timeout bounds the script evaluation.
func NewInspector(driver schemas.BrowserDriver, logger *zap.Logger, timeout time.Duration) *Inspector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Inspector{
		driver:  driver,
		logger:  logger.Named("login_verifier"),
		timeout: timeout,
	}
}

// Signals evaluates the detection script against the current page.
func (i *Inspector) Signals(ctx context.Context, preLoginURL, usernameSelector, passwordSelector string) (Signals, error) {
	evalCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	raw, err := i.driver.EvaluateScript(evalCtx, signalsScript, preLoginURL, usernameSelector, passwordSelector)
	if err != nil {
		return Signals{}, fmt.Errorf("failed to evaluate login signals: %w", err)
	}
	var s Signals
	if err := json.Unmarshal(raw, &s); err != nil {
		return Signals{}, fmt.Errorf("failed to decode login signals: %w", err)
	}
	return s, nil
}

// Outcome extracts the signals and returns the verdict. Extraction failures
// yield false along with the error.
func (i *Inspector) Outcome(ctx context.Context, preLoginURL, usernameSelector, passwordSelector string) (bool, Signals, error) {
	s, err := i.Signals(ctx, preLoginURL, usernameSelector, passwordSelector)
	if err != nil {
		i.logger.Warn("Could not inspect page after login, treating as failure.", zap.Error(err))
		return false, Signals{}, err
	}
	ok := Verify(s)
	i.logger.Debug("Login signals evaluated.",
		zap.Bool("url_changed", s.URLChanged),
		zap.Bool("form_gone", s.FormGone),
		zap.Bool("no_errors_shown", s.NoErrorsShown),
		zap.Bool("success_cues_present", s.SuccessCuesPresent),
		zap.Bool("verdict", ok),
	)
	return ok, s, nil
}
