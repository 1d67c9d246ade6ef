// internal/flow/page.go
package flow

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/waypoint/api/schemas"
)

var (
	//go:embed scripts/interactive.js
	interactiveScript string
	//go:embed scripts/summary.js
	summaryScript string
	//go:embed scripts/submit.js
	submitScript string
)

const (
	summaryMaxItems = 40
	summaryMaxText  = 1500
	scriptTimeout   = 5 * time.Second
)

// interactiveElements lists up to limit clickable candidates on the current page.
func interactiveElements(ctx context.Context, driver schemas.BrowserDriver, limit int) ([]schemas.InteractiveElement, error) {
	evalCtx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	raw, err := driver.EvaluateScript(evalCtx, interactiveScript, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to extract interactive elements: %w", err)
	}
	var elements []schemas.InteractiveElement
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, fmt.Errorf("failed to decode interactive elements: %w", err)
	}
	if limit > 0 && len(elements) > limit {
		elements = elements[:limit]
	}
	return elements, nil
}

// pageSummary captures the structure a verifier needs to judge the page.
func pageSummary(ctx context.Context, driver schemas.BrowserDriver) (*schemas.PageSummary, error) {
	evalCtx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	raw, err := driver.EvaluateScript(evalCtx, summaryScript, summaryMaxItems, summaryMaxText)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize page: %w", err)
	}
	var summary schemas.PageSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode page summary: %w", err)
	}
	return &summary, nil
}

// submitForm submits the form owning the password field. It reports false
// when no form could be found.
func submitForm(ctx context.Context, driver schemas.BrowserDriver, passwordSelector string) (bool, error) {
	evalCtx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	raw, err := driver.EvaluateScript(evalCtx, submitScript, passwordSelector)
	if err != nil {
		return false, fmt.Errorf("failed to submit form: %w", err)
	}
	var submitted bool
	if err := json.Unmarshal(raw, &submitted); err != nil {
		return false, fmt.Errorf("failed to decode submit result: %w", err)
	}
	return submitted, nil
}
