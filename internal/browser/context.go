// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context derived from primary that is also canceled
// when secondary is done. chromedp keeps the CDP target in the primary
// context's values, while callers carry their deadlines on secondary.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// withOptionalTimeout applies timeout when positive and leaves ctx alone otherwise.
func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// effectiveTimeout clips timeout to whatever remains of ctx's deadline.
func effectiveTimeout(ctx context.Context, timeout time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout || timeout <= 0 {
			if remaining < 0 {
				return 0
			}
			return remaining
		}
	}
	return timeout
}
